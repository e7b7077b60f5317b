// Package app wires configuration, storage, the model runtime, and the HTTP
// server into one runnable application.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/agent"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/api"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/config"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/database"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/knowledge"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/log"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/objstore"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/router"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/store"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/tools"
)

// App holds every long-lived component of a running server.
type App struct {
	Config       *config.Config
	Logger       log.Logger
	Pool         *pgxpool.Pool
	Store        *store.Store
	Knowledge    *knowledge.Store
	Registry     *tools.Registry
	Orchestrator *agent.Orchestrator
	Objects      *objstore.Client
	Server       *api.Server
}

// Setup builds the full application: migrations, pool, stores, model
// runtime, agents, and HTTP server. Callers own Close.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if err := cfg.ValidateServe(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	g, embedder, err := initGenkit(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	st := store.New(pool, logger)
	kn := knowledge.New(pool, embedder, logger)

	objects, err := objstore.New(ctx, objstore.Config{
		Bucket:   cfg.S3Bucket,
		Region:   cfg.S3Region,
		Endpoint: cfg.S3Endpoint,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating object storage client: %w", err)
	}

	registry := tools.NewRegistry(logger)
	if err := registerTools(registry, kn, objects); err != nil {
		pool.Close()
		return nil, err
	}

	orch, err := buildOrchestrator(g, cfg, st, registry, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	server, err := api.NewServer(api.ServerConfig{
		Logger:       logger,
		Store:        st,
		Knowledge:    kn,
		Orchestrator: orch,
		Objects:      objects,
		Pool:         pool,
		JWTSecret:    []byte(cfg.JWTSecret),
		CORSOrigins:  cfg.CORSOrigins,
		TrustProxy:   cfg.TrustProxy,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating server: %w", err)
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		Pool:         pool,
		Store:        st,
		Knowledge:    kn,
		Registry:     registry,
		Orchestrator: orch,
		Objects:      objects,
		Server:       server,
	}, nil
}

// Close releases the app's resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// initGenkit initializes the model runtime for the configured provider and
// resolves the embedder used for retrieval.
func initGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, ai.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		plugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(plugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		plugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		plugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		return g, ollama.Embedder(g, cfg.OllamaHost), nil

	default: // "gemini"
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		return g, googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel), nil
	}
}

// qualifiedModel prefixes the model name with its provider namespace, as
// genkit expects in ai.WithModelName.
func qualifiedModel(provider, model string) string {
	switch provider {
	case "ollama":
		return "ollama/" + model
	default:
		return "googleai/" + model
	}
}

// registerTools fills the dispatch table with every tool the agents can
// reach.
func registerTools(registry *tools.Registry, kn *knowledge.Store, objects *objstore.Client) error {
	toRegister := []tools.Tool{
		tools.NewSearchTool(kn, ""),
		tools.NewEditTool(),
		tools.NewUploadURLTool(objects),
	}
	for _, t := range toRegister {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("registering tool %s: %w", t.Name(), err)
		}
	}
	return nil
}

// buildOrchestrator assembles the router and the three agents.
func buildOrchestrator(g *genkit.Genkit, cfg *config.Config, st *store.Store, registry *tools.Registry, logger log.Logger) (*agent.Orchestrator, error) {
	model := qualifiedModel(cfg.Provider, cfg.ModelName)
	classifier := qualifiedModel(cfg.Provider, cfg.ClassifierModel)

	chatRefs, err := agent.DefineChatToolRefs(g, registry)
	if err != nil {
		return nil, fmt.Errorf("defining chat tools: %w", err)
	}
	searchRefs, err := agent.DefineSearchToolRefs(g, registry)
	if err != nil {
		return nil, fmt.Errorf("defining search tools: %w", err)
	}
	editRefs, err := agent.DefineEditToolRefs(g, registry)
	if err != nil {
		return nil, fmt.Errorf("defining edit tools: %w", err)
	}

	rt := router.New(g, classifier, logger)

	return agent.NewOrchestrator(rt, st, cfg.HistoryLimit, logger,
		agent.NewChatAgent(g, model, registry, chatRefs, cfg.MaxTurns, logger),
		agent.NewSearchAgent(g, model, registry, searchRefs, cfg.MaxTurns, logger),
		agent.NewEditAgent(g, model, registry, editRefs, cfg.MaxTurns, logger),
	), nil
}
