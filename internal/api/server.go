// Package api is the HTTP surface of the assistant: authentication, session
// and message CRUD, document management, calendar events, and the SSE chat
// stream. Routing uses the standard library mux with method-qualified
// patterns; cross-cutting concerns are a plain middleware stack.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/agent"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/knowledge"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/store"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger       *slog.Logger
	Store        *store.Store        // Required
	Knowledge    *knowledge.Store    // Required
	Orchestrator *agent.Orchestrator // Required
	Objects      ObjectStore         // Optional: nil disables document upload/export routes
	Pool         *pgxpool.Pool       // Optional: nil disables pool stats in /ready
	JWTSecret    []byte              // Required: 32+ bytes
	CORSOrigins  []string            // Allowed origins for CORS
	IsDev        bool                // Disables HSTS header
	TrustProxy   bool                // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst    int                 // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tokens := &tokenManager{secret: cfg.JWTSecret}

	ah := &authHandler{store: cfg.Store, tokens: tokens, logger: logger}
	sh := &sessionHandler{store: cfg.Store, logger: logger}
	ch := &chatHandler{store: cfg.Store, orch: cfg.Orchestrator, logger: logger}
	cal := &calendarHandler{store: cfg.Store, logger: logger}

	mux := http.NewServeMux()

	// Session CRUD
	mux.HandleFunc("GET /api/v1/sessions", sh.list)
	mux.HandleFunc("POST /api/v1/sessions", sh.create)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.get)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", sh.messages)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.delete)

	// Chat
	mux.HandleFunc("POST /api/v1/chat/save", ch.save)
	mux.HandleFunc("POST /api/v1/chat/stream", ch.stream)

	// Documents (optional — only registered when object storage is wired)
	if cfg.Objects != nil {
		dh := newDocumentHandler(cfg.Store, cfg.Knowledge, cfg.Objects, logger)
		mux.HandleFunc("POST /api/v1/documents", dh.upload)
		mux.HandleFunc("GET /api/v1/documents", dh.list)
		mux.HandleFunc("GET /api/v1/documents/{id}", dh.get)
		mux.HandleFunc("PUT /api/v1/documents/{id}/content", dh.updateContent)
		mux.HandleFunc("GET /api/v1/documents/{id}/export", dh.export)
		mux.HandleFunc("DELETE /api/v1/documents/{id}", dh.delete)
		mux.HandleFunc("POST /api/v1/documents/presign", dh.presignUpload)
	}

	// Calendar
	mux.HandleFunc("GET /api/v1/calendar/events", cal.listEvents)
	mux.HandleFunc("POST /api/v1/calendar/events", cal.createEvent)
	mux.HandleFunc("PUT /api/v1/calendar/events/{id}", cal.updateEvent)
	mux.HandleFunc("DELETE /api/v1/calendar/events/{id}", cal.deleteEvent)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	rl := newRateLimiter(1.0, cfg.RateBurst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Auth → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = authMiddleware(tokens, logger)(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Top-level mux keeps health probes and login outside the auth stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.HandleFunc("POST /api/v1/auth/login", ah.login)
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
