// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or $CHATBOT_CONFIG_DIR/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model, classifier model, embedder, agent loop limits
//   - Storage: PostgreSQL connection (see storage.go)
//   - Object storage: S3 bucket for uploaded documents
//   - Security: JWT secret, CORS origins
//
// Sensitive values (DB password, JWT secret) are never logged; MarshalJSON masks them.
package config

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation, checked with errors.Is().
var (
	// ErrMissingAPIKey indicates the LLM API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMaxTurns indicates the agent step ceiling is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns")

	// ErrInvalidDBHost indicates the PostgreSQL host is invalid.
	ErrInvalidDBHost = errors.New("invalid database host")

	// ErrInvalidDBPort indicates the PostgreSQL port is out of range.
	ErrInvalidDBPort = errors.New("invalid database port")

	// ErrInvalidDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidDBName = errors.New("invalid database name")

	// ErrMissingJWTSecret indicates the JWT signing secret is not set.
	ErrMissingJWTSecret = errors.New("missing JWT secret")

	// ErrInvalidJWTSecret indicates the JWT signing secret is too short.
	ErrInvalidJWTSecret = errors.New("invalid JWT secret")

	// ErrMissingBucket indicates the object-storage bucket is not configured.
	ErrMissingBucket = errors.New("missing storage bucket")
)

const (
	// DefaultMaxTurns is the default agent tool-loop step ceiling.
	// Exceeding it aborts the turn; see agent.ErrMaxTurnsExceeded.
	DefaultMaxTurns = 24

	// MaxAllowedTurns is the absolute ceiling accepted from configuration.
	MaxAllowedTurns = 50

	// DefaultHistoryLimit is the default number of messages loaded per turn.
	DefaultHistoryLimit = 100

	// DefaultEmbedderModel is the default Gemini embedder model.
	// Outputs are truncated to 768 dimensions to match the pgvector schema.
	DefaultEmbedderModel = "gemini-embedding-001"

	// minJWTSecretLen is the minimum accepted secret length in bytes.
	minJWTSecretLen = 32
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider        string `mapstructure:"provider" json:"provider"`                 // "gemini" (default) or "ollama"
	ModelName       string `mapstructure:"model_name" json:"model_name"`             // conversation model
	ClassifierModel string `mapstructure:"classifier_model" json:"classifier_model"` // intent router model (defaults to ModelName)
	EmbedderModel   string `mapstructure:"embedder_model" json:"embedder_model"`
	OllamaHost      string `mapstructure:"ollama_host" json:"ollama_host"`

	// Agent loop configuration
	MaxTurns     int `mapstructure:"max_turns" json:"max_turns"`
	HistoryLimit int `mapstructure:"history_limit" json:"history_limit"`

	// Storage configuration (see storage.go)
	DBHost     string `mapstructure:"db_host" json:"db_host"`
	DBPort     int    `mapstructure:"db_port" json:"db_port"`
	DBUser     string `mapstructure:"db_user" json:"db_user"`
	DBPassword string `mapstructure:"db_pass" json:"db_pass"` // SENSITIVE: masked in MarshalJSON
	DBName     string `mapstructure:"db_name" json:"db_name"`
	DBSSLMode  string `mapstructure:"db_sslmode" json:"db_sslmode"`

	// Object storage (uploaded documents and derived markdown)
	S3Bucket   string `mapstructure:"s3_bucket" json:"s3_bucket"`
	S3Region   string `mapstructure:"s3_region" json:"s3_region"`
	S3Endpoint string `mapstructure:"s3_endpoint" json:"s3_endpoint"` // optional, for MinIO-compatible stores

	// HTTP server
	ServeAddr   string   `mapstructure:"serve_addr" json:"serve_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`

	// Security
	JWTSecret string `mapstructure:"jwt_secret" json:"jwt_secret"` // SENSITIVE: masked in MarshalJSON
}

// MarshalJSON masks sensitive fields so Config can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	a := alias(c)
	if a.DBPassword != "" {
		a.DBPassword = "***"
	}
	if a.JWTSecret != "" {
		a.JWTSecret = "***"
	}
	return json.Marshal(a)
}

// Load reads configuration from defaults, the optional config file, and
// environment variables. A .env file in the working directory is loaded
// first so container-style deployments work without exporting variables.
func Load() (*Config, error) {
	// Best-effort: absence of .env is the normal case in production.
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("provider", "gemini")
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("max_turns", DefaultMaxTurns)
	v.SetDefault("history_limit", DefaultHistoryLimit)
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_name", "chatbot")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("s3_region", "ap-northeast-2")
	v.SetDefault("serve_addr", ":8080")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir := v.GetString("config_dir"); dir != "" {
		v.AddConfigPath(dir)
	}

	// Environment variables override the file: DB_HOST, JWT_SECRET, ...
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// No config file is fine; env vars and defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.ClassifierModel == "" {
		cfg.ClassifierModel = cfg.ModelName
	}

	return &cfg, nil
}

// Validate checks values required by every run mode.
func (c *Config) Validate() error {
	if c.ModelName == "" {
		return ErrInvalidModelName
	}
	if c.MaxTurns <= 0 || c.MaxTurns > MaxAllowedTurns {
		return ErrInvalidMaxTurns
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return nil
}

// ValidateServe checks values required by the HTTP server mode
// on top of Validate.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if len(c.JWTSecret) < minJWTSecretLen {
		return ErrInvalidJWTSecret
	}
	if c.S3Bucket == "" {
		return ErrMissingBucket
	}
	return nil
}
