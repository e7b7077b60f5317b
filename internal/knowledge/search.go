package knowledge

import "time"

// SearchOption configures Search via functional options.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK       int
	documentID string // empty = search all documents
	namespace  string // empty = all namespaces
	timeout    time.Duration
}

const (
	defaultTopK          = 5
	maxTopK              = 20
	defaultSearchTimeout = 10 * time.Second
)

// WithTopK sets the maximum number of results, clamped to [1, maxTopK].
func WithTopK(k int) SearchOption {
	return func(cfg *searchConfig) {
		if k >= 1 && k <= maxTopK {
			cfg.topK = k
		}
	}
}

// WithDocument restricts the search to chunks of one document.
func WithDocument(documentID string) SearchOption {
	return func(cfg *searchConfig) {
		cfg.documentID = documentID
	}
}

// WithNamespace restricts the search to one vector namespace.
func WithNamespace(ns string) SearchOption {
	return func(cfg *searchConfig) {
		cfg.namespace = ns
	}
}

// WithTimeout overrides the per-query timeout.
func WithTimeout(d time.Duration) SearchOption {
	return func(cfg *searchConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) searchConfig {
	cfg := searchConfig{
		topK:    defaultTopK,
		timeout: defaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
