package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Registry is the dispatch table mapping tool names to implementations.
// Registration happens during startup; after that the Registry is read-only
// and safe for concurrent use.
type Registry struct {
	tools  map[string]Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{tools: make(map[string]Tool), logger: logger}
}

// Register adds a tool. Duplicate names are a programming error.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch executes one tool request. Unknown tools and execution errors are
// converted to error Results at this boundary — the caller always gets a
// Result to fold back into the conversation, never an error.
func (r *Registry) Dispatch(ctx context.Context, name string, input json.RawMessage) *Result {
	t, ok := r.tools[name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		return ErrorResult(name, fmt.Errorf("unknown tool %q", name))
	}

	result, err := t.Execute(ctx, input)
	if err != nil {
		r.logger.Warn("tool execution failed", "tool", name, "error", err)
		return ErrorResult(name, err)
	}
	if result.Status == "" {
		result.Status = StatusSuccess
	}
	return result
}

// Describe renders a short catalog of the registered tools for inclusion in
// a system prompt.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, name := range r.Names() {
		fmt.Fprintf(&b, "- %s: %s\n", name, r.tools[name].Description())
	}
	return b.String()
}
