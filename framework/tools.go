package framework

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	// ErrToolExists is returned when a tool name is registered twice.
	ErrToolExists = errors.New("tool already registered")
	// ErrToolNotFound is returned when a lookup or removal names an unknown tool.
	ErrToolNotFound = errors.New("tool not found")
)

// Tool defines a capability the model may request. The metadata doubles as a
// schema that the chat API reasons about when deciding which tool to call.
// Execute never reports failure through a Go error: a failed run is a
// ToolResult with Success=false.
type Tool interface {
	Name() string
	Description() string
	Parameters() []ToolParameter
	Execute(ctx context.Context, args map[string]interface{}) ToolResult
}

// ToolParameter describes an argument the tool accepts.
type ToolParameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Default     interface{}
}

// ToolResult is returned by every tool execution.
type ToolResult struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Ok wraps a successful result value.
func Ok(result interface{}) ToolResult {
	return ToolResult{Success: true, Result: result}
}

// Fail builds a failed result from a formatted message.
func Fail(format string, args ...interface{}) ToolResult {
	return ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// ToolRegistry maintains tools keyed by name. It is populated at startup and
// read concurrently by every chat request afterwards.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *slog.Logger
}

// NewToolRegistry builds a registry instance. A nil logger falls back to
// slog.Default.
func NewToolRegistry(logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolRegistry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool to the registry.
func (r *ToolRegistry) Register(tool Tool) error {
	if tool == nil || tool.Name() == "" {
		return errors.New("tool must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool %s: %w", tool.Name(), ErrToolExists)
	}
	r.tools[tool.Name()] = tool
	r.logger.Debug("tool registered", "tool", tool.Name())
	return nil
}

// Unregister removes a tool by name.
func (r *ToolRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %s: %w", name, ErrToolNotFound)
	}
	delete(r.tools, name)
	r.logger.Debug("tool unregistered", "tool", name)
	return nil
}

// Get fetches a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools sorted by name.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name() < res[j].Name() })
	return res
}

// Len reports how many tools are registered.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Schemas renders every registered tool in the function-definition format.
func (r *ToolRegistry) Schemas() []ToolSchema {
	tools := r.List()
	out := make([]ToolSchema, 0, len(tools))
	for _, t := range tools {
		out = append(out, SchemaFor(t))
	}
	return out
}
