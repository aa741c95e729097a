// Package tool provides the function-calling tools available to the agents
// and a registry that exposes them to the model.
//
// Every tool implements langchaingo's tools.Tool. Call receives the raw JSON
// arguments produced by the model and returns a JSON document.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/smallnest/agent101/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// ErrUnknownTool is returned when the model calls a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is a langchaingo tool that also describes its JSON arguments.
type Tool interface {
	tools.Tool
	// Parameters returns the JSON schema of the arguments object.
	Parameters() map[string]any
}

// Registry holds tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding ts.
func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Default returns the registry with evaluate_expression, web_search and
// web_fetch configured from s.
func Default(s config.Settings) *Registry {
	return NewRegistry(
		NewCalculator(),
		NewWebSearch(SearchProvidersFor(s)...),
		NewWebFetch(),
	)
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tool schemas offered to the model.
func (r *Registry) Definitions() []llms.Tool {
	names := r.Names()
	defs := make([]llms.Tool, 0, len(names))
	for _, n := range names {
		t, _ := r.Get(n)
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Execute runs the named tool with JSON arguments.
func (r *Registry) Execute(ctx context.Context, name, args string) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Call(ctx, args)
}

// ErrorResult is the JSON written back to the model when a tool fails.
func ErrorResult(name string, err error) string {
	b, _ := json.Marshal(map[string]string{"name": name, "error": err.Error()})
	return string(b)
}

func decodeArgs(input string, v any) error {
	input = strings.TrimSpace(input)
	if input == "" {
		input = "{}"
	}
	if err := json.Unmarshal([]byte(input), v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func encodeResult(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}
