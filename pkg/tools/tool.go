// Package tools implements the small tool registry used by the tool-use
// generation variant and the bounded loop that drives it.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Tool is a capability the model may call with name(arg="value", ...).
type Tool interface {
	Name() string
	// Usage is the call signature shown to the model, e.g. web_search(query="...").
	Usage() string
	Description() string
	Call(ctx context.Context, args map[string]string) (string, error)
}

// ToolError describes a failed tool call. It is fed back to the model as an
// observation rather than aborting the loop.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Registry is a fixed set of tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry. Later tools with the same name win.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe renders the tool list for a prompt.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, n := range r.Names() {
		t := r.tools[n]
		fmt.Fprintf(&b, "- %s: %s\n", t.Usage(), t.Description())
	}
	return b.String()
}

func requireArg(tool string, args map[string]string, key string) (string, error) {
	v, ok := args[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", &ToolError{Tool: tool, Message: fmt.Sprintf("missing required argument %q", key)}
	}
	return v, nil
}
