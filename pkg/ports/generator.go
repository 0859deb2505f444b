package ports

import "context"

// GenerateRequest is a single prompt submitted to a generation backend.
type GenerateRequest struct {
	Prompt      string
	System      string
	Temperature float64
	// Model overrides the backend's configured model when set.
	Model string
}

// Generator is the generation collaborator.
// Failures wrap domain.ErrBackend. Implementations apply their own timeout.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

// Generate calls f(ctx, req).
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}
