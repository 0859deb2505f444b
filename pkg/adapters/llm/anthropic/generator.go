// Package anthropic provides a ports.Generator backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/ports"
)

// Options configure the Anthropic generator.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int64
	Timeout    time.Duration
	MaxRetries int
}

// Generator implements ports.Generator.
type Generator struct {
	client *anthropic.Client
	opts   Options
}

var _ ports.Generator = (*Generator)(nil)

func defaultOptions() Options {
	return Options{
		Model:      string(anthropic.ModelClaude3_5Sonnet20241022),
		MaxTokens:  4096,
		Timeout:    5 * time.Minute,
		MaxRetries: 2,
	}
}

// New creates a generator with its own client.
func New(optFns ...func(o *Options)) *Generator {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(opts.MaxRetries)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)
	return &Generator{client: &client, opts: opts}
}

// NewFromClient creates a generator from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Generator {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Generator{client: client, opts: opts}
}

// Generate sends a single user message and concatenates the text blocks of the reply.
func (g *Generator) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	model := g.opts.Model
	if req.Model != "" {
		model = req.Model
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   g.opts.MaxTokens,
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: anthropic: %w", domain.ErrBackend, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: anthropic: empty response", domain.ErrBackend)
	}
	return strings.TrimSpace(sb.String()), nil
}
