// Package openai provides a ports.Generator backed by the OpenAI chat
// completions API. Any OpenAI-compatible server (LM Studio, Groq) works by
// pointing BaseURL at it.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/ports"
)

// Options configure the OpenAI generator.
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
	client *openai.Client
	opts   Options
}

var _ ports.Generator = (*Generator)(nil)

func defaultOptions() Options {
	return Options{
		Model:      openai.ChatModelGPT4oMini,
		MaxTokens:  8192,
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

	client := openai.NewClient(clientOpts...)
	return &Generator{client: &client, opts: opts}
}

// NewFromClient creates a generator from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Generator {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Generator{client: client, opts: opts}
}

// Generate sends a single-turn chat completion.
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

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       model,
		Temperature: openai.Float(req.Temperature),
	}
	if g.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(g.opts.MaxTokens)
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: openai: %w", domain.ErrBackend, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai: no choices returned", domain.ErrBackend)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
