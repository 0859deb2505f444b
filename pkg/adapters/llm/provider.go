package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/rimraf-adi/socrates/pkg/adapters/llm/anthropic"
	"github.com/rimraf-adi/socrates/pkg/adapters/llm/openai"
	"github.com/rimraf-adi/socrates/pkg/ports"
)

// Provider names accepted by NewGenerator.
const (
	ProviderLMStudio  = "lmstudio"
	ProviderOpenAI    = "openai"
	ProviderGroq      = "groq"
	ProviderAnthropic = "anthropic"
)

const (
	DefaultLMStudioURL = "http://127.0.0.1:1234/v1"
	DefaultGroqURL     = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
	DefaultLocalModel  = "mistralai/ministral-3-3b"
)

// Providers lists the accepted provider names.
func Providers() []string {
	return []string{ProviderLMStudio, ProviderOpenAI, ProviderGroq, ProviderAnthropic}
}

// ProviderConfig selects and configures one generation backend.
type ProviderConfig struct {
	Name      string
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// NewGenerator builds the generator for cfg.Name. Empty fields take the
// provider's defaults.
func NewGenerator(cfg ProviderConfig) (ports.Generator, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" {
		name = ProviderLMStudio
	}

	switch name {
	case ProviderLMStudio, ProviderOpenAI, ProviderGroq:
		return openai.New(func(o *openai.Options) {
			switch name {
			case ProviderLMStudio:
				o.BaseURL = DefaultLMStudioURL
				o.APIKey = "lm-studio"
				o.Model = DefaultLocalModel
			case ProviderGroq:
				o.BaseURL = DefaultGroqURL
				o.Model = DefaultGroqModel
			}
			applyCommon(cfg, &o.BaseURL, &o.APIKey, &o.Model, &o.MaxTokens, &o.Timeout)
		}), nil
	case ProviderAnthropic:
		return anthropic.New(func(o *anthropic.Options) {
			applyCommon(cfg, &o.BaseURL, &o.APIKey, &o.Model, &o.MaxTokens, &o.Timeout)
		}), nil
	}
	return nil, fmt.Errorf("unknown provider %q (want one of %s)", cfg.Name, strings.Join(Providers(), ", "))
}

func applyCommon(cfg ProviderConfig, baseURL, apiKey, model *string, maxTokens *int64, timeout *time.Duration) {
	if cfg.BaseURL != "" {
		*baseURL = cfg.BaseURL
	}
	if cfg.APIKey != "" {
		*apiKey = cfg.APIKey
	}
	if cfg.Model != "" {
		*model = cfg.Model
	}
	if cfg.MaxTokens > 0 {
		*maxTokens = cfg.MaxTokens
	}
	if cfg.Timeout > 0 {
		*timeout = cfg.Timeout
	}
}
