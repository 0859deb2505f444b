// Package config resolves the settings of the CLI and the service from a
// YAML file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rimraf-adi/socrates/pkg/adapters/llm"
	"github.com/rimraf-adi/socrates/pkg/persistence/middleware"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSearxngURL = "http://localhost:8888"
	DefaultAddr       = ":8000"
	DefaultLogLevel   = "info"
)

// Environment variables read by Load.
const (
	EnvLMStudioURL  = "LMSTUDIO_BASE_URL"
	EnvSearxngURL   = "SEARXNG_BASE_URL"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvGroqKey      = "GROQ_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvHome         = "SOCRATES_HOME"
	EnvRedisURL     = "REDIS_URL"
	EnvProvider     = "SOCRATES_PROVIDER"
	EnvModel        = "SOCRATES_MODEL"
	EnvEncryptKey   = "SOCRATES_ENCRYPTION_KEY"
)

// Provider configures one generation backend.
type Provider struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int64         `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Encryption seals checkpoints at rest. Keys are 32 bytes, hex or base64.
type Encryption struct {
	Key          string   `yaml:"key"`
	FallbackKeys []string `yaml:"fallback_keys"`
}

type Server struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Config is the resolved configuration.
type Config struct {
	// Provider is the default backend name.
	Provider  string              `yaml:"provider"`
	Model     string              `yaml:"model"`
	Models    []string            `yaml:"models"`
	Providers map[string]Provider `yaml:"providers"`

	SearxngURL string `yaml:"searxng_url"`
	// Home holds records under research/ and checkpoints under runs/.
	Home     string `yaml:"home"`
	RedisURL string `yaml:"redis_url"`
	MaxSteps int    `yaml:"max_steps"`

	Log        Log        `yaml:"log"`
	Server     Server     `yaml:"server"`
	Encryption Encryption `yaml:"encryption"`
}

// Getenv looks up an environment variable.
type Getenv func(string) string

// DefaultPath is $XDG_CONFIG_HOME/socrates/config.yaml, falling back to
// ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath(getenv Getenv) string {
	base := getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(getenv("HOME"), ".config")
	}
	return filepath.Join(base, "socrates", "config.yaml")
}

// Load reads path (a missing file is not an error unless explicit is set),
// applies environment overrides and fills defaults.
func Load(fsys afero.Fs, path string, explicit bool, getenv Getenv) (*Config, error) {
	cfg := &Config{}

	data, err := afero.ReadFile(fsys, path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv(getenv)
	cfg.applyDefaults(getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv Getenv) {
	if c.Providers == nil {
		c.Providers = make(map[string]Provider)
	}
	set := func(name string, fn func(*Provider)) {
		p := c.Providers[name]
		fn(&p)
		c.Providers[name] = p
	}

	if v := getenv(EnvLMStudioURL); v != "" {
		set(llm.ProviderLMStudio, func(p *Provider) { p.BaseURL = v })
	}
	if v := getenv(EnvOpenAIKey); v != "" {
		set(llm.ProviderOpenAI, func(p *Provider) { p.APIKey = v })
	}
	if v := getenv(EnvGroqKey); v != "" {
		set(llm.ProviderGroq, func(p *Provider) { p.APIKey = v })
	}
	if v := getenv(EnvAnthropicKey); v != "" {
		set(llm.ProviderAnthropic, func(p *Provider) { p.APIKey = v })
	}
	if v := getenv(EnvSearxngURL); v != "" {
		c.SearxngURL = v
	}
	if v := getenv(EnvHome); v != "" {
		c.Home = v
	}
	if v := getenv(EnvRedisURL); v != "" {
		c.RedisURL = v
	}
	if v := getenv(EnvProvider); v != "" {
		c.Provider = v
	}
	if v := getenv(EnvModel); v != "" {
		c.Model = v
	}
	if v := getenv(EnvEncryptKey); v != "" {
		c.Encryption.Key = v
	}
}

func (c *Config) applyDefaults(getenv Getenv) {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = llm.ProviderLMStudio
	}
	// The local server needs no key, so it is always available.
	if _, ok := c.Providers[llm.ProviderLMStudio]; !ok {
		c.Providers[llm.ProviderLMStudio] = Provider{}
	}
	if len(c.Models) == 0 {
		c.Models = []string{llm.DefaultLocalModel}
	}
	if c.SearxngURL == "" {
		c.SearxngURL = DefaultSearxngURL
	}
	if c.Home == "" {
		c.Home = filepath.Join(getenv("HOME"), "Documents", "socrates")
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
}

// Validate checks that the default provider is known and configured.
func (c *Config) Validate() error {
	for name := range c.Providers {
		if !slices.Contains(llm.Providers(), name) {
			return fmt.Errorf("unknown provider %q in config", name)
		}
	}
	if _, ok := c.Providers[c.Provider]; !ok {
		return fmt.Errorf("default provider %q has no configuration (set its API key)", c.Provider)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max_steps must not be negative")
	}
	if c.Encryption.Key == "" && len(c.Encryption.FallbackKeys) > 0 {
		return fmt.Errorf("encryption fallback keys need an active key")
	}
	if _, err := c.EncryptionConfig(); err != nil {
		return err
	}
	return nil
}

// EncryptionConfig decodes the checkpoint keys. It returns nil when
// checkpoints are stored in the clear.
func (c *Config) EncryptionConfig() (*middleware.EncryptionConfig, error) {
	if c.Encryption.Key == "" {
		return nil, nil
	}
	active, err := middleware.ParseKey(c.Encryption.Key)
	if err != nil {
		return nil, fmt.Errorf("encryption.key: %w", err)
	}
	ec := &middleware.EncryptionConfig{ActiveKey: active}
	for i, raw := range c.Encryption.FallbackKeys {
		k, err := middleware.ParseKey(raw)
		if err != nil {
			return nil, fmt.Errorf("encryption.fallback_keys[%d]: %w", i, err)
		}
		ec.FallbackKeys = append(ec.FallbackKeys, k)
	}
	return ec, nil
}

// ProviderConfigs returns the configured backends in a stable order. The
// top-level model applies to the default provider only.
func (c *Config) ProviderConfigs() []llm.ProviderConfig {
	var out []llm.ProviderConfig
	for _, name := range llm.Providers() {
		p, ok := c.Providers[name]
		if !ok {
			continue
		}
		pc := llm.ProviderConfig{
			Name:      name,
			BaseURL:   p.BaseURL,
			APIKey:    p.APIKey,
			Model:     p.Model,
			MaxTokens: p.MaxTokens,
			Timeout:   p.Timeout,
		}
		if name == c.Provider && c.Model != "" {
			pc.Model = c.Model
		}
		out = append(out, pc)
	}
	return out
}

// RecordsDir is where the file sink writes run records.
func (c *Config) RecordsDir() string {
	return filepath.Join(c.Home, "research")
}

// RunsDir is where the file checkpoint store keeps run state.
func (c *Config) RunsDir() string {
	return filepath.Join(c.Home, "runs")
}
