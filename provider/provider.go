package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic_provider "github.com/mohammad-safakhou/marketresearch/provider/anthropic"
	openai_provider "github.com/mohammad-safakhou/marketresearch/provider/openai"
)

// Client names an LLM vendor.
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

// Default models per vendor, used when none is configured.
const (
	DefaultOpenAIModel    = "gpt-4.1-mini"
	DefaultAnthropicModel = "claude-opus-4-6"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported LLM provider")
	ErrMissingAPIKey       = errors.New("missing API key")
)

// Generator turns a prompt into model text. It is the only LLM surface the
// workflow depends on.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config selects and tunes a Generator.
type Config struct {
	Provider    Client
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	MaxRetries  int
	Timeout     time.Duration
}

// ParseClient normalises a vendor name.
func ParseClient(name string) (Client, error) {
	switch c := Client(strings.ToLower(strings.TrimSpace(name))); c {
	case "":
		return OpenAI, nil
	case OpenAI, Anthropic:
		return c, nil
	default:
		return "", fmt.Errorf("%w %q: use 'openai' or 'anthropic'", ErrUnsupportedProvider, name)
	}
}

// ResolveModel returns the configured model or the vendor default.
func ResolveModel(cfg Config) string {
	if m := strings.TrimSpace(cfg.Model); m != "" {
		return m
	}
	if cfg.Provider == Anthropic {
		return DefaultAnthropicModel
	}
	return DefaultOpenAIModel
}

// New creates the Generator for cfg.Provider.
func New(cfg Config) (Generator, error) {
	client, err := ParseClient(string(cfg.Provider))
	if err != nil {
		return nil, err
	}
	cfg.Provider = client
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w for provider %s", ErrMissingAPIKey, client)
	}
	model := ResolveModel(cfg)

	switch client {
	case Anthropic:
		return anthropic_provider.New(anthropic_provider.Options{
			APIKey:      cfg.APIKey,
			Model:       model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			MaxRetries:  cfg.MaxRetries,
			Timeout:     cfg.Timeout,
		}), nil
	default:
		return openai_provider.New(openai_provider.Options{
			APIKey:      cfg.APIKey,
			Model:       model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			MaxRetries:  cfg.MaxRetries,
			Timeout:     cfg.Timeout,
		}), nil
	}
}
