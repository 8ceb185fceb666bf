package web_search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/marketresearch/internal/helpers"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search/brave"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search/duckduckgo"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search/models"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search/serper"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search/wikipedia"
)

// WebSearcher is one search backend.
type WebSearcher interface {
	Name() string
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider     Provider = "serper"
	BraveProvider      Provider = "brave"
	DuckDuckGoProvider Provider = "duckduckgo"
	WikipediaProvider  Provider = "wikipedia"
)

// DefaultMaxResults caps aggregated results.
const DefaultMaxResults = 10

var (
	ErrUnsupportedProvider = errors.New("unsupported search provider")
	ErrNoProviders         = errors.New("no search providers configured")
)

// NewWebSearcher builds a single provider. Keyed providers require apiKey.
func NewWebSearcher(provider Provider, apiKey string, client *helpers.HTTPClient) (WebSearcher, error) {
	switch provider {
	case SerperProvider:
		if apiKey == "" {
			return nil, fmt.Errorf("%s: api key required", provider)
		}
		return serper.Search{APIKey: apiKey, Client: client}, nil
	case BraveProvider:
		if apiKey == "" {
			return nil, fmt.Errorf("%s: api key required", provider)
		}
		return brave.Search{APIKey: apiKey, Client: client}, nil
	case DuckDuckGoProvider:
		return duckduckgo.Search{Client: client}, nil
	case WikipediaProvider:
		return wikipedia.Search{Client: client}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}

// Options selects and orders providers for NewAggregatorFromOptions.
type Options struct {
	SerperAPIKey string
	BraveAPIKey  string
	// Fallbacks are unauthenticated providers queried after keyed ones.
	Fallbacks  []Provider
	MaxResults int
	Timeout    time.Duration
	Retries    int
	Logger     *log.Logger
}

// NewAggregatorFromOptions orders keyed providers first (only those with a
// credential), then the fallbacks in the given order.
func NewAggregatorFromOptions(opts Options) (*Aggregator, error) {
	client := helpers.NewHTTPClient(opts.Timeout, opts.Retries, 0)
	var providers []WebSearcher
	if opts.SerperAPIKey != "" {
		providers = append(providers, serper.Search{APIKey: opts.SerperAPIKey, Client: client})
	}
	if opts.BraveAPIKey != "" {
		providers = append(providers, brave.Search{APIKey: opts.BraveAPIKey, Client: client})
	}
	for _, p := range opts.Fallbacks {
		s, err := NewWebSearcher(p, "", client)
		if err != nil {
			return nil, err
		}
		providers = append(providers, s)
	}
	agg := NewAggregator(opts.MaxResults, providers...)
	agg.timeout = client.Timeout()
	if opts.Logger != nil {
		agg.logger = opts.Logger
	}
	return agg, nil
}

// ProviderFailure records why one provider produced nothing.
type ProviderFailure struct {
	Provider string
	Err      error
}

// AggregateError is returned when every provider failed.
type AggregateError struct {
	Query    string
	Failures []ProviderFailure
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Provider+": "+f.Err.Error())
	}
	return "all search providers failed: " + strings.Join(parts, "; ")
}

// Aggregator queries providers in priority order and merges their results.
type Aggregator struct {
	providers  []WebSearcher
	maxResults int
	timeout    time.Duration
	logger     *log.Logger
}

func NewAggregator(maxResults int, providers ...WebSearcher) *Aggregator {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Aggregator{
		providers:  providers,
		maxResults: maxResults,
		logger:     log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
	}
}

// Providers lists provider names in query order.
func (a *Aggregator) Providers() []string {
	names := make([]string, 0, len(a.providers))
	for _, p := range a.providers {
		names = append(names, p.Name())
	}
	return names
}

// Search returns up to maxResults results deduplicated by normalised link,
// first occurrence winning. Providers are skipped once the cap is reached. An
// error is returned only when no provider succeeded.
func (a *Aggregator) Search(ctx context.Context, query string) ([]models.Result, error) {
	if len(a.providers) == 0 {
		return nil, ErrNoProviders
	}
	seen := make(map[string]struct{})
	out := make([]models.Result, 0, a.maxResults)
	var failures []ProviderFailure
	succeeded := 0

	for _, p := range a.providers {
		if len(out) >= a.maxResults {
			break
		}
		if err := ctx.Err(); err != nil {
			failures = append(failures, ProviderFailure{Provider: p.Name(), Err: err})
			break
		}
		results, err := p.Discover(ctx, query, a.maxResults)
		if err != nil {
			if helpers.IsTimeout(err) && a.timeout > 0 {
				err = fmt.Errorf("timed out after %s: %w", a.timeout, err)
			}
			a.logger.Printf("provider %s failed for %q: %v", p.Name(), query, err)
			failures = append(failures, ProviderFailure{Provider: p.Name(), Err: err})
			continue
		}
		succeeded++
		for _, r := range results {
			if len(out) >= a.maxResults {
				break
			}
			if strings.TrimSpace(r.Link) != "" {
				key := helpers.LinkKey(r.Link)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
			out = append(out, r)
		}
	}
	if succeeded == 0 {
		return nil, &AggregateError{Query: query, Failures: failures}
	}
	return out, nil
}
