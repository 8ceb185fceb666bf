// Package duckduckgo queries the unauthenticated DuckDuckGo Instant Answer API.
// It returns abstracts and related topics rather than a full web index, which
// makes it a fallback rather than a primary provider.
package duckduckgo

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/marketresearch/internal/helpers"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search/models"
)

const DefaultEndpoint = "https://api.duckduckgo.com/"

type Search struct {
	Endpoint string
	Client   *helpers.HTTPClient
}

type topic struct {
	Text     string  `json:"Text"`
	FirstURL string  `json:"FirstURL"`
	Name     string  `json:"Name"`
	Topics   []topic `json:"Topics"`
}

type response struct {
	Heading        string  `json:"Heading"`
	AbstractText   string  `json:"AbstractText"`
	AbstractURL    string  `json:"AbstractURL"`
	AbstractSource string  `json:"AbstractSource"`
	Results        []topic `json:"Results"`
	RelatedTopics  []topic `json:"RelatedTopics"`
}

func (s Search) Name() string { return "duckduckgo" }

func (s Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := s.Client
	if client == nil {
		client = helpers.NewHTTPClient(0, 1, 0)
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("no_redirect", "1")
	params.Set("skip_disambig", "1")

	var raw response
	if err := client.DoJSON(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil, nil, &raw); err != nil {
		return nil, err
	}

	var out []models.Result
	add := func(title, snippet, link string) {
		if len(out) >= k || link == "" {
			return
		}
		out = append(out, models.Result{
			Title:    title,
			Snippet:  snippet,
			Link:     link,
			Position: len(out) + 1,
			Provider: s.Name(),
		})
	}
	if raw.AbstractURL != "" && raw.AbstractText != "" {
		title := raw.Heading
		if raw.AbstractSource != "" {
			title += " (" + raw.AbstractSource + ")"
		}
		add(title, helpers.PlainText(raw.AbstractText), raw.AbstractURL)
	}
	for _, t := range flatten(append(raw.Results, raw.RelatedTopics...)) {
		text := helpers.PlainText(t.Text)
		add(titleOf(text), text, t.FirstURL)
	}
	return out, nil
}

// flatten expands grouped topics ({Name, Topics}) in order.
func flatten(topics []topic) []topic {
	var out []topic
	for _, t := range topics {
		if len(t.Topics) > 0 {
			out = append(out, flatten(t.Topics)...)
			continue
		}
		out = append(out, t)
	}
	return out
}

// titleOf uses the part of a topic text before " - " as its title.
func titleOf(text string) string {
	if i := strings.Index(text, " - "); i > 0 {
		return text[:i]
	}
	return text
}
