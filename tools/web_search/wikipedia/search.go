package wikipedia

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/marketresearch/internal/helpers"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search/models"
)

const (
	DefaultEndpoint = "https://en.wikipedia.org/w/api.php"
	DefaultBaseURL  = "https://en.wikipedia.org/wiki/"
	userAgent       = "marketresearch/1.0 (planning workflow search fallback)"
)

type Search struct {
	Endpoint string
	// BaseURL prefixes article titles to build links.
	BaseURL string
	Client  *helpers.HTTPClient
}

func (s Search) Name() string { return "wikipedia" }

func (s Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	base := s.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	client := s.Client
	if client == nil {
		client = helpers.NewHTTPClient(0, 1, 0)
	}
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", q)
	params.Set("srlimit", strconv.Itoa(k))
	params.Set("format", "json")
	params.Set("utf8", "1")

	var raw struct {
		Query struct {
			Search []struct {
				Title   string `json:"title"`
				Snippet string `json:"snippet"`
			} `json:"search"`
		} `json:"query"`
	}
	headers := map[string]string{"User-Agent": userAgent}
	if err := client.DoJSON(ctx, http.MethodGet, endpoint+"?"+params.Encode(), headers, nil, &raw); err != nil {
		return nil, err
	}
	var out []models.Result
	for i, hit := range raw.Query.Search {
		if i >= k {
			break
		}
		out = append(out, models.Result{
			Title:    hit.Title,
			Snippet:  helpers.PlainText(hit.Snippet),
			Link:     base + url.PathEscape(strings.ReplaceAll(hit.Title, " ", "_")),
			Position: i + 1,
			Provider: s.Name(),
		})
	}
	return out, nil
}
