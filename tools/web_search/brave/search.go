package brave

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mohammad-safakhou/marketresearch/internal/helpers"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search/models"
)

const DefaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

type Search struct {
	APIKey   string
	Endpoint string
	Client   *helpers.HTTPClient
}

func (s Search) Name() string { return "brave" }

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
	params.Set("count", strconv.Itoa(k))

	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	headers := map[string]string{"X-Subscription-Token": s.APIKey}
	if err := client.DoJSON(ctx, http.MethodGet, endpoint+"?"+params.Encode(), headers, nil, &raw); err != nil {
		return nil, err
	}
	var out []models.Result
	for i, r := range raw.Web.Results {
		if i >= k {
			break
		}
		out = append(out, models.Result{
			Title:    helpers.PlainText(r.Title),
			Snippet:  helpers.PlainText(r.Snippet),
			Link:     r.URL,
			Position: i + 1,
			Provider: s.Name(),
		})
	}
	return out, nil
}
