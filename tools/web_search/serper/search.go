package serper

import (
	"context"
	"net/http"

	"github.com/mohammad-safakhou/marketresearch/internal/helpers"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search/models"
)

// DefaultEndpoint is the Google search endpoint of serper.dev.
const DefaultEndpoint = "https://google.serper.dev/search"

type Search struct {
	APIKey   string
	Endpoint string
	Client   *helpers.HTTPClient
}

type response struct {
	KnowledgeGraph *struct {
		Title             string            `json:"title"`
		Type              string            `json:"type"`
		Description       string            `json:"description"`
		DescriptionSource string            `json:"descriptionSource"`
		DescriptionLink   string            `json:"descriptionLink"`
		Website           string            `json:"website"`
		Attributes        map[string]string `json:"attributes"`
	} `json:"knowledgeGraph"`
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
	} `json:"organic"`
}

func (s Search) Name() string { return "serper" }

// Discover returns the knowledge graph entry (when present) followed by the
// organic results.
func (s Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := s.Client
	if client == nil {
		client = helpers.NewHTTPClient(0, 1, 0)
	}
	var raw response
	headers := map[string]string{"X-API-KEY": s.APIKey}
	if err := client.DoJSON(ctx, http.MethodPost, endpoint, headers, map[string]any{"q": q, "num": k}, &raw); err != nil {
		return nil, err
	}

	var out []models.Result
	if kg := raw.KnowledgeGraph; kg != nil && kg.Title != "" {
		link := kg.Website
		if link == "" {
			link = kg.DescriptionLink
		}
		out = append(out, models.Result{
			Type:        models.TypeKnowledgeGraph,
			Title:       kg.Title,
			Link:        link,
			Provider:    s.Name(),
			Description: helpers.PlainText(kg.Description),
			Source:      kg.DescriptionSource,
			Attributes:  kg.Attributes,
		})
	}
	for i, item := range raw.Organic {
		if i >= k {
			break
		}
		pos := item.Position
		if pos == 0 {
			pos = i + 1
		}
		out = append(out, models.Result{
			Title:    helpers.PlainText(item.Title),
			Snippet:  helpers.PlainText(item.Snippet),
			Link:     item.Link,
			Position: pos,
			Provider: s.Name(),
		})
	}
	return out, nil
}
