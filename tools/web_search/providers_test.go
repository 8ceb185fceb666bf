package web_search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/marketresearch/internal/helpers"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search/duckduckgo"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search/models"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search/serper"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search/wikipedia"
)

func testClient() *helpers.HTTPClient {
	return helpers.NewHTTPClient(2*time.Second, 0, time.Millisecond)
}

func TestSerperKnowledgeGraphFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("X-API-KEY") != "key" {
			t.Errorf("unexpected request %s key=%q", r.Method, r.Header.Get("X-API-KEY"))
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["q"] != "lidar market" {
			t.Errorf("unexpected query %v", body["q"])
		}
		_, _ = w.Write([]byte(`{
			"knowledgeGraph": {"title": "Lidar", "type": "Technology", "description": "Light <b>detection</b>", "descriptionSource": "Wikipedia", "website": "https://lidar.example", "attributes": {"Invented": "1961"}},
			"organic": [
				{"title": "Lidar market size", "link": "https://a.example/size", "snippet": "USD 2.1bn", "position": 1},
				{"title": "Lidar players", "link": "https://b.example/players", "snippet": "Velodyne", "position": 2}
			]
		}`))
	}))
	defer srv.Close()

	got, err := serper.Search{APIKey: "key", Endpoint: srv.URL, Client: testClient()}.Discover(context.Background(), "lidar market", 10)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	kg := got[0]
	if kg.Type != models.TypeKnowledgeGraph || kg.Description != "Light detection" || kg.Source != "Wikipedia" || kg.Attributes["Invented"] != "1961" {
		t.Fatalf("unexpected knowledge graph entry %+v", kg)
	}
	if got[1].Link != "https://a.example/size" || got[1].Position != 1 || got[1].Provider != "serper" {
		t.Fatalf("unexpected organic result %+v", got[1])
	}
}

func TestDuckDuckGoFlattensTopics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("format not requested")
		}
		w.Header().Set("Content-Type", "application/x-javascript")
		_, _ = w.Write([]byte(`{
			"Heading": "Robotics",
			"AbstractText": "Robotics is an interdisciplinary branch.",
			"AbstractURL": "https://en.wikipedia.org/wiki/Robotics",
			"AbstractSource": "Wikipedia",
			"Results": [],
			"RelatedTopics": [
				{"Text": "Industrial robot - A robot used in manufacturing.", "FirstURL": "https://duckduckgo.com/Industrial_robot"},
				{"Name": "See also", "Topics": [
					{"Text": "Cobot - Collaborative robot.", "FirstURL": "https://duckduckgo.com/Cobot"}
				]},
				{"Text": "no link"}
			]
		}`))
	}))
	defer srv.Close()

	got, err := duckduckgo.Search{Endpoint: srv.URL, Client: testClient()}.Discover(context.Background(), "robotics", 10)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d: %+v", len(got), got)
	}
	if got[0].Title != "Robotics (Wikipedia)" || got[1].Title != "Industrial robot" || got[2].Title != "Cobot" {
		t.Fatalf("unexpected titles %+v", got)
	}
	if got[2].Position != 3 {
		t.Fatalf("unexpected position %d", got[2].Position)
	}
}

func TestWikipediaBuildsArticleLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("srsearch") != "vertical farming" || r.Header.Get("User-Agent") == "" {
			t.Errorf("unexpected request %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"query": {"search": [
			{"title": "Vertical farming", "snippet": "<span class=\"searchmatch\">Vertical</span> farming is"}
		]}}`))
	}))
	defer srv.Close()

	got, err := wikipedia.Search{Endpoint: srv.URL, Client: testClient()}.Discover(context.Background(), "vertical farming", 5)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].Link != "https://en.wikipedia.org/wiki/Vertical_farming" || got[0].Snippet != "Vertical farming is" {
		t.Fatalf("unexpected result %+v", got[0])
	}
}
