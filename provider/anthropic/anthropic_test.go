package anthropic_provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateJoinsTextBlocksWithNewlines(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "ak-test" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-opus-4-6",
			"content":[{"type":"text","text":"Part one."},{"type":"text","text":"Part two."}],
			"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":4,"output_tokens":4}}`))
	}))
	defer srv.Close()

	c := New(Options{APIKey: "ak-test", Model: "claude-opus-4-6", BaseURL: srv.URL + "/"})
	out, err := c.Generate(context.Background(), "synthesize")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Part one.\nPart two." {
		t.Fatalf("unexpected output %q", out)
	}
	if got["model"] != "claude-opus-4-6" || got["max_tokens"] != float64(defaultMaxTokens) {
		t.Fatalf("unexpected request %v", got)
	}
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`))
	}))
	defer srv.Close()

	c := New(Options{APIKey: "k", Model: "nope", BaseURL: srv.URL + "/"})
	if _, err := c.Generate(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "anthropic messages") {
		t.Fatalf("expected wrapped API error, got %v", err)
	}
}
