package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAICompatibleComplete(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"sql_request"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAICompatible(OpenAIConfig{BaseURL: server.URL + "/v1/", APIKey: "secret", Model: "m1", Temperature: 0.2})
	if err != nil {
		t.Fatalf("NewOpenAICompatible() error = %v", err)
	}
	out, err := client.Complete(context.Background(), "classify this")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "sql_request" {
		t.Fatalf("Complete() = %q", out)
	}
	if captured.Model != "m1" || captured.Temperature != 0.2 {
		t.Fatalf("payload = %#v", captured)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" || captured.Messages[0].Content != "classify this" {
		t.Fatalf("messages = %#v", captured.Messages)
	}
}

func TestOpenAICompatibleOmitsAuthorizationWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want none", got)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAICompatible(OpenAIConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAICompatible() error = %v", err)
	}
	if out, err := client.Complete(context.Background(), "x"); err != nil || out != "ok" {
		t.Fatalf("Complete() = %q, %v", out, err)
	}
}

func TestOpenAICompatibleErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		want      string
		temporary bool
	}{
		{name: "envelope", status: http.StatusTooManyRequests, body: `{"error":{"message":"rate limited"}}`, want: "status=429: rate limited", temporary: true},
		{name: "raw body", status: http.StatusBadRequest, body: `bad model`, want: "status=400: bad model"},
		{name: "empty body", status: http.StatusBadGateway, want: "status=502: Bad Gateway", temporary: true},
		{name: "empty choices", status: http.StatusOK, body: `{"choices":[]}`, want: "no choices"},
		{name: "bad json", status: http.StatusOK, body: `nope`, want: "decode chat completion response"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client, err := NewOpenAICompatible(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
			if err != nil {
				t.Fatalf("NewOpenAICompatible() error = %v", err)
			}
			_, err = client.Complete(context.Background(), "x")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Complete() error = %v, want %q", err, tc.want)
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Temporary() != tc.temporary {
				t.Fatalf("Temporary() = %v, want %v", apiErr.Temporary(), tc.temporary)
			}
		})
	}
}

func TestCompletionsEndpoint(t *testing.T) {
	for raw, want := range map[string]string{
		"http://localhost:8000":      "http://localhost:8000/v1/chat/completions",
		"http://localhost:8000/v1":   "http://localhost:8000/v1/chat/completions",
		"https://api.openai.com/v1/": "https://api.openai.com/v1/chat/completions",
	} {
		got, err := completionsEndpoint(raw)
		if err != nil || got != want {
			t.Fatalf("completionsEndpoint(%q) = %q, %v", raw, got, err)
		}
	}
	for _, raw := range []string{"", "localhost:8000"} {
		if _, err := completionsEndpoint(raw); err == nil {
			t.Fatalf("completionsEndpoint(%q) error = nil", raw)
		}
	}
}
