package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap/zaptest"

	"github.com/mikey/doc-router/internal/config"
	"github.com/mikey/doc-router/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	clientCfg := ClientConfig(config.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Referer: "https://router.example.com",
		AppName: "doc-router-test",
	})
	return NewOpenAIClient(openai.NewClientWithConfig(clientCfg), "test-model", 256, 0.3, 1, zaptest.NewLogger(t))
}

func TestCompleteSendsPromptAndHeaders(t *testing.T) {
	var got openai.ChatCompletionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if h := r.Header.Get("HTTP-Referer"); h != "https://router.example.com" {
			t.Errorf("HTTP-Referer = %q", h)
		}
		if h := r.Header.Get("X-Title"); h != "doc-router-test" {
			t.Errorf("X-Title = %q", h)
		}
		if h := r.Header.Get("Authorization"); h != "Bearer test-key" {
			t.Errorf("Authorization = %q", h)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"intent\": \"RFQ\"}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})

	resp, err := client.Complete(context.Background(), &core.CompletionRequest{
		Task:   "classify",
		System: "Respond with JSON.",
		Prompt: "Classify this text",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != `{"intent": "RFQ"}` || resp.ResponseID != "chatcmpl-1" || resp.Model != "test-model" {
		t.Errorf("unexpected completion: %+v", resp)
	}

	if len(got.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != openai.ChatMessageRoleSystem || got.Messages[1].Content != "Classify this text" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
	if got.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", got.Temperature)
	}
}

func TestCompleteErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error": {"message": "slow down", "type": "rate_limit"}}`, true},
		{"server error", http.StatusBadGateway, `upstream unavailable`, true},
		{"bad request", http.StatusBadRequest, `{"error": {"message": "bad model", "type": "invalid_request_error"}}`, false},
		{"unauthorized", http.StatusUnauthorized, `{"error": {"message": "bad key", "type": "auth"}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Complete(context.Background(), &core.CompletionRequest{Prompt: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if core.IsTransient(err) != tt.transient {
				t.Errorf("IsTransient = %v, want %v (err: %v)", core.IsTransient(err), tt.transient, err)
			}
		})
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "choices": []}`))
	})

	_, err := client.Complete(context.Background(), &core.CompletionRequest{Prompt: "x"})
	if !core.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestClientConfigBaseURL(t *testing.T) {
	if got, want := ClientConfig(config.OpenAIConfig{APIKey: "k"}).BaseURL, openai.DefaultConfig("k").BaseURL; got != want {
		t.Errorf("base URL = %q, want SDK default %q", got, want)
	}
	if got := ClientConfig(config.OpenAIConfig{APIKey: "k", BaseURL: "https://openrouter.ai/api/v1"}).BaseURL; got != "https://openrouter.ai/api/v1" {
		t.Errorf("base URL = %q", got)
	}
}
