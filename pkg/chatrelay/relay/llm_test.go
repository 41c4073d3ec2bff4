package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *LLMClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewLLMClient(APIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test"}, timeout, nil)
}

func TestLLMClientComplete(t *testing.T) {
	t.Parallel()

	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":20,"completion_tokens":5,"total_tokens":25}}`)
	}, 5*time.Second)

	resp, err := client.Complete(context.Background(), CompletionRequest{
		Model:    "gpt-4",
		Messages: []Turn{SystemTurn("persona"), UserTurn(TextContent("@bob: hello"))},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hi there" || resp.TokensUsed != 25 {
		t.Errorf("response = %+v", resp)
	}
	if got["model"] != "gpt-4" {
		t.Errorf("request model = %v", got["model"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("request carried %d messages, want 2", len(msgs))
	}
}

func TestLLMClientErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{
			name:   "context length",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"This model's maximum context length is 8192 tokens","type":"invalid_request_error","code":"context_length_exceeded"}}`,
			want:   ErrorInvalidRequest,
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`,
			want:   ErrorRateLimit,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":{"message":"The server had an error","type":"server_error","code":null}}`,
			want:   ErrorAPI,
		},
		{
			name:   "auth",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`,
			want:   ErrorAPI,
		},
		{
			name:   "non-json gateway error",
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
			want:   ErrorAPI,
		},
		{
			name:   "payload too large",
			status: http.StatusRequestEntityTooLarge,
			body:   `request entity too large`,
			want:   ErrorInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}, 5*time.Second)

			_, err := client.Complete(context.Background(), CompletionRequest{
				Model:    "gpt-4",
				Messages: []Turn{UserTurn(TextContent("hi"))},
			})
			var ce *CompletionError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *CompletionError, got %T: %v", err, err)
			}
			if ce.Kind != tt.want {
				t.Errorf("Kind = %s, want %s (err %v)", ce.Kind, tt.want, err)
			}
		})
	}
}

func TestLLMClientTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 5*time.Second)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, CompletionRequest{Model: "gpt-4", Messages: []Turn{UserTurn(TextContent("hi"))}})
	if KindOf(err) != ErrorTimeout {
		t.Errorf("KindOf(%v) = %s, want Timeout", err, KindOf(err))
	}
}

func TestLLMClientConnectionError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewLLMClient(APIConfig{BaseURL: url, APIKey: "sk-test"}, time.Second, nil)
	_, err := client.Complete(context.Background(), CompletionRequest{Model: "gpt-4", Messages: []Turn{UserTurn(TextContent("hi"))}})
	if KindOf(err) != ErrorConnection {
		t.Errorf("KindOf(%v) = %s, want APIConnectionError", err, KindOf(err))
	}
}

func TestLLMClientDrawAndFetch(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/images/generations":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"created":1,"data":[{"url":"%s/files/img.png","revised_prompt":"a tabby cat, %v"}]}`, srv.URL, req["size"])
		case "/files/img.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("\x89PNG\r\n\x1a\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	client := NewLLMClient(APIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test"}, 5*time.Second, nil)

	img, err := client.Draw(context.Background(), ImageRequest{Prompt: "a cat", Model: "dall-e-3", Size: "1024x1024", Count: 1})
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if img.RevisedPrompt != "a tabby cat, 1024x1024" {
		t.Errorf("RevisedPrompt = %q", img.RevisedPrompt)
	}

	data, err := client.Fetch(context.Background(), img.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data[:4]) != "\x89PNG" {
		t.Errorf("unexpected image bytes %q", data)
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		body   string
		want   ErrorKind
	}{
		{400, "", ErrorInvalidRequest},
		{422, "", ErrorInvalidRequest},
		{404, "model not found", ErrorAPI},
		{429, "", ErrorRateLimit},
		{504, "", ErrorTimeout},
		{500, "maximum context length exceeded", ErrorInvalidRequest},
		{503, "", ErrorAPI},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.status, tt.body); got != tt.want {
			t.Errorf("classifyStatus(%d, %q) = %s, want %s", tt.status, tt.body, got, tt.want)
		}
	}
}
