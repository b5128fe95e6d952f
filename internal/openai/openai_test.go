package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ctxpkg "github.com/stupiduntilnot/querygate/internal/context"
)

var hi = []ctxpkg.Message{{Role: "user", Content: "hi"}}

func TestChatCompletion_WithUsage(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  SELECT 1  "}},
			},
			"usage": map[string]any{
				"prompt_tokens":     42,
				"completion_tokens": 7,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model", 5*time.Second)
	result, err := client.ChatCompletion(context.Background(), hi)
	if err != nil {
		t.Fatal(err)
	}

	if result.Content != "SELECT 1" {
		t.Errorf("expected trimmed content, got %q", result.Content)
	}
	if result.InputTokens != 42 || result.OutputTokens != 7 {
		t.Errorf("unexpected usage: %+v", result)
	}
	if got.Model != "test-model" || len(got.Messages) != 1 || got.Messages[0].Content != "hi" {
		t.Errorf("unexpected request body: %+v", got)
	}
}

func TestChatCompletion_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []map[string]any{}})
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model", 5*time.Second)
	_, err := client.ChatCompletion(context.Background(), hi)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestChatCompletion_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model", 5*time.Second)
	_, err := client.ChatCompletion(context.Background(), hi)
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 StatusError, got %v", err)
	}
}

func TestChatCompletion_ContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient("test-key", server.URL, "test-model", 5*time.Second)
	start := time.Now()
	if _, err := client.ChatCompletion(ctx, hi); err == nil {
		t.Fatal("expected deadline error")
	}
	if time.Since(start) > time.Second {
		t.Fatal("request was not cancelled by context")
	}
}
