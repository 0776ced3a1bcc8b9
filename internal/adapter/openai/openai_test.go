package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/andylee303/jupyterlab-edu-extension/internal/openai"
	"github.com/andylee303/jupyterlab-edu-extension/internal/testutil"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New() with empty key: want error, got nil")
	}
}

func TestCreateCompletion_Success(t *testing.T) {
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("non-streaming call sent stream=true")
		}
		resp := openai.ChatCompletionResponse{
			ID:     "chatcmpl-1",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []openai.ChatCompletionChoice{{
				FinishReason: "stop",
				Message:      openai.ChatMessage{Role: "assistant", Content: "hi there"},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adpt, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := adpt.CreateCompletion(context.Background(), openai.ChatCompletionRequest{
		Model:    "gpt-5-mini",
		Messages: []openai.ChatMessage{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("CreateCompletion() error = %v", err)
	}
	if resp.Content() != "hi there" {
		t.Errorf("Content() = %q, want 'hi there'", resp.Content())
	}
}

func TestCreateCompletion_EmptyMessages(t *testing.T) {
	adpt, err := New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := adpt.CreateCompletion(context.Background(), openai.ChatCompletionRequest{Model: "gpt-5-mini"}); err == nil {
		t.Error("want error for empty messages")
	}
}

func TestCreateCompletion_APIError(t *testing.T) {
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	adpt, err := New(Config{APIKey: "sk-bad", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	_, err = adpt.CreateCompletion(context.Background(), openai.ChatCompletionRequest{
		Model:    "gpt-5-mini",
		Messages: []openai.ChatMessage{{Role: "user", Content: "x"}},
	})
	if err == nil {
		t.Fatal("want error from 401 response")
	}
	if !strings.Contains(err.Error(), "Incorrect API key") {
		t.Errorf("error = %v, want message from API error body", err)
	}
}
