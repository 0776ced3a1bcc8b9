package openai

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	openaitypes "github.com/andylee303/jupyterlab-edu-extension/internal/openai"
	"github.com/andylee303/jupyterlab-edu-extension/internal/testutil"
)

func sseChunk(content string) string {
	return fmt.Sprintf(`data: {"id":"chatcmpl-test","object":"chat.completion.chunk","created":1234567890,"model":"gpt-5-mini","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, content)
}

func TestCreateCompletionStream_Success(t *testing.T) {
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accept := r.Header.Get("Accept"); accept != "text/event-stream" {
			t.Errorf("Accept header = %q, want text/event-stream", accept)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range []string{sseChunk("你好"), sseChunk("，"), sseChunk("世界"), "data: [DONE]"} {
			fmt.Fprintf(w, "%s\n\n", line)
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	defer server.Close()

	adpt, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}

	ch, err := adpt.CreateCompletionStream(context.Background(), openaitypes.ChatCompletionRequest{
		Model:    "gpt-5-mini",
		Messages: []openaitypes.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("CreateCompletionStream() error = %v", err)
	}

	var got string
	for ev := range ch {
		if ev.IsError() {
			t.Fatalf("stream error: %v", ev.Error)
		}
		got += ev.Chunk.Delta().Content
	}
	if got != "你好，世界" {
		t.Errorf("accumulated content = %q", got)
	}
}

func TestCreateCompletionStream_EmptyMessages(t *testing.T) {
	adpt, err := New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := adpt.CreateCompletionStream(context.Background(), openaitypes.ChatCompletionRequest{Model: "gpt-5-mini"}); err == nil {
		t.Error("want error for empty messages")
	}
}

func TestCreateCompletionStream_ErrorStatus(t *testing.T) {
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	adpt, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	_, err = adpt.CreateCompletionStream(context.Background(), openaitypes.ChatCompletionRequest{
		Model:    "gpt-5-mini",
		Messages: []openaitypes.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("want error for non-200 upstream status")
	}
}

func TestCreateCompletionStream_MalformedChunk(t *testing.T) {
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {not json}\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	adpt, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	ch, err := adpt.CreateCompletionStream(context.Background(), openaitypes.ChatCompletionRequest{
		Model:    "gpt-5-mini",
		Messages: []openaitypes.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	var sawError bool
	for ev := range ch {
		if ev.IsError() {
			sawError = true
		}
	}
	if !sawError {
		t.Error("malformed chunk: want one terminal error event")
	}
}

func TestCreateCompletionStream_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "%s\n\n", sseChunk("first"))
		flusher.Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	adpt, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	ch, err := adpt.CreateCompletionStream(ctx, openaitypes.ChatCompletionRequest{
		Model:    "gpt-5-mini",
		Messages: []openaitypes.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	<-ch // first chunk
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // channel closed after cancellation
			}
		case <-deadline:
			t.Fatal("stream channel not closed after context cancellation")
		}
	}
}
