// Package loopback fabricates deterministic completions so the extension can
// run without an OpenAI key (local development and tests).
package loopback

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/andylee303/jupyterlab-edu-extension/internal/adapter"
	"github.com/andylee303/jupyterlab-edu-extension/internal/openai"
)

var _ adapter.StreamingChatAdapter = (*LoopbackAdapter)(nil)

// LoopbackAdapter echoes the last user message back to the caller.
type LoopbackAdapter struct{}

// New creates a LoopbackAdapter instance.
func New() *LoopbackAdapter {
	return &LoopbackAdapter{}
}

func lastUserMessage(req openai.ChatCompletionRequest) openai.ChatMessage {
	message := req.Messages[len(req.Messages)-1]
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if strings.ToLower(req.Messages[i].Role) == "user" {
			message = req.Messages[i]
			break
		}
	}
	return message
}

// CreateCompletion echoes the last user message as the assistant reply.
func (a *LoopbackAdapter) CreateCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("no messages provided")
	}

	content := "[loopback] " + strings.TrimSpace(lastUserMessage(req).Content)
	return openai.ChatCompletionResponse{
		ID:      "cmpl-loopback",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []openai.ChatCompletionChoice{{
			FinishReason: "stop",
			Message:      openai.ChatMessage{Role: "assistant", Content: content},
		}},
		Usage: openai.UsageBreakdown{
			PromptTokens:     len(req.Messages) * 10,
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(req.Messages)*10 + len(content)/4,
		},
	}, nil
}

// CreateCompletionStream yields the echoed reply word by word.
func (a *LoopbackAdapter) CreateCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (<-chan adapter.StreamEvent, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("no messages provided")
	}

	words := strings.Fields("[loopback] " + strings.TrimSpace(lastUserMessage(req).Content))
	ch := make(chan adapter.StreamEvent, len(words))
	go func() {
		defer close(ch)
		for i, word := range words {
			if i > 0 {
				word = " " + word
			}
			chunk := &openai.ChatCompletionChunk{
				ID:     "chatcmpl-loopback",
				Object: "chat.completion.chunk",
				Model:  req.Model,
				Choices: []openai.ChatCompletionChunkChoice{{
					Delta: openai.ChatMessageDelta{Content: word},
				}},
			}
			select {
			case ch <- adapter.StreamEvent{Chunk: chunk}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
