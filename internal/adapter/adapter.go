package adapter

import (
	"context"

	"github.com/andylee303/jupyterlab-edu-extension/internal/openai"
)

// ChatAdapter issues chat completion requests against a provider.
type ChatAdapter interface {
	CreateCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// StreamingChatAdapter additionally supports incremental completions. The
// returned channel is closed when the upstream stream terminates; a failed
// stream delivers one final error event before closing.
type StreamingChatAdapter interface {
	ChatAdapter
	CreateCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (<-chan StreamEvent, error)
}

// StreamEvent carries either a chunk or a terminal error.
type StreamEvent struct {
	Chunk *openai.ChatCompletionChunk
	Error error
}

// IsError reports whether the event is a terminal failure.
func (e StreamEvent) IsError() bool { return e.Error != nil }
