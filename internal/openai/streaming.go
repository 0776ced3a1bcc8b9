package openai

// ChatCompletionChunk represents one SSE chunk of a streaming response.
type ChatCompletionChunk struct {
	ID      string                      `json:"id"`
	Object  string                      `json:"object"`
	Created int64                       `json:"created"`
	Model   string                      `json:"model"`
	Choices []ChatCompletionChunkChoice `json:"choices"`
}

// ChatCompletionChunkChoice carries the incremental delta for one choice.
type ChatCompletionChunkChoice struct {
	Index        int              `json:"index"`
	Delta        ChatMessageDelta `json:"delta"`
	FinishReason *string          `json:"finish_reason"`
}

// ChatMessageDelta is the incremental content of a stream chunk.
type ChatMessageDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Delta returns the first choice's delta, or the zero value when the chunk
// has no choices (keepalive frames).
func (c ChatCompletionChunk) Delta() ChatMessageDelta {
	if len(c.Choices) == 0 {
		return ChatMessageDelta{}
	}
	return c.Choices[0].Delta
}
