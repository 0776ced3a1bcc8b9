// Package assistant relays student questions to the chat completion provider:
// prompt construction, response caching, and streaming.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/andylee303/jupyterlab-edu-extension/internal/adapter"
	"github.com/andylee303/jupyterlab-edu-extension/internal/cache"
	"github.com/andylee303/jupyterlab-edu-extension/internal/openai"
)

// Relay builds role-tagged prompt sequences and issues completions. One relay
// is shared by every request; the caches inside it are process-wide by design
// so identical error text from different students hits the same entry.
type Relay struct {
	adapter    adapter.ChatAdapter
	model      string
	prompts    Prompts
	errorCache *cache.Cache
	codeCache  *cache.Cache
	logger     *log.Logger
}

// Config wires a Relay.
type Config struct {
	Adapter    adapter.ChatAdapter
	Model      string
	Prompts    Prompts
	ErrorCache *cache.Cache
	CodeCache  *cache.Cache
	Logger     *log.Logger
}

// New creates a Relay. Adapter and both caches are required.
func New(cfg Config) (*Relay, error) {
	if cfg.Adapter == nil {
		return nil, errors.New("assistant: adapter required")
	}
	if cfg.ErrorCache == nil || cfg.CodeCache == nil {
		return nil, errors.New("assistant: caches required")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-5-mini"
	}
	prompts := cfg.Prompts
	if prompts == (Prompts{}) {
		prompts = DefaultPrompts()
	}
	return &Relay{
		adapter:    cfg.Adapter,
		model:      model,
		prompts:    prompts,
		errorCache: cfg.ErrorCache,
		codeCache:  cfg.CodeCache,
		logger:     cfg.Logger,
	}, nil
}

func (r *Relay) complete(ctx context.Context, messages []openai.ChatMessage) (string, error) {
	resp, err := r.adapter.CreateCompletion(ctx, openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	return resp.Content(), nil
}

// AnalyzeError explains a cell execution error. Provider failures are
// converted to a readable message: the student always receives something.
// With useCache, at most one upstream call is made per distinct (code, error)
// pair while the entry stays cached.
func (r *Relay) AnalyzeError(ctx context.Context, code, errText string, useCache bool) string {
	var key string
	if useCache {
		key = cache.KeyOf(code, errText)
		if cached, ok := r.errorCache.Get(key); ok {
			return cached
		}
	}

	userMessage := fmt.Sprintf("請分析以下程式碼的錯誤：\n\n**程式碼：**\n```python\n%s\n```\n\n**錯誤訊息：**\n```\n%s\n```\n", code, errText)
	result, err := r.complete(ctx, []openai.ChatMessage{
		{Role: "system", Content: r.prompts.ErrorAnalysis},
		{Role: "user", Content: userMessage},
	})
	if err != nil {
		r.logf("analyze_error upstream failure: %v", err)
		return fmt.Sprintf("分析錯誤時發生問題：%v", err)
	}
	if result == "" {
		result = "無法分析此錯誤"
	}
	if useCache {
		r.errorCache.Put(key, result)
	}
	return result
}

// AnalyzeCode explains what a piece of code does. The HTTP layer passes
// useCache=false; the pool exists for callers that analyze fixed material.
func (r *Relay) AnalyzeCode(ctx context.Context, code, extra string, useCache bool) string {
	var key string
	if useCache {
		key = cache.KeyOf(code, extra)
		if cached, ok := r.codeCache.Get(key); ok {
			return cached
		}
	}

	userMessage := fmt.Sprintf("請解釋這段程式碼：\n\n```python\n%s\n```", code)
	if extra != "" {
		userMessage += fmt.Sprintf("\n\n額外背景資訊：%s", extra)
	}
	result, err := r.complete(ctx, []openai.ChatMessage{
		{Role: "system", Content: r.prompts.CodeAnalysis},
		{Role: "user", Content: userMessage},
	})
	if err != nil {
		r.logf("analyze_code upstream failure: %v", err)
		return fmt.Sprintf("分析程式碼時發生問題：%v", err)
	}
	if result == "" {
		result = "無法分析此程式碼"
	}
	if useCache {
		r.codeCache.Put(key, result)
	}
	return result
}

// Chat answers a free-form student question with the notebook excerpt as
// context, non-streaming.
func (r *Relay) Chat(ctx context.Context, message string, nbctx NotebookContext) string {
	result, err := r.complete(ctx, r.buildChatMessages(message, nbctx))
	if err != nil {
		r.logf("chat upstream failure: %v", err)
		return fmt.Sprintf("發生錯誤：%v", err)
	}
	if result == "" {
		result = "抱歉，我無法回應這個問題。"
	}
	return result
}

// ChatStream answers a question as a lazy, finite sequence of text
// increments. The channel closes when the provider signals completion. A
// provider failure mid-stream is delivered as one final error-shaped
// increment, never as a fault: consumers treat it as content. A consumer that
// stops reading must cancel ctx.
func (r *Relay) ChatStream(ctx context.Context, message string, nbctx NotebookContext) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)

		send := func(text string) bool {
			select {
			case out <- text:
				return true
			case <-ctx.Done():
				return false
			}
		}

		sa, ok := r.adapter.(adapter.StreamingChatAdapter)
		if !ok {
			// Adapter cannot stream; degrade to a single increment.
			send(r.Chat(ctx, message, nbctx))
			return
		}

		ch, err := sa.CreateCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    r.model,
			Messages: r.buildChatMessages(message, nbctx),
		})
		if err != nil {
			r.logf("chat_stream upstream failure: %v", err)
			send(fmt.Sprintf("發生錯誤：%v", err))
			return
		}

		for ev := range ch {
			if ev.IsError() {
				if errors.Is(ev.Error, context.Canceled) {
					return
				}
				r.logf("chat_stream mid-stream failure: %v", ev.Error)
				send(fmt.Sprintf("發生錯誤：%v", ev.Error))
				return
			}
			if delta := ev.Chunk.Delta().Content; delta != "" {
				if !send(delta) {
					return
				}
			}
		}
	}()
	return out
}

func (r *Relay) buildChatMessages(message string, nbctx NotebookContext) []openai.ChatMessage {
	messages := []openai.ChatMessage{{Role: "system", Content: r.prompts.Chat}}
	if excerpt := nbctx.Render(); excerpt != "" {
		messages = append(messages, openai.ChatMessage{
			Role:    "system",
			Content: "以下是學生目前的 Notebook 內容供你參考：\n\n" + excerpt,
		})
	}
	return append(messages, openai.ChatMessage{Role: "user", Content: message})
}

func (r *Relay) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
