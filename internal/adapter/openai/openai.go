// Package openai implements the chat adapter against the OpenAI API.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andylee303/jupyterlab-edu-extension/internal/adapter"
	"github.com/andylee303/jupyterlab-edu-extension/internal/openai"
)

var _ adapter.StreamingChatAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter sends requests to the OpenAI API.
type OpenAIAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	org        string
}

// Config holds configuration for the OpenAI adapter.
type Config struct {
	APIKey         string
	BaseURL        string // optional, defaults to https://api.openai.com/v1
	Organization   string // optional
	RequestTimeout time.Duration
}

// New creates an OpenAIAdapter instance.
func New(cfg Config) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIAdapter{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		org:     cfg.Organization,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (a *OpenAIAdapter) newRequest(ctx context.Context, req openai.ChatCompletionRequest, stream bool) (*http.Request, error) {
	req.Stream = stream
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	if a.org != "" {
		httpReq.Header.Set("OpenAI-Organization", a.org)
	}
	return httpReq, nil
}

func decodeAPIError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Errorf("openai: %s (type=%s, code=%s)", errResp.Error.Message, errResp.Error.Type, errResp.Error.Code)
	}
	return fmt.Errorf("openai: http %d: %s", status, string(body))
}

// CreateCompletion sends a non-streaming chat completion request.
func (a *OpenAIAdapter) CreateCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("openai: no messages provided")
	}

	httpReq, err := a.newRequest(ctx, req, false)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("openai: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return openai.ChatCompletionResponse{}, decodeAPIError(resp.StatusCode, respBody)
	}

	var completion openai.ChatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("openai: unmarshal response: %w", err)
	}
	return completion, nil
}

// CreateCompletionStream sends a streaming request and yields chunks as they
// arrive. The channel is closed after the upstream [DONE] sentinel, on the
// first malformed chunk, or when ctx is cancelled.
func (a *OpenAIAdapter) CreateCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (<-chan adapter.StreamEvent, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: no messages provided")
	}

	httpReq, err := a.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, decodeAPIError(resp.StatusCode, data)
	}

	ch := make(chan adapter.StreamEvent, 10)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				ch <- adapter.StreamEvent{Error: ctx.Err()}
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, ":") {
				continue
			}
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}

			var chunk openai.ChatCompletionChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				ch <- adapter.StreamEvent{Error: fmt.Errorf("openai: parse stream chunk: %w", err)}
				return
			}
			select {
			case ch <- adapter.StreamEvent{Chunk: &chunk}:
			case <-ctx.Done():
				ch <- adapter.StreamEvent{Error: ctx.Err()}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- adapter.StreamEvent{Error: fmt.Errorf("openai: read stream: %w", err)}
		}
	}()

	return ch, nil
}
