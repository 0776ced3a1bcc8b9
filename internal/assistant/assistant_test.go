package assistant

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/andylee303/jupyterlab-edu-extension/internal/adapter"
	"github.com/andylee303/jupyterlab-edu-extension/internal/cache"
	"github.com/andylee303/jupyterlab-edu-extension/internal/openai"
)

// fakeAdapter counts completion calls and replays canned responses.
type fakeAdapter struct {
	calls       atomic.Int64
	reply       string
	err         error
	streamParts []string
	streamErr   error
	lastReq     openai.ChatCompletionRequest
}

func (f *fakeAdapter) CreateCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls.Add(1)
	f.lastReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatMessage{Role: "assistant", Content: f.reply},
		}},
	}, nil
}

func (f *fakeAdapter) CreateCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (<-chan adapter.StreamEvent, error) {
	f.calls.Add(1)
	f.lastReq = req
	ch := make(chan adapter.StreamEvent, len(f.streamParts)+1)
	for _, part := range f.streamParts {
		ch <- adapter.StreamEvent{Chunk: &openai.ChatCompletionChunk{
			Choices: []openai.ChatCompletionChunkChoice{{Delta: openai.ChatMessageDelta{Content: part}}},
		}}
	}
	if f.streamErr != nil {
		ch <- adapter.StreamEvent{Error: f.streamErr}
	}
	close(ch)
	return ch, nil
}

func newTestRelay(t *testing.T, fake *fakeAdapter) *Relay {
	t.Helper()
	errorCache, err := cache.New(10)
	if err != nil {
		t.Fatal(err)
	}
	codeCache, err := cache.New(10)
	if err != nil {
		t.Fatal(err)
	}
	relay, err := New(Config{
		Adapter:    fake,
		Model:      "gpt-5-mini",
		ErrorCache: errorCache,
		CodeCache:  codeCache,
	})
	if err != nil {
		t.Fatal(err)
	}
	return relay
}

func TestAnalyzeErrorCachesResult(t *testing.T) {
	fake := &fakeAdapter{reply: "這是 NameError"}
	relay := newTestRelay(t, fake)
	ctx := context.Background()

	first := relay.AnalyzeError(ctx, "print(x)", "NameError: name 'x' is not defined", true)
	second := relay.AnalyzeError(ctx, "print(x)", "NameError: name 'x' is not defined", true)

	if first != second || first != "這是 NameError" {
		t.Errorf("responses differ: %q vs %q", first, second)
	}
	if got := fake.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 (second call served from cache)", got)
	}

	// Different error text must miss the cache.
	relay.AnalyzeError(ctx, "print(x)", "TypeError: unsupported operand", true)
	if got := fake.calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2 after distinct input", got)
	}
}

func TestAnalyzeErrorWithoutCache(t *testing.T) {
	fake := &fakeAdapter{reply: "分析"}
	relay := newTestRelay(t, fake)
	ctx := context.Background()

	relay.AnalyzeError(ctx, "code", "err", false)
	relay.AnalyzeError(ctx, "code", "err", false)
	if got := fake.calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2 with useCache=false", got)
	}
}

func TestAnalyzeErrorProviderFailureReturnsText(t *testing.T) {
	fake := &fakeAdapter{err: errors.New("connection refused")}
	relay := newTestRelay(t, fake)

	got := relay.AnalyzeError(context.Background(), "code", "err", true)
	if !strings.Contains(got, "分析錯誤時發生問題") {
		t.Errorf("AnalyzeError on failure = %q, want readable message", got)
	}

	// A failure must not be cached: the next call retries upstream.
	relay.AnalyzeError(context.Background(), "code", "err", true)
	if calls := fake.calls.Load(); calls != 2 {
		t.Errorf("upstream calls = %d, want 2 (failures not cached)", calls)
	}
}

func TestAnalyzeCodeIncludesExtraContext(t *testing.T) {
	fake := &fakeAdapter{reply: "說明"}
	relay := newTestRelay(t, fake)

	relay.AnalyzeCode(context.Background(), "x = 1", "第三章作業", false)
	msgs := fake.lastReq.Messages
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want system+user", len(msgs))
	}
	if !strings.Contains(msgs[1].Content, "額外背景資訊：第三章作業") {
		t.Errorf("user message missing extra context: %q", msgs[1].Content)
	}
}

func TestChatIncludesNotebookExcerpt(t *testing.T) {
	fake := &fakeAdapter{reply: "回答"}
	relay := newTestRelay(t, fake)

	nbctx := NotebookContext{Cells: []NotebookCell{{Type: "code", Content: "import pandas"}}}
	relay.Chat(context.Background(), "這段在做什麼？", nbctx)

	msgs := fake.lastReq.Messages
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want system+context+user", len(msgs))
	}
	if !strings.Contains(msgs[1].Content, "import pandas") {
		t.Errorf("context message missing cell content: %q", msgs[1].Content)
	}
	if msgs[2].Content != "這段在做什麼？" {
		t.Errorf("user message = %q", msgs[2].Content)
	}
}

func TestChatStreamYieldsIncrementsInOrder(t *testing.T) {
	fake := &fakeAdapter{streamParts: []string{"你", "好", "嗎"}}
	relay := newTestRelay(t, fake)

	var got []string
	for part := range relay.ChatStream(context.Background(), "hi", NotebookContext{}) {
		got = append(got, part)
	}
	if strings.Join(got, "|") != "你|好|嗎" {
		t.Errorf("increments = %v", got)
	}
}

func TestChatStreamMidStreamFailureYieldsErrorIncrement(t *testing.T) {
	fake := &fakeAdapter{streamParts: []string{"部分"}, streamErr: errors.New("upstream reset")}
	relay := newTestRelay(t, fake)

	var got []string
	for part := range relay.ChatStream(context.Background(), "hi", NotebookContext{}) {
		got = append(got, part)
	}
	if len(got) != 2 {
		t.Fatalf("increments = %v, want content then error increment", got)
	}
	if !strings.Contains(got[1], "發生錯誤") {
		t.Errorf("final increment = %q, want error-shaped content", got[1])
	}
}
