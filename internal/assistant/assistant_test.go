package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ragkit-dev/ragkit/internal/rag"
	"github.com/ragkit-dev/ragkit/internal/store"
)

// fakeChatModel streams a fixed set of chunks and records the messages it was
// given so tests can assert on prompt construction.
type fakeChatModel struct {
	chunks    []string
	streamErr error
	got       []*schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.got = in
	return schema.AssistantMessage(strings.Join(m.chunks, ""), nil), nil
}

func (m *fakeChatModel) Stream(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.got = in
	sr, sw := schema.Pipe[*schema.Message](len(m.chunks) + 1)
	for _, c := range m.chunks {
		sw.Send(schema.AssistantMessage(c, nil), nil)
	}
	if m.streamErr != nil {
		sw.Send(nil, m.streamErr)
	}
	sw.Close()
	return sr, nil
}

func (m *fakeChatModel) WithTools(_ []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

// fakeRetriever returns canned documents or a fixed error.
type fakeRetriever struct {
	docs []rag.Document
	err  error
}

func (r *fakeRetriever) Retrieve(context.Context, string, int) ([]rag.Document, error) {
	return r.docs, r.err
}

// drainChunks reads all chunks from an answer stream.
func drainChunks(t *testing.T, sr *schema.StreamReader[string]) (string, error) {
	t.Helper()
	var sb strings.Builder
	for {
		c, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(c)
	}
}

func TestAsk_StreamsAnswer(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{chunks: []string{"Hello", ", ", "world"}}
	a, err := New(&Config{ChatModel: cm})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ans, err := a.Ask(context.Background(), "sess", "say hello")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	got, err := drainChunks(t, ans.Chunks)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got != "Hello, world" {
		t.Errorf("answer: got %q", got)
	}
}

func TestAsk_SourcesFromRetriever(t *testing.T) {
	t.Parallel()

	docs := []rag.Document{
		{Source: "docs/a.md", Content: "alpha content", Score: 0.91},
		{Source: "docs/b.md", Content: strings.Repeat("b", 500), Score: 0.85},
	}
	cm := &fakeChatModel{chunks: []string{"answer"}}
	a, err := New(&Config{ChatModel: cm, Retriever: &fakeRetriever{docs: docs}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ans, err := a.Ask(context.Background(), "sess", "question")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	defer ans.Chunks.Close()

	sources, err := ans.Sources(context.Background())
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("want 2 sources, got %d", len(sources))
	}
	s0, ok := sources[0].(Source)
	if !ok {
		t.Fatalf("source type: got %T", sources[0])
	}
	if s0.Source != "docs/a.md" || s0.Score != 0.91 {
		t.Errorf("source[0]: got %+v", s0)
	}
	s1 := sources[1].(Source)
	if len(s1.Snippet) > snippetMaxLen+len("…") {
		t.Errorf("snippet not truncated: %d bytes", len(s1.Snippet))
	}

	// Retrieved context must be present in the prompt.
	var sawContext bool
	for _, m := range cm.got {
		if m.Role == schema.System && strings.Contains(m.Content, "alpha content") {
			sawContext = true
		}
	}
	if !sawContext {
		t.Error("retrieved context missing from prompt")
	}
}

func TestAsk_RetrieverFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{chunks: []string{"answer"}}
	a, err := New(&Config{ChatModel: cm, Retriever: &fakeRetriever{err: errors.New("qdrant down")}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ans, err := a.Ask(context.Background(), "sess", "question")
	if err != nil {
		t.Fatalf("Ask should succeed without retrieval: %v", err)
	}
	got, err := drainChunks(t, ans.Chunks)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got != "answer" {
		t.Errorf("answer: got %q", got)
	}
	sources, err := ans.Sources(context.Background())
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if len(sources) != 0 {
		t.Errorf("want no sources, got %d", len(sources))
	}
}

func TestAsk_PersistsTurnAfterDrain(t *testing.T) {
	t.Parallel()

	hist, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	cm := &fakeChatModel{chunks: []string{"the ", "answer"}}
	a, err := New(&Config{ChatModel: cm, History: hist})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ans, err := a.Ask(context.Background(), "sess-p", "the question")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if _, err := drainChunks(t, ans.Chunks); err != nil {
		t.Fatalf("drain: %v", err)
	}

	// EOF is only observable after the writer closes, which happens after the
	// turn is persisted.
	msgs, err := hist.Recent(context.Background(), "sess-p", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("want 2 persisted messages, got %d", len(msgs))
	}
	if msgs[0].Role != store.RoleUser || msgs[0].Content != "the question" {
		t.Errorf("msg[0]: got %s/%q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != store.RoleAssistant || msgs[1].Content != "the answer" {
		t.Errorf("msg[1]: got %s/%q", msgs[1].Role, msgs[1].Content)
	}
}

func TestAsk_HistoryInjectedIntoPrompt(t *testing.T) {
	t.Parallel()

	hist, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	ctx := context.Background()
	if err := hist.Append(ctx, "sess-h", store.RoleUser, "earlier question"); err != nil {
		t.Fatal(err)
	}
	if err := hist.Append(ctx, "sess-h", store.RoleAssistant, "earlier answer"); err != nil {
		t.Fatal(err)
	}

	cm := &fakeChatModel{chunks: []string{"ok"}}
	a, err := New(&Config{ChatModel: cm, History: hist})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ans, err := a.Ask(ctx, "sess-h", "followup")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if _, err := drainChunks(t, ans.Chunks); err != nil {
		t.Fatalf("drain: %v", err)
	}

	var sawUser, sawAssistant bool
	for _, m := range cm.got {
		if m.Role == schema.User && m.Content == "earlier question" {
			sawUser = true
		}
		if m.Role == schema.Assistant && m.Content == "earlier answer" {
			sawAssistant = true
		}
	}
	if !sawUser || !sawAssistant {
		t.Errorf("history missing from prompt: user=%v assistant=%v", sawUser, sawAssistant)
	}
}

func TestAsk_StreamErrorSurfaces(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{chunks: []string{"partial"}, streamErr: errors.New("rate limited")}
	a, err := New(&Config{ChatModel: cm})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ans, err := a.Ask(context.Background(), "sess", "question")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	_, err = drainChunks(t, ans.Chunks)
	if err == nil {
		t.Fatal("expected stream error")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error: got %v", err)
	}
}

func TestAsk_EmptyQuestionRejected(t *testing.T) {
	t.Parallel()

	a, err := New(&Config{ChatModel: &fakeChatModel{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Ask(context.Background(), "sess", "   "); err == nil {
		t.Fatal("expected error for blank question")
	}
}

func TestNew_RequiresChatModel(t *testing.T) {
	t.Parallel()

	if _, err := New(&Config{}); err == nil {
		t.Fatal("expected error for nil ChatModel")
	}
}

func ExampleAssistant_Ask() {
	cm := &fakeChatModel{chunks: []string{"Paris."}}
	a, _ := New(&Config{ChatModel: cm})

	ans, _ := a.Ask(context.Background(), "demo", "What is the capital of France?")
	for {
		chunk, err := ans.Chunks.Recv()
		if err != nil {
			break
		}
		fmt.Print(chunk)
	}
	// Output: Paris.
}
