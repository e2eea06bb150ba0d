package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ragkit-dev/ragkit/internal/rag"
)

// fakeEmbedder returns one fixed-size vector per input text.
type fakeEmbedder struct {
	calls int
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

// fakeStore records upserted documents.
type fakeStore struct {
	docs       []rag.Document
	embeddings [][]float32
}

func (s *fakeStore) Upsert(_ context.Context, docs []rag.Document, embeddings [][]float32) error {
	s.docs = append(s.docs, docs...)
	s.embeddings = append(s.embeddings, embeddings...)
	return nil
}
func (s *fakeStore) Search(context.Context, []float32, int) ([]rag.Document, error) { return nil, nil }
func (s *fakeStore) Delete(context.Context, []string) error                         { return nil }
func (s *fakeStore) Close() error                                                   { return nil }

func TestPipeline_IngestEndToEnd(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "ragkit") {
			t.Errorf("user agent: got %q", ua)
		}
		w.Write([]byte(strings.Repeat("paragraph of documentation text. ", 40)))
	}))
	defer ts.Close()

	emb := &fakeEmbedder{}
	st := &fakeStore{}
	p, err := NewPipeline(emb, st, &Config{ChunkSize: 300, ChunkOverlap: 30})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	var msgs []string
	err = p.Ingest(context.Background(), []Source{
		{URL: ts.URL + "/guides/setup", Topic: "setup"},
	}, func(msg string) { msgs = append(msgs, msg) })
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if len(st.docs) == 0 {
		t.Fatal("no documents upserted")
	}
	if len(st.docs) != len(st.embeddings) {
		t.Fatalf("docs/embeddings length mismatch: %d vs %d", len(st.docs), len(st.embeddings))
	}
	first := st.docs[0]
	if first.Source != ts.URL+"/guides/setup" {
		t.Errorf("source: got %q", first.Source)
	}
	if first.Metadata["topic"] != "setup" {
		t.Errorf("topic metadata: got %q", first.Metadata["topic"])
	}
	if first.Metadata["doc_type"] != "guide" {
		t.Errorf("doc_type metadata: got %q", first.Metadata["doc_type"])
	}
	if len(msgs) == 0 {
		t.Error("no progress messages reported")
	}
}

func TestPipeline_ChunkOverlap(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(&fakeEmbedder{}, &fakeStore{}, &Config{ChunkSize: 10, ChunkOverlap: 2})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	chunks := p.chunk("abcdefghijklmnop")
	if len(chunks) != 2 {
		t.Fatalf("want 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "abcdefghij" {
		t.Errorf("chunk[0]: got %q", chunks[0])
	}
	// Second chunk starts at size-overlap = 8.
	if chunks[1] != "ijklmnop" {
		t.Errorf("chunk[1]: got %q", chunks[1])
	}
}

func TestPipeline_EmptyContentYieldsNoChunks(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(&fakeEmbedder{}, &fakeStore{}, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if chunks := p.chunk("   \n  "); chunks != nil {
		t.Errorf("want nil, got %v", chunks)
	}
}

func TestPipeline_FetchErrorPropagates(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	p, err := NewPipeline(&fakeEmbedder{}, &fakeStore{}, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	err = p.Ingest(context.Background(), []Source{{URL: ts.URL}}, nil)
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if !strings.Contains(err.Error(), "fetch failed") {
		t.Errorf("error: got %v", err)
	}
}

func TestChunkID_DeterministicAndUnique(t *testing.T) {
	t.Parallel()

	a := chunkID("https://example.com/doc", 0)
	b := chunkID("https://example.com/doc", 0)
	c := chunkID("https://example.com/doc", 1)
	if a != b {
		t.Errorf("same inputs produced different IDs: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("different chunk indexes produced same ID: %q", a)
	}
	// UUID shape: 8-4-4-4-12 hex groups.
	parts := strings.Split(a, "-")
	if len(parts) != 5 {
		t.Errorf("ID not UUID-shaped: %q", a)
	}
}
