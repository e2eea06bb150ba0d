package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model: got %q", req.Model)
		}
		resp := ollamaEmbedResponse{
			Embeddings: make([][]float32, len(req.Input)),
		}
		for i := range resp.Embeddings {
			resp.Embeddings[i] = []float32{float32(i), 0.5}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: ts.URL, Model: "nomic-embed-text"})

	got, err := emb.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(got))
	}
	if got[1][0] != 1 {
		t.Errorf("embeddings out of order: %v", got)
	}
}

func TestOllamaEmbedder_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer ts.Close()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: ts.URL, Model: "missing"})

	_, err := emb.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error should carry server message, got: %v", err)
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization: got %q", got)
		}
		// Return the two embeddings deliberately out of order.
		w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0.2]},
			{"index":0,"embedding":[0.1]}
		]}`))
	}))
	defer ts.Close()

	emb := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL: ts.URL,
		APIKey:  "sk-test",
		Model:   "text-embedding-3-small",
	})

	got, err := emb.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got[0][0] != 0.1 || got[1][0] != 0.2 {
		t.Errorf("embeddings not sorted by index: %v", got)
	}
}

func TestOpenAIEmbedder_AzureAuth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("api-key"); got != "az-key" {
			t.Errorf("api-key header: got %q", got)
		}
		if !strings.Contains(r.URL.String(), "api-version=2025-04-01-preview") {
			t.Errorf("api-version missing from URL: %s", r.URL)
		}
		if !strings.Contains(r.URL.Path, "/deployments/my-deploy/") {
			t.Errorf("deployment path missing: %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1.0]}]}`))
	}))
	defer ts.Close()

	emb := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    ts.URL,
		APIKey:     "az-key",
		Model:      "my-deploy",
		Azure:      true,
		APIVersion: "2025-04-01-preview",
	})

	if _, err := emb.Embed(context.Background(), []string{"q"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer ts.Close()

	emb := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: ts.URL, APIKey: "bad", Model: "m"})

	_, err := emb.Embed(context.Background(), []string{"q"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("error should carry API message, got: %v", err)
	}
}

func TestDefaultDimensions(t *testing.T) {
	if got := DefaultDimensions("ollama"); got != 768 {
		t.Errorf("ollama dims: got %d", got)
	}
	if got := DefaultDimensions("openai"); got != 1536 {
		t.Errorf("openai dims: got %d", got)
	}

	t.Setenv("EMBEDDING_DIMENSIONS", "512")
	if got := DefaultDimensions("ollama"); got != 512 {
		t.Errorf("override dims: got %d", got)
	}
}

func TestNewFromEnv_DefaultsToOllama(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("MODEL_PROVIDER", "")

	emb, err := NewFromEnv()
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	if _, ok := emb.(*OllamaEmbedder); !ok {
		t.Errorf("expected *OllamaEmbedder, got %T", emb)
	}
}

func TestNewFromEnv_OpenAIRequiresKey(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := NewFromEnv(); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewFromEnv_UnknownBackend(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "mystery")

	if _, err := NewFromEnv(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	chat := []string{"gpt-4o", "llama3.2", "Claude-3-Haiku", "qwen2.5"}
	for _, m := range chat {
		if !looksLikeChatModel(m) {
			t.Errorf("%q should look like a chat model", m)
		}
	}
	embed := []string{"nomic-embed-text", "text-embedding-3-small", "bge-m3"}
	for _, m := range embed {
		if looksLikeChatModel(m) {
			t.Errorf("%q should not look like a chat model", m)
		}
	}
}
