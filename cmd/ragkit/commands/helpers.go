package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/ragkit-dev/ragkit/internal/embedder"
	"github.com/ragkit-dev/ragkit/internal/rag"
)

// envOrDefault returns the value of the environment variable key, or fallback
// if it is unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the integer value of the environment variable key, or
// fallback if it is unset or not a valid integer.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// embeddingBackend resolves the embedding backend name the same way the
// embedder factory does: EMBEDDING_PROVIDER wins, then MODEL_PROVIDER,
// then ollama.
func embeddingBackend() string {
	return envOrDefault("EMBEDDING_PROVIDER", envOrDefault("MODEL_PROVIDER", "ollama"))
}

// buildVectorStore connects to Qdrant using the QDRANT_* environment
// variables and ensures the target collection exists. The caller owns the
// returned store and must Close it.
func buildVectorStore(ctx context.Context) (*rag.QdrantStore, error) {
	host := envOrDefault("QDRANT_HOST", "localhost")
	port := envInt("QDRANT_PORT", 6334)
	collection := envOrDefault("QDRANT_COLLECTION", "ragkit-docs")
	vectorSize := uint64(embedder.DefaultDimensions(embeddingBackend())) //nolint:gosec // dimensions are bounded

	store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	return store, nil
}

// buildRetriever constructs the embedder, vector store, and retriever used to
// ground answers. The returned close function releases the Qdrant connection.
// The store is returned separately so callers can use it for health probes.
func buildRetriever(ctx context.Context, log *slog.Logger) (rag.Retriever, *rag.QdrantStore, func(), error) {
	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, nil, nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	store, err := buildVectorStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	retriever, err := rag.NewRetriever(emb, store, envInt("RAG_TOP_K", 0))
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	closeFn := func() { _ = store.Close() }
	return retriever, store, closeFn, nil
}
