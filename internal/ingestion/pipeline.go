// Package ingestion implements the document ingestion pipeline.
// It fetches documentation pages, chunks the content, embeds each chunk, and
// upserts the results into the vector store. This pipeline is invoked by the
// `ragkit ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ragkit-dev/ragkit/internal/httpx"
	"github.com/ragkit-dev/ragkit/internal/rag"
)

// Source describes a document source to be ingested.
type Source struct {
	// URL is the HTTP(S) URL of the page to fetch.
	URL string

	// Topic is a free-form subject label attached to every chunk (e.g.
	// "networking", "billing"). Empty means no topic metadata.
	Topic string

	// DocType classifies the document kind (reference, tutorial, guide, api,
	// changelog). Empty means inferred from the URL.
	DocType string
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between consecutive chunks.
	// Defaults to 100 if zero.
	ChunkOverlap int

	// HTTPTimeout is the timeout for each fetch request.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Pipeline orchestrates the fetch → chunk → embed → upsert flow for a set of
// document sources.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// httpClient is the HTTP client used for fetching pages.
	httpClient *http.Client
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 100
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ragkit/1.0 (document ingestion)"
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}, nil
}

// Ingest fetches, chunks, embeds, and stores all provided sources.
// It processes sources sequentially and returns the first error encountered.
// Progress is reported via the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, sources []Source, progress func(msg string)) error {
	if progress == nil {
		progress = func(string) {}
	}

	for _, src := range sources {
		progress(fmt.Sprintf("fetching %s", src.URL))

		content, err := p.fetch(ctx, src.URL)
		if err != nil {
			return fmt.Errorf("ingestion: fetch failed for %s: %w", src.URL, err)
		}

		chunks := p.chunk(content)
		progress(fmt.Sprintf("chunked %s into %d chunks", src.URL, len(chunks)))

		embeddings, err := p.embedder.Embed(ctx, chunks)
		if err != nil {
			return fmt.Errorf("ingestion: embedding failed for %s: %w", src.URL, err)
		}

		docType := src.DocType
		if docType == "" {
			docType = InferMetadata(src.URL).DocType
		}

		docs := make([]rag.Document, 0, len(chunks))
		for i, chunk := range chunks {
			doc := rag.Document{
				ID:      chunkID(src.URL, i),
				Content: chunk,
				Source:  src.URL,
				Metadata: map[string]string{
					"topic":       src.Topic,
					"doc_type":    docType,
					"chunk_index": fmt.Sprintf("%d", i),
				},
			}
			docs = append(docs, doc)
		}

		if err := p.store.Upsert(ctx, docs, embeddings); err != nil {
			return fmt.Errorf("ingestion: upsert failed for %s: %w", src.URL, err)
		}

		progress(fmt.Sprintf("ingested %d chunks from %s", len(chunks), src.URL))
	}

	return nil
}

// fetch retrieves the raw text content of a URL.
func (p *Pipeline) fetch(ctx context.Context, url string) (string, error) {
	body, err := httpx.Get(ctx, p.httpClient, url, map[string]string{
		"User-Agent": p.cfg.UserAgent,
		"Accept":     "text/plain, text/html, text/markdown",
	})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// chunk splits text into overlapping chunks of cfg.ChunkSize characters.
func (p *Pipeline) chunk(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	var chunks []string
	size := p.cfg.ChunkSize
	overlap := p.cfg.ChunkOverlap

	for start := 0; start < len(text); start += size - overlap {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}

	return chunks
}

// chunkID generates a deterministic UUID-shaped ID for a document chunk based
// on its source URL and chunk index, so re-ingesting a page overwrites its
// prior chunks instead of duplicating them.
func chunkID(sourceURL string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", sourceURL, index)))
	return fmt.Sprintf("%x-%x-%x-%x-%x", h[0:4], h[4:6], h[6:8], h[8:10], h[10:16])
}
