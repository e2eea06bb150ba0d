package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ragkit-dev/ragkit/internal/embedder"
	"github.com/ragkit-dev/ragkit/internal/ingestion"
	"github.com/ragkit-dev/ragkit/internal/logging"
)

// NewIngestCmd constructs the `ragkit ingest` command, which runs the
// documentation ingestion pipeline to populate the vector store.
func NewIngestCmd() *cobra.Command {
	var topic string
	var docType string
	var chunkSize int
	var chunkOverlap int
	var urls []string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest documentation into the vector store",
		Long: `Fetch and index documentation pages into the Qdrant vector store.

Ingested documents are retrieved as grounding context when answering
questions, so answers cite real passages instead of inventing them.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: ragkit-docs)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Metadata flags (--topic, --doc-type) are optional. When omitted, metadata is
auto-inferred from the URL pattern (e.g. GitHub and readthedocs URLs resolve
their topic automatically). Explicit flags override inference.

Examples:
  ragkit ingest --url https://docs.example.com/guides/getting-started
  ragkit ingest --topic mylib --url https://mylib.readthedocs.io/en/latest/api.html
  ragkit ingest --url https://github.com/acme/toolkit/blob/main/README.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if len(urls) == 0 {
				return fmt.Errorf("ingest: at least one --url is required")
			}

			if err := embedder.ValidateForRAG(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised", slog.String("provider", embeddingBackend()))

			store, err := buildVectorStore(ctx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer store.Close()
			log.Info("qdrant store ready")

			pipeline, err := ingestion.NewPipeline(emb, store, &ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			topicSet := cmd.Flags().Changed("topic")
			docTypeSet := cmd.Flags().Changed("doc-type")

			sources := make([]ingestion.Source, 0, len(urls))
			for _, u := range urls {
				inferred := ingestion.InferMetadata(u)

				src := ingestion.Source{URL: u}
				if topicSet {
					src.Topic = topic
				} else {
					src.Topic = inferred.Topic
				}
				if docTypeSet {
					src.DocType = docType
				} else {
					src.DocType = inferred.DocType
				}

				log.Info("source metadata",
					slog.String("url", u),
					slog.String("topic", src.Topic),
					slog.String("doc_type", src.DocType),
				)
				sources = append(sources, src)
			}

			log.Info("starting ingestion", slog.Int("sources", len(sources)))

			if err := pipeline.Ingest(ctx, sources, func(msg string) {
				log.Info(msg)
			}); err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete", slog.Int("sources", len(sources)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Topic label for the ingested documents (default: inferred from URL)")
	cmd.Flags().StringVarP(&docType, "doc-type", "d", "", "Documentation type (reference, tutorial, guide, api, changelog; default: inferred)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size in characters (default: 1000)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Overlap between adjacent chunks in characters (default: 100)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Documentation URL to ingest (repeatable)")

	return cmd
}
