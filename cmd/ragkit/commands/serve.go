package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/ragkit-dev/ragkit/internal/assistant"
	"github.com/ragkit-dev/ragkit/internal/logging"
	"github.com/ragkit-dev/ragkit/internal/provider"
	"github.com/ragkit-dev/ragkit/internal/server"
	"github.com/ragkit-dev/ragkit/internal/store"
	"github.com/ragkit-dev/ragkit/internal/tracing"
)

// NewServeCmd constructs the `ragkit serve` command, which starts the
// streaming HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragkit HTTP server",
		Long: `Start the ragkit HTTP server on localhost.

The server exposes POST /api/query, which streams the answer as ND-JSON chunk
records followed by a data record carrying the grounding sources. Liveness,
readiness, and Prometheus metrics endpoints are also served.

Examples:
  ragkit serve
  ragkit serve --port 9090
  MODEL_PROVIDER=openai ragkit serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			providerName := envOrDefault("MODEL_PROVIDER", "ollama")
			log.Info("serve starting", slog.String("provider", providerName))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", providerName))

			retriever, qdrantStore, closeRetriever, err := buildRetriever(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeRetriever()

			// Open conversation history store. RAGKIT_HISTORY_DB overrides the
			// default path (~/.ragkit/history.db). Set to "disabled" to turn
			// history off.
			var historyStore store.ConversationStore
			dbPath := os.Getenv("RAGKIT_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via RAGKIT_HISTORY_DB=disabled")
			}

			asst, err := assistant.New(&assistant.Config{
				ChatModel: chatModel,
				Retriever: retriever,
				History:   historyStore,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise assistant: %w", err)
			}

			pingers := []server.Pinger{
				server.NewQdrantPinger(qdrantStore.Client()),
				server.NewLLMPinger(chatModel, providerName),
			}

			srv, err := server.New(asst, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("RAGKIT_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
