package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragkit-dev/ragkit/internal/assistant"
	"github.com/ragkit-dev/ragkit/internal/logging"
	"github.com/ragkit-dev/ragkit/internal/ndjson"
	"github.com/ragkit-dev/ragkit/internal/provider"
	"github.com/ragkit-dev/ragkit/internal/streams"
)

// NewAskCmd constructs the `ragkit ask` command, which answers a single
// question and streams the response to stdout.
func NewAskCmd() *cobra.Command {
	var serverURL string
	var session string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed documentation",
		Long: `Ask a natural language question answered from the indexed documentation.

By default the question is answered locally: the model provider and Qdrant
are contacted directly. With --server, the question is sent to a running
ragkit server instead and its ND-JSON stream is rendered to stdout.

Examples:
  ragkit ask "how do I configure retries?"
  ragkit ask --server http://localhost:8080 "what changed in v2?"
  MODEL_PROVIDER=openai ragkit ask "explain the auth flow"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := args[0]
			if serverURL != "" {
				return askRemote(cmd.Context(), serverURL, session, question)
			}
			return askLocal(cmd.Context(), session, question)
		},
	}

	cmd.Flags().StringVarP(&serverURL, "server", "s", "", "Base URL of a running ragkit server (e.g. http://localhost:8080)")
	cmd.Flags().StringVar(&session, "session", "cli", "Session ID grouping turns into a conversation")

	return cmd
}

// askLocal answers the question in-process: model provider and Qdrant are
// contacted directly, no server required.
func askLocal(ctx context.Context, session, question string) error {
	log := logging.New()
	ctx = logging.WithLogger(ctx, log)

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("ask: failed to initialise model provider: %w", err)
	}

	// A missing vector store is non-fatal for ask — the model can still
	// answer, it just cannot ground the answer in the corpus.
	retriever, _, closeRetriever, err := buildRetriever(ctx, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v (answering without document context)\n", err)
	} else {
		defer closeRetriever()
	}

	asst, err := assistant.New(&assistant.Config{
		ChatModel: chatModel,
		Retriever: retriever,
	})
	if err != nil {
		return fmt.Errorf("ask: failed to initialise assistant: %w", err)
	}

	ans, err := asst.Ask(ctx, session, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	for chunk, err := range streams.Pull(ans.Chunks) {
		if err != nil {
			return fmt.Errorf("ask: stream failed: %w", err)
		}
		fmt.Print(chunk)
	}
	fmt.Println()

	sources, err := ans.Sources(ctx)
	if err != nil {
		return fmt.Errorf("ask: failed to resolve sources: %w", err)
	}
	printSources(sources)

	return nil
}

// askRemote sends the question to a running ragkit server and renders its
// ND-JSON response stream to stdout.
func askRemote(ctx context.Context, baseURL, session, question string) error {
	body, err := json.Marshal(map[string]string{
		"question":  question,
		"sessionId": session,
	})
	if err != nil {
		return fmt.Errorf("ask: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/query", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ask: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := os.Getenv("RAGKIT_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	// No client timeout: the response is an open-ended stream.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("ask: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ask: server returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	envelopes := ndjson.Decode(streams.FromReader(resp.Body, 0))
	for env, err := range streams.Pull(envelopes) {
		if err != nil {
			return fmt.Errorf("ask: stream failed: %w", err)
		}
		switch env.Type {
		case ndjson.EnvelopeChunk:
			if s, ok := env.Value.(string); ok {
				fmt.Print(s)
			}
		case ndjson.EnvelopeData:
			fmt.Println()
			printSources(env.Value)
		}
	}

	return nil
}

// printSources renders the grounding sources block after the answer text.
// Accepts either []any of assistant.Source (local mode) or the decoded JSON
// equivalent (remote mode); anything unrecognised is skipped.
func printSources(v any) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return
	}

	fmt.Println("\nSources:")
	for _, item := range items {
		switch s := item.(type) {
		case assistant.Source:
			fmt.Printf("  - %s (score %.2f)\n", s.Source, s.Score)
		case map[string]any:
			src, _ := s["source"].(string)
			score, _ := s["score"].(float64)
			fmt.Printf("  - %s (score %.2f)\n", src, score)
		}
	}
}
