// Package assistant wires together the chat model, the RAG retriever, and the
// conversation store to answer questions grounded in the indexed document
// corpus. Answers stream token-by-token; the supporting sources are resolved
// separately so transports can append them after the answer text completes.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ragkit-dev/ragkit/internal/budget"
	"github.com/ragkit-dev/ragkit/internal/logging"
	"github.com/ragkit-dev/ragkit/internal/rag"
	"github.com/ragkit-dev/ragkit/internal/store"
)

// systemPrompt establishes the assistant's grounding contract: answer from the
// retrieved context, cite sources, and admit ignorance rather than invent.
const systemPrompt = `You are a documentation assistant. You answer questions using ONLY the
reference material provided in the context below.

Rules:
- Ground every claim in the provided context. If the context does not contain
  the answer, say so plainly — never invent facts.
- Quote or paraphrase the relevant passages; mention the source document when
  it helps the reader verify the answer.
- Be concise. Answer the question asked, not a broader one.
- If the question is ambiguous, state the interpretation you chose.`

const (
	// defaultTopK is the number of documents retrieved per question.
	defaultTopK = 5
	// defaultHistoryDepth is the number of prior turns injected per question.
	defaultHistoryDepth = 10
	// snippetMaxLen caps the snippet length reported per source.
	snippetMaxLen = 240
)

// Config holds the dependencies and tuning knobs for constructing an Assistant.
type Config struct {
	// ChatModel is the LLM used to generate answers. Required.
	ChatModel model.ToolCallingChatModel

	// Retriever supplies document context for each question. Optional —
	// without it the assistant answers from the model alone.
	Retriever rag.Retriever

	// TopK is the number of documents to retrieve per question (default: 5).
	TopK int

	// History is the optional conversation store for multi-turn context.
	History store.ConversationStore

	// HistoryDepth is the number of recent turns to inject per question
	// (default: 10).
	HistoryDepth int

	// MaxContextTokens is the estimated token budget for the full input
	// context (system prompt + history + retrieved context + question).
	// History is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens when zero.
	MaxContextTokens int
}

// Assistant answers questions using retrieval-augmented generation.
// It is safe for concurrent use.
type Assistant struct {
	chatModel        model.ToolCallingChatModel
	retriever        rag.Retriever
	topK             int
	history          store.ConversationStore
	historyDepth     int
	maxContextTokens int
}

// Source describes one document that grounded an answer. It is the payload
// appended to streaming responses after the answer text completes.
type Source struct {
	// Source is the origin URI or file path of the document.
	Source string `json:"source"`
	// Score is the retrieval similarity score.
	Score float32 `json:"score"`
	// Snippet is a short excerpt of the matched content.
	Snippet string `json:"snippet"`
}

// Answer is a streaming answer in progress. Chunks delivers the answer text
// incrementally; Sources resolves the grounding documents. Sources may be
// called while Chunks is still draining — it returns immediately since
// retrieval completes before generation begins.
type Answer struct {
	// Chunks streams the answer text. The caller must drain or Close it.
	Chunks *schema.StreamReader[string]

	// Sources returns the documents that grounded this answer, in the shape
	// used as auxiliary response data.
	Sources func(ctx context.Context) ([]any, error)
}

// New constructs an Assistant from the given config.
func New(cfg *Config) (*Assistant, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("assistant: ChatModel is required")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = defaultHistoryDepth
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &Assistant{
		chatModel:        cfg.ChatModel,
		retriever:        cfg.Retriever,
		topK:             topK,
		history:          cfg.History,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
	}, nil
}

// Ask answers the question for the given session. Retrieval runs first, then
// the model response streams through Answer.Chunks. After the stream drains
// the full turn is persisted to the conversation store (non-fatal on error).
func (a *Assistant) Ask(ctx context.Context, sessionID, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("assistant: question must not be empty")
	}

	docs := a.retrieve(ctx, question)
	messages := a.buildMessages(ctx, sessionID, question, docs)

	sr, err := a.chatModel.Stream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("assistant: stream failed: %w", err)
	}

	out, sw := schema.Pipe[string](1)
	go func() {
		defer sw.Close()
		defer sr.Close()

		var reply strings.Builder
		for {
			msg, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				sw.Send("", fmt.Errorf("assistant: stream receive error: %w", err))
				return
			}
			if msg == nil || msg.Content == "" {
				continue
			}
			reply.WriteString(msg.Content)
			if sw.Send(msg.Content, nil) {
				// Reader closed early — do not persist a partial turn.
				return
			}
		}

		a.persistTurn(ctx, sessionID, question, reply.String())
	}()

	sources := buildSources(docs)
	return &Answer{
		Chunks: out,
		Sources: func(context.Context) ([]any, error) {
			return sources, nil
		},
	}, nil
}

// retrieve fetches document context for the question. Retrieval failure is
// non-fatal: the assistant answers without context and the error is logged.
func (a *Assistant) retrieve(ctx context.Context, question string) []rag.Document {
	if a.retriever == nil {
		return nil
	}
	docs, err := a.retriever.Retrieve(ctx, question, a.topK)
	if err != nil {
		logging.FromContext(ctx).Warn("retrieval failed, continuing without context",
			slog.Any("error", err))
		return nil
	}
	return docs
}

// buildMessages constructs the LLM message slice: system prompt, trimmed
// history, retrieved context, and the current question.
func (a *Assistant) buildMessages(ctx context.Context, sessionID, question string, docs []rag.Document) []*schema.Message {
	fixed := []*schema.Message{schema.SystemMessage(systemPrompt)}

	if len(docs) > 0 {
		fixed = append(fixed, schema.SystemMessage(buildContext(docs)))
	}

	// Inject recent conversation history so the LLM has multi-turn context.
	var historyMsgs []*schema.Message
	if a.history != nil {
		prior, err := a.history.Recent(ctx, sessionID, a.historyDepth*2)
		if err != nil {
			logging.FromContext(ctx).Warn("history: failed to load prior messages",
				slog.Any("error", err))
		} else {
			for _, m := range prior {
				switch m.Role {
				case store.RoleUser:
					historyMsgs = append(historyMsgs, schema.UserMessage(m.Content))
				case store.RoleAssistant:
					historyMsgs = append(historyMsgs, schema.AssistantMessage(m.Content, nil))
				}
			}
		}
	}

	// Trim history oldest-first so the total estimated token count fits
	// within the configured context budget.
	withQuestion := append(fixed, schema.UserMessage(question)) //nolint:gocritic // intentional copy
	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory(withQuestion, historyMsgs, a.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}

	// Final order: [system, ...history, ...context, question].
	result := make([]*schema.Message, 0, len(fixed)+len(historyMsgs)+1)
	result = append(result, fixed[0])
	result = append(result, historyMsgs...)
	result = append(result, fixed[1:]...)
	result = append(result, schema.UserMessage(question))
	return result
}

// persistTurn records the completed question/answer pair. Failures are logged
// and otherwise ignored — history is best-effort.
func (a *Assistant) persistTurn(ctx context.Context, sessionID, question, reply string) {
	if a.history == nil || reply == "" {
		return
	}
	if err := a.history.Append(ctx, sessionID, store.RoleUser, question); err != nil {
		logging.FromContext(ctx).Warn("history: failed to persist user message", slog.Any("error", err))
	}
	if err := a.history.Append(ctx, sessionID, store.RoleAssistant, reply); err != nil {
		logging.FromContext(ctx).Warn("history: failed to persist assistant message", slog.Any("error", err))
	}
}

// buildContext formats retrieved documents into a system message providing
// the reference material for the answer.
func buildContext(docs []rag.Document) string {
	var sb strings.Builder
	sb.WriteString("## Reference Material\n\n")
	sb.WriteString("Use the following retrieved passages to answer the question.\n\n")
	for i, doc := range docs {
		fmt.Fprintf(&sb, "### [%d] %s (score %.3f)\n%s\n\n", i+1, doc.Source, doc.Score, doc.Content)
	}
	return sb.String()
}

// buildSources converts retrieved documents into the auxiliary payload shape.
func buildSources(docs []rag.Document) []any {
	if len(docs) == 0 {
		return nil
	}
	sources := make([]any, 0, len(docs))
	for _, doc := range docs {
		snippet := doc.Content
		if len(snippet) > snippetMaxLen {
			snippet = snippet[:snippetMaxLen] + "…"
		}
		sources = append(sources, Source{
			Source:  doc.Source,
			Score:   doc.Score,
			Snippet: snippet,
		})
	}
	return sources
}
