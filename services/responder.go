package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pdf-chat-saas/internal/ai"
	"pdf-chat-saas/internal/config"
	"pdf-chat-saas/internal/logger"
	"pdf-chat-saas/internal/telemetry"
	"pdf-chat-saas/internal/vectorstore"
	"pdf-chat-saas/models"
)

// ChatStreamer produces a streamed completion for a system + user prompt.
type ChatStreamer interface {
	StreamChat(ctx context.Context, system, user string) (ai.TokenStream, error)
}

// StreamSink receives completion chunks as they arrive. gin's
// ResponseWriter satisfies it.
type StreamSink interface {
	io.Writer
	Flush()
}

const systemPrompt = "Use the following pieces of context (or previous conversaton if needed) to answer the users question in markdown format."

// Responder answers a question about a file with retrieval-augmented
// generation: embed the question, pull the nearest indexed passages,
// fold in recent history, and stream the completion.
type Responder struct {
	files    FileStore
	messages MessageStore
	vectors  vectorstore.Store
	embedder Embedder
	llm      ChatStreamer
	metrics  *telemetry.Metrics

	topK          int
	historyWindow int
	timeout       time.Duration
}

func NewResponder(cfg *config.Config, files FileStore, messages MessageStore, vectors vectorstore.Store, embedder Embedder, llm ChatStreamer, metrics *telemetry.Metrics) *Responder {
	return &Responder{
		files:         files,
		messages:      messages,
		vectors:       vectors,
		embedder:      embedder,
		llm:           llm,
		metrics:       metrics,
		topK:          cfg.RetrievalTopK,
		historyWindow: cfg.HistoryWindow,
		timeout:       cfg.ResponderTimeout,
	}
}

// Respond streams an answer into sink. Errors returned before the first
// write are safe to map to HTTP statuses; once streaming has begun,
// failures are absorbed (partial output stands, the completion-persist
// step is skipped).
func (r *Responder) Respond(ctx context.Context, userID, fileID, question string, sink StreamSink) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tracer := otel.Tracer("responder")
	ctx, span := tracer.Start(ctx, "responder.respond")
	defer span.End()
	span.SetAttributes(attribute.String("file.id", fileID))

	start := time.Now()
	if r.metrics != nil {
		r.metrics.ChatRequests.Add(ctx, 1)
		defer func() {
			r.metrics.ChatDuration.Record(ctx, time.Since(start).Seconds())
		}()
	}

	file, err := r.files.GetOwned(ctx, fileID, userID)
	if err != nil {
		return err
	}
	if file.UploadStatus != models.UploadStatusSuccess {
		return ErrFileNotReady
	}

	// Persist the question before any retrieval work so the history is
	// durable even if generation fails.
	if _, err := r.messages.Append(ctx, models.Message{
		ID:            uuid.NewString(),
		FileID:        fileID,
		UserID:        userID,
		Text:          question,
		IsUserMessage: true,
		CreatedAt:     time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to persist question: %w", err)
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return fmt.Errorf("failed to embed question: %w", err)
	}

	passages, err := r.vectors.SimilaritySearch(ctx, fileID, vector, r.topK)
	if err != nil {
		return fmt.Errorf("similarity search failed: %w", err)
	}

	// Newest-first, including the question appended above. The history
	// block goes into the prompt in this order, not re-reversed.
	history, _, err := r.messages.List(ctx, fileID, "", r.historyWindow)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	userPrompt := buildUserPrompt(history, passages, question)
	span.SetAttributes(
		attribute.Int("responder.passages", len(passages)),
		attribute.Int("responder.history", len(history)),
	)

	stream, err := r.llm.StreamChat(ctx, systemPrompt, userPrompt)
	if err != nil {
		return fmt.Errorf("failed to start completion: %w", err)
	}

	var accumulated strings.Builder
	for {
		token, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Mid-stream fault: whatever was emitted stands; skip the
			// completion-persist step.
			logger.Error("completion stream interrupted", "file_id", fileID, "error", err)
			span.SetAttributes(attribute.Bool("responder.stream_interrupted", true))
			return nil
		}
		if token == "" {
			continue
		}
		if _, err := sink.Write([]byte(token)); err != nil {
			logger.Warn("client went away mid-stream", "file_id", fileID, "error", err)
			return nil
		}
		sink.Flush()
		accumulated.WriteString(token)
		if r.metrics != nil {
			r.metrics.TokensStreamed.Add(ctx, int64(len(token)), metric.WithAttributes(attribute.String("file.id", fileID)))
		}
	}

	if _, err := r.messages.Append(ctx, models.Message{
		ID:            uuid.NewString(),
		FileID:        fileID,
		UserID:        userID,
		Text:          accumulated.String(),
		IsUserMessage: false,
		CreatedAt:     time.Now(),
	}); err != nil {
		logger.Error("failed to persist completion", "file_id", fileID, "error", err)
	}

	return nil
}

// buildUserPrompt assembles the previous-conversation block, the
// retrieved-context block, and the literal question into one user
// payload (the structure the answer model is prompted with).
func buildUserPrompt(history []models.Message, passages []vectorstore.Passage, question string) string {
	var conversation strings.Builder
	for _, msg := range history {
		if msg.IsUserMessage {
			conversation.WriteString("User: " + msg.Text + "\n")
		} else {
			conversation.WriteString("Assistant: " + msg.Text + "\n")
		}
	}

	contexts := make([]string, 0, len(passages))
	for _, p := range passages {
		contexts = append(contexts, p.Text)
	}

	return systemPrompt + `
If you don't know the answer, just say that you don't know, don't try to make up an answer.

----------------

PREVIOUS CONVERSATION:
` + conversation.String() + `
----------------

CONTEXT:
` + strings.Join(contexts, "\n\n") + `

USER INPUT: ` + question
}
