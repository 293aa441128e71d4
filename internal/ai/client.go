package ai

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"pdf-chat-saas/internal/config"
	"pdf-chat-saas/internal/logger"
)

// TokenStream yields completion text incrementally. Recv returns io.EOF
// after the final chunk.
type TokenStream interface {
	Recv() (string, error)
}

// Client wraps the Gemini SDK with a circuit breaker and request pacing.
// One Client is shared across all requests.
type Client struct {
	client          *genai.Client
	breaker         *gobreaker.CircuitBreaker
	limiter         *rate.Limiter
	model           string
	embeddingsModel string
}

func NewClient(cfg *config.Config) (*Client, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// Free-tier RPM with some headroom
	limiter := rate.NewLimiter(rate.Limit(10*0.9/60.0), 2)

	return &Client{
		client:          client,
		breaker:         breaker,
		limiter:         limiter,
		model:           cfg.GeminiModel,
		embeddingsModel: cfg.EmbeddingsModel,
	}, nil
}

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	model := c.client.EmbeddingModel(c.embeddingsModel)
	resp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Embedding.Values, nil
}

// StreamChat starts a deterministic (temperature 0) streamed completion.
// The breaker wraps stream creation and the first chunk, so an API that
// fails fast trips it without half-open streams leaking through.
func (c *Client) StreamChat(ctx context.Context, system, user string) (TokenStream, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.stream_chat")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", c.model),
		attribute.Int("gemini.prompt_chars", len(system)+len(user)),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		model := c.client.GenerativeModel(c.model)
		model.SetTemperature(0)
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}

		it := model.GenerateContentStream(ctx, genai.Text(user))

		first, err := it.Next()
		if err == iterator.Done {
			return &geminiStream{done: true}, nil
		}
		if err != nil {
			return nil, err
		}
		return &geminiStream{it: it, pending: candidateText(first)}, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return nil, fmt.Errorf("gemini temporarily unavailable: %w", err)
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	return result.(*geminiStream), nil
}

// Close the underlying SDK client.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

type geminiStream struct {
	it      *genai.GenerateContentResponseIterator
	pending string
	sent    bool
	done    bool
}

func (s *geminiStream) Recv() (string, error) {
	if !s.sent {
		s.sent = true
		if s.done {
			return "", io.EOF
		}
		return s.pending, nil
	}
	if s.done {
		return "", io.EOF
	}

	resp, err := s.it.Next()
	if err == iterator.Done {
		s.done = true
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	return candidateText(resp), nil
}

func candidateText(resp *genai.GenerateContentResponse) string {
	text := ""
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text += string(t)
			}
		}
	}
	return text
}
