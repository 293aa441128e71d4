package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	ChatRequests      metric.Int64Counter
	ChatDuration      metric.Float64Histogram
	TokensStreamed    metric.Int64Counter
	IngestionDuration metric.Float64Histogram
	IngestionFailures metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("pdf-chat-saas")

	chatRequests, err := meter.Int64Counter(
		"chat.requests.total",
		metric.WithDescription("Total chat completion requests"),
	)
	if err != nil {
		return nil, err
	}

	chatDuration, err := meter.Float64Histogram(
		"chat.request.duration",
		metric.WithDescription("Chat request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensStreamed, err := meter.Int64Counter(
		"chat.tokens.streamed",
		metric.WithDescription("Total characters streamed to chat clients"),
	)
	if err != nil {
		return nil, err
	}

	ingestionDuration, err := meter.Float64Histogram(
		"ingestion.duration",
		metric.WithDescription("PDF ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ingestionFailures, err := meter.Int64Counter(
		"ingestion.failures.total",
		metric.WithDescription("Files that ended in FAILED status"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ChatRequests:      chatRequests,
		ChatDuration:      chatDuration,
		TokensStreamed:    tokensStreamed,
		IngestionDuration: ingestionDuration,
		IngestionFailures: ingestionFailures,
	}, nil
}
