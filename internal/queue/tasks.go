package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"pdf-chat-saas/internal/logger"
	"pdf-chat-saas/services"
)

const TaskIngestFile = "file:ingest"

type IngestPayload struct {
	FileID   string `json:"file_id"`
	PlanSlug string `json:"plan_slug"`
}

// NewIngestTask builds the background ingestion task for a file.
// MaxRetry is zero: ingestion failures are terminal and recorded on the
// file's status, not retried.
func NewIngestTask(fileID, planSlug string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		FileID:   fileID,
		PlanSlug: planSlug,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestFile,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// TaskProcessor routes queue tasks to the ingestion service.
type TaskProcessor struct {
	ingestion *services.IngestionService
}

func NewTaskProcessor(ingestion *services.IngestionService) *TaskProcessor {
	return &TaskProcessor{ingestion: ingestion}
}

func (p *TaskProcessor) HandleIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("ingesting file", "file_id", payload.FileID, "plan", payload.PlanSlug)
	return p.ingestion.Ingest(ctx, payload.FileID, payload.PlanSlug)
}
