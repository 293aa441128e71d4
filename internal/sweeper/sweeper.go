// Package sweeper runs periodic maintenance: vector namespaces of FAILED
// files are cleared, and files stuck in PENDING past their TTL are
// marked FAILED so the status poll reaches a terminal state.
package sweeper

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"pdf-chat-saas/internal/logger"
	"pdf-chat-saas/internal/vectorstore"
	"pdf-chat-saas/models"
	"pdf-chat-saas/services"
)

type Sweeper struct {
	scheduler *gocron.Scheduler
	files     services.FileStore
	vectors   vectorstore.Store
	interval  time.Duration
	ttl       time.Duration
}

func New(files services.FileStore, vectors vectorstore.Store, interval, pendingTTL time.Duration) *Sweeper {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &Sweeper{
		scheduler: s,
		files:     files,
		vectors:   vectors,
		interval:  interval,
		ttl:       pendingTTL,
	}
}

func (s *Sweeper) Start() error {
	if _, err := s.scheduler.Every(s.interval).Tag("maintenance-sweep").Do(s.sweep); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s.sweepFailedNamespaces(ctx)
	s.expireStalePending(ctx)
}

func (s *Sweeper) sweepFailedNamespaces(ctx context.Context) {
	failed, err := s.files.ListByStatus(ctx, models.UploadStatusFailed)
	if err != nil {
		logger.Error("sweep: failed to list FAILED files", "error", err)
		return
	}

	for _, f := range failed {
		if err := s.vectors.DeleteNamespace(ctx, f.ID); err != nil {
			logger.Error("sweep: namespace cleanup failed", "file_id", f.ID, "error", err)
		}
	}
	if len(failed) > 0 {
		logger.Debug("sweep: cleared namespaces of failed files", "count", len(failed))
	}
}

func (s *Sweeper) expireStalePending(ctx context.Context) {
	pending, err := s.files.ListByStatus(ctx, models.UploadStatusPending)
	if err != nil {
		logger.Error("sweep: failed to list PENDING files", "error", err)
		return
	}

	cutoff := time.Now().Add(-s.ttl)
	for _, f := range pending {
		if f.CreatedAt.After(cutoff) {
			continue
		}
		if err := s.files.SetStatus(ctx, f.ID, models.UploadStatusFailed, "ingestion never started", 0); err != nil {
			logger.Error("sweep: failed to expire pending file", "file_id", f.ID, "error", err)
		}
	}
}
