package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"pdf-chat-saas/internal/config"
	"pdf-chat-saas/internal/logger"
	"pdf-chat-saas/internal/telemetry"
	"pdf-chat-saas/internal/vectorstore"
	"pdf-chat-saas/models"
)

// Embedder converts text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PageExtractor splits a raw PDF into page-level text documents.
type PageExtractor interface {
	ExtractPages(data []byte) ([]string, error)
}

// IngestionService runs the upload pipeline: fetch bytes, split into
// pages, enforce the plan quota, embed, and populate the file's vector
// namespace. The file's upload_status is the only externally observable
// signal; errors are logged, never surfaced to the upload caller.
type IngestionService struct {
	files        FileStore
	vectors      vectorstore.Store
	embedder     Embedder
	extractor    PageExtractor
	httpClient   *http.Client
	maxFetchSize int64
	metrics      *telemetry.Metrics
}

func NewIngestionService(cfg *config.Config, files FileStore, vectors vectorstore.Store, embedder Embedder) *IngestionService {
	return &IngestionService{
		files:        files,
		vectors:      vectors,
		embedder:     embedder,
		extractor:    pdfPageExtractor{},
		httpClient:   &http.Client{Timeout: cfg.FetchTimeout},
		maxFetchSize: cfg.MaxFetchSize,
	}
}

// WithExtractor overrides the PDF parser. Used by tests.
func (s *IngestionService) WithExtractor(e PageExtractor) *IngestionService {
	s.extractor = e
	return s
}

// WithMetrics enables pipeline instrumentation.
func (s *IngestionService) WithMetrics(m *telemetry.Metrics) *IngestionService {
	s.metrics = m
	return s
}

// RegisterUpload handles the upload-completion webhook. Duplicate
// storage keys are a silent no-op: the second return value reports
// whether a new file was created and needs ingestion.
func (s *IngestionService) RegisterUpload(ctx context.Context, req models.UploadCompleteRequest) (models.File, bool, error) {
	if existing, err := s.files.FindByStorageKey(ctx, req.File.Key); err == nil {
		logger.Debug("upload already registered", "storage_key", req.File.Key, "file_id", existing.ID)
		return existing, false, nil
	} else if err != ErrFileNotFound {
		return models.File{}, false, err
	}

	now := time.Now()
	file := models.File{
		ID:           uuid.NewString(),
		StorageKey:   req.File.Key,
		Name:         req.File.Name,
		URL:          req.File.URL,
		UserID:       req.Metadata.UserID,
		UploadStatus: models.UploadStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.files.Create(ctx, file); err != nil {
		if err == ErrDuplicateFile {
			// Lost a concurrent-delivery race on the unique storage_key
			// index. Same silent no-op as the lookup path.
			existing, lookupErr := s.files.FindByStorageKey(ctx, req.File.Key)
			if lookupErr != nil {
				return models.File{}, false, lookupErr
			}
			return existing, false, nil
		}
		return models.File{}, false, err
	}

	return file, true, nil
}

// Ingest runs the pipeline for a PENDING or PROCESSING file, claiming
// PENDING files by moving them to PROCESSING. The returned error is
// nil on terminal failures as well: FAILED status is the contract, and
// the queue must not retry.
func (s *IngestionService) Ingest(ctx context.Context, fileID, planSlug string) error {
	start := time.Now()
	if s.metrics != nil {
		defer func() {
			s.metrics.IngestionDuration.Record(ctx, time.Since(start).Seconds())
		}()
	}

	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		logger.Error("ingest: file lookup failed", "file_id", fileID, "error", err)
		return nil
	}
	switch file.UploadStatus {
	case models.UploadStatusPending:
		// Claim the file before any work so the status poll reflects
		// that a worker has it.
		if err := s.files.SetStatus(ctx, file.ID, models.UploadStatusProcessing, "", 0); err != nil {
			logger.Error("ingest: failed to mark PROCESSING", "file_id", fileID, "error", err)
			return nil
		}
		file.UploadStatus = models.UploadStatusProcessing
	case models.UploadStatusProcessing:
		// Already claimed, proceed.
	default:
		// SUCCESS and FAILED are terminal; re-ingestion is not supported.
		logger.Warn("ingest: skipping file in terminal status", "file_id", fileID, "status", file.UploadStatus)
		return nil
	}

	data, err := s.fetch(ctx, file.URL)
	if err != nil {
		s.fail(ctx, file, fmt.Sprintf("failed to fetch document: %v", err))
		return nil
	}

	pages, err := s.extractor.ExtractPages(data)
	if err != nil {
		s.fail(ctx, file, fmt.Sprintf("failed to parse PDF: %v", err))
		return nil
	}
	if len(pages) == 0 {
		s.fail(ctx, file, "document has no pages")
		return nil
	}

	plan := models.PlanBySlug(planSlug)
	if len(pages) > plan.PagesPerPDF {
		// Quota check before any indexing: the namespace stays empty.
		s.fail(ctx, file, fmt.Sprintf("page count %d exceeds %s plan limit of %d", len(pages), plan.Name, plan.PagesPerPDF))
		return nil
	}

	passages := make([]vectorstore.Passage, 0, len(pages))
	for i, page := range pages {
		vector, err := s.embedder.Embed(ctx, page)
		if err != nil {
			s.cleanupAndFail(ctx, file, fmt.Sprintf("failed to embed page %d: %v", i+1, err))
			return nil
		}
		passages = append(passages, vectorstore.Passage{
			Page:   i + 1,
			Text:   page,
			Vector: vector,
		})
	}

	if err := s.vectors.Upsert(ctx, file.ID, passages); err != nil {
		s.cleanupAndFail(ctx, file, fmt.Sprintf("failed to index passages: %v", err))
		return nil
	}

	if err := s.files.SetStatus(ctx, file.ID, models.UploadStatusSuccess, "", len(pages)); err != nil {
		logger.Error("ingest: failed to mark SUCCESS", "file_id", file.ID, "error", err)
		return nil
	}

	logger.Info("ingestion complete", "file_id", file.ID, "pages", len(pages))
	return nil
}

func (s *IngestionService) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxFetchSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxFetchSize {
		return nil, fmt.Errorf("document exceeds %d byte fetch limit", s.maxFetchSize)
	}
	return data, nil
}

func (s *IngestionService) fail(ctx context.Context, file models.File, reason string) {
	logger.Error("ingestion failed", "file_id", file.ID, "reason", reason)
	if s.metrics != nil {
		s.metrics.IngestionFailures.Add(ctx, 1)
	}
	if err := s.files.SetStatus(ctx, file.ID, models.UploadStatusFailed, reason, 0); err != nil {
		logger.Error("ingest: failed to mark FAILED", "file_id", file.ID, "error", err)
	}
}

// cleanupAndFail additionally clears the namespace so a half-indexed
// file never leaves passages behind.
func (s *IngestionService) cleanupAndFail(ctx context.Context, file models.File, reason string) {
	if err := s.vectors.DeleteNamespace(ctx, file.ID); err != nil {
		logger.Error("ingest: namespace cleanup failed", "file_id", file.ID, "error", err)
	}
	s.fail(ctx, file, reason)
}

type pdfPageExtractor struct{}

func (pdfPageExtractor) ExtractPages(data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Keep the page so the one-passage-per-page invariant holds.
			logger.Warn("page text extraction failed", "page", i, "error", err)
			text = ""
		}
		pages = append(pages, text)
	}
	return pages, nil
}
