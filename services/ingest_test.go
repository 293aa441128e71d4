package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pdf-chat-saas/internal/config"
	"pdf-chat-saas/internal/vectorstore"
	"pdf-chat-saas/models"
)

func testIngestConfig() *config.Config {
	return &config.Config{
		FetchTimeout: 5 * time.Second,
		MaxFetchSize: 1 << 20,
	}
}

func seedFile(t *testing.T, files *memFileStore, status string) models.File {
	t.Helper()
	file := models.File{
		ID:           "file-1",
		StorageKey:   "uploads/key-1",
		Name:         "report.pdf",
		UserID:       "user-1",
		UploadStatus: status,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := files.Create(context.Background(), file); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	return file
}

func TestIngestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-1.4 fake bytes"))
	}))
	defer srv.Close()

	files := newMemFileStore()
	vectors := vectorstore.NewMemoryStore()
	embedder := &stubEmbedder{}

	file := seedFile(t, files, models.UploadStatusProcessing)
	files.mu.Lock()
	f := files.files[file.ID]
	f.URL = srv.URL
	files.files[file.ID] = f
	files.mu.Unlock()

	svc := NewIngestionService(testIngestConfig(), files, vectors, embedder).
		WithExtractor(stubExtractor{pages: []string{"page one", "page two", "page three"}})

	if err := svc.Ingest(context.Background(), file.ID, "free"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, _ := files.GetByID(context.Background(), file.ID)
	if got.UploadStatus != models.UploadStatusSuccess {
		t.Fatalf("status = %q, want SUCCESS (reason %q)", got.UploadStatus, got.FailureReason)
	}
	if got.PageCount != 3 {
		t.Fatalf("page count = %d, want 3", got.PageCount)
	}
	if n := vectors.Count(file.ID); n != 3 {
		t.Fatalf("namespace passage count = %d, want 3", n)
	}
	if embedder.calls != 3 {
		t.Fatalf("embedder calls = %d, want one per page", embedder.calls)
	}
}

func TestIngestQuotaExceededLeavesNamespaceEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pdf"))
	}))
	defer srv.Close()

	files := newMemFileStore()
	vectors := vectorstore.NewMemoryStore()
	embedder := &stubEmbedder{}

	file := seedFile(t, files, models.UploadStatusProcessing)
	files.mu.Lock()
	f := files.files[file.ID]
	f.URL = srv.URL
	files.files[file.ID] = f
	files.mu.Unlock()

	pages := make([]string, models.PlanBySlug("free").PagesPerPDF+1)
	for i := range pages {
		pages[i] = "text"
	}
	svc := NewIngestionService(testIngestConfig(), files, vectors, embedder).
		WithExtractor(stubExtractor{pages: pages})

	if err := svc.Ingest(context.Background(), file.ID, "free"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, _ := files.GetByID(context.Background(), file.ID)
	if got.UploadStatus != models.UploadStatusFailed {
		t.Fatalf("status = %q, want FAILED", got.UploadStatus)
	}
	if !strings.Contains(got.FailureReason, "exceeds") {
		t.Fatalf("failure reason %q does not mention the quota", got.FailureReason)
	}
	if embedder.calls != 0 {
		t.Fatalf("embedder called %d times before the quota check", embedder.calls)
	}
	if n := vectors.Count(file.ID); n != 0 {
		t.Fatalf("namespace has %d passages, want 0", n)
	}
}

func TestIngestFetchFailureMarksFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	files := newMemFileStore()
	vectors := vectorstore.NewMemoryStore()

	file := seedFile(t, files, models.UploadStatusProcessing)
	files.mu.Lock()
	f := files.files[file.ID]
	f.URL = srv.URL
	files.files[file.ID] = f
	files.mu.Unlock()

	svc := NewIngestionService(testIngestConfig(), files, vectors, &stubEmbedder{}).
		WithExtractor(stubExtractor{pages: []string{"unreached"}})

	if err := svc.Ingest(context.Background(), file.ID, "free"); err != nil {
		t.Fatalf("terminal failure must not surface an error, got %v", err)
	}

	got, _ := files.GetByID(context.Background(), file.ID)
	if got.UploadStatus != models.UploadStatusFailed {
		t.Fatalf("status = %q, want FAILED", got.UploadStatus)
	}
}

func TestIngestEmbedFailureClearsNamespace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pdf"))
	}))
	defer srv.Close()

	files := newMemFileStore()
	vectors := vectorstore.NewMemoryStore()
	embedder := &stubEmbedder{err: context.DeadlineExceeded}

	file := seedFile(t, files, models.UploadStatusProcessing)
	files.mu.Lock()
	f := files.files[file.ID]
	f.URL = srv.URL
	files.files[file.ID] = f
	files.mu.Unlock()

	svc := NewIngestionService(testIngestConfig(), files, vectors, embedder).
		WithExtractor(stubExtractor{pages: []string{"a", "b"}})

	if err := svc.Ingest(context.Background(), file.ID, "free"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, _ := files.GetByID(context.Background(), file.ID)
	if got.UploadStatus != models.UploadStatusFailed {
		t.Fatalf("status = %q, want FAILED", got.UploadStatus)
	}
	if n := vectors.Count(file.ID); n != 0 {
		t.Fatalf("namespace has %d passages after cleanup, want 0", n)
	}
}

func TestIngestClaimsPendingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pdf"))
	}))
	defer srv.Close()

	files := newMemFileStore()
	vectors := vectorstore.NewMemoryStore()

	file := seedFile(t, files, models.UploadStatusPending)
	files.mu.Lock()
	f := files.files[file.ID]
	f.URL = srv.URL
	files.files[file.ID] = f
	files.mu.Unlock()

	svc := NewIngestionService(testIngestConfig(), files, vectors, &stubEmbedder{}).
		WithExtractor(stubExtractor{pages: []string{"page"}})

	if err := svc.Ingest(context.Background(), file.ID, "free"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, _ := files.GetByID(context.Background(), file.ID)
	if got.UploadStatus != models.UploadStatusSuccess {
		t.Fatalf("status = %q, want SUCCESS from PENDING start (reason %q)", got.UploadStatus, got.FailureReason)
	}
}

func TestIngestSkipsTerminalStatuses(t *testing.T) {
	for _, status := range []string{models.UploadStatusSuccess, models.UploadStatusFailed} {
		files := newMemFileStore()
		vectors := vectorstore.NewMemoryStore()
		embedder := &stubEmbedder{}

		file := seedFile(t, files, status)
		svc := NewIngestionService(testIngestConfig(), files, vectors, embedder).
			WithExtractor(stubExtractor{pages: []string{"x"}})

		if err := svc.Ingest(context.Background(), file.ID, "free"); err != nil {
			t.Fatalf("ingest(%s): %v", status, err)
		}
		got, _ := files.GetByID(context.Background(), file.ID)
		if got.UploadStatus != status {
			t.Fatalf("status changed from %q to %q", status, got.UploadStatus)
		}
		if embedder.calls != 0 {
			t.Fatalf("pipeline ran for terminal status %q", status)
		}
	}
}

func TestRegisterUploadIdempotent(t *testing.T) {
	files := newMemFileStore()
	svc := NewIngestionService(testIngestConfig(), files, vectorstore.NewMemoryStore(), &stubEmbedder{})

	req := models.UploadCompleteRequest{}
	req.Metadata.UserID = "user-1"
	req.File.Key = "uploads/key-1"
	req.File.Name = "report.pdf"
	req.File.URL = "https://files.example/report.pdf"

	first, created, err := svc.RegisterUpload(context.Background(), req)
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	if !created {
		t.Fatal("first register reported as duplicate")
	}
	if first.UploadStatus != models.UploadStatusPending {
		t.Fatalf("status = %q, want PENDING", first.UploadStatus)
	}

	second, created, err := svc.RegisterUpload(context.Background(), req)
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if created {
		t.Fatal("duplicate delivery created a second file")
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate returned file %q, want %q", second.ID, first.ID)
	}
}
