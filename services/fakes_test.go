package services

import (
	"context"
	"io"
	"sort"
	"sync"

	"pdf-chat-saas/internal/ai"
	"pdf-chat-saas/models"
)

// memFileStore is an in-memory FileStore for pipeline tests.
type memFileStore struct {
	mu    sync.Mutex
	files map[string]models.File
}

func newMemFileStore() *memFileStore {
	return &memFileStore{files: map[string]models.File{}}
}

func (s *memFileStore) Create(_ context.Context, file models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.StorageKey == file.StorageKey {
			return ErrDuplicateFile
		}
	}
	s.files[file.ID] = file
	return nil
}

func (s *memFileStore) GetByID(_ context.Context, id string) (models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return models.File{}, ErrFileNotFound
	}
	return f, nil
}

func (s *memFileStore) GetOwned(_ context.Context, id, userID string) (models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok || f.UserID != userID {
		return models.File{}, ErrFileNotFound
	}
	return f, nil
}

func (s *memFileStore) FindByStorageKey(_ context.Context, key string) (models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.StorageKey == key {
			return f, nil
		}
	}
	return models.File{}, ErrFileNotFound
}

func (s *memFileStore) ListByUser(_ context.Context, userID string) ([]models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.File
	for _, f := range s.files {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *memFileStore) SetStatus(_ context.Context, id, status, reason string, pageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return ErrFileNotFound
	}
	f.UploadStatus = status
	f.FailureReason = reason
	if pageCount > 0 {
		f.PageCount = pageCount
	}
	s.files[id] = f
	return nil
}

func (s *memFileStore) ListByStatus(_ context.Context, status string) ([]models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.File
	for _, f := range s.files {
		if f.UploadStatus == status {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *memFileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; !ok {
		return ErrFileNotFound
	}
	delete(s.files, id)
	return nil
}

// memMessageStore is an in-memory MessageStore with the same
// newest-first cursor semantics as the Mongo implementation.
type memMessageStore struct {
	mu       sync.Mutex
	messages []models.Message

	appendErr error // injected fault
}

func newMemMessageStore() *memMessageStore {
	return &memMessageStore{}
}

func (s *memMessageStore) Append(_ context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return models.Message{}, s.appendErr
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memMessageStore) List(_ context.Context, fileID, cursor string, limit int) ([]models.Message, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []models.Message
	for _, m := range s.messages {
		if m.FileID == fileID {
			all = append(all, m)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	if cursor != "" {
		before, lastID, err := decodeMessageCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		var after []models.Message
		for _, m := range all {
			if m.CreatedAt.Before(before) || (m.CreatedAt.Equal(before) && m.ID < lastID) {
				after = append(after, m)
			}
		}
		all = after
	}

	end := limit
	if end > len(all) {
		end = len(all)
	}
	page := all[:end]
	next := ""
	if len(page) == limit && limit > 0 {
		next = encodeMessageCursor(page[len(page)-1])
	}
	return page, next, nil
}

func (s *memMessageStore) DeleteByFile(_ context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.FileID != fileID {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	return nil
}

func (s *memMessageStore) byRole(fileID string, isUser bool) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.FileID == fileID && m.IsUserMessage == isUser {
			out = append(out, m)
		}
	}
	return out
}

// stubEmbedder returns a fixed-dimension vector derived from the text
// length so distinct inputs get distinct directions.
type stubEmbedder struct {
	err   error
	calls int
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

// stubExtractor returns preset pages instead of parsing PDF bytes.
type stubExtractor struct {
	pages []string
	err   error
}

func (e stubExtractor) ExtractPages(_ []byte) ([]string, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.pages, nil
}

// scriptedStream replays tokens, then an optional terminal error, then
// io.EOF.
type scriptedStream struct {
	tokens []string
	err    error
	pos    int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.pos < len(s.tokens) {
		tok := s.tokens[s.pos]
		s.pos++
		return tok, nil
	}
	if s.err != nil {
		err := s.err
		s.err = nil
		return "", err
	}
	return "", io.EOF
}

// stubStreamer records the prompts it was asked to complete.
type stubStreamer struct {
	tokens    []string
	streamErr error // mid-stream fault after all tokens
	startErr  error // StreamChat itself fails

	lastSystem string
	lastUser   string
}

func (s *stubStreamer) StreamChat(_ context.Context, system, user string) (ai.TokenStream, error) {
	s.lastSystem = system
	s.lastUser = user
	if s.startErr != nil {
		return nil, s.startErr
	}
	return &scriptedStream{tokens: s.tokens, err: s.streamErr}, nil
}

// blockingStreamer yields its tokens, then blocks until the request
// context expires and surfaces the context error.
type blockingStreamer struct {
	tokens []string
}

func (s *blockingStreamer) StreamChat(ctx context.Context, _, _ string) (ai.TokenStream, error) {
	return &blockingStream{ctx: ctx, tokens: s.tokens}, nil
}

type blockingStream struct {
	ctx    context.Context
	tokens []string
	pos    int
}

func (s *blockingStream) Recv() (string, error) {
	if s.pos < len(s.tokens) {
		tok := s.tokens[s.pos]
		s.pos++
		return tok, nil
	}
	<-s.ctx.Done()
	return "", s.ctx.Err()
}

// collectSink buffers everything written to it.
type collectSink struct {
	buf     []byte
	flushes int
}

func (c *collectSink) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *collectSink) Flush() { c.flushes++ }

func (c *collectSink) String() string { return string(c.buf) }
