package services

import (
	"context"
	"testing"
	"time"

	"pdf-chat-saas/models"
)

func TestMessageCursorRoundTrip(t *testing.T) {
	msg := models.Message{
		ID:        "msg-42",
		CreatedAt: time.Date(2026, 8, 30, 12, 0, 0, 123000000, time.UTC),
	}

	cursor := encodeMessageCursor(msg)
	before, id, err := decodeMessageCursor(cursor)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !before.Equal(msg.CreatedAt) {
		t.Fatalf("timestamp = %v, want %v", before, msg.CreatedAt)
	}
	if id != "msg-42" {
		t.Fatalf("id = %q", id)
	}
}

func TestMessageCursorRejectsMalformed(t *testing.T) {
	for _, cursor := range []string{"no-separator", "not-a-time|id", "2026-08-30T12:00:00Z|"} {
		if _, _, err := decodeMessageCursor(cursor); err == nil {
			t.Fatalf("cursor %q accepted", cursor)
		}
	}
}

// A user/assistant pair persisted in the same millisecond shares a
// timestamp; pagination across that boundary must not drop either one.
func TestMessageListTiedTimestampsNotSkipped(t *testing.T) {
	store := newMemMessageStore()
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ids := []string{"m1", "m2", "m3", "m4"}
	for _, id := range ids {
		store.Append(context.Background(), models.Message{
			ID:        id,
			FileID:    "file-1",
			Text:      id,
			CreatedAt: at,
		})
	}

	seen := map[string]int{}
	cursor := ""
	for pages := 0; pages < 10; pages++ {
		page, next, err := store.List(context.Background(), "file-1", cursor, 1)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, m := range page {
			seen[m.ID]++
		}
		if next == "" {
			break
		}
		cursor = next
	}

	for _, id := range ids {
		if seen[id] != 1 {
			t.Fatalf("message %q seen %d times across pages: %v", id, seen[id], seen)
		}
	}
}

func TestMessageListPageOrder(t *testing.T) {
	store := newMemMessageStore()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store.Append(context.Background(), models.Message{ID: "old", FileID: "f", CreatedAt: base})
	store.Append(context.Background(), models.Message{ID: "new", FileID: "f", CreatedAt: base.Add(time.Second)})

	page, next, err := store.List(context.Background(), "f", "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != "new" || page[1].ID != "old" {
		t.Fatalf("page = %+v, want newest first", page)
	}
	if next != "" {
		t.Fatalf("next = %q for short page", next)
	}
}
