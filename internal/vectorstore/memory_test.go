package vectorstore

import (
	"context"
	"testing"
)

func TestMemoryStore_SimilaritySearchOrdering(t *testing.T) {
	store := NewMemoryStore()

	passages := []Passage{
		{Page: 1, Text: "about dogs", Vector: []float32{1, 0, 0}},
		{Page: 2, Text: "about cats", Vector: []float32{0, 1, 0}},
		{Page: 3, Text: "mostly dogs", Vector: []float32{0.9, 0.1, 0}},
	}
	if err := store.Upsert(context.Background(), "file-1", passages); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	results, err := store.SimilaritySearch(context.Background(), "file-1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Page != 1 {
		t.Errorf("expected page 1 first, got page %d", results[0].Page)
	}
	if results[1].Page != 3 {
		t.Errorf("expected page 3 second, got page %d", results[1].Page)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not ordered by score: %f < %f", results[0].Score, results[1].Score)
	}
}

func TestMemoryStore_NoThresholdIncludesLowSimilarity(t *testing.T) {
	store := NewMemoryStore()

	passages := []Passage{
		{Page: 1, Text: "orthogonal", Vector: []float32{0, 1}},
	}
	_ = store.Upsert(context.Background(), "file-1", passages)

	results, err := store.SimilaritySearch(context.Background(), "file-1", []float32{1, 0}, 4)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	// Zero similarity still ranks; there is no minimum threshold.
	if len(results) != 1 {
		t.Fatalf("expected low-similarity passage to be returned, got %d results", len(results))
	}
	if results[0].Score != 0 {
		t.Errorf("expected score 0, got %f", results[0].Score)
	}
}

func TestMemoryStore_NamespaceIsolation(t *testing.T) {
	store := NewMemoryStore()

	_ = store.Upsert(context.Background(), "file-a", []Passage{{Page: 1, Text: "a", Vector: []float32{1}}})
	_ = store.Upsert(context.Background(), "file-b", []Passage{{Page: 1, Text: "b", Vector: []float32{1}}})

	results, err := store.SimilaritySearch(context.Background(), "file-a", []float32{1}, 4)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].Text != "a" {
		t.Fatalf("namespace leak: %+v", results)
	}

	if err := store.DeleteNamespace(context.Background(), "file-a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if store.Count("file-a") != 0 {
		t.Errorf("expected empty namespace after delete")
	}
	if store.Count("file-b") != 1 {
		t.Errorf("delete removed the wrong namespace")
	}
}

func TestMemoryStore_UpsertReplacesNamespace(t *testing.T) {
	store := NewMemoryStore()

	_ = store.Upsert(context.Background(), "file-1", []Passage{
		{Page: 1, Text: "old", Vector: []float32{1}},
		{Page: 2, Text: "old", Vector: []float32{1}},
	})
	_ = store.Upsert(context.Background(), "file-1", []Passage{
		{Page: 1, Text: "new", Vector: []float32{1}},
	})

	if store.Count("file-1") != 1 {
		t.Fatalf("expected upsert to replace namespace, got %d passages", store.Count("file-1"))
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("identical vectors: expected ~1, got %f", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors: expected 0, got %f", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{1}); got != 0 {
		t.Errorf("mismatched dimensions: expected 0, got %f", got)
	}
	if got := CosineSimilarity(nil, nil); got != 0 {
		t.Errorf("empty vectors: expected 0, got %f", got)
	}
}
