// Package vectorstore provides namespace-scoped storage and similarity
// search for embedded passages. A namespace is one file's identity; its
// passages live and die with the file.
package vectorstore

import (
	"context"
	"math"
)

// Passage is one indexed unit of source text (one PDF page).
type Passage struct {
	Page   int       `bson:"page" json:"page"`
	Text   string    `bson:"text" json:"text"`
	Vector []float32 `bson:"vector" json:"-"`
	Score  float64   `bson:"-" json:"score,omitempty"`
}

type Store interface {
	// Upsert replaces the namespace contents with the given passages.
	Upsert(ctx context.Context, namespace string, passages []Passage) error
	// SimilaritySearch returns the k passages nearest to vector by
	// cosine similarity, best first. No minimum-similarity threshold:
	// low-relevance passages still rank.
	SimilaritySearch(ctx context.Context, namespace string, vector []float32, k int) ([]Passage, error)
	// DeleteNamespace removes every passage in the namespace.
	DeleteNamespace(ctx context.Context, namespace string) error
}

// CosineSimilarity of two vectors; 0 for mismatched or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rankTopK sorts passages by score descending and truncates to k.
// Insertion sort is fine at quota-bounded namespace sizes.
func rankTopK(passages []Passage, k int) []Passage {
	for i := 1; i < len(passages); i++ {
		for j := i; j > 0 && passages[j].Score > passages[j-1].Score; j-- {
			passages[j], passages[j-1] = passages[j-1], passages[j]
		}
	}
	if k > 0 && len(passages) > k {
		passages = passages[:k]
	}
	return passages
}
