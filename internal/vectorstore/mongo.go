package vectorstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type passageDoc struct {
	Namespace string    `bson:"namespace"`
	Page      int       `bson:"page"`
	Text      string    `bson:"text"`
	Vector    []float32 `bson:"vector"`
}

// MongoStore keeps passages in a single collection keyed by namespace.
// Similarity ranking is brute-force cosine in process: the page quota
// caps a namespace at 25 passages, so a scan beats maintaining an ANN
// index.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection("passages")}
}

func (s *MongoStore) Upsert(ctx context.Context, namespace string, passages []Passage) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}

	// Replace-the-namespace semantics. Readers are gated on the file's
	// SUCCESS status, which flips only after this returns, so a partial
	// write is never externally observable.
	if _, err := s.collection.DeleteMany(ctx, bson.M{"namespace": namespace}); err != nil {
		return fmt.Errorf("failed to clear namespace: %w", err)
	}

	docs := make([]interface{}, 0, len(passages))
	for _, p := range passages {
		docs = append(docs, passageDoc{
			Namespace: namespace,
			Page:      p.Page,
			Text:      p.Text,
			Vector:    p.Vector,
		})
	}
	if len(docs) == 0 {
		return nil
	}

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert passages: %w", err)
	}
	return nil
}

func (s *MongoStore) SimilaritySearch(ctx context.Context, namespace string, vector []float32, k int) ([]Passage, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"namespace": namespace})
	if err != nil {
		return nil, fmt.Errorf("failed to query namespace: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []passageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode passages: %w", err)
	}

	passages := make([]Passage, 0, len(docs))
	for _, d := range docs {
		passages = append(passages, Passage{
			Page:   d.Page,
			Text:   d.Text,
			Vector: d.Vector,
			Score:  CosineSimilarity(vector, d.Vector),
		})
	}

	return rankTopK(passages, k), nil
}

func (s *MongoStore) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{"namespace": namespace})
	return err
}
