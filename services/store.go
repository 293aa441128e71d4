package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pdf-chat-saas/models"
)

var (
	ErrFileNotFound  = errors.New("file not found")
	ErrFileNotReady  = errors.New("file is not ready for chat")
	ErrDuplicateFile = errors.New("file already ingested for this storage key")
)

// FileStore persists File records. Status writes happen only through
// SetStatus so the PENDING -> PROCESSING -> SUCCESS/FAILED lifecycle
// stays in one place.
type FileStore interface {
	Create(ctx context.Context, file models.File) error
	GetByID(ctx context.Context, id string) (models.File, error)
	GetOwned(ctx context.Context, id, userID string) (models.File, error)
	FindByStorageKey(ctx context.Context, key string) (models.File, error)
	ListByUser(ctx context.Context, userID string) ([]models.File, error)
	SetStatus(ctx context.Context, id, status, reason string, pageCount int) error
	ListByStatus(ctx context.Context, status string) ([]models.File, error)
	Delete(ctx context.Context, id string) error
}

// MessageStore is the append-only conversation log.
type MessageStore interface {
	Append(ctx context.Context, msg models.Message) (models.Message, error)
	// List returns messages for a file newest-first. cursor is the
	// created_at of the last message from the previous page ("" for the
	// first page). nextCursor is empty once exhausted.
	List(ctx context.Context, fileID, cursor string, limit int) ([]models.Message, string, error)
	DeleteByFile(ctx context.Context, fileID string) error
}

type MongoFileStore struct {
	collection *mongo.Collection
}

func NewMongoFileStore(db *mongo.Database) *MongoFileStore {
	return &MongoFileStore{collection: db.Collection("files")}
}

func (s *MongoFileStore) Create(ctx context.Context, file models.File) error {
	_, err := s.collection.InsertOne(ctx, file)
	if mongo.IsDuplicateKeyError(err) {
		// Unique index on storage_key: a concurrent webhook delivery for
		// the same upload lost the race. Treated as the no-op path.
		return ErrDuplicateFile
	}
	return err
}

func (s *MongoFileStore) GetByID(ctx context.Context, id string) (models.File, error) {
	var file models.File
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&file)
	if err == mongo.ErrNoDocuments {
		return models.File{}, ErrFileNotFound
	}
	return file, err
}

func (s *MongoFileStore) GetOwned(ctx context.Context, id, userID string) (models.File, error) {
	var file models.File
	err := s.collection.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&file)
	if err == mongo.ErrNoDocuments {
		// Not-owned is indistinguishable from missing on purpose.
		return models.File{}, ErrFileNotFound
	}
	return file, err
}

func (s *MongoFileStore) FindByStorageKey(ctx context.Context, key string) (models.File, error) {
	var file models.File
	err := s.collection.FindOne(ctx, bson.M{"storage_key": key}).Decode(&file)
	if err == mongo.ErrNoDocuments {
		return models.File{}, ErrFileNotFound
	}
	return file, err
}

func (s *MongoFileStore) ListByUser(ctx context.Context, userID string) ([]models.File, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var files []models.File
	if err := cursor.All(ctx, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (s *MongoFileStore) SetStatus(ctx context.Context, id, status, reason string, pageCount int) error {
	update := bson.M{
		"upload_status": status,
		"updated_at":    time.Now(),
	}
	if reason != "" {
		update["failure_reason"] = reason
	}
	if pageCount > 0 {
		update["page_count"] = pageCount
	}

	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (s *MongoFileStore) ListByStatus(ctx context.Context, status string) ([]models.File, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"upload_status": status})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var files []models.File
	if err := cursor.All(ctx, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (s *MongoFileStore) Delete(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrFileNotFound
	}
	return nil
}

type MongoMessageStore struct {
	collection *mongo.Collection
}

func NewMongoMessageStore(db *mongo.Database) *MongoMessageStore {
	return &MongoMessageStore{collection: db.Collection("messages")}
}

func (s *MongoMessageStore) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if _, err := s.collection.InsertOne(ctx, msg); err != nil {
		return models.Message{}, fmt.Errorf("failed to append message: %w", err)
	}
	return msg, nil
}

func (s *MongoMessageStore) List(ctx context.Context, fileID, cursor string, limit int) ([]models.Message, string, error) {
	filter := bson.M{"file_id": fileID}
	if cursor != "" {
		before, lastID, err := decodeMessageCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		// Timestamps are millisecond precision in BSON, so a page
		// boundary can fall inside a group of equal timestamps. The id
		// tie-break keeps those messages from being skipped.
		filter["$or"] = []bson.M{
			{"created_at": bson.M{"$lt": before}},
			{"created_at": before, "_id": bson.M{"$lt": lastID}},
		}
	}

	findCursor, err := s.collection.Find(ctx, filter,
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
			SetLimit(int64(limit)))
	if err != nil {
		return nil, "", err
	}
	defer findCursor.Close(ctx)

	var messages []models.Message
	if err := findCursor.All(ctx, &messages); err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(messages) == limit && limit > 0 {
		nextCursor = encodeMessageCursor(messages[len(messages)-1])
	}
	return messages, nextCursor, nil
}

// encodeMessageCursor captures the (created_at, _id) position of the
// last message on a page.
func encodeMessageCursor(msg models.Message) string {
	return msg.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + msg.ID
}

func decodeMessageCursor(cursor string) (time.Time, string, error) {
	ts, id, ok := strings.Cut(cursor, "|")
	if !ok || id == "" {
		return time.Time{}, "", fmt.Errorf("invalid cursor")
	}
	before, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor: %w", err)
	}
	return before, id, nil
}

func (s *MongoMessageStore) DeleteByFile(ctx context.Context, fileID string) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{"file_id": fileID})
	return err
}
