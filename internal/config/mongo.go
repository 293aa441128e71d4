package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	if err := createIndexes(client, cfg.DBName); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Files collection. The unique index on storage_key backs the
	// ingest-once-per-upload guarantee: a second webhook delivery for
	// the same key fails the insert instead of racing the lookup.
	filesCollection := db.Collection("files")
	fileIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "storage_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "upload_status", Value: 1}},
		},
	}
	_, err := filesCollection.Indexes().CreateMany(context.Background(), fileIndexes)
	if err != nil {
		return err
	}

	// Messages collection, queried newest-first per file.
	messagesCollection := db.Collection("messages")
	messageIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "file_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	}
	_, err = messagesCollection.Indexes().CreateMany(context.Background(), messageIndexes)
	if err != nil {
		return err
	}

	// Passages collection (vector store backing).
	passagesCollection := db.Collection("passages")
	passageIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "namespace", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "namespace", Value: 1}, {Key: "page", Value: 1}},
		},
	}
	_, err = passagesCollection.Indexes().CreateMany(context.Background(), passageIndexes)
	if err != nil {
		return err
	}

	return nil
}
