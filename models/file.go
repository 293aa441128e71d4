package models

import "time"

// Upload status constants. A file is created PENDING, claimed by the
// ingestion worker as PROCESSING, and ends in SUCCESS or FAILED exactly
// once. The maintenance sweeper expires PENDING files whose task was
// lost.
const (
	UploadStatusPending    = "PENDING"
	UploadStatusProcessing = "PROCESSING"
	UploadStatusSuccess    = "SUCCESS"
	UploadStatusFailed     = "FAILED"
)

// File is an uploaded PDF. The ID doubles as the vector index namespace,
// so passages for a file live and die with it.
type File struct {
	ID            string    `bson:"_id" json:"id"`
	StorageKey    string    `bson:"storage_key" json:"storage_key"`
	Name          string    `bson:"name" json:"name"`
	URL           string    `bson:"url" json:"url"`
	UserID        string    `bson:"user_id" json:"user_id"`
	UploadStatus  string    `bson:"upload_status" json:"upload_status"`
	PageCount     int       `bson:"page_count,omitempty" json:"page_count,omitempty"`
	FailureReason string    `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// UploadCompleteRequest is the payload delivered by the upload service
// once a file has landed in object storage.
type UploadCompleteRequest struct {
	Metadata UploadMetadata `json:"metadata" binding:"required"`
	File     UploadedFile   `json:"file" binding:"required"`
}

type UploadMetadata struct {
	UserID       string `json:"userId" binding:"required"`
	IsSubscribed bool   `json:"isSubscribed"`
}

type UploadedFile struct {
	Key  string `json:"key" binding:"required"`
	Name string `json:"name" binding:"required"`
	URL  string `json:"url" binding:"required,url"`
}
