package models

import "time"

// Message is one entry in a file's conversation log. Append-only; the
// core never mutates or deletes a persisted message.
type Message struct {
	ID            string    `bson:"_id" json:"id"`
	FileID        string    `bson:"file_id" json:"file_id"`
	UserID        string    `bson:"user_id" json:"user_id"`
	Text          string    `bson:"text" json:"text"`
	IsUserMessage bool      `bson:"is_user_message" json:"is_user_message"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}

type SendMessageRequest struct {
	FileID  string `json:"fileId" binding:"required"`
	Message string `json:"message" binding:"required,min=1,max=2000"`
}

// MessagePage is one page of a file's history, newest first. NextCursor
// is empty when there are no older messages.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
}
