package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is an uploaded file whose text has been chunked into the vector index.
type Document struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	Filename   string    `json:"filename" db:"filename"`
	FilePath   string    `json:"-" db:"file_path"`
	SizeBytes  int64     `json:"size_bytes" db:"size_bytes"`
	ChunkCount int       `json:"chunk_count" db:"chunk_count"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// TableName returns the table name for the Document model
func (Document) TableName() string {
	return "documents"
}

// NewDocument creates a new Document instance
func NewDocument(userID uuid.UUID, filename, filePath string, size int64) *Document {
	return &Document{
		ID:         uuid.New(),
		UserID:     userID,
		Filename:   filename,
		FilePath:   filePath,
		SizeBytes:  size,
		UploadedAt: time.Now().UTC(),
	}
}

// Stats summarises system usage for administrators
type Stats struct {
	Users         int               `json:"users"`
	Documents     int               `json:"documents"`
	Chats         int               `json:"chats"`
	Messages      int               `json:"messages"`
	ChunksPerUser map[uuid.UUID]int `json:"chunks_per_user,omitempty"`
}
