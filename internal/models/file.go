package models

import (
	"time"

	"gorm.io/gorm"
)

// File is the metadata row for one object in the bucket.
type File struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Bucket    string    `gorm:"not null" json:"bucket"`
	ObjectKey string    `gorm:"not null;uniqueIndex" json:"object_key"`
	Name      string    `json:"name"`
	MimeType  string    `gorm:"not null" json:"mime_type"`
	SizeBytes int64     `gorm:"not null" json:"size_bytes"`
	Signature string    `gorm:"size:64" json:"signature"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	OwnerID   string    `gorm:"size:36;index" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (f *File) BeforeCreate(_ *gorm.DB) error {
	assignID(&f.ID)
	return nil
}

// FileDeletion is an outbox row for an object whose compensating delete failed.
type FileDeletion struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	FileID        string     `gorm:"size:36;not null;index" json:"file_id"`
	ObjectKey     string     `gorm:"not null" json:"object_key"`
	Reason        string     `json:"reason"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt time.Time  `gorm:"not null;index" json:"next_attempt_at"`
	LastError     string     `json:"last_error"`
	DeadAt        *time.Time `gorm:"index" json:"dead_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
