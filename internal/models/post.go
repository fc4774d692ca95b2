package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Post is a feed entry with one image.
type Post struct {
	ID        string                      `gorm:"primaryKey;size:36" json:"id"`
	CreatorID string                      `gorm:"size:36;not null;index" json:"creator_id"`
	Creator   User                        `gorm:"foreignKey:CreatorID" json:"creator"`
	Caption   string                      `json:"caption"`
	ImageURL  string                      `gorm:"not null" json:"image_url"`
	ImageID   string                      `gorm:"size:36;not null" json:"image_id"`
	Location  string                      `json:"location"`
	Tags      datatypes.JSONSlice[string] `json:"tags"`
	// Likes holds the ids of users who liked the post (computed)
	Likes []string `gorm:"-" json:"likes"`
	// LikesCount is not persisted; computed at query time
	LikesCount int `gorm:"-" json:"likes_count"`
	// SavesCount is not persisted; computed at query time
	SavesCount int `gorm:"-" json:"saves_count"`
	// Liked and Saved are relative to the requesting user (computed)
	Liked     bool           `gorm:"-" json:"liked"`
	Saved     bool           `gorm:"-" json:"saved"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Post) BeforeCreate(_ *gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// Like represents a user's like on a post.
// The combination of UserID and PostID must be unique.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_like_user_post" json:"user_id"`
	PostID    string    `gorm:"size:36;not null;uniqueIndex:idx_like_user_post;index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Save is a bookmark of a post by a user.
type Save struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_save_user_post" json:"user_id"`
	PostID    string    `gorm:"size:36;not null;uniqueIndex:idx_save_user_post;index" json:"post_id"`
	Post      *Post     `gorm:"foreignKey:PostID" json:"post,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Save) BeforeCreate(_ *gorm.DB) error {
	assignID(&s.ID)
	return nil
}
