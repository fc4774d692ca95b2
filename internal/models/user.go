package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the public profile document bound to one Account.
type User struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	AccountID string         `gorm:"size:36;uniqueIndex;not null" json:"account_id"`
	Name      string         `gorm:"not null" json:"name"`
	Username  string         `gorm:"uniqueIndex;not null" json:"username"`
	Email     string         `gorm:"not null" json:"email"`
	ImageURL  string         `json:"image_url"`
	ImageID   string         `gorm:"size:36" json:"image_id,omitempty"`
	Bio       string         `json:"bio"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	assignID(&u.ID)
	return nil
}
