package models

import (
	"time"

	"gorm.io/gorm"
)

// Account holds login credentials. The public profile lives in User.
type Account struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Name         string    `gorm:"not null" json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (a *Account) BeforeCreate(_ *gorm.DB) error {
	assignID(&a.ID)
	return nil
}

// Session is a revocable login. Its ID doubles as the token's jti.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	AccountID string    `gorm:"size:36;not null;index" json:"account_id"`
	UserID    string    `gorm:"size:36;not null" json:"user_id"`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Session) BeforeCreate(_ *gorm.DB) error {
	assignID(&s.ID)
	return nil
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
