package repository

import (
	"context"
	"time"

	"knot/internal/cache"
	"knot/internal/models"

	"gorm.io/gorm"
)

// SessionRepository defines persistence operations for login sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository returns a new SessionRepository implementation.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := cache.Aside(ctx, cache.SessionKey(id), &session, cache.SessionTTL, func() error {
		if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
			return lookupError(err, "Session", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete revokes the session. Deleting a missing session is not an error.
func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateSession(ctx, id)
	return nil
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.Session{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}
