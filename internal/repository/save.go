package repository

import (
	"context"

	"knot/internal/cache"
	"knot/internal/models"

	"gorm.io/gorm"
)

// SaveRepository defines persistence operations for saved posts.
type SaveRepository interface {
	Create(ctx context.Context, save *models.Save) error
	GetByID(ctx context.Context, id string) (*models.Save, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Save, error)
}

type saveRepository struct {
	db *gorm.DB
}

// NewSaveRepository returns a new SaveRepository implementation.
func NewSaveRepository(db *gorm.DB) SaveRepository {
	return &saveRepository{db: db}
}

func (r *saveRepository) Create(ctx context.Context, save *models.Save) error {
	if err := r.db.WithContext(ctx).Create(save).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Post is already saved")
		}
		return models.NewInternalError(err)
	}
	cache.InvalidateRecentPosts(ctx)
	return nil
}

func (r *saveRepository) GetByID(ctx context.Context, id string) (*models.Save, error) {
	var save models.Save
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&save).Error; err != nil {
		return nil, lookupError(err, "Save", id)
	}
	return &save, nil
}

func (r *saveRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Save{})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Save", id)
	}
	cache.InvalidateRecentPosts(ctx)
	return nil
}

func (r *saveRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Save, error) {
	var saves []*models.Save
	err := r.db.WithContext(ctx).
		Preload("Post").
		Preload("Post.Creator").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&saves).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return saves, nil
}
