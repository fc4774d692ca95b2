package repository

import (
	"context"

	"knot/internal/models"

	"gorm.io/gorm"
)

// FileRepository defines persistence operations for bucket object metadata.
type FileRepository interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id string) (*models.File, error)
	Delete(ctx context.Context, id string) error
}

type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository returns a new FileRepository implementation.
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, file *models.File) error {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("File already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *fileRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	var file models.File
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		return nil, lookupError(err, "File", id)
	}
	return &file, nil
}

// Delete removes the metadata row. A missing row is not an error.
func (r *fileRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.File{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
