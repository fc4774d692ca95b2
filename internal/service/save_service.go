package service

import (
	"context"

	"knot/internal/models"
	"knot/internal/repository"
)

type SaveService struct {
	saves repository.SaveRepository
	posts repository.PostRepository
}

func NewSaveService(saves repository.SaveRepository, posts repository.PostRepository) *SaveService {
	return &SaveService{saves: saves, posts: posts}
}

// SavePost bookmarks a post for the user.
func (s *SaveService) SavePost(ctx context.Context, userID, postID string) (*models.Save, error) {
	if postID == "" {
		return nil, models.NewValidationError("post_id is required")
	}
	if _, err := s.posts.GetByID(ctx, postID, ""); err != nil {
		return nil, err
	}

	save := &models.Save{UserID: userID, PostID: postID}
	if err := s.saves.Create(ctx, save); err != nil {
		return nil, err
	}
	return save, nil
}

// DeleteSavedPost removes a bookmark owned by the user.
func (s *SaveService) DeleteSavedPost(ctx context.Context, userID, saveID string) (*models.Save, error) {
	if saveID == "" {
		return nil, models.NewValidationError("save id is required")
	}
	save, err := s.saves.GetByID(ctx, saveID)
	if err != nil {
		return nil, err
	}
	if save.UserID != userID {
		return nil, models.NewForbiddenError("You can only remove your own saved posts")
	}
	if err := s.saves.Delete(ctx, saveID); err != nil {
		return nil, err
	}
	return save, nil
}

func (s *SaveService) ListSaved(ctx context.Context, userID string, limit, offset int) ([]*models.Save, error) {
	limit, offset = Page(limit, offset)
	return s.saves.ListByUser(ctx, userID, limit, offset)
}
