package repository

import (
	"context"
	"errors"

	"knot/internal/cache"
	"knot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string, viewerID string) (*models.Post, error)
	ListRecent(ctx context.Context, limit, offset int, viewerID string) ([]*models.Post, error)
	ListByCreator(ctx context.Context, creatorID string, limit, offset int, viewerID string) ([]*models.Post, error)
	Search(ctx context.Context, query string, limit, offset int, viewerID string) ([]*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id string) error
	SetLikes(ctx context.Context, postID string, userIDs []string) error
	IsLiked(ctx context.Context, userID, postID string) (bool, error)
	Like(ctx context.Context, userID, postID string) error
	Unlike(ctx context.Context, userID, postID string) error
}

type postRepository struct {
	db    *gorm.DB
	users UserRepository
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db, users: NewUserRepository(db)}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateRecentPosts(ctx)
	return nil
}

// GetByID caches the post row alone. The creator comes from the user cache,
// which profile updates invalidate, and like/save state is computed per call.
func (r *postRepository) GetByID(ctx context.Context, id string, viewerID string) (*models.Post, error) {
	var post models.Post
	err := cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() error {
		if err := r.db.WithContext(ctx).Where("posts.id = ?", id).First(&post).Error; err != nil {
			return lookupError(err, "Post", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	creator, err := r.users.GetByID(ctx, post.CreatorID)
	switch {
	case err == nil:
		post.Creator = *creator
	case !models.IsNotFound(err):
		return nil, err
	}

	if err := r.enrich(ctx, []*models.Post{&post}, viewerID); err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) ListRecent(ctx context.Context, limit, offset int, viewerID string) ([]*models.Post, error) {
	return r.list(ctx, r.db.WithContext(ctx), limit, offset, viewerID)
}

func (r *postRepository) ListByCreator(ctx context.Context, creatorID string, limit, offset int, viewerID string) ([]*models.Post, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("posts.creator_id = ?", creatorID), limit, offset, viewerID)
}

func (r *postRepository) Search(ctx context.Context, query string, limit, offset int, viewerID string) ([]*models.Post, error) {
	like := likePattern(query)
	db := r.db.WithContext(ctx).Where(
		`LOWER(posts.caption) LIKE ? ESCAPE '\' OR LOWER(posts.location) LIKE ? ESCAPE '\' OR LOWER(CAST(posts.tags AS TEXT)) LIKE ? ESCAPE '\'`,
		like, like, like,
	)
	return r.list(ctx, db, limit, offset, viewerID)
}

func (r *postRepository) list(ctx context.Context, db *gorm.DB, limit, offset int, viewerID string) ([]*models.Post, error) {
	var posts []*models.Post
	err := db.
		Preload("Creator").
		Order("posts.created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := r.enrich(ctx, posts, viewerID); err != nil {
		return nil, err
	}
	return posts, nil
}

// Update writes the mutable columns only.
func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	res := r.db.WithContext(ctx).
		Model(post).
		Select("caption", "location", "tags", "image_url", "image_id").
		Updates(post)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", post.ID)
	}
	cache.InvalidatePost(ctx, post.ID)
	cache.InvalidateRecentPosts(ctx)
	return nil
}

// Delete soft-deletes the post and drops its likes and saves in one transaction.
func (r *postRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Save{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Post", id)
		}
		return nil
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return models.NewInternalError(err)
	}
	cache.InvalidatePost(ctx, id)
	cache.InvalidateRecentPosts(ctx)
	return nil
}

// SetLikes replaces the liked-by set of a post with userIDs.
func (r *postRepository) SetLikes(ctx context.Context, postID string, userIDs []string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return models.NewNotFoundError("Post", postID)
		}

		if len(userIDs) == 0 {
			return tx.Where("post_id = ?", postID).Delete(&models.Like{}).Error
		}

		var known []string
		if err := tx.Model(&models.User{}).Where("id IN ?", userIDs).Pluck("id", &known).Error; err != nil {
			return err
		}
		if len(known) != len(userIDs) {
			return models.NewValidationError("likes contains an unknown user id")
		}

		if err := tx.Where("post_id = ? AND user_id NOT IN ?", postID, userIDs).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		likes := make([]models.Like, 0, len(userIDs))
		for _, uid := range userIDs {
			likes = append(likes, models.Like{UserID: uid, PostID: postID})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&likes).Error
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return models.NewInternalError(err)
	}
	cache.InvalidateRecentPosts(ctx)
	return nil
}

func (r *postRepository) IsLiked(ctx context.Context, userID, postID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *postRepository) Like(ctx context.Context, userID, postID string) error {
	like := models.Like{UserID: userID, PostID: postID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateRecentPosts(ctx)
	return nil
}

func (r *postRepository) Unlike(ctx context.Context, userID, postID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Like{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateRecentPosts(ctx)
	return nil
}

type likeRow struct {
	PostID string
	UserID string
}

type countRow struct {
	PostID string
	Total  int
}

// enrich fills the computed like and save fields for a batch of posts.
func (r *postRepository) enrich(ctx context.Context, posts []*models.Post, viewerID string) error {
	if len(posts) == 0 {
		return nil
	}

	ids := make([]string, 0, len(posts))
	byID := make(map[string]*models.Post, len(posts))
	for _, p := range posts {
		p.Likes = []string{}
		p.LikesCount, p.SavesCount = 0, 0
		p.Liked, p.Saved = false, false
		ids = append(ids, p.ID)
		byID[p.ID] = p
	}

	var likes []likeRow
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Select("post_id, user_id").
		Where("post_id IN ?", ids).
		Order("created_at ASC").
		Scan(&likes).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	for _, l := range likes {
		p := byID[l.PostID]
		p.Likes = append(p.Likes, l.UserID)
		p.LikesCount++
		if viewerID != "" && l.UserID == viewerID {
			p.Liked = true
		}
	}

	var saves []countRow
	err = r.db.WithContext(ctx).Model(&models.Save{}).
		Select("post_id, COUNT(*) AS total").
		Where("post_id IN ?", ids).
		Group("post_id").
		Scan(&saves).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	for _, s := range saves {
		byID[s.PostID].SavesCount = s.Total
	}

	if viewerID == "" {
		return nil
	}
	var saved []string
	err = r.db.WithContext(ctx).Model(&models.Save{}).
		Where("user_id = ? AND post_id IN ?", viewerID, ids).
		Pluck("post_id", &saved).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	for _, id := range saved {
		byID[id].Saved = true
	}
	return nil
}
