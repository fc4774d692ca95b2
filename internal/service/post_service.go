package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"knot/internal/cache"
	"knot/internal/middleware"
	"knot/internal/models"
	"knot/internal/observability"
	"knot/internal/repository"
	"knot/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

type PostService struct {
	posts repository.PostRepository
	users repository.UserRepository
	files FileStore
}

type CreatePostInput struct {
	CreatorID string
	Caption   string
	Location  string
	Tags      string
	File      *UploadInput
}

type UpdatePostInput struct {
	UserID   string
	PostID   string
	Caption  string
	Location string
	Tags     string
	File     *UploadInput
}

func NewPostService(posts repository.PostRepository, users repository.UserRepository, files FileStore) *PostService {
	return &PostService{posts: posts, users: users, files: files}
}

type postFields struct {
	caption  string
	location string
	tags     []string
}

func validatePostFields(caption, location, rawTags string) (postFields, error) {
	caption = strings.TrimSpace(caption)
	location = strings.TrimSpace(location)
	if err := validation.ValidateCaption(caption); err != nil {
		return postFields{}, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateLocation(location); err != nil {
		return postFields{}, models.NewValidationError(err.Error())
	}
	tags, err := validation.ParseTags(rawTags)
	if err != nil {
		return postFields{}, models.NewValidationError(err.Error())
	}
	return postFields{caption: caption, location: location, tags: tags}, nil
}

// CreatePost uploads the image and creates the post document. If any step
// after the upload fails, the uploaded file is discarded.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	span, ctx := observability.NewSpan(ctx, "post.create", attribute.String("user.id", in.CreatorID))
	defer span.End()

	var fields postFields
	err := step(ctx, "post.create.validate", func(context.Context) error {
		if in.CreatorID == "" {
			return models.NewUnauthorizedError("Authentication required")
		}
		if in.File == nil || len(in.File.Content) == 0 {
			return models.NewValidationError("An image file is required")
		}
		var err error
		fields, err = validatePostFields(in.Caption, in.Location, in.Tags)
		return err
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	var file *models.File
	err = step(ctx, "post.create.upload", func(ctx context.Context) error {
		upload := *in.File
		if upload.OwnerID == "" {
			upload.OwnerID = in.CreatorID
		}
		var err error
		file, err = s.files.UploadFile(ctx, upload)
		return err
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.AddAttributes(attribute.String("file.id", file.ID))

	var imageURL string
	err = step(ctx, "post.create.preview_url", func(ctx context.Context) error {
		var err error
		imageURL, err = s.files.PreviewURL(ctx, file.ID)
		return err
	})
	if err != nil {
		s.files.DiscardFile(ctx, file.ID, "post_create_preview")
		span.Event("compensated", attribute.String("file.id", file.ID), attribute.String("stage", "post_create_preview"))
		span.SetError(err)
		return nil, err
	}

	post := &models.Post{
		CreatorID: in.CreatorID,
		Caption:   fields.caption,
		ImageURL:  imageURL,
		ImageID:   file.ID,
		Location:  fields.location,
		Tags:      fields.tags,
	}
	err = step(ctx, "post.create.document", func(ctx context.Context) error {
		return s.posts.Create(ctx, post)
	})
	if err != nil {
		s.files.DiscardFile(ctx, file.ID, "post_create_document")
		span.Event("compensated", attribute.String("file.id", file.ID), attribute.String("stage", "post_create_document"))
		span.SetError(err)
		return nil, err
	}
	span.AddAttributes(attribute.String("post.id", post.ID))

	return s.reload(ctx, post, in.CreatorID), nil
}

// UpdatePost changes caption, location and tags, and optionally the image.
// A replaced image is discarded only after the document update succeeded.
func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	span, ctx := observability.NewSpan(ctx, "post.update",
		attribute.String("user.id", in.UserID),
		attribute.String("post.id", in.PostID),
	)
	defer span.End()

	post, err := s.ownedPost(ctx, in.UserID, in.PostID, "update")
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	fields, err := validatePostFields(in.Caption, in.Location, in.Tags)
	if err != nil {
		return nil, err
	}

	oldImageID := post.ImageID
	var newFile *models.File
	if in.File != nil && len(in.File.Content) > 0 {
		err = step(ctx, "post.update.upload", func(ctx context.Context) error {
			upload := *in.File
			if upload.OwnerID == "" {
				upload.OwnerID = in.UserID
			}
			var err error
			newFile, err = s.files.UploadFile(ctx, upload)
			return err
		})
		if err != nil {
			span.SetError(err)
			return nil, err
		}

		var imageURL string
		err = step(ctx, "post.update.preview_url", func(ctx context.Context) error {
			var err error
			imageURL, err = s.files.PreviewURL(ctx, newFile.ID)
			return err
		})
		if err != nil {
			s.files.DiscardFile(ctx, newFile.ID, "post_update_preview")
			span.Event("compensated", attribute.String("file.id", newFile.ID), attribute.String("stage", "post_update_preview"))
			span.SetError(err)
			return nil, err
		}
		post.ImageURL = imageURL
		post.ImageID = newFile.ID
	}

	post.Caption = fields.caption
	post.Location = fields.location
	post.Tags = fields.tags

	err = step(ctx, "post.update.document", func(ctx context.Context) error {
		return s.posts.Update(ctx, post)
	})
	if err != nil {
		if newFile != nil {
			s.files.DiscardFile(ctx, newFile.ID, "post_update_document")
			span.Event("compensated", attribute.String("file.id", newFile.ID), attribute.String("stage", "post_update_document"))
		}
		span.SetError(err)
		return nil, err
	}

	if newFile != nil && oldImageID != "" && oldImageID != newFile.ID {
		s.files.DiscardFile(ctx, oldImageID, "post_update_replaced")
	}

	return s.reload(ctx, post, in.UserID), nil
}

// DeletePost removes the post document, then its image.
func (s *PostService) DeletePost(ctx context.Context, userID, postID string) (*models.Post, error) {
	post, err := s.ownedPost(ctx, userID, postID, "delete")
	if err != nil {
		return nil, err
	}
	if err := s.posts.Delete(ctx, post.ID); err != nil {
		return nil, err
	}
	s.files.DiscardFile(ctx, post.ImageID, "post_delete")
	return post, nil
}

// GetRecentPosts lists posts newest first. The first anonymous page is cached.
func (s *PostService) GetRecentPosts(ctx context.Context, viewerID string, limit, offset int) ([]*models.Post, error) {
	limit, offset = Page(limit, offset)
	if viewerID != "" || offset != 0 {
		return s.posts.ListRecent(ctx, limit, offset, viewerID)
	}

	var posts []*models.Post
	err := cache.Aside(ctx, cache.RecentPostsKey(ctx, limit, offset), &posts, cache.RecentPostsTTL, func() error {
		var err error
		posts, err = s.posts.ListRecent(ctx, limit, offset, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *PostService) GetPostByID(ctx context.Context, id, viewerID string) (*models.Post, error) {
	if id == "" {
		return nil, models.NewValidationError("post id is required")
	}
	return s.posts.GetByID(ctx, id, viewerID)
}

func (s *PostService) GetUserPosts(ctx context.Context, creatorID, viewerID string, limit, offset int) ([]*models.Post, error) {
	if _, err := s.users.GetByID(ctx, creatorID); err != nil {
		return nil, err
	}
	limit, offset = Page(limit, offset)
	return s.posts.ListByCreator(ctx, creatorID, limit, offset, viewerID)
}

func (s *PostService) SearchPosts(ctx context.Context, query, viewerID string, limit, offset int) ([]*models.Post, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Search query is required")
	}
	limit, offset = Page(limit, offset)
	return s.posts.Search(ctx, query, limit, offset, viewerID)
}

// LikePost replaces the liked-by set of a post. Only the creator may
// change other users' entries.
func (s *PostService) LikePost(ctx context.Context, viewerID, postID string, likes []string) (*models.Post, error) {
	if postID == "" {
		return nil, models.NewValidationError("post id is required")
	}
	ids := make([]string, 0, len(likes))
	seen := make(map[string]struct{}, len(likes))
	for _, id := range likes {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, models.NewValidationError("likes must not contain empty ids")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	current, err := s.posts.GetByID(ctx, postID, viewerID)
	if err != nil {
		return nil, err
	}
	if current.CreatorID != viewerID && !onlyChanges(current.Likes, seen, viewerID) {
		return nil, models.NewForbiddenError("You can only change your own like on other users' posts")
	}

	if err := s.posts.SetLikes(ctx, postID, ids); err != nil {
		return nil, err
	}
	return s.posts.GetByID(ctx, postID, viewerID)
}

// onlyChanges reports whether next differs from current by at most userID.
func onlyChanges(current []string, next map[string]struct{}, userID string) bool {
	kept := 0
	for _, id := range current {
		if _, ok := next[id]; ok {
			kept++
			continue
		}
		if id != userID {
			return false
		}
	}
	added := len(next) - kept
	if added == 0 {
		return true
	}
	_, self := next[userID]
	return added == 1 && self && !slices.Contains(current, userID)
}

// ToggleLike flips the caller's like on a post.
func (s *PostService) ToggleLike(ctx context.Context, userID, postID string) (*models.Post, error) {
	if _, err := s.GetPostByID(ctx, postID, ""); err != nil {
		return nil, err
	}
	liked, err := s.posts.IsLiked(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if liked {
		err = s.posts.Unlike(ctx, userID, postID)
	} else {
		err = s.posts.Like(ctx, userID, postID)
	}
	if err != nil {
		return nil, err
	}
	return s.posts.GetByID(ctx, postID, userID)
}

func (s *PostService) ownedPost(ctx context.Context, userID, postID, action string) (*models.Post, error) {
	if postID == "" {
		return nil, models.NewValidationError("post id is required")
	}
	post, err := s.posts.GetByID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if post.CreatorID != userID {
		return nil, models.NewForbiddenError("You can only " + action + " your own posts")
	}
	return post, nil
}

// reload fetches the post with its creator. The write already happened, so a
// failed read falls back to the in-memory document.
func (s *PostService) reload(ctx context.Context, post *models.Post, viewerID string) *models.Post {
	fresh, err := s.posts.GetByID(ctx, post.ID, viewerID)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "post reload failed", slog.String("post_id", post.ID), slog.String("error", err.Error()))
		return post
	}
	return fresh
}
