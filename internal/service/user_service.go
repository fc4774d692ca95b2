package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"knot/internal/models"
	"knot/internal/repository"
	"knot/internal/validation"
)

const maxBioLen = 500

type UserService struct {
	users repository.UserRepository
	files FileStore
}

type UpdateProfileInput struct {
	UserID   string
	Name     string
	Username string
	Bio      string
	File     *UploadInput
}

func NewUserService(users repository.UserRepository, files FileStore) *UserService {
	return &UserService{users: users, files: files}
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, models.NewValidationError("user id is required")
	}
	return s.users.GetByID(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	limit, offset = Page(limit, offset)
	return s.users.List(ctx, limit, offset)
}

func (s *UserService) SearchUsers(ctx context.Context, query string, limit, offset int) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListUsers(ctx, limit, offset)
	}
	limit, offset = Page(limit, offset)
	return s.users.Search(ctx, query, limit, offset)
}

// UpdateProfile applies the non-empty fields. A new avatar replaces the old
// one, which is discarded once the profile is saved.
func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		if err := validation.ValidateName(name); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Name = name
	}
	if username := strings.TrimSpace(in.Username); username != "" {
		if err := validation.ValidateUsername(username); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Username = username
	}
	if in.Bio != "" {
		if utf8.RuneCountInString(in.Bio) > maxBioLen {
			return nil, models.NewValidationError("Bio too long (max 500 characters)")
		}
		user.Bio = in.Bio
	}

	oldImageID := user.ImageID
	var newFile *models.File
	if in.File != nil && len(in.File.Content) > 0 {
		upload := *in.File
		upload.OwnerID = user.ID
		newFile, err = s.files.UploadFile(ctx, upload)
		if err != nil {
			return nil, err
		}
		imageURL, err := s.files.PreviewURL(ctx, newFile.ID)
		if err != nil {
			s.files.DiscardFile(ctx, newFile.ID, "profile_preview")
			return nil, err
		}
		user.ImageURL = imageURL
		user.ImageID = newFile.ID
	}

	if err := s.users.Update(ctx, user); err != nil {
		if newFile != nil {
			s.files.DiscardFile(ctx, newFile.ID, "profile_document")
		}
		return nil, err
	}
	if newFile != nil && oldImageID != "" {
		s.files.DiscardFile(ctx, oldImageID, "profile_replaced")
	}

	return user, nil
}
