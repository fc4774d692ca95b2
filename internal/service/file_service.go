package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"knot/internal/cache"
	"knot/internal/config"
	"knot/internal/featureflags"
	"knot/internal/middleware"
	"knot/internal/models"
	"knot/internal/observability"
	"knot/internal/preview"
	"knot/internal/repository"
	"knot/internal/storage"

	"github.com/google/uuid"
)

const DefaultUploadMaxSizeMB = 10

// FileStore is the part of FileService the post and profile flows depend on.
type FileStore interface {
	UploadFile(ctx context.Context, in UploadInput) (*models.File, error)
	PreviewURL(ctx context.Context, fileID string) (string, error)
	DiscardFile(ctx context.Context, fileID, reason string)
}

type UploadInput struct {
	OwnerID     string
	Filename    string
	ContentType string
	Content     []byte
}

// FileService stores uploads in the bucket and serves previews of them.
type FileService struct {
	files      repository.FileRepository
	deletions  repository.FileDeletionRepository
	bucket     storage.Bucket
	flags      *featureflags.Manager
	baseURL    string
	maxBytes   int64
	defaults   preview.Options
	previewTTL time.Duration
}

func NewFileService(
	files repository.FileRepository,
	deletions repository.FileDeletionRepository,
	bucket storage.Bucket,
	flags *featureflags.Manager,
	cfg *config.Config,
) *FileService {
	maxMB := cfg.UploadMaxSizeMB
	if maxMB <= 0 {
		maxMB = DefaultUploadMaxSizeMB
	}
	ttl := time.Duration(cfg.PreviewCacheTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &FileService{
		files:     files,
		deletions: deletions,
		bucket:    bucket,
		flags:     flags,
		baseURL:   cfg.PublicBaseURL,
		maxBytes:  int64(maxMB) * 1024 * 1024,
		defaults: preview.Options{
			Width:   cfg.PreviewWidth,
			Height:  cfg.PreviewHeight,
			Gravity: cfg.PreviewGravity,
			Quality: cfg.PreviewQuality,
		},
		previewTTL: ttl,
	}
}

// ObjectKey is where the bytes of a file live in the bucket.
func ObjectKey(fileID string) string {
	return "files/" + fileID
}

// UploadFile validates an image, stores it and records its metadata.
func (s *FileService) UploadFile(ctx context.Context, in UploadInput) (*models.File, error) {
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxBytes/(1024*1024)))
	}

	detected := http.DetectContentType(in.Content)
	if !isAllowedImageMIME(detected) {
		return nil, models.NewValidationError("Invalid image type")
	}
	info, err := preview.Decode(in.Content)
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	mimeType := preview.MimeForFormat(info.Format)
	if mimeType != detected {
		return nil, models.NewValidationError("Image content type mismatch")
	}
	if err := info.CheckBounds(); err != nil {
		return nil, models.NewValidationError(fmt.Sprintf("Image too large (max %d px per side, %d megapixels)",
			preview.MaxSourceSide, preview.MaxSourcePixels/1_000_000))
	}

	sum := sha256.Sum256(in.Content)
	id := uuid.NewString()
	key := ObjectKey(id)

	if err := s.bucket.Put(ctx, key, bytes.NewReader(in.Content), int64(len(in.Content)), mimeType); err != nil {
		return nil, models.NewInternalError(fmt.Errorf("store object: %w", err))
	}

	file := &models.File{
		ID:        id,
		Bucket:    s.bucket.Name(),
		ObjectKey: key,
		Name:      in.Filename,
		MimeType:  mimeType,
		SizeBytes: int64(len(in.Content)),
		Signature: hex.EncodeToString(sum[:]),
		Width:     info.Width,
		Height:    info.Height,
		OwnerID:   in.OwnerID,
	}
	if err := s.files.Create(ctx, file); err != nil {
		s.discardObject(ctx, id, key, "upload_record")
		return nil, err
	}

	return file, nil
}

func (s *FileService) GetFile(ctx context.Context, id string) (*models.File, error) {
	if id == "" {
		return nil, models.NewValidationError("file id is required")
	}
	return s.files.GetByID(ctx, id)
}

// OpenFile returns a reader over the stored bytes. The caller closes it.
func (s *FileService) OpenFile(ctx context.Context, id string) (io.ReadCloser, *models.File, error) {
	file, err := s.GetFile(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.bucket.Get(ctx, file.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, models.NewNotFoundError("File object", id)
		}
		return nil, nil, models.NewInternalError(err)
	}
	return rc, file, nil
}

// GetFilePreview renders one variant of a stored image. Rendered variants are
// cached in Redis as "<content-type>\x00<bytes>".
func (s *FileService) GetFilePreview(ctx context.Context, id string, opts preview.Options, viewerID string) ([]byte, string, error) {
	if err := opts.Normalize(); err != nil {
		return nil, "", models.NewValidationError(err.Error())
	}
	if opts.Output == preview.FormatWebP && !s.flags.Enabled(featureflags.WebPPreviews, viewerID) {
		opts.Output = preview.FormatJPG
	}

	key := cache.PreviewKey(id, opts.Variant())
	if raw, err := cache.GetBytes(ctx, key); err == nil {
		if ct, body, ok := bytes.Cut(raw, []byte{0}); ok {
			return body, string(ct), nil
		}
	}

	rc, _, err := s.OpenFile(ctx, id)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = rc.Close() }()

	src, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", models.NewInternalError(err)
	}

	out, contentType, err := preview.Render(src, opts)
	if err != nil {
		if errors.Is(err, preview.ErrUnsupportedImage) {
			return nil, "", models.NewValidationError("File is not a previewable image")
		}
		if errors.Is(err, preview.ErrImageTooLarge) {
			return nil, "", models.NewValidationError("Image too large to preview")
		}
		return nil, "", models.NewInternalError(err)
	}

	value := make([]byte, 0, len(contentType)+1+len(out))
	value = append(value, contentType...)
	value = append(value, 0)
	value = append(value, out...)
	if err := cache.SetBytes(ctx, key, value, s.previewTTL); err != nil {
		middleware.Logger.WarnContext(ctx, "preview cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	return out, contentType, nil
}

// PreviewURL derives the default preview address for a stored file.
func (s *FileService) PreviewURL(ctx context.Context, fileID string) (string, error) {
	file, err := s.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if !isAllowedImageMIME(file.MimeType) {
		return "", models.NewValidationError("File is not a previewable image")
	}
	return s.previewURL(file.ID), nil
}

func (s *FileService) previewURL(fileID string) string {
	q := url.Values{}
	if s.defaults.Width > 0 {
		q.Set("width", strconv.Itoa(s.defaults.Width))
	}
	if s.defaults.Height > 0 {
		q.Set("height", strconv.Itoa(s.defaults.Height))
	}
	if s.defaults.Gravity != "" {
		q.Set("gravity", s.defaults.Gravity)
	}
	if s.defaults.Quality > 0 {
		q.Set("quality", strconv.Itoa(s.defaults.Quality))
	}
	u := fmt.Sprintf("%s/api/storage/files/%s/preview", s.baseURL, url.PathEscape(fileID))
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// DeleteFile removes the object, its metadata row and cached previews.
func (s *FileService) DeleteFile(ctx context.Context, id string) error {
	file, err := s.GetFile(ctx, id)
	if err != nil {
		return err
	}
	if err := s.bucket.Delete(ctx, file.ObjectKey); err != nil {
		return models.NewInternalError(fmt.Errorf("delete object: %w", err))
	}
	if err := s.files.Delete(ctx, file.ID); err != nil {
		return err
	}
	cache.InvalidatePreviews(ctx, file.ID)
	return nil
}

// DeleteOwnedFile deletes a file on behalf of its owner.
func (s *FileService) DeleteOwnedFile(ctx context.Context, userID, id string) error {
	file, err := s.GetFile(ctx, id)
	if err != nil {
		return err
	}
	if file.OwnerID != userID {
		return models.NewForbiddenError("You can only delete your own files")
	}
	return s.DeleteFile(ctx, id)
}

// DiscardFile is the compensating delete. A failed delete is queued for the
// cleanup sweeper instead of being returned.
func (s *FileService) DiscardFile(ctx context.Context, fileID, reason string) {
	if fileID == "" {
		return
	}
	err := s.DeleteFile(ctx, fileID)
	if err == nil || models.IsNotFound(err) {
		observability.ObserveCompensation(reason, observability.ResultOK)
		return
	}
	middleware.Logger.WarnContext(ctx, "compensating delete failed, queueing retry",
		slog.String("file_id", fileID),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	s.enqueue(ctx, fileID, ObjectKey(fileID), reason, err)
}

func (s *FileService) discardObject(ctx context.Context, fileID, key, reason string) {
	err := s.bucket.Delete(ctx, key)
	if err == nil {
		observability.ObserveCompensation(reason, observability.ResultOK)
		return
	}
	s.enqueue(ctx, fileID, key, reason, err)
}

func (s *FileService) enqueue(ctx context.Context, fileID, key, reason string, cause error) {
	row := &models.FileDeletion{
		FileID:    fileID,
		ObjectKey: key,
		Reason:    reason,
		LastError: cause.Error(),
	}
	if err := s.deletions.Enqueue(ctx, row); err != nil {
		observability.ObserveCompensation(reason, "lost")
		middleware.Logger.ErrorContext(ctx, "file deletion could not be queued",
			slog.String("file_id", fileID),
			slog.String("object_key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	observability.ObserveCompensation(reason, "queued")
	observability.FileDeletionsPending.Inc()
}

func isAllowedImageMIME(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}
