// Package cleanup retries object deletes that failed during request handling.
package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"knot/internal/cache"
	"knot/internal/config"
	"knot/internal/middleware"
	"knot/internal/models"
	"knot/internal/observability"
	"knot/internal/repository"
	"knot/internal/storage"
)

const (
	DefaultBatchSize   = 50
	DefaultMaxAttempts = 10

	baseBackoff = 30 * time.Second
	maxBackoff  = time.Hour
)

// Result summarises one sweep.
type Result struct {
	Claimed int `json:"claimed"`
	Deleted int `json:"deleted"`
	Retried int `json:"retried"`
	Dead    int `json:"dead"`
}

type Sweeper struct {
	deletions   repository.FileDeletionRepository
	files       repository.FileRepository
	bucket      storage.Bucket
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

func NewSweeper(deletions repository.FileDeletionRepository, files repository.FileRepository, bucket storage.Bucket, cfg *config.Config) *Sweeper {
	s := &Sweeper{
		deletions:   deletions,
		files:       files,
		bucket:      bucket,
		batchSize:   DefaultBatchSize,
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if cfg != nil {
		if cfg.CleanupBatchSize > 0 {
			s.batchSize = cfg.CleanupBatchSize
		}
		if cfg.CleanupMaxAttempts > 0 {
			s.maxAttempts = cfg.CleanupMaxAttempts
		}
	}
	return s
}

// Backoff returns the delay before retry number attempts+1.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 7 {
		return maxBackoff
	}
	return min(baseBackoff<<attempts, maxBackoff)
}

// RunOnce claims due rows and tries each delete again.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	now := s.now()

	rows, err := s.deletions.ClaimDue(ctx, now, s.batchSize, s.maxAttempts)
	if err != nil {
		return res, err
	}
	res.Claimed = len(rows)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.deleteOne(ctx, row); err != nil {
			attempts := row.Attempts + 1
			dead := attempts >= s.maxAttempts
			next := now.Add(Backoff(row.Attempts))
			if markErr := s.deletions.MarkFailed(ctx, row.ID, err.Error(), next, dead); markErr != nil {
				middleware.Logger.ErrorContext(ctx, "file deletion retry could not be recorded",
					slog.Uint64("deletion_id", uint64(row.ID)),
					slog.String("error", markErr.Error()),
				)
				continue
			}
			if dead {
				res.Dead++
				observability.FileDeletionsDead.Inc()
				middleware.Logger.ErrorContext(ctx, "file deletion dead-lettered",
					slog.String("file_id", row.FileID),
					slog.String("object_key", row.ObjectKey),
					slog.Int("attempts", attempts),
					slog.String("error", err.Error()),
				)
			} else {
				res.Retried++
				middleware.Logger.WarnContext(ctx, "file deletion failed, will retry",
					slog.String("file_id", row.FileID),
					slog.Time("next_attempt_at", next),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		if err := s.deletions.MarkDone(ctx, row.ID); err != nil {
			middleware.Logger.ErrorContext(ctx, "file deletion could not be completed",
				slog.Uint64("deletion_id", uint64(row.ID)),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Deleted++
		observability.ObserveCompensation(row.Reason, observability.ResultOK)
	}

	s.refreshGauge(ctx)
	if res.Claimed > 0 {
		middleware.Logger.InfoContext(ctx, "cleanup sweep finished",
			slog.Int("claimed", res.Claimed),
			slog.Int("deleted", res.Deleted),
			slog.Int("retried", res.Retried),
			slog.Int("dead", res.Dead),
		)
	}
	return res, nil
}

func (s *Sweeper) deleteOne(ctx context.Context, row models.FileDeletion) error {
	if err := s.bucket.Delete(ctx, row.ObjectKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return err
	}
	if row.FileID != "" {
		if err := s.files.Delete(ctx, row.FileID); err != nil {
			return err
		}
		cache.InvalidatePreviews(ctx, row.FileID)
	}
	return nil
}

func (s *Sweeper) refreshGauge(ctx context.Context) {
	pending, err := s.deletions.CountPending(ctx)
	if err != nil {
		return
	}
	observability.FileDeletionsPending.Set(float64(pending))
}

// Status reports the outbox size.
type Status struct {
	Pending int64 `json:"pending"`
	Dead    int64 `json:"dead"`
}

func (s *Sweeper) Status(ctx context.Context) (Status, error) {
	pending, err := s.deletions.CountPending(ctx)
	if err != nil {
		return Status{}, err
	}
	dead, err := s.deletions.CountDead(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Pending: pending, Dead: dead}, nil
}
