package repository

import (
	"context"
	"time"

	"knot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// claimLease is how far ClaimDue pushes next_attempt_at so a concurrent
// sweeper does not pick the same row while the first one works on it.
const claimLease = 5 * time.Minute

// FileDeletionRepository is the outbox of object deletes that failed inline.
type FileDeletionRepository interface {
	Enqueue(ctx context.Context, d *models.FileDeletion) error
	ClaimDue(ctx context.Context, now time.Time, limit, maxAttempts int) ([]models.FileDeletion, error)
	MarkDone(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, errMsg string, nextAttempt time.Time, dead bool) error
	CountPending(ctx context.Context) (int64, error)
	CountDead(ctx context.Context) (int64, error)
}

type fileDeletionRepository struct {
	db *gorm.DB
}

// NewFileDeletionRepository returns a new FileDeletionRepository implementation.
func NewFileDeletionRepository(db *gorm.DB) FileDeletionRepository {
	return &fileDeletionRepository{db: db}
}

func (r *fileDeletionRepository) Enqueue(ctx context.Context, d *models.FileDeletion) error {
	if d.NextAttemptAt.IsZero() {
		d.NextAttemptAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ClaimDue returns up to limit live rows whose retry time has passed and
// leases them by moving next_attempt_at forward.
func (r *fileDeletionRepository) ClaimDue(ctx context.Context, now time.Time, limit, maxAttempts int) ([]models.FileDeletion, error) {
	var rows []models.FileDeletion
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("dead_at IS NULL AND next_attempt_at <= ? AND attempts < ?", now, maxAttempts).
			Order("next_attempt_at ASC").
			Limit(limit)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]uint, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		return tx.Model(&models.FileDeletion{}).
			Where("id IN ?", ids).
			Update("next_attempt_at", now.Add(claimLease)).Error
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return rows, nil
}

func (r *fileDeletionRepository) MarkDone(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.FileDeletion{}, id).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// MarkFailed records an attempt. A dead row is kept for inspection but never retried.
func (r *fileDeletionRepository) MarkFailed(ctx context.Context, id uint, errMsg string, nextAttempt time.Time, dead bool) error {
	updates := map[string]any{
		"attempts":        gorm.Expr("attempts + 1"),
		"last_error":      errMsg,
		"next_attempt_at": nextAttempt,
	}
	if dead {
		updates["dead_at"] = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Model(&models.FileDeletion{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *fileDeletionRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.FileDeletion{}).Where("dead_at IS NULL").Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *fileDeletionRepository) CountDead(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.FileDeletion{}).Where("dead_at IS NOT NULL").Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}
