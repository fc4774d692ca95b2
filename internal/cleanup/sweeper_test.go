package cleanup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"knot/internal/config"
	"knot/internal/models"
	"knot/internal/repository"
	"knot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sweepFixture struct {
	db      *gorm.DB
	bucket  *testutil.MemoryBucket
	repo    repository.FileDeletionRepository
	sweeper *Sweeper
	now     time.Time
}

func newSweepFixture(t *testing.T, maxAttempts int) *sweepFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	f := &sweepFixture{
		db:     db,
		bucket: testutil.NewMemoryBucket(),
		repo:   repository.NewFileDeletionRepository(db),
		now:    time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	f.sweeper = NewSweeper(f.repo, repository.NewFileRepository(db), f.bucket, &config.Config{
		CleanupBatchSize:   10,
		CleanupMaxAttempts: maxAttempts,
	})
	f.sweeper.now = func() time.Time { return f.now }
	return f
}

// orphan stores an object and its file row and queues its deletion.
func (f *sweepFixture) orphan(t *testing.T, id string) *models.FileDeletion {
	t.Helper()
	key := "files/" + id
	require.NoError(t, f.bucket.Put(context.Background(), key, strings.NewReader("img"), 3, "image/png"))
	require.NoError(t, f.db.Create(&models.File{
		ID: id, Bucket: "memory", ObjectKey: key, MimeType: "image/png", SizeBytes: 3,
	}).Error)
	row := &models.FileDeletion{
		FileID:        id,
		ObjectKey:     key,
		Reason:        "post_create_document",
		NextAttemptAt: f.now.Add(-time.Second),
	}
	require.NoError(t, f.repo.Enqueue(context.Background(), row))
	return row
}

func (f *sweepFixture) reload(t *testing.T, id uint) models.FileDeletion {
	t.Helper()
	var row models.FileDeletion
	require.NoError(t, f.db.First(&row, id).Error)
	return row
}

func TestSweeper_DeletesQueuedObjects(t *testing.T) {
	f := newSweepFixture(t, 5)
	f.orphan(t, "f1")
	f.orphan(t, "f2")

	res, err := f.sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Claimed: 2, Deleted: 2}, res)
	assert.Empty(t, f.bucket.Keys())

	var files, rows int64
	require.NoError(t, f.db.Model(&models.File{}).Count(&files).Error)
	require.NoError(t, f.db.Model(&models.FileDeletion{}).Count(&rows).Error)
	assert.Zero(t, files)
	assert.Zero(t, rows)
}

func TestSweeper_MissingObjectCountsAsDeleted(t *testing.T) {
	f := newSweepFixture(t, 5)
	row := &models.FileDeletion{FileID: "gone", ObjectKey: "files/gone", NextAttemptAt: f.now.Add(-time.Second)}
	require.NoError(t, f.repo.Enqueue(context.Background(), row))

	res, err := f.sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
}

func TestSweeper_BacksOffThenDeadLetters(t *testing.T) {
	f := newSweepFixture(t, 2)
	ctx := context.Background()
	row := f.orphan(t, "f1")
	f.bucket.DeleteErr = errors.New("bucket offline")

	res, err := f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Claimed: 1, Retried: 1}, res)

	got := f.reload(t, row.ID)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "bucket offline", got.LastError)
	assert.WithinDuration(t, f.now.Add(30*time.Second), got.NextAttemptAt, time.Second)
	assert.Nil(t, got.DeadAt)

	res, err = f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Claimed, "row is not due yet")

	f.now = f.now.Add(31 * time.Second)
	res, err = f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Claimed: 1, Dead: 1}, res)

	got = f.reload(t, row.ID)
	assert.Equal(t, 2, got.Attempts)
	assert.NotNil(t, got.DeadAt)

	status, err := f.sweeper.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Pending: 0, Dead: 1}, status)
	assert.Equal(t, []string{"files/f1"}, f.bucket.Keys())
}

func TestSweeper_Defaults(t *testing.T) {
	s := NewSweeper(nil, nil, nil, nil)
	assert.Equal(t, DefaultBatchSize, s.batchSize)
	assert.Equal(t, DefaultMaxAttempts, s.maxAttempts)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{-1, 30 * time.Second},
		{0, 30 * time.Second},
		{1, time.Minute},
		{3, 4 * time.Minute},
		{6, 32 * time.Minute},
		{7, time.Hour},
		{40, time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}
