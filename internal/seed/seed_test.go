package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"knot/internal/config"
	"knot/internal/featureflags"
	"knot/internal/models"
	"knot/internal/preview"
	"knot/internal/repository"
	"knot/internal/service"
	"knot/internal/testutil"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeps(t *testing.T) (Deps, *testutil.MemoryBucket) {
	t.Helper()
	db := testutil.NewTestDB(t)
	bucket := testutil.NewMemoryBucket()
	cfg := &config.Config{
		JWTSecret:       "seed-test-secret-with-enough-length-123",
		SessionTTLHours: 1,
		PublicBaseURL:   "http://knot.test",
		UploadMaxSizeMB: 1,
	}

	users := repository.NewUserRepository(db)
	posts := repository.NewPostRepository(db)
	files := service.NewFileService(repository.NewFileRepository(db), repository.NewFileDeletionRepository(db), bucket, featureflags.NewManager(""), cfg)

	return Deps{
		Accounts: service.NewAccountService(repository.NewAccountRepository(db), repository.NewSessionRepository(db), users, cfg),
		Posts:    service.NewPostService(posts, users, files),
		Saves:    service.NewSaveService(repository.NewSaveRepository(db), posts),
	}, bucket
}

func TestRun(t *testing.T) {
	deps, bucket := newDeps(t)
	ctx := context.Background()

	res, err := Run(ctx, deps, Options{
		Users:        3,
		PostsPerUser: 2,
		LikesPerPost: 2,
		SavesPerUser: 1,
		RandomSeed:   42,
		Concurrency:  2,
	})
	require.NoError(t, err)

	assert.Len(t, res.Users, 3)
	assert.Len(t, res.Posts, 6)
	assert.Equal(t, 12, res.Likes)
	assert.LessOrEqual(t, res.Saves, 3)
	assert.Len(t, bucket.Keys(), 6)

	for _, p := range res.Posts {
		got, err := deps.Posts.GetPostByID(ctx, p.ID, "")
		require.NoError(t, err)
		assert.Equal(t, 2, got.LikesCount)
		assert.NotEmpty(t, got.Tags)
	}

	// seeded accounts can sign in
	_, err = deps.Accounts.SignIn(ctx, res.Users[0].Email, DefaultPassword, service.SessionMeta{})
	assert.NoError(t, err)
}

func TestRunRejectsInvalidOptions(t *testing.T) {
	deps, _ := newDeps(t)
	_, err := Run(context.Background(), deps, Options{Users: 0})
	assert.Error(t, err)
}

func TestLoadPreset(t *testing.T) {
	dir := t.TempDir()

	t.Run("overrides defaults", func(t *testing.T) {
		path := filepath.Join(dir, "small.yml")
		require.NoError(t, os.WriteFile(path, []byte("users: 5\nposts_per_user: 1\nrandom_seed: 7\n"), 0o600))

		opts, err := LoadPreset(path)
		require.NoError(t, err)
		assert.Equal(t, 5, opts.Users)
		assert.Equal(t, 1, opts.PostsPerUser)
		assert.Equal(t, int64(7), opts.RandomSeed)
		assert.Equal(t, DefaultOptions().LikesPerPost, opts.LikesPerPost)
	})

	t.Run("invalid counts", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yml")
		require.NoError(t, os.WriteFile(path, []byte("users: -1\n"), 0o600))
		_, err := LoadPreset(path)
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yml")
		require.NoError(t, os.WriteFile(path, []byte("users: [\n"), 0o600))
		_, err := LoadPreset(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPreset(filepath.Join(dir, "nope.yml"))
		assert.Error(t, err)
	})
}

func TestUsernameStem(t *testing.T) {
	tests := map[string]string{
		"Smith123":                  "smith123",
		"o'Brien.Jr":                "obrienjr",
		"x":                         "user",
		"ÄÖ":                        "user",
		"averyveryverylongusername": "averyveryverylonguse",
	}
	for in, want := range tests {
		assert.Equal(t, want, usernameStem(in), in)
	}
}

func TestRandomPNG(t *testing.T) {
	data, err := randomPNG(gofakeit.New(1))
	require.NoError(t, err)

	info, err := preview.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "png", info.Format)
	assert.Equal(t, imageSize, info.Width)
}

func TestPick(t *testing.T) {
	items := []*models.User{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	got := pick(gofakeit.New(3), items, 2)
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}
