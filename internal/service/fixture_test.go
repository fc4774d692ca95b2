package service

import (
	"context"
	"testing"

	"knot/internal/cache"
	"knot/internal/config"
	"knot/internal/featureflags"
	"knot/internal/models"
	"knot/internal/repository"
	"knot/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testPassword = "Str0ng!Passw0rd"

type fixture struct {
	db        *gorm.DB
	cfg       *config.Config
	bucket    *testutil.MemoryBucket
	postRepo  repository.PostRepository
	deletions repository.FileDeletionRepository
	accounts  *AccountService
	files     *FileService
	posts     *PostService
	saves     *SaveService
	users     *UserService
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:              "unit-test-secret-with-enough-length-123",
		SessionTTLHours:        1,
		PublicBaseURL:          "http://knot.test",
		UploadMaxSizeMB:        1,
		PreviewWidth:           2000,
		PreviewHeight:          2000,
		PreviewGravity:         "top",
		PreviewQuality:         100,
		PreviewCacheTTLMinutes: 5,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	cfg := testConfig()

	f := &fixture{
		db:        db,
		cfg:       cfg,
		bucket:    testutil.NewMemoryBucket(),
		postRepo:  repository.NewPostRepository(db),
		deletions: repository.NewFileDeletionRepository(db),
	}
	userRepo := repository.NewUserRepository(db)

	f.accounts = NewAccountService(
		repository.NewAccountRepository(db),
		repository.NewSessionRepository(db),
		userRepo,
		cfg,
	)
	f.accounts.bcryptCost = bcrypt.MinCost

	f.files = NewFileService(repository.NewFileRepository(db), f.deletions, f.bucket, featureflags.NewManager("webp_previews=on"), cfg)
	f.posts = NewPostService(f.postRepo, userRepo, f.files)
	f.saves = NewSaveService(repository.NewSaveRepository(db), f.postRepo)
	f.users = NewUserService(userRepo, f.files)
	return f
}

func (f *fixture) signup(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := f.accounts.CreateUserAccount(context.Background(), NewUserInput{
		Name:     "User " + username,
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) createPost(t *testing.T, creator *models.User, caption string) *models.Post {
	t.Helper()
	p, err := f.posts.CreatePost(context.Background(), CreatePostInput{
		CreatorID: creator.ID,
		Caption:   caption,
		Tags:      "go, test",
		File:      pngUpload(),
	})
	require.NoError(t, err)
	return p
}

func pngUpload() *UploadInput {
	return &UploadInput{Filename: "photo.png", ContentType: "image/png", Content: testutil.PNG(40, 20)}
}

func withRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })
	return mr
}
