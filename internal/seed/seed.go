package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"knot/internal/middleware"
	"knot/internal/models"
	"knot/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/sync/errgroup"
)

// Deps are the services the seeder drives. Going through them keeps seeded
// rows, objects and counters consistent with real traffic.
type Deps struct {
	Accounts *service.AccountService
	Posts    *service.PostService
	Saves    *service.SaveService
}

// Result counts what a run created.
type Result struct {
	Users []*models.User
	Posts []*models.Post
	Likes int
	Saves int
}

// Run creates opts.Users accounts, their posts, then likes and saves.
func Run(ctx context.Context, deps Deps, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	if opts.RandomSeed == 0 {
		opts.RandomSeed = time.Now().UnixNano()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	middleware.Logger.InfoContext(ctx, "seeding started",
		slog.Int("users", opts.Users), slog.Int("posts_per_user", opts.PostsPerUser))

	res := &Result{}
	faker := gofakeit.New(opts.RandomSeed)

	for i := 0; i < opts.Users; i++ {
		user, err := createUser(ctx, deps.Accounts, faker, i, opts.Password)
		if err != nil {
			return res, fmt.Errorf("create user %d: %w", i, err)
		}
		res.Users = append(res.Users, user)
	}

	posts, err := createPosts(ctx, deps.Posts, res.Users, opts)
	res.Posts = posts
	if err != nil {
		return res, err
	}

	if res.Likes, err = likePosts(ctx, deps.Posts, res.Users, res.Posts, faker, opts.LikesPerPost); err != nil {
		return res, err
	}
	if res.Saves, err = savePosts(ctx, deps.Saves, res.Users, res.Posts, faker, opts.SavesPerUser); err != nil {
		return res, err
	}

	middleware.Logger.InfoContext(ctx, "seeding completed",
		slog.Int("users", len(res.Users)),
		slog.Int("posts", len(res.Posts)),
		slog.Int("likes", res.Likes),
		slog.Int("saves", res.Saves))
	return res, nil
}

func createUser(ctx context.Context, accounts *service.AccountService, f *gofakeit.Faker, i int, password string) (*models.User, error) {
	username := fmt.Sprintf("%s%04d", usernameStem(f.Username()), i)
	return accounts.CreateUserAccount(ctx, service.NewUserInput{
		Name:     f.Name(),
		Username: username,
		Email:    username + "@seed.knot.dev",
		Password: password,
	})
}

// usernameStem keeps the lowercase alphanumerics of a generated handle.
func usernameStem(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
		if b.Len() == 20 {
			break
		}
	}
	if b.Len() < 3 {
		return "user"
	}
	return b.String()
}

// createPosts fans out one goroutine per user, bounded by opts.Concurrency.
func createPosts(ctx context.Context, posts *service.PostService, users []*models.User, opts Options) ([]*models.Post, error) {
	var (
		mu      sync.Mutex
		created []*models.Post
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, user := range users {
		f := gofakeit.New(opts.RandomSeed + int64(i) + 1)
		g.Go(func() error {
			for n := 0; n < opts.PostsPerUser; n++ {
				content, err := randomPNG(f)
				if err != nil {
					return err
				}
				post, err := posts.CreatePost(ctx, service.CreatePostInput{
					CreatorID: user.ID,
					Caption:   f.Sentence(f.Number(4, 12)),
					Location:  f.City() + ", " + f.Country(),
					Tags:      strings.Join([]string{f.Noun(), f.Noun(), f.Word()}, ","),
					File: &service.UploadInput{
						OwnerID:     user.ID,
						Filename:    fmt.Sprintf("seed-%s-%d.png", user.Username, n),
						ContentType: "image/png",
						Content:     content,
					},
				})
				if err != nil {
					return fmt.Errorf("create post for %s: %w", user.Username, err)
				}
				mu.Lock()
				created = append(created, post)
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	return created, err
}

func likePosts(ctx context.Context, svc *service.PostService, users []*models.User, posts []*models.Post, f *gofakeit.Faker, perPost int) (int, error) {
	if perPost == 0 {
		return 0, nil
	}
	total := 0
	for _, post := range posts {
		likers := pick(f, users, min(perPost, len(users)))
		ids := make([]string, len(likers))
		for i, u := range likers {
			ids[i] = u.ID
		}
		if _, err := svc.LikePost(ctx, "", post.ID, ids); err != nil {
			return total, fmt.Errorf("like post %s: %w", post.ID, err)
		}
		total += len(ids)
	}
	return total, nil
}

func savePosts(ctx context.Context, svc *service.SaveService, users []*models.User, posts []*models.Post, f *gofakeit.Faker, perUser int) (int, error) {
	if perUser == 0 || len(posts) == 0 {
		return 0, nil
	}
	total := 0
	for _, user := range users {
		for _, post := range pick(f, posts, min(perUser, len(posts))) {
			if post.CreatorID == user.ID {
				continue
			}
			if _, err := svc.SavePost(ctx, user.ID, post.ID); err != nil {
				if models.ErrorCode(err) == models.CodeConflict {
					continue
				}
				return total, fmt.Errorf("save post %s: %w", post.ID, err)
			}
			total++
		}
	}
	return total, nil
}

// pick returns n distinct elements of items in random order.
func pick[T any](f *gofakeit.Faker, items []T, n int) []T {
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	f.ShuffleInts(idx)
	out := make([]T, 0, n)
	for _, i := range idx[:n] {
		out = append(out, items[i])
	}
	return out
}
