package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedThing struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { SetClient(nil) })
	return mr
}

func TestAside_FetchesOnceThenServesFromCache(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *cachedThing) func() error {
		return func() error {
			calls++
			*dest = cachedThing{ID: "u1", Name: "Ada"}
			return nil
		}
	}

	var first cachedThing
	require.NoError(t, Aside(ctx, UserKey("u1"), &first, UserTTL, fetch(&first)))
	var second cachedThing
	require.NoError(t, Aside(ctx, UserKey("u1"), &second, UserTTL, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "Ada", second.Name)
	assert.True(t, mr.Exists("user:u1"))
	assert.Equal(t, UserTTL, mr.TTL("user:u1"))
}

func TestAside_FetchErrorIsNotCached(t *testing.T) {
	mr := setupRedis(t)
	boom := errors.New("db down")

	var dest cachedThing
	err := Aside(context.Background(), PostKey("p1"), &dest, PostTTL, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("post:p1"))
}

func TestHelpers_NoClient(t *testing.T) {
	SetClient(nil)
	ctx := context.Background()

	var dest cachedThing
	assert.ErrorIs(t, GetJSON(ctx, "k", &dest), ErrMiss)
	assert.NoError(t, SetJSON(ctx, "k", dest, time.Minute))
	_, err := GetBytes(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, SetBytes(ctx, "k", []byte("x"), time.Minute))

	called := false
	require.NoError(t, Aside(ctx, "k", &dest, time.Minute, func() error { called = true; return nil }))
	assert.True(t, called)

	n, err := DeleteMatching(ctx, "*")
	assert.NoError(t, err)
	assert.Zero(t, n)
	Invalidate(ctx, "k")
	InvalidateRecentPosts(ctx)
	assert.Equal(t, "posts:recent:v0:20:0", RecentPostsKey(ctx, 20, 0))
}

func TestDeleteMatching_PreviewVariants(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, SetBytes(ctx, PreviewKey("f1", "2000x2000-top-100-jpg"), []byte("a"), time.Minute))
	require.NoError(t, SetBytes(ctx, PreviewKey("f1", "100x100-center-90-png"), []byte("b"), time.Minute))
	require.NoError(t, SetBytes(ctx, PreviewKey("f2", "100x100-center-90-png"), []byte("c"), time.Minute))

	InvalidatePreviews(ctx, "f1")

	assert.False(t, mr.Exists("preview:f1:2000x2000-top-100-jpg"))
	assert.False(t, mr.Exists("preview:f1:100x100-center-90-png"))
	assert.True(t, mr.Exists("preview:f2:100x100-center-90-png"))

	raw, err := GetBytes(ctx, PreviewKey("f2", "100x100-center-90-png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), raw)
}

func TestRecentPostsKey_VersionBumps(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()

	before := RecentPostsKey(ctx, 20, 0)
	InvalidateRecentPosts(ctx)
	after := RecentPostsKey(ctx, 20, 0)

	assert.Equal(t, "posts:recent:v0:20:0", before)
	assert.Equal(t, "posts:recent:v1:20:0", after)
}

func TestInvalidateUser_RemovesBothKeys(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()
	require.NoError(t, SetJSON(ctx, UserKey("u1"), cachedThing{ID: "u1"}, UserTTL))
	require.NoError(t, SetJSON(ctx, UserAccountKey("a1"), cachedThing{ID: "u1"}, UserTTL))

	InvalidateUser(ctx, "u1", "a1")
	assert.False(t, mr.Exists("user:u1"))
	assert.False(t, mr.Exists("user:account:a1"))
}

func TestInitRedis_UnreachableDisablesCache(t *testing.T) {
	t.Cleanup(func() { SetClient(nil) })
	assert.Nil(t, InitRedis("redis://127.0.0.1:1/0"))
	assert.Nil(t, GetClient())
	assert.Nil(t, InitRedis("redis://%zz"))
}

func TestInitRedis_Connects(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Cleanup(func() { SetClient(nil) })
	c := InitRedis(mr.Addr())
	require.NotNil(t, c)
	assert.Same(t, c, GetClient())
}
