package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"knot/internal/middleware"
)

const (
	UserKeyPrefix        = "user:%s"
	UserAccountKeyPrefix = "user:account:%s"
	SessionKeyPrefix     = "session:%s"
	PostKeyPrefix        = "post:%s"
	RecentPostsKeyPrefix = "posts:recent:v%d:%d:%d"
	PreviewKeyPrefix     = "preview:%s:%s"

	recentPostsVersionKey = "posts:recent:version"
)

const (
	UserTTL        = 5 * time.Minute
	SessionTTL     = 10 * time.Minute
	PostTTL        = 30 * time.Minute
	RecentPostsTTL = time.Minute
)

func UserKey(userID string) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func UserAccountKey(accountID string) string {
	return fmt.Sprintf(UserAccountKeyPrefix, accountID)
}

func SessionKey(sessionID string) string {
	return fmt.Sprintf(SessionKeyPrefix, sessionID)
}

func PostKey(postID string) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

// PreviewKey addresses one rendered variant of a file.
func PreviewKey(fileID, variant string) string {
	return fmt.Sprintf(PreviewKeyPrefix, fileID, variant)
}

// PreviewPattern matches every cached variant of a file.
func PreviewPattern(fileID string) string {
	return fmt.Sprintf(PreviewKeyPrefix, fileID, "*")
}

// RecentPostsKey addresses one page of the recent feed under the current list version.
func RecentPostsKey(ctx context.Context, limit, offset int) string {
	return fmt.Sprintf(RecentPostsKeyPrefix, recentPostsVersion(ctx), limit, offset)
}

func recentPostsVersion(ctx context.Context) int64 {
	if client == nil {
		return 0
	}
	v, err := client.Get(ctx, recentPostsVersionKey).Int64()
	if err != nil {
		return 0
	}
	return v
}

// InvalidateRecentPosts bumps the list version so every cached page goes stale.
func InvalidateRecentPosts(ctx context.Context) {
	if client == nil {
		return
	}
	if err := client.Incr(ctx, recentPostsVersionKey).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "recent posts invalidation failed", slog.String("error", err.Error()))
	}
}

func InvalidateUser(ctx context.Context, userID, accountID string) {
	Invalidate(ctx, UserKey(userID), UserAccountKey(accountID))
}

func InvalidateSession(ctx context.Context, sessionID string) {
	Invalidate(ctx, SessionKey(sessionID))
}

func InvalidatePost(ctx context.Context, postID string) {
	Invalidate(ctx, PostKey(postID))
}

// InvalidatePreviews drops every cached preview of a file.
func InvalidatePreviews(ctx context.Context, fileID string) {
	if _, err := DeleteMatching(ctx, PreviewPattern(fileID)); err != nil {
		middleware.Logger.WarnContext(ctx, "preview cache purge failed", slog.String("file_id", fileID), slog.String("error", err.Error()))
	}
}
