package server

import (
	"context"
	"log/slog"

	"knot/internal/featureflags"
	"knot/internal/middleware"
	"knot/internal/models"
	"knot/internal/notifications"
)

// publishEvent delivers ev to targetUserID, or to every socket when the
// target is empty. With Redis the subscriber fans out on each instance,
// otherwise the local hub is used directly.
func (s *Server) publishEvent(ctx context.Context, actorID, targetUserID string, ev notifications.Event) {
	if !s.featureFlags.Enabled(featureflags.RealtimeFeed, actorID) {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if s.notifier.Enabled() {
		if err := s.notifier.PublishEvent(ctx, targetUserID, ev); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to publish feed event",
				slog.String("type", ev.Type), slog.String("error", err.Error()))
		}
		return
	}

	message, err := ev.Encode()
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "failed to encode feed event", slog.String("type", ev.Type), slog.String("error", err.Error()))
		return
	}
	if targetUserID == "" {
		s.hub.BroadcastAll(message)
		return
	}
	s.hub.Broadcast(targetUserID, message)
}

func (s *Server) publishPostEvent(ctx context.Context, actorID, eventType string, post *models.Post) {
	s.publishEvent(ctx, actorID, "", notifications.Event{Type: eventType, Payload: post})
}

func (s *Server) publishPostDeleted(ctx context.Context, actorID, postID string) {
	s.publishEvent(ctx, actorID, "", notifications.Event{
		Type:    notifications.EventPostDeleted,
		Payload: map[string]any{"post_id": postID},
	})
}

func (s *Server) publishLikesUpdated(ctx context.Context, actorID string, post *models.Post) {
	s.publishEvent(ctx, actorID, "", notifications.Event{
		Type: notifications.EventPostLikesUpdated,
		Payload: map[string]any{
			"post_id":     post.ID,
			"likes":       post.Likes,
			"likes_count": post.LikesCount,
		},
	})
}

func (s *Server) publishSaveEvent(ctx context.Context, userID string, save *models.Save, saved bool) {
	s.publishEvent(ctx, userID, userID, notifications.Event{
		Type: notifications.EventPostSaved,
		Payload: map[string]any{
			"post_id": save.PostID,
			"save_id": save.ID,
			"saved":   saved,
		},
	})
}
