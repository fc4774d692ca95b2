package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"knot/internal/cleanup"
	"knot/internal/middleware"
)

type maintenance struct {
	svc *Services
}

// Maintenance is the periodic job run by the cleanup scheduler: the file
// deletion sweep, then removal of expired sessions.
func (s *Services) Maintenance() cleanup.Runner {
	return maintenance{svc: s}
}

func (m maintenance) RunOnce(ctx context.Context) (cleanup.Result, error) {
	res, err := m.svc.Sweeper.RunOnce(ctx)
	if err != nil {
		return res, err
	}
	purged, err := m.svc.Accounts.PurgeExpiredSessions(ctx)
	if err != nil {
		return res, fmt.Errorf("purge sessions: %w", err)
	}
	if purged > 0 {
		middleware.Logger.InfoContext(ctx, "expired sessions purged", slog.Int64("count", purged))
	}
	return res, nil
}
