// Command server is the entry point for the Knot API server.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"knot/internal/bootstrap"
	"knot/internal/cleanup"
	"knot/internal/config"
	"knot/internal/middleware"
	"knot/internal/observability"
	"knot/internal/server"

	"golang.org/x/sync/errgroup"
)

// @title Knot API
// @version 1.0
// @description Photo sharing API with posts, likes, saves, image previews and a realtime feed
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@knot.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8375
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

const (
	version         = "1.0"
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	shutdownTracing, err := observability.InitTracing(observability.TracingConfigFrom(cfg, version))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ApplySchema: true})
	if err != nil {
		return err
	}

	srv, err := server.NewServerWithDeps(cfg, rt.DB, rt.Redis, rt.Bucket)
	if err != nil {
		_ = rt.Close()
		return err
	}
	if err := srv.Prepare(); err != nil {
		_ = rt.Close()
		return err
	}
	scheduler := cleanup.NewScheduler(srv.Maintenance(), cfg.CleanupSchedule)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		return scheduler.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		middleware.Logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		scheduler.Stop()
		return errors.Join(
			srv.Shutdown(shutdownCtx),
			rt.Close(),
			shutdownTracing(shutdownCtx),
		)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		middleware.Logger.Error("server exited with error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
