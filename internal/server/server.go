// Package server contains the HTTP and WebSocket handlers of the API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	_ "knot/docs" // swagger docs
	"knot/internal/bootstrap"
	"knot/internal/cleanup"
	"knot/internal/config"
	"knot/internal/database"
	"knot/internal/featureflags"
	"knot/internal/middleware"
	"knot/internal/models"
	"knot/internal/notifications"
	"knot/internal/service"
	"knot/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	// Per-IP ceiling applied to every route before the per-route limits.
	globalLimit       = 100
	globalLimitWindow = time.Minute

	readinessTimeout = 5 * time.Second

	corsHeaders = "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version"
)

var (
	promOnce sync.Once
	promMW   *fiberprometheus.FiberPrometheus
)

// httpMetrics registers the HTTP collectors once per process.
func httpMetrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		promMW = fiberprometheus.New("knot-api")
	})
	return promMW
}

// Server owns the fiber app, the feed hub and the services behind handlers.
type Server struct {
	config *config.Config
	db     *gorm.DB
	redis  *redis.Client
	bucket storage.Bucket
	app    *fiber.App
	ln     net.Listener

	stopping atomic.Bool

	promMiddleware *fiberprometheus.FiberPrometheus
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	featureFlags   *featureflags.Manager
	maintenance    cleanup.Runner

	// stop cancels the Redis fan-out goroutines.
	runCtx context.Context
	stop   context.CancelFunc

	accountService *service.AccountService
	fileService    *service.FileService
	postService    *service.PostService
	saveService    *service.SaveService
	userService    *service.UserService
}

// NewServerWithDeps creates a Server from already-initialized dependencies.
// redisClient may be nil; caching, rate limits and cross-instance fan-out
// are then disabled.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, bucket storage.Bucket) (*Server, error) {
	if cfg == nil || db == nil || bucket == nil {
		return nil, fmt.Errorf("server requires config, database and bucket")
	}

	svc := bootstrap.NewServices(cfg, db, bucket)
	runCtx, stop := context.WithCancel(context.Background())

	return &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		bucket:         bucket,
		promMiddleware: httpMetrics(),
		notifier:       notifications.NewNotifier(redisClient),
		hub:            notifications.NewHub(),
		featureFlags:   svc.Flags,
		maintenance:    svc.Maintenance(),
		runCtx:         runCtx,
		stop:           stop,
		accountService: svc.Accounts,
		fileService:    svc.FileSvc,
		postService:    svc.Posts,
		saveService:    svc.Saves,
		userService:    svc.Users,
	}, nil
}

// SetupMiddleware installs the global chain. Order matters: request ids and
// spans exist before logging, and CORS runs before the limiter so rejected
// browser requests stay readable.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(
		recover.New(),
		requestid.New(),
		middleware.TracingMiddleware(),
		middleware.ContextMiddleware(),
	)
	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}
	app.Use(
		// Previews and avatars are embedded by other origins.
		helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}),
		middleware.StructuredLogger(),
		cors.New(cors.Config{
			AllowOrigins:     s.config.AllowedOrigins,
			AllowHeaders:     corsHeaders,
			AllowCredentials: true,
			MaxAge:           int((24 * time.Hour).Seconds()),
		}),
		globalLimiter(),
	)
}

func globalLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          globalLimit,
		Expiration:   globalLimitWindow,
		Next:         func(c *fiber.Ctx) bool { return c.Method() == fiber.MethodOptions },
		KeyGenerator: func(c *fiber.Ctx) string { return c.IP() },
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				&models.AppError{Code: models.CodeRateLimited, Message: "Too many requests, try again later"})
		},
	})
}

// NewApp builds a Fiber app with middleware and routes attached.
func (s *Server) NewApp() *fiber.App {
	maxMB := s.config.UploadMaxSizeMB
	if maxMB <= 0 {
		maxMB = service.DefaultUploadMaxSizeMB
	}
	app := fiber.New(fiber.Config{
		AppName:      "Knot API",
		BodyLimit:    (maxMB + 1) * 1024 * 1024,
		ErrorHandler: handleUnrouted,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// handleUnrouted renders errors that escaped the handlers.
func handleUnrouted(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// LivenessCheck answers as long as the process serves HTTP.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "up", "time": time.Now()})
}

type dependency struct {
	name     string
	optional bool
	check    func(context.Context) error
}

// ReadinessCheck reports database, Redis and bucket health. Redis is
// optional: without a client it reads "disabled" and does not fail readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	deps := []dependency{
		{name: "database", check: func(ctx context.Context) error { return database.Ping(ctx, s.db) }},
		{name: "redis", optional: true},
		{name: "bucket", check: s.bucket.Ping},
	}
	if s.redis != nil {
		deps[1].check = func(ctx context.Context) error { return s.redis.Ping(ctx).Err() }
	}

	ready := true
	checks := make(fiber.Map, len(deps))
	for _, p := range deps {
		switch {
		case p.check == nil && p.optional:
			checks[p.name] = "disabled"
		case p.check(ctx) != nil:
			checks[p.name] = "unhealthy"
			ready = false
		default:
			checks[p.name] = "healthy"
		}
	}

	status, overall := fiber.StatusOK, "healthy"
	if !ready {
		status, overall = fiber.StatusServiceUnavailable, "unhealthy"
	}
	return c.Status(status).JSON(fiber.Map{"status": overall, "checks": checks, "time": time.Now()})
}

// Maintenance returns the periodic cleanup job bound to this server's services.
func (s *Server) Maintenance() cleanup.Runner {
	return s.maintenance
}

// StartRealtime wires the hub to Redis so events reach sockets on every instance.
func (s *Server) StartRealtime() error {
	if !s.notifier.Enabled() {
		return nil
	}
	return s.hub.StartWiring(s.runCtx, s.notifier)
}

// Prepare builds the app, binds the listener and wires realtime delivery.
// It runs before Start and Shutdown are used from other goroutines.
func (s *Server) Prepare() error {
	ln, err := net.Listen("tcp", ":"+s.config.Port)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Port, err)
	}
	s.ln = ln
	s.app = s.NewApp()

	if err := s.StartRealtime(); err != nil {
		middleware.Logger.Warn("realtime wiring failed, events stay local", slog.String("error", err.Error()))
	}
	return nil
}

// Start serves HTTP on the prepared listener until Shutdown.
func (s *Server) Start() error {
	if s.app == nil || s.ln == nil {
		return errors.New("server not prepared")
	}
	middleware.Logger.Info("server starting", slog.String("addr", s.ln.Addr().String()))
	err := s.app.Listener(s.ln)
	if s.stopping.Load() && errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and closes feed sockets. The database
// and Redis clients belong to the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopping.Store(true)
	if s.stop != nil {
		s.stop()
	}

	var errs []error
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	if s.ln != nil {
		// Unblocks Start when Shutdown wins the race with Serve.
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("listener: %w", err))
		}
	}
	if err := s.hub.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("feed hub: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		middleware.Logger.Error("shutdown incomplete", slog.String("error", err.Error()))
		return err
	}
	middleware.Logger.Info("server shutdown complete")
	return nil
}
