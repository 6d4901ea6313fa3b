// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	_ "facefeed/docs" // swagger docs
	"facefeed/internal/biometric"
	"facefeed/internal/config"
	"facefeed/internal/featureflags"
	"facefeed/internal/identity"
	"facefeed/internal/media"
	"facefeed/internal/middleware"
	"facefeed/internal/models"
	"facefeed/internal/notifications"
	"facefeed/internal/repository"
	"facefeed/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options carries the collaborators built by the composition root. Redis,
// Metrics, Directory, Biometric, BiometricClient, Media, Hub and UploadsDir
// may be left empty.
type Options struct {
	Config          *config.Config
	DB              *gorm.DB
	Redis           *redis.Client
	Deps            service.Deps
	Sessions        repository.SessionRepository
	Verifier        *identity.SessionVerifier
	Directory       identity.Directory
	Biometric       service.ReadinessSource
	BiometricClient biometric.Client
	Media           *media.Service
	Hub             *notifications.Hub
	Metrics         *fiberprometheus.FiberPrometheus
	// UploadsDir is served at /uploads when the local blob driver is used.
	UploadsDir string
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	deps      service.Deps
	sessions  repository.SessionRepository
	verifier  *identity.SessionVerifier
	directory identity.Directory
	readiness service.ReadinessSource
	hub       *notifications.Hub
	flags     *featureflags.Manager
	uploads   string

	postService     *service.PostService
	commentService  *service.CommentService
	reactionService *service.ReactionService
	userService     *service.UserService
	faceService     *service.FaceVerificationService
	mediaService    *media.Service

	// wsTickets backs ticket issuance when Redis is not configured.
	ticketMu  sync.Mutex
	wsTickets map[string]wsTicket
}

// New creates a server from already-initialized dependencies.
func New(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	d := opts.Deps
	if d.Events == nil && opts.Hub != nil {
		d.Events = opts.Hub
	}
	if d.Media == nil && opts.Media != nil {
		d.Media = opts.Media
	}

	s := &Server{
		config:          cfg,
		db:              opts.DB,
		redis:           opts.Redis,
		promMiddleware:  opts.Metrics,
		deps:            d,
		sessions:        opts.Sessions,
		verifier:        opts.Verifier,
		directory:       opts.Directory,
		readiness:       opts.Biometric,
		hub:             opts.Hub,
		flags:           featureflags.NewManager(cfg.FeatureFlags),
		uploads:         opts.UploadsDir,
		postService:     service.NewPostService(d),
		commentService:  service.NewCommentService(d),
		reactionService: service.NewReactionService(d),
		userService:     service.NewUserService(d),
		mediaService:    opts.Media,
		wsTickets:       make(map[string]wsTicket),
	}
	if opts.Directory != nil && opts.Biometric != nil {
		s.faceService = service.NewFaceVerificationService(d, opts.Directory, opts.Biometric, opts.BiometricClient)
	}
	return s
}

// NewApp returns a Fiber app with the error handler every route relies on.
func NewApp(cfg *config.Config) *fiber.App {
	bodyLimit := 10 * 1024 * 1024
	if cfg != nil && cfg.MediaMaxMB > 0 {
		bodyLimit = (cfg.MediaMaxMB + 1) * 1024 * 1024
	}
	return fiber.New(fiber.Config{
		AppName:   "FaceFeed API",
		BodyLimit: bodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses
	// still carry the headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (300 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || !s.config.IsProduction()
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	if s.uploads != "" {
		app.Static("/uploads", s.uploads, fiber.Static{MaxAge: 31536000})
	}

	api := app.Group("/api")
	api.Get("/", s.ReadinessCheck)
	api.Get("/swagger/*", swagger.HandlerDefault)
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "FaceFeed Metrics Dashboard",
	}))

	optional := s.OptionalAuth()
	auth := s.AuthRequired()

	api.Get("/feature-flags", optional, s.GetFeatureFlags)

	// Users. /me routes come before /:id.
	users := api.Group("/users", auth)
	users.Get("/", s.ListUsers)
	users.Post("/", s.CreateUser)
	users.Get("/me", s.GetMe)
	users.Get("/me/settings", s.GetMySettings)
	users.Put("/me/settings", s.UpdateMySettings)
	users.Get("/me/activity", s.GetMyActivity)
	users.Get("/me/sessions", s.GetMySessions)
	users.Get("/:id/posts", s.GetUserPosts)
	users.Get("/:id", s.GetUser)
	users.Put("/:id", s.UpdateUser)
	users.Delete("/:id", s.DeleteUser)

	// Face verification, behind the face_verification flag.
	face := api.Group("/face-verification", auth, s.FlagRequired(featureflags.FaceVerification))
	face.Get("/", s.GetFaceVerification)
	face.Post("/", middleware.RateLimit(s.redis, 20, time.Minute, "face_verification"), s.PostFaceVerification)

	// Posts: reads accept an optional session, writes require one.
	posts := api.Group("/posts")
	posts.Get("/", optional, s.GetPosts)
	posts.Get("/search", optional, middleware.RateLimit(s.redis, 30, time.Minute, "search"), s.SearchPosts)
	posts.Get("/:id/comments", optional, s.GetComments)
	posts.Get("/:id", optional, s.GetPost)
	posts.Post("/", auth, middleware.RateLimit(s.redis, 10, time.Minute, "create_post"), s.CreatePost)
	posts.Post("/:id/like", auth, s.LikePost)
	posts.Post("/:id/share", auth, s.SharePost)
	posts.Post("/:id/comments", auth, middleware.RateLimit(s.redis, 20, time.Minute, "create_comment"), s.CreateComment)
	posts.Post("/:id/comments/:commentId/like", auth, s.LikeComment)
	posts.Put("/:id/comments/:commentId", auth, s.UpdateComment)
	posts.Delete("/:id/comments/:commentId", auth, s.DeleteComment)
	posts.Put("/:id", auth, s.UpdatePost)
	posts.Delete("/:id", auth, s.DeletePost)

	mediaRoutes := api.Group("/media", auth)
	mediaRoutes.Get("/", s.ListMedia)
	mediaRoutes.Post("/", middleware.RateLimit(s.redis, 30, time.Minute, "media_upload"), s.UploadMedia)
	mediaRoutes.Delete("/", s.DeleteMedia)

	api.Post("/ws/ticket", auth, s.IssueWSTicket)
	api.Get("/ws", s.WebSocketUpgrade(), s.WebSocketHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now().UTC(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if s.db == nil {
		dbStatus = "unhealthy"
	} else if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Redis is optional: caching, rate limits and cross-instance
		// realtime degrade without it.
		redisStatus = "disabled"
	}

	checks := fiber.Map{
		"database": dbStatus,
		"redis":    redisStatus,
	}
	if s.readiness != nil {
		checks["biometric"] = s.readiness.Status().State
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": checks,
		"time":   time.Now().UTC(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := NewApp(s.config)
	s.app = app
	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	if s.hub != nil {
		go func() {
			if err := s.hub.Run(s.shutdownCtx); err != nil {
				middleware.Logger.Error("realtime subscriber stopped", slog.String("error", err.Error()))
			}
		}()
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the HTTP server and the websocket hub.
// Database and Redis handles belong to the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			middleware.Logger.Error("error shutting down websocket hub", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
