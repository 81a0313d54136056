// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "instafeed/docs" // swagger docs
	"instafeed/internal/auth"
	"instafeed/internal/cache"
	"instafeed/internal/config"
	"instafeed/internal/imaging"
	"instafeed/internal/live"
	"instafeed/internal/middleware"
	"instafeed/internal/models"
	"instafeed/internal/repository"
	"instafeed/internal/service"
	"instafeed/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the already-initialized backends a Server runs on.
type Deps struct {
	DB    *gorm.DB
	Redis *redis.Client
	Blobs storage.BlobStore
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

	broker *live.Broker
	tokens *auth.TokenManager

	identity      *service.IdentityGate
	relationships *service.RelationshipService
	engagement    *service.EngagementService
	comments      *service.CommentService
	posts         *service.PostService
	accounts      *service.AccountService
	feed          *service.FeedService
	suggestions   *service.SuggestionService
	messages      *service.MessageService

	maxUploadBytes int64
	// media is set when uploads are kept in process and must be served here.
	media *storage.MemoryStore

	// suggestionLists holds what each viewer was last shown.
	suggestionLists *suggestionStore
}

// NewServer wires repositories and services over deps. Blobs defaults to an
// in-memory store.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	blobs := deps.Blobs
	if blobs == nil {
		blobs = storage.NewMemoryStore("http://localhost:" + cfg.Port + "/media")
	}

	credRepo := repository.NewCredentialRepository(deps.DB)
	accountRepo := repository.NewAccountRepository(deps.DB)
	followRepo := repository.NewFollowRepository(deps.DB)
	engagementRepo := repository.NewEngagementRepository(deps.DB)
	postRepo := repository.NewPostRepository(deps.DB)
	commentRepo := repository.NewCommentRepository(deps.DB)
	messageRepo := repository.NewMessageRepository(deps.DB)

	maxUploadBytes := int64(cfg.MaxUploadSizeMB) * 1024 * 1024
	imageOpts := imaging.Options{MaxDimension: cfg.MaxImageDimension, MaxBytes: maxUploadBytes}

	ttl := time.Duration(cfg.TokenTTLHours) * time.Hour
	tokens := auth.NewTokenManager(cfg.JWTSecret, ttl, deps.Redis)
	broker := live.NewBroker(deps.Redis)

	relationships := service.NewRelationshipService(followRepo, engagementRepo, broker)

	s := &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("instafeed-api"),
		broker:         broker,
		tokens:         tokens,
		identity: service.NewIdentityGate(credRepo, accountRepo, tokens, broker,
			cfg.EmailDomain, cfg.DefaultAvatarURL),
		relationships:   relationships,
		engagement:      service.NewEngagementService(engagementRepo, broker),
		comments:        service.NewCommentService(commentRepo, postRepo, broker),
		posts:           service.NewPostService(postRepo, engagementRepo, blobs, broker, imageOpts),
		accounts:        service.NewAccountService(accountRepo, followRepo, postRepo, blobs, broker, imageOpts),
		feed:            service.NewFeedService(followRepo, accountRepo, postRepo, broker, 0),
		suggestions:     service.NewSuggestionService(accountRepo, relationships, cfg.SuggestionLimit),
		messages:        service.NewMessageService(messageRepo, accountRepo, broker),
		maxUploadBytes:  maxUploadBytes,
		suggestionLists: newSuggestionStore(deps.Redis, cache.SuggestionsTTL),
	}
	if ms, ok := blobs.(*storage.MemoryStore); ok {
		s.media = ms
	}
	return s, nil
}

// App returns the configured Fiber application, building it on first use.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}

	bodyLimit := 4 * 1024 * 1024
	if s.maxUploadBytes > 0 {
		bodyLimit = int(s.maxUploadBytes) + 1024*1024
	}

	app := fiber.New(fiber.Config{
		AppName:   "instafeed API",
		BodyLimit: bodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses
	// still carry the headers.
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: s.config.AllowedOrigins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || s.config.Env == "test"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
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

	if s.media != nil {
		app.Get("/media/*", s.ServeMedia)
	}

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Auth routes
	authGroup := api.Group("/auth")
	authGroup.Post("/signup", middleware.RateLimit(s.redis, 5, 10*time.Minute, "signup"), s.SignUp)
	authGroup.Post("/signin", middleware.RateLimit(s.redis, 10, 5*time.Minute, "signin"), s.SignIn)
	authGroup.Post("/signout", middleware.AuthRequired(s.tokens), s.SignOut)

	// Authenticated, not necessarily onboarded
	authed := api.Group("", middleware.AuthRequired(s.tokens), s.ViewerRequired())
	authed.Get("/me", s.GetMe)
	authed.Post("/me/onboard", s.Onboard)
	authed.Get("/users/available", s.UsernameAvailable)

	// Everything else needs an account
	onboarded := api.Group("", s.OnboardedRequired())
	onboarded.Put("/me/avatar", s.ChangeAvatar)
	onboarded.Get("/me/saved", s.GetSavedPosts)

	users := onboarded.Group("/users")
	users.Get("/search", s.SearchUsers)
	users.Get("/suggestions", s.GetSuggestions)
	users.Post("/suggestions/dismiss", s.DismissSuggestion)
	users.Post("/:id/follow", s.Follow)
	users.Delete("/:id/follow", s.Unfollow)
	users.Get("/:username", s.GetProfile)

	onboarded.Get("/feed", s.GetFeed)

	posts := onboarded.Group("/posts")
	posts.Post("/", middleware.RateLimit(s.redis, 10, 5*time.Minute, "create_post"), s.CreatePost)
	posts.Get("/:id", s.GetPost)
	posts.Delete("/:id", s.DeletePost)
	posts.Post("/:id/like", s.LikePost)
	posts.Delete("/:id/like", s.UnlikePost)
	posts.Post("/:id/like/toggle", s.ToggleLike)
	posts.Post("/:id/save/toggle", s.ToggleSave)
	posts.Get("/:id/engagement", s.GetEngagement)
	posts.Get("/:id/comments", s.GetComments)
	posts.Post("/:id/comments", middleware.RateLimit(s.redis, 20, time.Minute, "create_comment"), s.CreateComment)
	posts.Post("/:id/comments/:commentId/replies", s.CreateReply)
	posts.Delete("/:id/comments/:commentId", s.DeleteComment)

	onboarded.Get("/contacts", s.GetContacts)
	conversations := onboarded.Group("/conversations")
	conversations.Get("/:userId/messages", s.GetMessages)
	conversations.Post("/:userId/messages", middleware.RateLimit(s.redis, 30, time.Minute, "send_message"), s.SendMessage)

	// Live subscriptions
	ws := onboarded.Group("/ws")
	ws.Post("/ticket", s.IssueWSTicket)
	ws.Get("/feed", upgradeRequired, s.FeedSocket())
	ws.Get("/posts/:id", upgradeRequired, s.PostSocket())
	ws.Get("/posts/:id/comments", upgradeRequired, s.CommentsSocket())
	ws.Get("/conversations/:userId", upgradeRequired, s.ConversationSocket())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis is optional: without it live events stay in-process.
	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"live_subscriptions": s.broker.Subscribers(),
		"time":               time.Now(),
	})
}

// Start relays live events through Redis (when configured) and serves HTTP
// until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	if err := s.broker.Start(ctx); err != nil {
		middleware.Logger.Warn("live events fall back to in-process delivery",
			slog.String("error", err.Error()))
	}

	app := s.App()
	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Ends the Redis relay and every live subscription derived from it.
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
