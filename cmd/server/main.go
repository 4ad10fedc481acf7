package main // Entry point package

import (
	"context"
	"errors"
	"log" // Fatal startup errors before the structured logger exists
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"                   // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // panic recovery
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/forum-core/internal/audit"
	"github.com/iliyamo/forum-core/internal/config" // Internal config loader
	"github.com/iliyamo/forum-core/internal/database"
	"github.com/iliyamo/forum-core/internal/handler"
	"github.com/iliyamo/forum-core/internal/logging"
	"github.com/iliyamo/forum-core/internal/middleware"
	"github.com/iliyamo/forum-core/internal/queue"
	"github.com/iliyamo/forum-core/internal/repository"
	"github.com/iliyamo/forum-core/internal/revocation"
	"github.com/iliyamo/forum-core/internal/router" // Internal router setup
	"github.com/iliyamo/forum-core/internal/service"
	"github.com/iliyamo/forum-core/internal/sweeper"
)

func main() {
	cfg := config.Load() // Load environment config

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		Driver: cfg.DBDriver,
		User:   cfg.DBUser,
		Pass:   cfg.DBPass,
		Host:   cfg.DBHost,
		Port:   cfg.DBPort,
		Name:   cfg.DBName,
		Path:   cfg.DBPath,
	})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Redis is optional; without it rate limiting and caching switch off and
	// revocation stays in process memory.
	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		logger.Warn("redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}
	registry := newRegistry(cfg, rdb, logger)

	// Persistence and the audit hook.
	users := repository.NewUserRepo(db)
	bans := repository.NewBanRepo(db)
	topics := repository.NewTopicRepo(db)
	comments := repository.NewCommentRepo(db)
	audits := repository.NewAuditRepo(db)
	store := repository.NewStore(db, audit.NewRecorder(audits, logger))

	var publisher queue.Publisher = queue.NopPublisher{}
	if cfg.EventsEnabled {
		publisher = queue.NewAMQPPublisher(cfg.RabbitURL, logger)
		consumer := queue.NewConsumer(cfg.RabbitURL, cfg.EventsLogDir, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("moderation consumer stopped", "err", err)
			}
		}()
	}

	tokens := service.NewTokenService(store, users, service.TokenConfig{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
		BcryptCost: cfg.BcryptCost,
	}, logger)
	banSvc := service.NewBanService(store, users, bans, audits, registry, tokens, publisher, logger)
	topicSvc := service.NewTopicService(store, topics, audits, publisher, cfg.ArchiveAfterDays, logger)
	commentSvc := service.NewCommentService(store, topics, comments, users, audits, logger)
	userSvc := service.NewUserService(users, audits, logger)

	sweepers := sweeper.NewGroup(
		sweeper.NewBanExpiry(banSvc, cfg.BanDelay, logger),
		sweeper.NewTopicArchival(topicSvc, cfg.ArchiveDelay, logger),
		sweeper.NewCommentCount(commentSvc, cfg.CommentReevalDelay, logger),
		sweeper.NewRevocationPurge(registry, cfg.RevocationPurge, logger),
	)
	sweepers.Start(ctx)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.CookieBridge(), middleware.StripRevoked(registry, logger))

	auth := middleware.JWTAuth(tokens)
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, logger)

	router.RegisterRoutes(e, db) // Register application routes
	router.RegisterAuth(e, handler.NewAuthHandler(tokens, users, cfg.Env == "prod", logger), auth, limit)
	router.RegisterBans(e, handler.NewBanHandler(banSvc, logger), auth, cache)
	router.RegisterForum(e, handler.NewForumHandler(topicSvc, commentSvc, logger), auth, cache)
	router.RegisterUsers(e, handler.NewUserHandler(userSvc, logger), auth, cache)

	addr := ":" + cfg.Port // Address string with port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", "grace", cfg.ShutdownGrace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	if err := sweepers.Stop(shutdownCtx); err != nil {
		logger.Error("sweeper shutdown", "err", err)
	}
}

// newRegistry picks the revocation backend.  The Redis backend falls back to
// memory when Redis is unreachable.
func newRegistry(cfg config.Config, rdb *redis.Client, logger *slog.Logger) revocation.Registry {
	if cfg.Redis.UsesRedisRegistry() {
		if rdb != nil {
			logger.Info("revocation registry", "backend", "redis", "prefix", cfg.Redis.RevocationPrefix)
			return revocation.NewRedisRegistry(rdb, cfg.Redis.RevocationPrefix, logger)
		}
		logger.Warn("REVOCATION_BACKEND=redis but redis is unavailable; using memory")
	}
	logger.Info("revocation registry", "backend", "memory")
	return revocation.NewMemoryRegistry()
}
