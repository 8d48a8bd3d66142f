package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/game-tracker/internal/auth"
	"github.com/iliyamo/game-tracker/internal/config"
	"github.com/iliyamo/game-tracker/internal/database"
	"github.com/iliyamo/game-tracker/internal/handler"
	"github.com/iliyamo/game-tracker/internal/mail"
	"github.com/iliyamo/game-tracker/internal/middleware"
	"github.com/iliyamo/game-tracker/internal/queue"
	"github.com/iliyamo/game-tracker/internal/rawg"
	"github.com/iliyamo/game-tracker/internal/repository"
	"github.com/iliyamo/game-tracker/internal/router"
	"github.com/iliyamo/game-tracker/internal/service"
	"github.com/iliyamo/game-tracker/internal/steam"
	"github.com/iliyamo/game-tracker/internal/worker"
)

func main() {
	cfg := config.Load() // Load environment config
	config.SetupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("schema setup failed")
	}

	rdb := config.NewRedisClient() // nil when redis is unreachable
	if rdb != nil {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()
	rateCfg := config.LoadRateLimitConfig()

	// Remote APIs
	steamClient := steam.NewClient(steam.Config{
		APIKey:    cfg.Steam.APIKey,
		APIBase:   cfg.Steam.APIBase,
		OpenIDURL: cfg.Steam.OpenIDURL,
		RealmURL:  cfg.Steam.RealmURL,
		ReturnURL: cfg.Steam.ReturnURL,
		Timeout:   cfg.HTTPClientTimeout,
	}, nil)
	rawgClient := rawg.NewClient(cfg.Catalog.APIKey, cfg.Catalog.BaseURL, cfg.HTTPClientTimeout, nil)

	// Repositories
	userRepo := repository.NewUserRepo(db)
	gameRepo := repository.NewGameRepo(db)
	instanceRepo := repository.NewGameInstanceRepo(db, gameRepo)
	reviewRepo := repository.NewReviewRepo(db)
	var gameCache service.GameCache
	if rdb != nil && cacheCfg.Enabled {
		gameCache = repository.NewGameCache(rdb, cacheCfg.Prefix, cacheCfg.GameTTL)
	}

	// Verification mail goes through the broker when one is configured and
	// is sent inline otherwise.
	notifier := mail.Notifier{Sender: mail.NewSender(cfg.SMTP)}
	publisher := queue.NewPublisher(cfg.RabbitURL)
	defer publisher.Close()
	var verification service.VerificationNotifier = notifier
	if publisher.Configured() {
		verification = publisher
	}

	// Services
	users := service.NewUserService(userRepo, verification, cfg.BcryptCost, nil)
	catalog := service.NewCatalogService(gameRepo, gameCache, rawgClient, service.CatalogOptions{
		PageSize:           cfg.Catalog.PageSize,
		MaxPagesPerTier:    cfg.Catalog.MaxPagesPerTier,
		Target:             cfg.Catalog.BootstrapTarget,
		BootstrapThreshold: cfg.Catalog.BootstrapThreshold,
		PageDelay:          cfg.Catalog.PageDelay,
		SearchPages:        cfg.Catalog.SearchPages,
		SearchPageSize:     cfg.Catalog.SearchPageSize,
	}, nil)
	instances := service.NewGameInstanceService(instanceRepo, catalog, nil)
	library := service.NewLibraryService(userRepo, steamClient, catalog, instanceRepo, nil)
	reviews := service.NewReviewService(reviewRepo, instanceRepo, nil)

	if cfg.IsDev() {
		if err := users.SeedDevUsers(ctx); err != nil {
			log.Error().Err(err).Msg("seeding dev users failed")
		}
	}

	// Authentication
	tokens := auth.NewTokenService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret,
		time.Duration(cfg.AccessTTLMin)*time.Minute, time.Duration(cfg.RefreshTTLDays)*24*time.Hour, nil)
	dispatcher := auth.NewDispatcher(
		auth.NewPasswordStrategy(users, tokens),
		auth.NewSteamStrategy(steamClient, users, tokens),
	)

	// Background consumers
	if publisher.Configured() {
		consumers := []*queue.Consumer{
			{URL: cfg.RabbitURL, Queue: queue.VerificationQueue, Prefetch: 10, Handler: worker.VerificationEmail(notifier)},
			{URL: cfg.RabbitURL, Queue: queue.LibrarySyncQueue, Prefetch: 1, Handler: worker.LibrarySync(library)},
		}
		for _, c := range consumers {
			go func(c *queue.Consumer) {
				if err := c.Run(ctx); err != nil {
					log.Error().Err(err).Str("queue", c.Queue).Msg("consumer stopped")
				}
			}(c)
		}
	} else {
		log.Info().Msg("RABBITMQ_URL not set; verification mail is sent inline and library sync runs synchronously")
	}

	if cfg.Catalog.BootstrapOnStart {
		go catalog.BootstrapIfNeeded(ctx)
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger())

	limiter := middleware.NewTokenBucket(rateCfg, rdb)
	responseCache := middleware.NewRedisCache(cacheCfg, rdb)

	gameHandler := handler.NewGameHandler(ctx, catalog)
	userHandler := handler.NewUserHandler(users)
	reviewHandler := handler.NewReviewHandler(reviews)

	router.RegisterRoutes(e, &handler.HealthHandler{DB: db})
	router.RegisterAuth(e, handler.NewAuthHandler(dispatcher, users, steamClient), limiter)
	router.RegisterCatalog(e, gameHandler, reviewHandler, responseCache)
	router.RegisterReviews(e, reviewHandler, tokens)
	router.RegisterMe(e, userHandler, handler.NewGameInstanceHandler(instances),
		handler.NewLibraryHandler(library, publisher), reviewHandler, tokens)
	router.RegisterAdmin(e, userHandler, gameHandler, tokens)

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
