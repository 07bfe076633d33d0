package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bounty-quest/clients"
	"bounty-quest/config"
	"bounty-quest/handlers"
	"bounty-quest/logging"
	"bounty-quest/middleware"
	"bounty-quest/services"
	"bounty-quest/store"
	"bounty-quest/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

func main() {
	found, err := config.LoadDotEnv()
	if err != nil {
		log.Fatalf("failed to read .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.NewZapLogger(logging.LogLevel(cfg.LogLevel), "bounty-quest")
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if !found {
		logger.Info("no .env file found, reading environment variables directly")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("database unavailable", "error", err)
	}
	if err := store.Migrate(db); err != nil {
		logger.Fatal("migration failed", "error", err)
	}
	tasks := store.NewTaskStore(db)
	submissions := store.NewSubmissionStore(db)
	identities := store.NewIdentityStore(db)

	if cfg.EVM.RPCURL == "" {
		logger.Fatal("EVM_RPC_URL is required for reward distribution")
	}
	ledger, err := clients.DialEVMLedger(ctx, cfg.EVM.RPCURL, clients.EVMLedgerConfig{
		ChainID:       big.NewInt(cfg.EVM.ChainID),
		PrivateKey:    cfg.EVM.PrivateKey,
		AwardContract: cfg.EVM.AwardContract,
		TokenContract: cfg.EVM.TokenContract,
		TokenDecimals: int32(cfg.EVM.TokenDecimals),
	}, logger)
	if err != nil {
		logger.Fatal("failed to set up EVM ledger", "error", err)
	}
	logger.Info("EVM ledger ready", "operator", ledger.From().Hex())

	var publisher services.MetadataPublisher
	if cfg.R2.Enabled() {
		r2Client, err := clients.NewR2Client(ctx, cfg.R2)
		if err != nil {
			logger.Fatal("failed to initialize R2 client", "error", err)
		}
		publisher = clients.NewR2MetadataPublisher(r2Client, cfg.R2, logger)
	} else {
		logger.Warn("R2 not configured, award metadata is served from this API")
	}

	gemini := clients.NewGeminiClient(cfg.Gemini.BaseURL, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.ExternalTimeout, logger)
	twitter := clients.NewTwitterClient(cfg.Twitter.BaseURL, cfg.Twitter.BearerToken, cfg.Twitter.UserToken, cfg.ExternalTimeout, logger)
	var announcer services.PostPublisher
	if cfg.Twitter.UserToken != "" {
		announcer = twitter
	}

	clock := clockwork.NewRealClock()
	taskService := services.NewTaskService(tasks, gemini, announcer, clock, cfg.ExternalTimeout, cfg.PublicBaseURL, logger)
	lifecycle := services.NewLifecycleService(tasks, submissions, clock, cfg.GracePeriod, logger)
	submissionService := services.NewSubmissionService(tasks, submissions, identities, twitter, gemini, clock, cfg.ExternalTimeout, logger)
	identityService := services.NewIdentityService(identities, twitter, clock, cfg.ExternalTimeout, logger)
	rewardService := services.NewRewardService(tasks, ledger, publisher, clock, services.RewardConfig{
		PublicBaseURL:   cfg.PublicBaseURL,
		LeaseTTL:        cfg.DistributionLeaseTTL,
		LedgerTimeout:   cfg.LedgerTimeout,
		ExternalTimeout: cfg.ExternalTimeout,
	}, logger)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(logger),
		ReadTimeout:  15 * time.Second,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       86400,
	}))

	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, rate limiting fails open", "error", err)
		}
		app.Use(middleware.RateLimit(middleware.NewRateLimiter(rdb, cfg.Redis.RatePerMinute, clock), logger))
	}

	operator := middleware.OperatorAuth(cfg.AuthToken, logger)
	handlers.SetupSystemRoutes(app, db)
	handlers.SetupTaskRoutes(app, operator, taskService, lifecycle, submissionService, logger)
	handlers.SetupRewardRoutes(app, operator, rewardService, logger)
	handlers.SetupParticipantRoutes(app, submissionService, identityService, logger)

	if cfg.SweepInterval > 0 {
		sched, err := workers.StartSweepScheduler(ctx, lifecycle, cfg.SweepInterval, clock, logger)
		if err != nil {
			logger.Fatal("failed to start sweep scheduler", "error", err)
		}
		defer func() { _ = sched.Shutdown() }()
	} else {
		logger.Info("sweep scheduler disabled, use POST /tasks/sweep")
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server error", "error", err)
			stop()
		}
	}()
	logger.Info("server running", "port", cfg.Port, "origins", cfg.AllowedOrigins)

	<-ctx.Done()
	logger.Info("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
