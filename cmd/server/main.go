package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/api/handlers"
	"github.com/maheshrc27/crosspost/internal/api/middleware"
	job "github.com/maheshrc27/crosspost/internal/jobs"
	"github.com/maheshrc27/crosspost/internal/publisher"
	"github.com/maheshrc27/crosspost/internal/queue"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/repository/memory"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/storage"
	"github.com/robfig/cron"
)

type repositories struct {
	accounts repository.AccountRepository
	assets   repository.AssetRepository
	jobs     repository.PostingJobRepository
	attempts repository.AttemptRepository
	stats    repository.StatsRepository
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	switch len(cfg.SecretKey) {
	case 16, 24, 32:
	default:
		log.Fatalf("SECRET_KEY must be 16, 24 or 32 bytes, got %d", len(cfg.SecretKey))
	}

	ctx := context.Background()

	var db *sql.DB
	var repos repositories
	switch cfg.StoreDriver {
	case "memory":
		store := memory.NewStore()
		repos = repositories{store.Accounts(), store.Assets(), store.Jobs(), store.Attempts(), store.Stats()}
		slog.Warn("using in-memory store, data will not survive a restart")
	default:
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURI)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("Database is unreachable: %v", err)
		}
		if err := repository.Migrate(ctx, db); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
		repos = repositories{
			accounts: repository.NewAccountRepository(db),
			assets:   repository.NewAssetRepository(db),
			jobs:     repository.NewPostingJobRepository(db),
			attempts: repository.NewAttemptRepository(db),
			stats:    repository.NewStatsRepository(db),
		}
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	r2Store, err := storage.NewR2Store(ctx, cfg.R2)
	if err != nil {
		log.Fatalf("Failed to configure object storage: %v", err)
	}

	pub := publisher.NewClient(cfg.Publisher.BaseURL, cfg.Publisher.RatePerSec, publisher.WithMediaURL(r2Store.PublicURL))
	clock := service.RealClock{}

	accountService := service.NewAccountService(repos.accounts, pub, cfg.SecretKey)
	assetService := service.NewAssetService(repos.assets, r2Store, storage.NewCopyProcessor(r2Store),
		clock, cfg.Dispatch.AssetStaleAfter)
	jobService := service.NewJobService(repos.jobs, repos.accounts, repos.assets, repos.attempts,
		queue.NewScheduler(client), clock, service.JobOptions{
			MaxRetries:      cfg.Dispatch.MaxRetries,
			IntervalMinutes: cfg.Dispatch.IntervalMins,
			RetryDelay:      cfg.Dispatch.RetryDelay,
		})
	dispatchService := service.NewDispatchService(repos.jobs, repos.accounts, repos.attempts, accountService, pub, clock,
		service.DispatchOptions{
			BatchSize:      cfg.Dispatch.BatchSize,
			Workers:        cfg.Dispatch.Workers,
			PublishTimeout: cfg.Dispatch.PublishTimeout,
			StaleAfter:     cfg.Dispatch.StaleAfter,
			ReaperBatch:    cfg.Dispatch.ReaperBatch,
		})
	statsService := service.NewStatsService(repos.stats, clock, cfg.Stats.Horizon, cfg.Stats.Location())

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    service.MaxUploadSize + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "path", c.Path(), "error", err)
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())
	handlers.Register(api,
		handlers.NewAccountHandler(accountService, statsService),
		handlers.NewAssetHandler(assetService, jobService),
		handlers.NewJobHandler(jobService, dispatchService, statsService))

	// cron jobs
	dispatchJob := job.NewDispatchJob(dispatchService, assetService, 10*time.Minute)

	c := cron.New()
	if err := c.AddFunc(cfg.Dispatch.Cron, dispatchJob.RunPass); err != nil {
		log.Fatalf("Invalid DISPATCH_CRON %q: %v", cfg.Dispatch.Cron, err)
	}
	c.AddFunc("@every 00h01m00s", dispatchJob.ReapStale)
	c.Start()

	// queue
	queueW := queue.NewQueue(dispatchService)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 1,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeDispatchPass, queueW.HandleDispatchPassTask)

	log.Println("Starting the Asynq server...")
	if err := server.Start(mux); err != nil {
		log.Fatalf("Could not start Asynq server: %v", err)
	}

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	slog.Info("server is running", "addr", cfg.ListenAddr, "store", cfg.StoreDriver)

	gracefulShutdown(app, c, server, db)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func closeDB(db *sql.DB) {
	if db == nil {
		return
	}
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, c *cron.Cron, server *asynq.Server, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	c.Stop()
	server.Shutdown()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
