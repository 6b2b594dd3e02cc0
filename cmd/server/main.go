package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/faceswaplab/api/internal/client"
	"github.com/faceswaplab/api/internal/config"
	"github.com/faceswaplab/api/internal/executor"
	"github.com/faceswaplab/api/internal/handler"
	"github.com/faceswaplab/api/internal/imaging"
	"github.com/faceswaplab/api/internal/middleware"
	"github.com/faceswaplab/api/internal/service"
	"github.com/faceswaplab/api/internal/storage"
	"github.com/faceswaplab/api/internal/store"
	"github.com/faceswaplab/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Durable data layout + job record store
	layout, err := storage.NewLayout(cfg.Data.Dir)
	if err != nil {
		log.Fatalf("Failed to prepare data dir: %v", err)
	}
	jobStore, err := store.Open(layout.DBPath())
	if err != nil {
		log.Fatalf("Failed to open job store: %v", err)
	}
	defer jobStore.Close()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Swap provider (constructed once, injected everywhere)
	provider := client.NewOpenRouterClient(&cfg.OpenRouter)

	// Output artifacts: R2 when configured, local disk otherwise
	var artifacts storage.ArtifactStore = storage.NewLocalStore(layout, cfg.Data.BaseURL)
	r2Configured := false
	if r2Client, err := client.NewR2Client(&cfg.R2); err == nil {
		artifacts = storage.NewR2Store(r2Client)
		r2Configured = true
	}

	// Services and handlers
	jobService := service.NewJobService(jobStore, asynqClient, layout, artifacts, imaging.NewMimeValidator(), provider)
	jobHandler := handler.NewJobHandler(jobService)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    32 * 1024 * 1024, // two 15MB images plus form overhead
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Request-Id",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		redisOK := redisClient.Ping(c.Context()).Err() == nil
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"provider": provider.IsConfigured(),
				"redis":    redisOK,
				"r2":       r2Configured,
			},
		})
	})

	// Output artifacts (and saved inputs) are served from the data dir
	app.Static("/static", layout.DataDir())

	// API routes
	api := app.Group("/api/v1/face-swap")
	api.Post("/jobs", jobHandler.Create)
	api.Get("/jobs/:referenceId", jobHandler.Status)

	// Background executor
	exec := executor.New(jobStore, provider, artifacts, layout, cfg.Retry, cfg.OpenRouter.AttemptTimeout)

	// Start Asynq worker server
	go startWorkerServer(cfg, exec)

	log.Printf("Startup config: base_url=%s data_dir=%s model=%s provider_key_set=%v",
		cfg.Data.BaseURL, cfg.Data.Dir, cfg.OpenRouter.Model, provider.IsConfigured())

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, exec *executor.Executor) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				"faceswap": 10,
			},
		},
	)

	swapWorker := worker.NewSwapWorker(exec)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeFaceSwap, swapWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
