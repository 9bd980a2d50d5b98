package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/api/handlers"
	"github.com/maheshrc27/postdispatch/internal/api/middleware"
	job "github.com/maheshrc27/postdispatch/internal/jobs"
	"github.com/maheshrc27/postdispatch/internal/publisher"
	"github.com/maheshrc27/postdispatch/internal/queue"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"github.com/maheshrc27/postdispatch/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := config.LoadConfig()
	if len(cfg.SecretKey) != 32 {
		log.Fatal("SECRET_KEY must be exactly 32 bytes")
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: 5 * time.Minute,
		BodyLimit:    10 * 1024 * 1024, // 10 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("unhandled error", "event", "request_failed", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return origin == cfg.FrontendURL
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	postRepo := repository.NewPostRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	historyRepo := repository.NewPostingHistoryRepository(db)
	designRepo := repository.NewDesignRepository(db)

	r2Service, err := service.NewR2Service(context.Background(), cfg.R2)
	if err != nil {
		log.Fatalf("Failed to configure R2: %v", err)
	}

	httpClient := &http.Client{Timeout: cfg.Publishing.Timeout + 5*time.Second}
	registry := publisher.NewDefaultRegistry(cfg.API, httpClient)
	slog.Info("publishers registered", "event", "publishers_registered", "platforms", registry.Platforms())
	oauthApps := service.NewOAuthApps(*cfg)

	accountService := service.NewAccountService(socialAccountRepo, []byte(cfg.SecretKey), nil)
	designService := service.NewDesignService(designRepo, r2Service, nil)
	dispatchService := service.NewDispatchService(db, accountService, historyRepo, registry, cfg.Publishing, nil)
	schedulerService := service.NewSchedulerService(postRepo, historyRepo, accountService, designService, registry, *cfg, nil)
	postService := service.NewPostService(db, postRepo, historyRepo, designRepo, accountService,
		dispatchService, designService, queue.NewEnqueuer(client), nil)
	platformService := service.NewPlatformService(*cfg, oauthApps, accountService, httpClient, nil)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	platform := handlers.NewPlatformHandler(platformService, accountService, *cfg)
	app.Get("/auth/:platform", authMiddleware.AuthMiddleware(), platform.AddSocialAccount)
	app.Get("/auth/:platform/callback", platform.CallbackHandler)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	// social accounts api routes
	api.Get("/accounts", platform.ListSocialAccounts)
	api.Post("/accounts/remove", platform.DeleteSocialAccount)

	post := handlers.NewPostHandler(postService)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/:id/publish", post.PublishPost)
	api.Post("/posts/:id/schedule", post.SchedulePost)
	api.Get("/posts/:id/history", post.PostHistory)

	design := handlers.NewDesignHandler(designService)
	api.Post("/designs/upload", design.UploadDesign)

	// cron jobs
	sweepJob := job.NewSweepJob(schedulerService, nil)
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, oauthApps, cfg.API.InstagramURL, []byte(cfg.SecretKey), httpClient, nil)

	c, err := job.NewCron(cfg.Sweep, sweepJob, refreshTokenJob, nil)
	if err != nil {
		log.Fatalf("Failed to configure jobs: %v", err)
	}
	c.Start()

	//queue
	queueW := queue.NewQueue(schedulerService, nil)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: cfg.Sweep.Concurrency,
	})

	go func() {
		log.Println("Starting the Asynq server...")
		if err := server.Run(queueW.Mux()); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	slog.Info("server started", "event", "server_started", "port", cfg.Port)

	waitForShutdown()

	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}
	<-c.Stop().Done()
	server.Shutdown()
	log.Println("Server shutdown complete.")
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
}
