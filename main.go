package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sse2016-gomoku-fun/fun-portal/handlers"
	"github.com/sse2016-gomoku-fun/fun-portal/models"
	"github.com/sse2016-gomoku-fun/fun-portal/services"
	"github.com/sse2016-gomoku-fun/fun-portal/utils"
	"github.com/sse2016-gomoku-fun/fun-portal/workers"
)

func main() {
	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Submission{},
		&models.Match{},
		&models.Round{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	publisher, err := workers.NewRedisTaskPublisher(cfg.RedisURL)
	if err != nil {
		log.Fatal("failed to connect to task channel:", err)
	}
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, err := utils.NewS3BlobStore(ctx, cfg)
	if err != nil {
		log.Fatal("failed to initialize blob store:", err)
	}

	bus := services.NewEventBus()
	submissionService := services.NewSubmissionService(db, publisher, bus, cfg)
	matchService := services.NewMatchService(db, publisher, bus, submissionService, cfg)
	submissionService.Matches = matchService
	leaderboardService := services.NewLeaderboardService(db, submissionService, matchService)

	sched, err := matchService.StartRefreshScheduler(cfg.RefreshInterval)
	if err != nil {
		log.Fatal("failed to start refresh scheduler:", err)
	}
	defer func() { _ = sched.Shutdown() }()

	app := fiber.New(fiber.Config{
		// Executables and logs arrive as multipart uploads.
		BodyLimit: 2 * models.LimitSizeExecutable,
	})

	handlers.SetupSubmissionRoutes(app, &handlers.SubmissionHandler{
		Submissions: submissionService,
		Blobs:       blobs,
	}, cfg)
	handlers.SetupMatchRoutes(app, &handlers.MatchHandler{
		Matches: matchService,
		Blobs:   blobs,
	}, cfg)
	handlers.SetupScoreboardRoutes(app, &handlers.ScoreboardHandler{
		Leaderboard: leaderboardService,
	})
	handlers.SetupEventsRoutes(app, &handlers.EventsHandler{Bus: bus})

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ fun-portal running on %s", cfg.ListenAddr)
	log.Printf("✅ Match refresh sweep running (every %s)", cfg.RefreshInterval)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
