package handlers

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sse2016-gomoku-fun/fun-portal/models"
	"github.com/sse2016-gomoku-fun/fun-portal/services"
	"github.com/sse2016-gomoku-fun/fun-portal/utils"
)

func newScoreboardApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Submission{}, &models.Match{}, &models.Round{},
	); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	cfg := &utils.Config{MinSubmitInterval: time.Second, RoundsPerMatch: 2}
	bus := services.NewEventBus()
	submissions := services.NewSubmissionService(db, nil, bus, cfg)
	matches := services.NewMatchService(db, nil, bus, submissions, cfg)
	submissions.Matches = matches
	leaderboard := services.NewLeaderboardService(db, submissions, matches)

	app := fiber.New()
	SetupScoreboardRoutes(app, &ScoreboardHandler{Leaderboard: leaderboard})
	return app, db
}

func fetchScoreboard(t *testing.T, app *fiber.App, target string) []services.LeaderboardRow {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	req.Header.Set("X-User-ID", "alice")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s failed: %v", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("%s returned %d", target, resp.StatusCode)
	}
	var rows []services.LeaderboardRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("failed to decode %s response: %v", target, err)
	}
	return rows
}

func TestScoreboardRelaxedQueryParsing(t *testing.T) {
	app, db := newScoreboardApp(t)
	if err := db.Create(&models.User{ID: "alice", Name: "alice"}).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	err := db.Create(&models.Submission{
		ID:     uuid.NewString(),
		UserID: "alice",
		Code:   "package main",
		Status: models.SubmissionStatusRunning,
	}).Error
	if err != nil {
		t.Fatalf("failed to create submission: %v", err)
	}

	for _, target := range []string{"/scoreboard?relaxed=1", "/scoreboard?relaxed=true"} {
		rows := fetchScoreboard(t, app, target)
		if len(rows) != 1 || rows[0].Submission == nil {
			t.Errorf("%s should list the running submission", target)
		}
	}

	// Absent or false-y values keep strict mode.
	for _, target := range []string{"/scoreboard", "/scoreboard?relaxed=0", "/scoreboard?relaxed=false"} {
		rows := fetchScoreboard(t, app, target)
		if len(rows) != 1 {
			t.Fatalf("%s returned %d rows, want 1", target, len(rows))
		}
		if rows[0].Submission != nil {
			t.Errorf("%s listed a running submission in strict mode", target)
		}
	}
}

func TestScoreboardRequiresUserContext(t *testing.T) {
	app, _ := newScoreboardApp(t)
	resp, err := app.Test(httptest.NewRequest("GET", "/scoreboard", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("without identity headers: got %d, want 401", resp.StatusCode)
	}
}
