package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sse2016-gomoku-fun/fun-portal/models"
	"github.com/sse2016-gomoku-fun/fun-portal/utils"
	"github.com/sse2016-gomoku-fun/fun-portal/workers"
)

// fakePublisher records dispatched tasks instead of touching Redis. Set
// compileErr / judgeErr to make the channel fail.
type fakePublisher struct {
	mu       sync.Mutex
	compiles []workers.CompileTask
	judges   []workers.JudgeTask

	compileErr error
	judgeErr   error
}

func (p *fakePublisher) PublishCompile(_ context.Context, task workers.CompileTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.compileErr != nil {
		return p.compileErr
	}
	p.compiles = append(p.compiles, task)
	return nil
}

func (p *fakePublisher) PublishJudge(_ context.Context, task workers.JudgeTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.judgeErr != nil {
		return p.judgeErr
	}
	p.judges = append(p.judges, task)
	return nil
}

func (p *fakePublisher) compileTasks() []workers.CompileTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]workers.CompileTask(nil), p.compiles...)
}

func (p *fakePublisher) judgeTasks() []workers.JudgeTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]workers.JudgeTask(nil), p.judges...)
}

type testEnv struct {
	db          *gorm.DB
	publisher   *fakePublisher
	bus         *EventBus
	submissions *SubmissionService
	matches     *MatchService
	leaderboard *LeaderboardService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	// sqlite takes one writer at a time; a single connection serializes
	// concurrent callers instead of surfacing lock errors.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access test db pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&models.User{}, &models.Submission{}, &models.Match{}, &models.Round{},
	); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	cfg := &utils.Config{
		MinSubmitInterval: 10 * time.Second,
		RoundsPerMatch:    2,
	}
	publisher := &fakePublisher{}
	bus := NewEventBus()
	submissions := NewSubmissionService(db, publisher, bus, cfg)
	matches := NewMatchService(db, publisher, bus, submissions, cfg)
	submissions.Matches = matches
	leaderboard := NewLeaderboardService(db, submissions, matches)

	return &testEnv{
		db:          db,
		publisher:   publisher,
		bus:         bus,
		submissions: submissions,
		matches:     matches,
		leaderboard: leaderboard,
	}
}

func (e *testEnv) createUser(t *testing.T, name string) *models.User {
	t.Helper()
	user := &models.User{ID: name, Name: name}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return user
}

// seedSubmission inserts a submission directly, bypassing the state
// machine, for tests that need a user already in a given rest state.
func (e *testEnv) seedSubmission(t *testing.T, userID, status string, createdAt time.Time) *models.Submission {
	t.Helper()
	sub := &models.Submission{
		ID:     uuid.NewString(),
		UserID: userID,
		Code:   "package main",
		Status: status,
	}
	sub.CreatedAt = createdAt
	if err := e.db.Create(sub).Error; err != nil {
		t.Fatalf("failed to seed submission: %v", err)
	}
	return sub
}

// compileSuccess drives a pending submission through a successful compile,
// returning the refreshed record.
func (e *testEnv) compileSuccess(t *testing.T, sub *models.Submission) *models.Submission {
	t.Helper()
	out, err := e.submissions.AcceptCompileResult(
		context.Background(), sub.ID, *sub.TaskToken, true, "ok", nil)
	if err != nil {
		t.Fatalf("compile result failed: %v", err)
	}
	return out
}

func (e *testEnv) matchesOf(t *testing.T, submissionID string) []models.Match {
	t.Helper()
	var out []models.Match
	err := e.db.
		Preload("Rounds", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("u1_submission_id = ? OR u2_submission_id = ?", submissionID, submissionID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		t.Fatalf("failed to load matches: %v", err)
	}
	return out
}
