package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sse2016-gomoku-fun/fun-portal/models"
	"github.com/sse2016-gomoku-fun/fun-portal/utils"
	"github.com/sse2016-gomoku-fun/fun-portal/workers"
)

// SubmissionService owns the submission lifecycle: user submits code, a
// compile task is dispatched, and authenticated worker callbacks drive the
// submission to running / ce / se. Every terminal transition is a
// compare-and-swap on (id, task_token, status), so a re-delivered callback
// can never double-apply.
type SubmissionService struct {
	DB        *gorm.DB
	Publisher workers.TaskPublisher
	Bus       *EventBus

	// Matches is attached after construction; compile success triggers
	// match creation exactly once through the token CAS.
	Matches *MatchService

	MinSubmitInterval time.Duration

	now func() time.Time
}

func NewSubmissionService(db *gorm.DB, pub workers.TaskPublisher, bus *EventBus, cfg *utils.Config) *SubmissionService {
	return &SubmissionService{
		DB:                db,
		Publisher:         pub,
		Bus:               bus,
		MinSubmitInterval: cfg.MinSubmitInterval,
		now:               time.Now,
	}
}

// GetByID loads one submission.
func (s *SubmissionService) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	var sub models.Submission
	err := s.DB.WithContext(ctx).First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Msg: "Submission not found"}
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UserSubmissions returns a user's submission history, newest first.
func (s *SubmissionService) UserSubmissions(ctx context.Context, userID string) ([]models.Submission, error) {
	var subs []models.Submission
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&subs).Error
	return subs, err
}

// IsUserAllowedToSubmit applies the resubmission throttle: always allowed
// with no history or right after a compile error, otherwise only strictly
// past the minimum interval since the last submission.
func (s *SubmissionService) IsUserAllowedToSubmit(ctx context.Context, userID string) (bool, error) {
	var last models.Submission
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if last.Status == models.SubmissionStatusCompileError {
		return true, nil
	}
	return s.now().Sub(last.CreatedAt) > s.MinSubmitInterval, nil
}

// Submit persists new code as a pending submission and dispatches its
// compile task.
func (s *SubmissionService) Submit(ctx context.Context, userID, code string) (*models.Submission, error) {
	if code == "" {
		return nil, &ValidationError{Msg: "Your source code is empty."}
	}
	if len(code) > models.LimitSizeCode {
		return nil, &ValidationError{Msg: "Your source code is too large."}
	}
	allowed, err := s.IsUserAllowedToSubmit(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, &PolicyError{Msg: "You are not allowed to submit new code currently"}
	}

	token := uuid.NewString()
	sub := &models.Submission{
		ID:        uuid.NewString(),
		UserID:    userID,
		Code:      code,
		Status:    models.SubmissionStatusPending,
		TaskToken: &token,
	}
	if err := s.DB.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, err
	}

	if err := s.Publisher.PublishCompile(ctx, workers.CompileTask{
		SubmissionID: sub.ID,
		Token:        token,
	}); err != nil {
		// The task never reached a worker. Remove the record so the
		// resubmission throttle is not held by a dead submission.
		if derr := s.DB.WithContext(ctx).Delete(&models.Submission{}, "id = ?", sub.ID).Error; derr != nil {
			log.Printf("[SUBMISSION] Failed to remove undispatched submission %s: %v", sub.ID, derr)
		}
		return nil, err
	}

	s.Bus.Publish(Event{Name: EventSubmissionNew, Payload: sub})
	return sub, nil
}

// AcceptCompileStart marks a submission as compiling. The worker must
// present the live task token; re-entry from compiling is rejected.
func (s *SubmissionService) AcceptCompileStart(ctx context.Context, id, token string) (*models.Submission, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND task_token = ? AND status = ?", id, token, models.SubmissionStatusPending).
		Update("status", models.SubmissionStatusCompiling)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, s.explainCompileReject(ctx, id, token)
	}

	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Bus.Publish(Event{Name: EventSubmissionStatusChanged, Payload: sub})
	return sub, nil
}

// AcceptCompileResult consumes the compile task: stores the worker's
// output, moves the submission to running or ce, and on success creates the
// match batch. The token is cleared in the same statement, so a duplicate
// delivery fails the CAS instead of creating a second batch.
func (s *SubmissionService) AcceptCompileResult(ctx context.Context, id, token string, success bool, text string, executableRef *string) (*models.Submission, error) {
	if !success && executableRef != nil {
		return nil, &ValidationError{Msg: "No executable should be supplied"}
	}
	if len(text) > models.LimitSizeText {
		return nil, &ValidationError{Msg: "Result text is too large."}
	}

	newStatus := models.SubmissionStatusCompileError
	if success {
		newStatus = models.SubmissionStatusRunning
	}
	updates := map[string]interface{}{
		"status":     newStatus,
		"text":       text,
		"task_token": nil,
	}
	if executableRef != nil {
		updates["executable_ref"] = *executableRef
	}

	res := s.DB.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND task_token = ? AND status IN ?", id, token,
			[]string{models.SubmissionStatusPending, models.SubmissionStatusCompiling}).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, &AuthError{Msg: "Task token does not match"}
	}

	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if success {
		// The token is already consumed, so failing here would only make
		// the worker's retry bounce off the CAS. Log it; a recompile
		// rebuilds the batch.
		if err := s.Matches.CreateMatchesForSubmission(ctx, sub); err != nil {
			log.Printf("[SUBMISSION] Failed to create match batch for %s: %v", sub.ID, err)
		}
	}
	s.Bus.Publish(Event{Name: EventSubmissionStatusChanged, Payload: sub})
	return sub, nil
}

// AcceptSystemError records a worker-side failure. The failure is data: the
// submission lands in se with the diagnostic text and the token consumed.
func (s *SubmissionService) AcceptSystemError(ctx context.Context, id, token, text string) (*models.Submission, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND task_token = ? AND status IN ?", id, token,
			[]string{models.SubmissionStatusPending, models.SubmissionStatusCompiling}).
		Updates(map[string]interface{}{
			"status":     models.SubmissionStatusSystemError,
			"text":       text,
			"task_token": nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, &AuthError{Msg: "Task token does not match"}
	}

	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Bus.Publish(Event{Name: EventSubmissionStatusChanged, Payload: sub})
	return sub, nil
}

// RecompileForMatch is the manual recovery path for a submission whose
// worker never called back. It resets the submission and dispatches a new
// compile task with a fresh token, invalidating whatever is still in
// flight.
func (s *SubmissionService) RecompileForMatch(ctx context.Context, id string) (*models.Submission, error) {
	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.TaskToken != nil {
		log.Printf("[SUBMISSION] Recompile of %s invalidates live task token", id)
	}

	token := uuid.NewString()
	err = s.DB.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         models.SubmissionStatusPending,
			"text":           "",
			"executable_ref": nil,
			"task_token":     token,
		}).Error
	if err != nil {
		return nil, err
	}

	if err := s.Publisher.PublishCompile(ctx, workers.CompileTask{
		SubmissionID: id,
		Token:        token,
	}); err != nil {
		return nil, err
	}

	sub, err = s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Bus.Publish(Event{Name: EventSubmissionStatusChanged, Payload: sub})
	return sub, nil
}

// LastSubmissionsByUser returns each user's newest listed submission,
// ordered by user id so downstream folds are deterministic. Strict mode
// lists only effective submissions; relaxed mode also lists running ones.
func (s *SubmissionService) LastSubmissionsByUser(ctx context.Context, onlyEffective bool) ([]models.Submission, error) {
	statuses := []string{models.SubmissionStatusEffective}
	if !onlyEffective {
		statuses = append(statuses, models.SubmissionStatusRunning)
	}

	var subs []models.Submission
	err := s.DB.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("user_id ASC, created_at DESC, id DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}

	var out []models.Submission
	seen := make(map[string]bool)
	for _, sub := range subs {
		if seen[sub.UserID] {
			continue
		}
		seen[sub.UserID] = true
		out = append(out, sub)
	}
	return out, nil
}

// explainCompileReject distinguishes a token mismatch from an invalid
// pre-state after a failed CAS. Reads only; the reject is already decided.
func (s *SubmissionService) explainCompileReject(ctx context.Context, id, token string) error {
	var sub models.Submission
	err := s.DB.WithContext(ctx).First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &AuthError{Msg: "Task token does not match"}
	}
	if err != nil {
		return err
	}
	if sub.TaskToken == nil || *sub.TaskToken != token {
		return &AuthError{Msg: "Task token does not match"}
	}
	return &StateError{Msg: "Submission is not pending"}
}
