package services

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sse2016-gomoku-fun/fun-portal/models"
	"github.com/sse2016-gomoku-fun/fun-portal/utils"
	"github.com/sse2016-gomoku-fun/fun-portal/workers"
)

// MatchService owns match creation, round scheduling and per-round result
// ingestion. A match and its rounds are created in one transaction, so a
// match is never visible without both referenced submissions; round
// completion is a compare-and-swap on the pending status, giving every
// round an at-most-once terminal transition.
type MatchService struct {
	DB          *gorm.DB
	Publisher   workers.TaskPublisher
	Bus         *EventBus
	Submissions *SubmissionService

	RoundsPerMatch int
}

func NewMatchService(db *gorm.DB, pub workers.TaskPublisher, bus *EventBus, subs *SubmissionService, cfg *utils.Config) *MatchService {
	rounds := cfg.RoundsPerMatch
	if rounds < 1 {
		rounds = 1
	}
	return &MatchService{
		DB:             db,
		Publisher:      pub,
		Bus:            bus,
		Submissions:    subs,
		RoundsPerMatch: rounds,
	}
}

// GetByID loads one match with its rounds in creation order.
func (s *MatchService) GetByID(ctx context.Context, id string) (*models.Match, error) {
	var match models.Match
	err := s.DB.WithContext(ctx).
		Preload("Rounds", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&match, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Msg: "Match not found"}
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// GetRound loads one round, checking it belongs to the given match.
func (s *MatchService) GetRound(ctx context.Context, matchID, roundID string) (*models.Round, error) {
	var round models.Round
	err := s.DB.WithContext(ctx).
		First(&round, "id = ? AND match_id = ?", roundID, matchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Msg: "Round not found"}
	}
	if err != nil {
		return nil, err
	}
	return &round, nil
}

// CreateMatchesForSubmission pairs a freshly compiled submission against
// every other user's current best submission and dispatches one judge task
// per round. The caller (the compile-result CAS) guarantees this runs once
// per successful compile.
func (s *MatchService) CreateMatchesForSubmission(ctx context.Context, sub *models.Submission) error {
	// Advisory only: a race between independent users' compiles is
	// expected and harmless.
	var compiling int64
	if err := s.DB.WithContext(ctx).
		Model(&models.Submission{}).
		Where("status = ?", models.SubmissionStatusCompiling).
		Count(&compiling).Error; err == nil && compiling != 0 {
		log.Printf("[MATCH] Expect 0 compiling submissions during match creation, got %d", compiling)
	}

	opponents, err := s.Submissions.LastSubmissionsByUser(ctx, false)
	if err != nil {
		return err
	}

	for _, opp := range opponents {
		if opp.UserID == sub.UserID {
			continue
		}
		match, err := s.createMatch(ctx, sub, &opp)
		if err != nil {
			return err
		}
		for _, round := range match.Rounds {
			err := s.Publisher.PublishJudge(ctx, workers.JudgeTask{
				MatchID:       match.ID,
				Submission1ID: match.U1SubmissionID,
				Submission2ID: match.U2SubmissionID,
				Round: workers.RoundSpec{
					RoundID: round.ID,
					Token:   *round.TaskToken,
					Seq:     round.Seq,
					Swapped: round.Swapped,
				},
			})
			if err != nil {
				return err
			}
		}
		s.Bus.Publish(Event{Name: EventMatchNew, Payload: match})
	}
	return nil
}

// createMatch writes the match and its round plan atomically. Roles
// alternate over the rounds so first-move bias cancels out.
func (s *MatchService) createMatch(ctx context.Context, sub, opp *models.Submission) (*models.Match, error) {
	match := &models.Match{
		ID:             uuid.NewString(),
		U1ID:           sub.UserID,
		U2ID:           opp.UserID,
		U1SubmissionID: sub.ID,
		U2SubmissionID: opp.ID,
		Status:         models.MatchStatusInProgress,
	}
	for seq := 0; seq < s.RoundsPerMatch; seq++ {
		token := uuid.NewString()
		match.Rounds = append(match.Rounds, models.Round{
			ID:        uuid.NewString(),
			MatchID:   match.ID,
			Seq:       seq,
			Swapped:   seq%2 == 1,
			Status:    models.RoundStatusPending,
			TaskToken: &token,
		})
	}
	if err := s.DB.WithContext(ctx).Create(match).Error; err != nil {
		return nil, err
	}
	return match, nil
}

// AcceptRoundStart records that judging has begun. The round stays pending
// for everyone else until a terminal result arrives.
func (s *MatchService) AcceptRoundStart(ctx context.Context, matchID, roundID string) (*models.Match, error) {
	round, err := s.GetRound(ctx, matchID, roundID)
	if err != nil {
		return nil, err
	}
	if round.BeganAt == nil {
		now := s.Submissions.now()
		err = s.DB.WithContext(ctx).
			Model(&models.Round{}).
			Where("id = ? AND began_at IS NULL", roundID).
			Update("began_at", now).Error
		if err != nil {
			return nil, err
		}
	}
	return s.GetByID(ctx, matchID)
}

// AcceptRoundResult completes one round and refolds the match aggregates
// from all terminal rounds. Completing an already-terminal round is a
// StateError, never a double-apply. The CAS and the refold share one
// transaction under a lock on the match row, so concurrent completions on
// the same match serialize and the fold always sees every terminal round.
func (s *MatchService) AcceptRoundResult(ctx context.Context, matchID, roundID, outcome, summary string, logRef *string, text string) (*models.Match, error) {
	switch outcome {
	case models.RoundOutcomeU1Win, models.RoundOutcomeU2Win, models.RoundOutcomeDraw, models.RoundOutcomeError:
	default:
		return nil, &ValidationError{Msg: "Unknown round outcome"}
	}

	updates := map[string]interface{}{
		"status":     models.RoundStatusCompleted,
		"outcome":    outcome,
		"summary":    summary,
		"text":       text,
		"task_token": nil,
	}
	if logRef != nil {
		updates["log_blob_ref"] = *logRef
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Match
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, "id = ?", matchID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Msg: "Match not found"}
		}
		if err != nil {
			return err
		}

		res := tx.Model(&models.Round{}).
			Where("id = ? AND match_id = ? AND status = ?", roundID, matchID, models.RoundStatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Either the round is unknown or it is already terminal.
			var round models.Round
			err := tx.First(&round, "id = ? AND match_id = ?", roundID, matchID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Msg: "Round not found"}
			}
			if err != nil {
				return err
			}
			return &StateError{Msg: "Round is already completed"}
		}

		return refoldMatch(tx, matchID)
	})
	if err != nil {
		return nil, err
	}

	match, err := s.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	round, err := s.GetRound(ctx, matchID, roundID)
	if err != nil {
		return nil, err
	}
	s.Bus.Publish(Event{Name: EventRoundStatusChanged, Payload: round})
	s.Bus.Publish(Event{Name: EventMatchStatusChanged, Payload: match})

	if match.Status == models.MatchStatusComplete {
		s.promoteIfFullyJudged(ctx, match.U1SubmissionID)
		s.promoteIfFullyJudged(ctx, match.U2SubmissionID)
	}
	return match, nil
}

// AcceptRoundSystemError is the judge-side failure report; the outcome is
// forced to error and recorded like any other completion.
func (s *MatchService) AcceptRoundSystemError(ctx context.Context, matchID, roundID, text string) (*models.Match, error) {
	return s.AcceptRoundResult(ctx, matchID, roundID, models.RoundOutcomeError, "", nil, text)
}

// RefreshAllMatches is the reconciliation sweep: it recomputes every
// match's aggregates and status from its rounds. Normal flow never needs
// it; it repairs state after manual data fixes or missed callbacks.
func (s *MatchService) RefreshAllMatches(ctx context.Context) (int, error) {
	var ids []string
	if err := s.DB.WithContext(ctx).
		Model(&models.Match{}).
		Order("created_at ASC, id ASC").
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}

	for _, id := range ids {
		match, err := s.refreshMatch(ctx, id)
		if err != nil {
			return 0, err
		}
		if match.Status == models.MatchStatusComplete {
			s.promoteIfFullyJudged(ctx, match.U1SubmissionID)
			s.promoteIfFullyJudged(ctx, match.U2SubmissionID)
		}
	}
	log.Printf("[MATCH] Refreshed %d matches", len(ids))
	return len(ids), nil
}

// MatchesForListedSubmissions returns all matches whose two submissions
// both belong to the listed set, in fixed (created_at, id) order so the
// leaderboard's first-encountered rule is well-defined.
func (s *MatchService) MatchesForListedSubmissions(ctx context.Context, submissionIDs []string) ([]models.Match, error) {
	if len(submissionIDs) == 0 {
		return nil, nil
	}
	var matches []models.Match
	err := s.DB.WithContext(ctx).
		Where("u1_submission_id IN ? AND u2_submission_id IN ?", submissionIDs, submissionIDs).
		Order("created_at ASC, id ASC").
		Find(&matches).Error
	return matches, err
}

// refreshMatch refolds one match's stats and status from its rounds, under
// the same match-row lock the completion path takes.
func (s *MatchService) refreshMatch(ctx context.Context, matchID string) (*models.Match, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Match
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, "id = ?", matchID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Msg: "Match not found"}
		}
		if err != nil {
			return err
		}
		return refoldMatch(tx, matchID)
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, matchID)
}

// refoldMatch recomputes the aggregates and status from whatever rounds are
// terminal. The caller must hold the match row lock.
func refoldMatch(tx *gorm.DB, matchID string) error {
	var rounds []models.Round
	err := tx.Where("match_id = ?", matchID).
		Order("seq ASC").
		Find(&rounds).Error
	if err != nil {
		return err
	}

	u1, u2 := models.FoldRoundStats(rounds)
	status := models.ProjectMatchStatus(rounds)

	return tx.Model(&models.Match{}).
		Where("id = ?", matchID).
		Updates(map[string]interface{}{
			"status":   status,
			"u1_score": u1.Score, "u1_win": u1.Win, "u1_lose": u1.Lose, "u1_draw": u1.Draw,
			"u2_score": u2.Score, "u2_win": u2.Win, "u2_lose": u2.Lose, "u2_draw": u2.Draw,
		}).Error
}

// promoteIfFullyJudged moves a running submission to effective once no
// in-progress match references it. Failure here is logged, not fatal: the
// periodic sweep will retry.
func (s *MatchService) promoteIfFullyJudged(ctx context.Context, submissionID string) {
	var open int64
	err := s.DB.WithContext(ctx).
		Model(&models.Match{}).
		Where("(u1_submission_id = ? OR u2_submission_id = ?) AND status = ?",
			submissionID, submissionID, models.MatchStatusInProgress).
		Count(&open).Error
	if err != nil {
		log.Printf("[MATCH] Failed to count open matches for submission %s: %v", submissionID, err)
		return
	}
	if open != 0 {
		return
	}

	res := s.DB.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND status = ?", submissionID, models.SubmissionStatusRunning).
		Update("status", models.SubmissionStatusEffective)
	if res.Error != nil {
		log.Printf("[MATCH] Failed to promote submission %s: %v", submissionID, res.Error)
		return
	}
	if res.RowsAffected > 0 {
		if sub, err := s.Submissions.GetByID(ctx, submissionID); err == nil {
			s.Bus.Publish(Event{Name: EventSubmissionStatusChanged, Payload: sub})
		}
	}
}
