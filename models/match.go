package models

import (
	"time"
)

const (
	MatchStatusInProgress = "in-progress"
	MatchStatusComplete   = "complete"
)

// Round outcomes. RoundOutcomeError records a judge-side failure; it is
// data, not an error, and credits neither side.
const (
	RoundStatusPending   = "pending"
	RoundStatusCompleted = "completed"

	RoundOutcomeU1Win = "u1win"
	RoundOutcomeU2Win = "u2win"
	RoundOutcomeDraw  = "draw"
	RoundOutcomeError = "error"
)

// SideStat is one side's aggregated result over the terminal rounds of a
// match. It is a pure function of the rounds and must never be written
// independently of them.
type SideStat struct {
	Score float64 `json:"score"`
	Win   int     `json:"win"`
	Lose  int     `json:"lose"`
	Draw  int     `json:"draw"`
}

// Match pairs two users' submissions. The referenced submissions are fixed
// at creation time; a later resubmission creates new matches instead of
// mutating this one.
type Match struct {
	ID             string `json:"id" gorm:"primaryKey"`
	U1ID           string `json:"u1_id" gorm:"index;not null"`
	U2ID           string `json:"u2_id" gorm:"index;not null"`
	U1SubmissionID string `json:"u1_submission_id" gorm:"index;not null"`
	U2SubmissionID string `json:"u2_submission_id" gorm:"index;not null"`

	Status string `json:"status" gorm:"not null"`

	U1Stat SideStat `json:"u1_stat" gorm:"embedded;embeddedPrefix:u1_"`
	U2Stat SideStat `json:"u2_stat" gorm:"embedded;embeddedPrefix:u2_"`

	Rounds []Round `json:"rounds,omitempty" gorm:"foreignKey:MatchID"`

	Timestamps

	U1           *User       `json:"u1,omitempty" gorm:"foreignKey:U1ID"`
	U2           *User       `json:"u2,omitempty" gorm:"foreignKey:U2ID"`
	U1Submission *Submission `json:"u1_submission,omitempty" gorm:"foreignKey:U1SubmissionID"`
	U2Submission *Submission `json:"u2_submission,omitempty" gorm:"foreignKey:U2SubmissionID"`
}

// Round is one judged execution of the two submissions. A round reaches a
// terminal status exactly once.
type Round struct {
	ID      string `json:"id" gorm:"primaryKey"`
	MatchID string `json:"match_id" gorm:"index;not null"`
	Seq     int    `json:"seq" gorm:"not null"`

	// Swapped assigns the roles: when true, u2's submission moves first.
	// Alternating it over a match's rounds cancels first-move bias.
	Swapped bool `json:"swapped"`

	Status  string `json:"status" gorm:"not null"`
	Outcome string `json:"outcome"`
	Summary string `json:"summary" gorm:"type:text"`
	Text    string `json:"text" gorm:"type:text"`

	LogBlobRef *string `json:"log_blob_ref,omitempty"`

	// TaskToken binds the dispatched judge task to this round. Cleared at
	// the terminal transition; a rejudge issues a fresh one so stale tasks
	// are detectable.
	TaskToken *string `json:"-"`

	BeganAt *time.Time `json:"began_at,omitempty"`

	Timestamps
}

// OutcomeFromJudgeExitCode maps a judge report to a round outcome. A
// non-zero exit means the judge itself failed; with a zero exit the verdict
// field carries the result.
func OutcomeFromJudgeExitCode(exitCode int, verdict string) string {
	if exitCode != 0 {
		return RoundOutcomeError
	}
	switch verdict {
	case RoundOutcomeU1Win, RoundOutcomeU2Win, RoundOutcomeDraw:
		return verdict
	}
	return RoundOutcomeError
}

// FoldRoundStats folds the terminal rounds into per-side stats. Only
// completed rounds contribute, so the result is independent of the order in
// which completions arrived. Scoring: win = +1 score / +1 win (+1 lose to
// the other side), draw = +0.5 score and +1 draw each, error = recorded on
// the round only.
func FoldRoundStats(rounds []Round) (u1 SideStat, u2 SideStat) {
	for _, r := range rounds {
		if r.Status != RoundStatusCompleted {
			continue
		}
		switch r.Outcome {
		case RoundOutcomeU1Win:
			u1.Score += 1
			u1.Win++
			u2.Lose++
		case RoundOutcomeU2Win:
			u2.Score += 1
			u2.Win++
			u1.Lose++
		case RoundOutcomeDraw:
			u1.Score += 0.5
			u2.Score += 0.5
			u1.Draw++
			u2.Draw++
		}
	}
	return u1, u2
}

// ProjectMatchStatus derives the match status from its rounds: in-progress
// while any round is pending, complete otherwise.
func ProjectMatchStatus(rounds []Round) string {
	for _, r := range rounds {
		if r.Status != RoundStatusCompleted {
			return MatchStatusInProgress
		}
	}
	return MatchStatusComplete
}
