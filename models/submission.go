package models

// Submission statuses. A submission is created as pending, moves to
// compiling when a worker picks the compile task up, and ends in ce / se /
// running. A running submission becomes effective once its judged matches
// complete; effective submissions count for the scoreboard and are picked
// as opponents for future matches.
const (
	SubmissionStatusPending      = "pending"
	SubmissionStatusCompiling    = "compiling"
	SubmissionStatusCompileError = "ce"
	SubmissionStatusSystemError  = "se"
	SubmissionStatusRunning      = "running"
	SubmissionStatusEffective    = "effective"
)

// SubmissionStatusText maps a status to its display name.
var SubmissionStatusText = map[string]string{
	SubmissionStatusPending:      "Pending",
	SubmissionStatusCompiling:    "Compiling",
	SubmissionStatusCompileError: "Compile Error",
	SubmissionStatusSystemError:  "System Error",
	SubmissionStatusRunning:      "Running",
	SubmissionStatusEffective:    "Effective",
}

const (
	LimitSizeCode       = 1 * 1024 * 1024
	LimitSizeExecutable = 1 * 1024 * 1024
	LimitSizeText       = 100 * 1024
)

// Submission is one user's code snapshot and its judged outcome.
// Submissions are never deleted; history feeds the scoreboard and audit.
type Submission struct {
	ID     string `json:"id" gorm:"primaryKey"`
	UserID string `json:"user_id" gorm:"index:idx_submissions_user_created,priority:1;not null"`
	Code   string `json:"code" gorm:"type:text"`

	// ExecutableRef points at the compiled binary in the blob store. Only
	// present after a successful compile.
	ExecutableRef *string `json:"executable_ref,omitempty"`

	Status string `json:"status" gorm:"index:idx_submissions_status_created,priority:1;not null"`
	Text   string `json:"text" gorm:"type:text"`

	// TaskToken is the single-use credential bound to the outstanding
	// compile task. nil means no task is in flight (the token was consumed
	// at the terminal transition or never issued).
	TaskToken *string `json:"-"`

	Timestamps

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// IsTerminal reports whether the status is a rest state a new submission
// may supersede.
func (s *Submission) IsTerminal() bool {
	switch s.Status {
	case SubmissionStatusCompileError, SubmissionStatusSystemError, SubmissionStatusEffective:
		return true
	}
	return false
}
