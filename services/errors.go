package services

// Caller-facing error taxonomy. These are all rejected before any write, so
// a failed operation never leaves partial state behind. Worker-reported
// system errors are data, not errors, and never surface through this
// taxonomy.

// ValidationError flags malformed or oversized input. The message is safe
// to show verbatim.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// AuthError flags a task-token or credential mismatch. Handlers surface it
// as a generic rejection; the message must not hint at the correct token.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return e.Msg }

// PolicyError flags a submission-eligibility or workflow-order violation,
// surfaced with the specific policy reason.
type PolicyError struct {
	Msg string
}

func (e *PolicyError) Error() string { return e.Msg }

// NotFoundError flags an unknown entity reference.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

// StateError flags a transition from an invalid current state, e.g.
// completing a round that is already terminal.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string { return e.Msg }
