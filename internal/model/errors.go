package model

import "errors"

// Error taxonomy shared across the session and grading layers. Handlers map
// these to HTTP status codes; services wrap them with contextual detail via
// fmt.Errorf("%w: ...").
var (
	// ErrWindowClosed means the exam's scheduling window is not open for new
	// attempts. Recoverable only by an instructor, never retried.
	ErrWindowClosed = errors.New("exam window closed")

	// ErrWindowExpired means the submission deadline (plus grace) has passed.
	ErrWindowExpired = errors.New("submission deadline expired")

	// ErrAlreadySubmitted signals idempotent re-entry on a finalized
	// submission. Callers should route to the result view, not alert.
	ErrAlreadySubmitted = errors.New("submission already finalized")

	// ErrOutOfRange means a manual grade fell outside [0, question.marks].
	ErrOutOfRange = errors.New("marks out of range")

	// ErrNotFound means an unknown exam, submission, or question.
	ErrNotFound = errors.New("not found")

	// ErrValidation means a malformed payload, rejected before any mutation.
	ErrValidation = errors.New("validation failed")
)
