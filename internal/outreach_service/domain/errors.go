package domain

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("requested entity not found")
	// ErrDuplicateEntry indicates a unique-constraint violation.
	ErrDuplicateEntry = errors.New("duplicate entry")
	// ErrTaskAlreadyRunning is returned when a run is started while another
	// task holds the single process-wide run slot. Requests are rejected, not queued.
	ErrTaskAlreadyRunning = errors.New("an outreach task is already running")
	// ErrNoResumableTask is returned by resume when no paused snapshot is retained.
	ErrNoResumableTask = errors.New("no paused task to resume")
	// ErrSwitchUnverified indicates the console never confirmed an account
	// context switch within the retry budget.
	ErrSwitchUnverified = errors.New("account switch could not be verified")
	// ErrSessionClosed indicates the remote automation session was torn down
	// while an operation was in flight.
	ErrSessionClosed = errors.New("remote session closed")
	// ErrLoginFailed indicates the console rejected authentication.
	ErrLoginFailed = errors.New("console login failed")
)
