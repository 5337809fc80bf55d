package scheduler

import "errors"

var (
	// ErrEmptyBatch is returned when Schedule is called with no requests.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrDuplicateCallID is returned when a batch contains two requests
	// with the same call ID.
	ErrDuplicateCallID = errors.New("duplicate call ID in batch")

	// ErrUnknownCall is returned when a call ID is not part of the batch.
	ErrUnknownCall = errors.New("unknown call ID")

	// ErrNotAwaitingApproval is returned when Confirm targets a call
	// that is not awaiting approval.
	ErrNotAwaitingApproval = errors.New("call is not awaiting approval")

	// ErrInvalidOutcome is returned when Confirm is given an
	// unrecognised outcome.
	ErrInvalidOutcome = errors.New("invalid confirmation outcome")
)
