package campaign

import "errors"

// Sentinel errors for the campaign service layer. Validation errors are
// surfaced to the caller at the transition boundary; they are never silently
// coerced into a no-op.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptySubject      = errors.New("subject is required")
	ErrNoRecipients      = errors.New("campaign resolves to 0 recipients")
	ErrScheduleInPast    = errors.New("scheduled time must be in the future")
	ErrSendInProgress    = errors.New("campaign send already in progress")
	ErrAlreadySent       = errors.New("campaign has already been sent")
)
