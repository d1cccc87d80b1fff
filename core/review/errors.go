package review

import "errors"

var (
	// errors
	ErrInvalidTransition      = errors.New("transition not allowed from the current state")
	ErrUnauthorized           = errors.New("actor is not allowed to perform this transition")
	ErrMissingFeedback        = errors.New("feedback is required for this transition")
	ErrValidationFailed       = errors.New("submission content is invalid")
	ErrConcurrentModification = errors.New("submission was modified concurrently")
	ErrNotFound               = errors.New("submission not found")
)
