package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a taxonomy member. Wrap it with fmt.Errorf("...: %w", ErrX) to add context.
type Error struct {
	Code   string
	Status int
	Msg    string
}

func (e *Error) Error() string { return e.Msg }

var (
	ErrInvalidSpec           = &Error{"invalid_spec", http.StatusBadRequest, "invalid request"}
	ErrNotFound              = &Error{"not_found", http.StatusNotFound, "not found"}
	ErrTaskNotFound          = &Error{"task_not_found", http.StatusNotFound, "task not found"}
	ErrAlreadyJoined         = &Error{"already_joined", http.StatusConflict, "already joined this challenge"}
	ErrAlreadyCompletedToday = &Error{"already_completed_today", http.StatusConflict, "task already completed for this day"}
	ErrNotAParticipant       = &Error{"not_a_participant", http.StatusForbidden, "join the challenge before completing tasks"}
	ErrChallengeEnded        = &Error{"challenge_ended", http.StatusUnprocessableEntity, "challenge has ended"}
	ErrChallengeNotStarted   = &Error{"challenge_not_started", http.StatusUnprocessableEntity, "challenge has not started yet"}
	ErrForbidden             = &Error{"forbidden", http.StatusForbidden, "not allowed"}
	ErrTaskLocked            = &Error{"task_locked", http.StatusConflict, "task already has completions"}
	ErrUnsupported           = &Error{"unsupported", http.StatusNotImplemented, "operation not supported"}
	ErrUnavailable           = &Error{"unavailable", http.StatusServiceUnavailable, "service temporarily unavailable"}
)

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidSpec)
}

// As returns the taxonomy member in err's chain. Unknown errors map to ErrUnavailable.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrUnavailable
}

// Informational reports outcomes a retrying client is expected to hit.
func Informational(err error) bool {
	return errors.Is(err, ErrAlreadyJoined) || errors.Is(err, ErrAlreadyCompletedToday)
}
