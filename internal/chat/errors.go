package chat

import (
	"errors"
	"fmt"

	"class-chat-service/internal/repositories"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrNotJoined    = errors.New("not joined to class chat")
	ErrStoreFailure = errors.New("store failure")
	ErrRateLimited  = errors.New("rate limited")
)

// Code returns the short error code sent to live channel clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotJoined):
		return "not_joined"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrStoreFailure):
		return "store_failure"
	default:
		return "internal"
	}
}

// Routine reports errors that are part of normal protocol flow and should
// not be logged above debug level.
func Routine(err error) bool {
	return errors.Is(err, ErrNotJoined) || errors.Is(err, ErrRateLimited)
}

// mapRepoErr translates persistence errors into the chat taxonomy. Anything
// unrecognised is a store failure.
func mapRepoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrMessageNotFound):
		return fmt.Errorf("%w: message", ErrNotFound)
	case errors.Is(err, repositories.ErrClassNotFound):
		return fmt.Errorf("%w: class", ErrNotFound)
	case errors.Is(err, repositories.ErrNotMessageOwner):
		return fmt.Errorf("%w: only the sender may change a message", ErrForbidden)
	case errors.Is(err, repositories.ErrMessageDeleted):
		return fmt.Errorf("%w: message is deleted", ErrConflict)
	default:
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
}
