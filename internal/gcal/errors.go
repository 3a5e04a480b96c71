// Package gcal is the remote listing source for the calendar mirror. It
// pages through the Google Calendar calendar list and per-calendar event
// lists, translating provider failures into the two conditions the sync
// engine has a policy for: an unreachable remote and a stale sync cursor.
package gcal

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Sentinel errors. Use errors.Is(err, gcal.ErrInvalidCursor) to check.
var (
	// ErrRemoteUnavailable covers transport, auth and server failures. The
	// caller should retry later with the cursor unchanged.
	ErrRemoteUnavailable = errors.New("gcal: remote unavailable")

	// ErrInvalidCursor means the provider rejected the sync cursor and a full
	// resync is required.
	ErrInvalidCursor = errors.New("gcal: sync cursor rejected")

	// ErrNotLoggedIn is returned when no usable token is stored.
	ErrNotLoggedIn = errors.New("gcal: not logged in")
)

// reasonFullSyncRequired is the error reason Google attaches to 410 responses
// for expired sync tokens.
const reasonFullSyncRequired = "fullSyncRequired"

// APIError wraps a sentinel with the HTTP status and reason reported by the
// Calendar API.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gcal: HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("gcal: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyError maps an error returned by the generated Calendar client onto
// ErrInvalidCursor or ErrRemoteUnavailable.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	apiErr := &APIError{
		StatusCode: gerr.Code,
		Message:    gerr.Message,
		Err:        ErrRemoteUnavailable,
	}

	if len(gerr.Errors) > 0 {
		apiErr.Reason = gerr.Errors[0].Reason
	}

	if gerr.Code == http.StatusGone || apiErr.Reason == reasonFullSyncRequired {
		apiErr.Err = ErrInvalidCursor
	}

	return apiErr
}
