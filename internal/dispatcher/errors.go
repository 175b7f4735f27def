package dispatcher

import "errors"

var (
	// ErrValidation marks a request rejected before any network call.
	ErrValidation = errors.New("invalid request")
	// ErrDispatch marks a failed or malformed creation/completion call.
	ErrDispatch = errors.New("dispatch failed")
	// ErrExtraction marks a response that carried no locatable media URL.
	ErrExtraction = errors.New("no media in response")
	// ErrMissingJobID marks an accepted job whose id could not be found.
	ErrMissingJobID = errors.New("no task id in response")
)

// Reason returns the short label shown on a record that failed with err.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrExtraction):
		return "no image"
	case errors.Is(err, ErrMissingJobID):
		return "no task id"
	case errors.Is(err, ErrValidation):
		return "invalid request"
	default:
		return "failed"
	}
}
