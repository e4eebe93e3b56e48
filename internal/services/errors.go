package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransientIO    = errors.New("transient io error")
	ErrPermanentInput = errors.New("permanent input error")
	ErrDispatch       = errors.New("dispatch error")
	ErrPollTimeout    = errors.New("poll timeout")
	ErrConfiguration  = errors.New("configuration error")
	ErrUnavailable    = errors.New("service unavailable")
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransientIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the taxonomy label recorded alongside failure and skip entries.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "config"
	case errors.Is(err, ErrPermanentInput):
		return "permanent_input"
	case errors.Is(err, ErrDispatch):
		return "dispatch"
	case errors.Is(err, ErrPollTimeout):
		return "poll_timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "transient_io"
	}
}

// IsRetryable reports whether an operation failing with err may succeed when
// attempted again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanentInput) || errors.Is(err, ErrDispatch) ||
		errors.Is(err, ErrConfiguration) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrPollTimeout) {
		return false
	}
	return true
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
