package service

import (
	"context"
	"errors"

	"contentapi/internal/category"
)

// Client-class errors carry a descriptive message and are never retried.
// ErrIOFailure marks unexpected storage failures; the caller decides whether to retry.
var (
	ErrUnknownCategory      = category.ErrUnknownCategory
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrPayloadTooLarge      = errors.New("payload too large")
	ErrNotFound             = errors.New("content not found")
	ErrIOFailure            = errors.New("storage failure")
	ErrReaderNil            = errors.New("reader is nil")
)

// outcome is the metrics label for an operation's result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownCategory):
		return "unknown_category"
	case errors.Is(err, ErrUnsupportedMediaType):
		return "unsupported_media_type"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
