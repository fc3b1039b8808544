package domain

import (
	"errors"
	"fmt"
)

// Pipeline stages used to tag failures.
const (
	StageEmbed    = "embed"
	StageRetrieve = "retrieve"
	StageComplete = "complete"
)

var (
	ErrEmptyQuestion = errors.New("question is required")

	ErrUnauthorized      = errors.New("unauthorized")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrBadRequest        = errors.New("bad request")
	ErrUnavailable       = errors.New("provider unavailable")
	ErrMalformedResponse = errors.New("malformed response")
)

// ProviderError reports a failed call to an embedding or completion provider.
type ProviderError struct {
	Stage      string
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s provider returned %d: %v", e.Stage, e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s provider: %v", e.Stage, e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RetrievalError reports a failed vector search.
type RetrievalError struct {
	Index string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("%s: index %s: %v", StageRetrieve, e.Index, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// StageOf returns the pipeline stage an error originated from, or "" if unknown.
func StageOf(err error) string {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Stage
	}
	var rerr *RetrievalError
	if errors.As(err, &rerr) {
		return StageRetrieve
	}
	return ""
}

// StatusKind maps an HTTP status code from a provider to a sentinel error.
func StatusKind(code int) error {
	switch {
	case code == 401 || code == 403:
		return ErrUnauthorized
	case code == 429:
		return ErrQuotaExceeded
	case code >= 500 || code == 408:
		return ErrUnavailable
	default:
		return ErrBadRequest
	}
}
