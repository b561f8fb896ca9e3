package voiceinfo

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when the slug is empty or not a single path segment.
	ErrInvalidInput = errors.New("invalid slug")
	// ErrNotFound is returned when the upstream confirms the post does not exist.
	ErrNotFound = errors.New("post not found")
	// ErrUpstream matches every *UpstreamError.
	ErrUpstream = errors.New("upstream error")
	// ErrUpstreamTimeout matches an *UpstreamError whose deadline fired.
	ErrUpstreamTimeout = errors.New("upstream timeout")
)

// UpstreamError records why the content API could not serve a post. It is
// logged, never shown to crawlers.
type UpstreamError struct {
	Status  int
	Timeout bool
	Err     error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("upstream timeout: %v", e.Err)
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("upstream status %d: %v", e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("upstream status %d", e.Status)
	case e.Err != nil:
		return fmt.Sprintf("upstream: %v", e.Err)
	default:
		return "upstream error"
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel errors without losing the cause chain.
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstream:
		return true
	case ErrUpstreamTimeout:
		return e.Timeout
	}
	return false
}
