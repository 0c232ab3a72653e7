package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLowConfidence marks a candidate dropped by the classification gate. It is a filter outcome.
	ErrLowConfidence = errors.New("classification confidence below threshold")
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for a forbidden event status change.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// FetchError reports a network or HTTP failure while fetching a feed or document.
type FetchError struct {
	URL        string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("fetch %s: timeout", e.URL)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a malformed feed or document.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError lists figures that fall outside domain bounds.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// ConflictError reports an unknown or mismatched version/agreement reference.
type ConflictError struct {
	AgreementID string
	VersionID   string
	Reason      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on agreement %s version %s: %s", e.AgreementID, e.VersionID, e.Reason)
}
