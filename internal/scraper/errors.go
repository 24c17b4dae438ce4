package scraper

import (
	"errors"
	"fmt"
)

// Sentinel errors for source conditions.
var (
	// ErrExhausted means the source can serve no more requests this run,
	// e.g. its quota ran out or it rejected the credentials.
	ErrExhausted = errors.New("source exhausted")
	// ErrUnknownBackend is returned for scraper names with no backend.
	ErrUnknownBackend = errors.New("unknown scraper backend")
	// ErrCredentials is returned when a networked source lacks credentials.
	ErrCredentials = errors.New("missing credentials")
)

// SourceError provides context for a failed source operation.
type SourceError struct {
	Op     string // Operation that failed (e.g., "search")
	Source string // Backend name
	Err    error  // Underlying error
}

func (e *SourceError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s '%s': %v", e.Op, e.Source, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func sourceErr(source, op string, err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Op: op, Source: source, Err: err}
}
