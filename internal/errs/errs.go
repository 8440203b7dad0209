// Package errs defines the error taxonomy shared by the ranking pipeline,
// the rebalancing simulator and the data collaborators.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidArgument marks bad method names, non-positive counts and
	// empty required inputs. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrKeyNotFound marks a weight key that matches no table column.
	ErrKeyNotFound = errors.New("key not found")

	// ErrDataUnavailable marks a failed price retrieval.
	ErrDataUnavailable = errors.New("data unavailable")
)

// InvalidArgument returns an error wrapping ErrInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// KeyNotFound returns an error wrapping ErrKeyNotFound for the given kind
// of key (for example "indicator" or "momentum column").
func KeyNotFound(kind, key string) error {
	return fmt.Errorf("%w: unknown %s %q", ErrKeyNotFound, kind, key)
}

// DataUnavailableError aggregates every instrument that could not be
// retrieved in a single batch.
type DataUnavailableError struct {
	Failures map[string]error
}

// NewDataUnavailable returns nil when failures is empty.
func NewDataUnavailable(failures map[string]error) error {
	if len(failures) == 0 {
		return nil
	}
	return &DataUnavailableError{Failures: failures}
}

// Tickers returns the failed instruments in sorted order.
func (e *DataUnavailableError) Tickers() []string {
	tickers := make([]string, 0, len(e.Failures))
	for t := range e.Failures {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

func (e *DataUnavailableError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, t := range e.Tickers() {
		if cause := e.Failures[t]; cause != nil {
			parts = append(parts, fmt.Sprintf("%s (%v)", t, cause))
		} else {
			parts = append(parts, t)
		}
	}
	return fmt.Sprintf("%s: failed to retrieve %s", ErrDataUnavailable, strings.Join(parts, ", "))
}

// Unwrap lets errors.Is match ErrDataUnavailable.
func (e *DataUnavailableError) Unwrap() error {
	return ErrDataUnavailable
}
