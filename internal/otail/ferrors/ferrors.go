// Package ferrors collects the sentinel errors shared across otail's core
// subsystems (reader, indexer, filter, view) plus a small wrapping helper.
// Callers compare against these with errors.Is rather than string matching.
package ferrors

import (
	"errors"
	"fmt"
)

// Startup errors.
var (
	ErrFileNotFound    = errors.New("file not found")
	ErrNotRegularFile  = errors.New("not a regular file")
	ErrConfigNotFound  = errors.New("config file not found")
	ErrConfigMalformed = errors.New("config file malformed")
)

// Runtime / session errors.
var (
	// ErrFileGone is the terminal error surfaced when the watched file is
	// removed or renamed away from under the Reader.
	ErrFileGone = errors.New("file gone")
)

// Filter errors.
var (
	ErrFilterCompile = errors.New("filter pattern failed to compile")
)

// Wrap attaches additional context to err, preserving it for errors.Is/As.
// Returns nil unchanged if err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
