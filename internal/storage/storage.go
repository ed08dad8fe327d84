// Package storage defines the backend contract the splitter runs against and
// its local filesystem and in-memory implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrNotFound: the source location does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDecode: the source content is not valid UTF-8 text.
	ErrDecode = errors.New("invalid utf-8 text")
	// ErrUnavailable: network, permission or other infrastructure fault.
	ErrUnavailable = errors.New("storage backend unavailable")
)

// Backend is the capability set the splitter needs from a storage system.
// Locations are slash separated. Implementations must be safe for
// concurrent use.
type Backend interface {
	// ListSources returns every source location under root. Callers must
	// not depend on the order.
	ListSources(ctx context.Context, root string) ([]string, error)
	// ReadText returns the full content of location decoded as UTF-8.
	ReadText(ctx context.Context, location string) (string, error)
	// ExistsUnder reports whether at least one file or object exists at or
	// under prefix. It stops at the first match.
	ExistsUnder(ctx context.Context, prefix string) (bool, error)
	// WriteRecord stores text at location, creating whatever intermediate
	// structure is needed and overwriting any existing content.
	WriteRecord(ctx context.Context, location, text string) error
}

// DirChecker is implemented by backends that have real directories, where
// an empty split directory still means the source was split once.
type DirChecker interface {
	DirExists(ctx context.Context, dir string) (bool, error)
}

// WriteError is the failure to persist a single hand.
type WriteError struct {
	Location string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Location, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// DecodeText converts the raw bytes of location to a string, rejecting
// content that is not valid UTF-8.
func DecodeText(location string, b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: %s", ErrDecode, location)
	}
	return string(b), nil
}
