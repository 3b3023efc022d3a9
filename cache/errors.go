package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrMisdirected is returned for a request that carries no node, or a
	// properties request whose node is not a PropertiesProvider.
	ErrMisdirected = errors.New("cache: request is not addressed to a cache node")

	// ErrStaleData is reported per property when the entry is dirty and the
	// active policy does not allow refreshing that property.
	ErrStaleData = errors.New("cache: cache contains stale data, refresh view")

	// ErrClosed is returned by requests issued after Close.
	ErrClosed = errors.New("cache: closed")

	// ErrUnknownPolicy is returned by SetActivePolicy for an unregistered ID.
	ErrUnknownPolicy = errors.New("cache: unknown update policy")

	// ErrInvalidResult is returned when the source answers with a negative
	// child count or a properties batch of the wrong length.
	ErrInvalidResult = errors.New("cache: invalid source result")
)

// RangeError reports the failure of one contiguous children sub-request.
// Other ranges of the same request are unaffected.
type RangeError struct {
	Offset int
	Length int
	Err    error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("cache: children [%d,%d): %v", e.Offset, e.Offset+e.Length, e.Err)
}

func (e *RangeError) Unwrap() error { return e.Err }
