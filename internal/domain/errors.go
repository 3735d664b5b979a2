package domain

import "errors"

var (
	// ErrMemberNotFound means the target key vanished between read and
	// write. Callers log it at warning level and continue.
	ErrMemberNotFound = errors.New("member not found")
	// ErrCollectionEmpty means there is nothing to pop or sample. Callers
	// supply a fallback instead of failing.
	ErrCollectionEmpty = errors.New("collection is empty")
	// ErrMalformedItem means an inbound item misses required fields. The
	// item is dropped without retry.
	ErrMalformedItem = errors.New("malformed item")
)
