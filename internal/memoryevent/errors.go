package memoryevent

import "errors"

var (
	// ErrNotFound is returned by Read when no event with the given id exists.
	ErrNotFound = errors.New("memoryevent: event not found")
	// ErrEmptyContent is returned by AppendEvent when content is blank.
	ErrEmptyContent = errors.New("memoryevent: content is required")
)
