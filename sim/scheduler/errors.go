package scheduler

import "errors"

var (
	// ErrUnknownFilter is returned for filter names outside the registry.
	ErrUnknownFilter = errors.New("unknown filter")
	// ErrUnknownWeigher is returned for weigher names outside the registry.
	ErrUnknownWeigher = errors.New("unknown weigher")
	// ErrInvalidConfig is returned for malformed filter or weigher lists.
	ErrInvalidConfig = errors.New("invalid scheduler config")
)
