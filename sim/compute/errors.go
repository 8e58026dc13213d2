package compute

import "errors"

var (
	// ErrUnknownHost is returned for host names not in the registry.
	ErrUnknownHost = errors.New("unknown host")
	// ErrDuplicateHost is returned when a host name is registered twice.
	ErrDuplicateHost = errors.New("duplicate host")
	// ErrUnknownServer is returned for server ids never submitted.
	ErrUnknownServer = errors.New("unknown server")
	// ErrDuplicateServer is returned when a server id is submitted twice.
	ErrDuplicateServer = errors.New("duplicate server")
	// ErrServerFinished is returned when deleting a server in a terminal state.
	ErrServerFinished = errors.New("server already finished")
	// ErrInvalidMode is returned for malformed scheduling modes.
	ErrInvalidMode = errors.New("invalid scheduling mode")
	// ErrClosed is returned by operations on a closed service.
	ErrClosed = errors.New("service closed")
)
