package kindred

import "errors"

// Data errors. Fatal to a single request, never to the process.
var (
	ErrCompanionNotFound = errors.New("companion not found")
	ErrMemoryNotFound    = errors.New("memory not found")
	ErrInvalidEvent      = errors.New("invalid interaction event")
)
