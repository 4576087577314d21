package job

import "errors"

// Static errors returned by the registry and the facade.
var (
	// ErrJobNotFound is returned for unknown, removed, or expired job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrDuplicateJob is returned when admission collides on an id.
	// Ids are UUIDs, so this is a defensive check only.
	ErrDuplicateJob = errors.New("job id already exists")
	// ErrAlreadyProcessing is returned when processing is started twice.
	ErrAlreadyProcessing = errors.New("job is already processing")
	// ErrNotProcessing is returned when cancel targets a job that has no
	// active processing run.
	ErrNotProcessing = errors.New("job is not currently processing")
	// ErrInvalidTransition is returned when a state change would leave a
	// terminal state.
	ErrInvalidTransition = errors.New("invalid state transition")
)
