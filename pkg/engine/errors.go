package engine

import "errors"

var (
	// ErrRunNotFound is returned when the run ID is unknown to the engine.
	ErrRunNotFound = errors.New("run not found")

	// ErrNoSteps is returned when a definition without steps is started.
	ErrNoSteps = errors.New("definition has no steps")

	// ErrInvalidTransition is returned when an operation does not apply to
	// the run's current status.
	ErrInvalidTransition = errors.New("invalid run state transition")

	// ErrStepMismatch is returned when an approval names a step other than
	// the one the run is waiting on.
	ErrStepMismatch = errors.New("approval step does not match current step")

	// ErrCooldown rejects admission while the definition's cooldown window,
	// measured from the most recent run start, is still open.
	ErrCooldown = errors.New("definition is in cooldown")

	// ErrMaxConcurrent rejects admission while the definition already has
	// max_concurrent active runs.
	ErrMaxConcurrent = errors.New("definition concurrency limit reached")

	// ErrDefinitionChanged refuses to restore a run whose definition no
	// longer has the step the run is positioned on.
	ErrDefinitionChanged = errors.New("definition steps changed since run started")
)
