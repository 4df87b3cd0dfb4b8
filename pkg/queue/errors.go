package queue

import "errors"

// Common errors
var (
	// ErrStorageNil is returned when a nil storage is provided
	ErrStorageNil = errors.New("storage cannot be nil")

	// ErrRegistryNil is returned when a nil listener registry is provided
	ErrRegistryNil = errors.New("registry cannot be nil")

	// ErrQueueNameEmpty is returned when a message targets an empty queue name
	ErrQueueNameEmpty = errors.New("queue name cannot be empty")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrInvalidMaxRetries is returned when the retry limit is negative
	ErrInvalidMaxRetries = errors.New("max retries cannot be negative")

	// ErrInvalidInterval is returned when a recurrence interval is not positive
	ErrInvalidInterval = errors.New("interval must be positive")

	// ErrInvalidMaxRespawns is returned when the respawn limit is below -1
	ErrInvalidMaxRespawns = errors.New("max respawns must be -1 (unbounded) or non-negative")

	// ErrInvalidCronPattern is returned when a cron expression does not parse
	ErrInvalidCronPattern = errors.New("invalid cron pattern")

	// ErrNoMessageToClaim is returned by ClaimNext when no eligible message exists
	ErrNoMessageToClaim = errors.New("no message to claim")

	// ErrMessageNotFound is returned when a message id is unknown to the storage
	ErrMessageNotFound = errors.New("message not found")

	// ErrMessageNotProcessing is returned when a lifecycle transition requires
	// the message to be in processing state
	ErrMessageNotProcessing = errors.New("message is not in processing state")

	// ErrDispatchTimeout is returned when a dispatched message produced no
	// result within the configured timeout
	ErrDispatchTimeout = errors.New("dispatch timed out waiting for result")

	// ErrDispatcherClosed is returned when sending on a stopped dispatcher
	ErrDispatcherClosed = errors.New("dispatcher is not running")

	// ErrNoListeners is returned by the worker constructor when the registry
	// reference is missing entirely
	ErrNoListeners = errors.New("no listener registry configured")
)
