package queue

import "time"

// EnqueuerOption is a functional option for configuring an Enqueuer
type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	defaultQueue string
}

// WithDefaultQueue sets the default queue name
func WithDefaultQueue(queue string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if queue != "" {
			o.defaultQueue = queue
		}
	}
}

// EnqueueOption is a functional option for the Enqueue method
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	maxRetries  int
	delay       time.Duration
	startAt     *time.Time
	interval    *time.Duration
	maxRespawns int
	cronPattern string
}

// WithQueue sets the queue for the message
func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithMaxRetries sets how many times a failing message is retried before it
// becomes terminally failed. A message with n retries runs at most n+1 times.
func WithMaxRetries(maxRetries int) EnqueueOption {
	return func(o *enqueueOptions) {
		o.maxRetries = maxRetries
	}
}

// WithDelay sets a delay before the message becomes eligible
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithStartAt sets a specific time at which the message becomes eligible
func WithStartAt(startAt time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.startAt = &startAt
	}
}

// WithInterval marks the message as interval-recurring: after each successful
// run it is rescheduled interval into the future, until the respawn cap is
// reached.
func WithInterval(interval time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		o.interval = &interval
	}
}

// WithMaxRespawns caps how many times an interval message respawns.
// UnboundedRespawns (-1) removes the cap.
func WithMaxRespawns(maxRespawns int) EnqueueOption {
	return func(o *enqueueOptions) {
		o.maxRespawns = maxRespawns
	}
}

// WithCron marks the message as cron-recurring using a standard 5-field
// expression. After each successful run the message is rescheduled to the
// next matching instant.
func WithCron(pattern string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.cronPattern = pattern
	}
}
