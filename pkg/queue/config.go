package queue

import "time"

// Config holds the runtime tunables for the queue engine
type Config struct {
	Workers         int           `env:"QUEUE_WORKERS" envDefault:"1"`
	PollInterval    time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"100ms"`
	DispatchTimeout time.Duration `env:"QUEUE_DISPATCH_TIMEOUT" envDefault:"30s"`

	// ReclaimInterval enables the stale-processing sweep when positive.
	// Messages stuck in processing longer than ReclaimAge return to pending.
	ReclaimInterval time.Duration `env:"QUEUE_RECLAIM_INTERVAL" envDefault:"0"`
	ReclaimAge      time.Duration `env:"QUEUE_RECLAIM_AGE" envDefault:"5m"`
}
