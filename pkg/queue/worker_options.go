package queue

import (
	"log/slog"
	"time"
)

// WorkerOption is a functional option for configuring a worker pool
type WorkerOption func(*workerOptions)

type workerOptions struct {
	workers         int
	pollInterval    time.Duration
	dispatchTimeout time.Duration
	reclaimInterval time.Duration
	reclaimAge      time.Duration
	logger          *slog.Logger
}

// WithWorkers sets how many concurrent worker loops to run
func WithWorkers(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithPollInterval sets the delay between claim attempts on an empty queue.
// Any value preserves correctness; it only trades polling cost for latency.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithDispatchTimeout bounds how long a worker waits for a dispatch result
// before treating the execution as failed
func WithDispatchTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.dispatchTimeout = d
		}
	}
}

// WithReclaimInterval enables the stale-processing sweep at the given
// cadence. Off by default: without it, messages orphaned by an abrupt stop
// stay processing.
func WithReclaimInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.reclaimInterval = d
		}
	}
}

// WithReclaimAge sets how long a processing message must go untouched before
// the sweep returns it to pending
func WithReclaimAge(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.reclaimAge = d
		}
	}
}

// WithWorkerLogger sets the logger for the worker pool
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWorkerConfig applies the env-derived Config to the worker pool
func WithWorkerConfig(cfg Config) WorkerOption {
	return func(o *workerOptions) {
		if cfg.Workers > 0 {
			o.workers = cfg.Workers
		}
		if cfg.PollInterval > 0 {
			o.pollInterval = cfg.PollInterval
		}
		if cfg.DispatchTimeout > 0 {
			o.dispatchTimeout = cfg.DispatchTimeout
		}
		if cfg.ReclaimInterval > 0 {
			o.reclaimInterval = cfg.ReclaimInterval
		}
		if cfg.ReclaimAge > 0 {
			o.reclaimAge = cfg.ReclaimAge
		}
	}
}
