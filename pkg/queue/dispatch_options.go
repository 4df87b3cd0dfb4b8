package queue

import "log/slog"

// DispatcherOption is a functional option for configuring a Dispatcher
type DispatcherOption func(*dispatcherOptions)

type dispatcherOptions struct {
	executors int
	buffer    int
	logger    *slog.Logger
}

// WithExecutors sets how many goroutines run listeners concurrently.
// Workers block on their own results, so this is normally sized to match
// the worker count.
func WithExecutors(n int) DispatcherOption {
	return func(o *dispatcherOptions) {
		if n > 0 {
			o.executors = n
		}
	}
}

// WithRequestBuffer sets the channel buffer for requests and results
func WithRequestBuffer(n int) DispatcherOption {
	return func(o *dispatcherOptions) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// WithDispatcherLogger sets the logger for the dispatcher
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(o *dispatcherOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
