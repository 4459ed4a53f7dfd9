// Package worker drains the command queue and hands each command to a handler.
package worker

import (
	"github.com/okian/pairup/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithAck sets a callback invoked after every command is handled.
func WithAck(ack func()) Option {
	return func(w *InMemoryWorker) {
		if ack != nil {
			w.ack = ack
		}
	}
}
