package mediator

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/TheAlpha16/mediator-go/internal/logs"
)

// ErrorHandler is a user-provided callback for requests that could not be dispatched
type ErrorHandler func(ctx context.Context, kind Kind, err error)
type Option func(*Options)

type Options struct {
	MsgBufferSize int
	Workers       int
	OnError       ErrorHandler
	Logger        *logrus.Logger
}

func defaultOptions() Options {
	return Options{
		MsgBufferSize: 100,
		Workers:       64,
		OnError: func(ctx context.Context, kind Kind, err error) {
			// Default: no-op
		},
	}
}

func buildOptions(opts []Option) Options {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// logger returns the injected logger or a fresh one owned by owner.
func (o Options) logger(owner string) *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logs.NewLogger(owner)
}

func WithMsgBufferSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.MsgBufferSize = size
		}
	}
}

func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

func WithOnError(handler ErrorHandler) Option {
	return func(o *Options) {
		if handler != nil {
			o.OnError = handler
		}
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
