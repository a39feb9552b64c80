package msgdispatch

import (
	"fmt"
	"strings"

	"github.com/coregx/msgdispatch/codec"
	"github.com/coregx/msgdispatch/resolver"
)

// Option is a function that configures a Listener.
//
// Example:
//
//	listener, err := msgdispatch.NewListener("orders",
//	    msgdispatch.WithResolver(headerResolver),
//	    msgdispatch.WithLogger(logger),
//	    msgdispatch.WithConsumers(created, cancelled, audit),
//	)
type Option func(*Listener) error

// WithResolver sets the resolver used to read the type tag of inbound
// messages. It must match the resolver the publishing side used.
//
// This is a required option for NewListener.
func WithResolver(r resolver.TypeResolver) Option {
	return func(l *Listener) error {
		if r == nil {
			return fmt.Errorf("resolver cannot be nil")
		}
		l.resolver = r
		return nil
	}
}

// WithLogger sets the logger instance for the listener.
// Logger is required and must not be nil.
//
// This is a required option for NewListener.
//
// Use NoopLogger for silent operation or SlogLogger to log through log/slog.
func WithLogger(logger Logger) Option {
	return func(l *Listener) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		l.logger = logger
		return nil
	}
}

// WithConsumers adds candidate consumers. Only those declared for the
// listener's id are bound; the others are skipped. The option may be given
// more than once.
func WithConsumers(consumers ...Consumer) Option {
	return func(l *Listener) error {
		for i, c := range consumers {
			if c == nil {
				return fmt.Errorf("consumer at position %d cannot be nil", i)
			}
		}
		l.candidates = append(l.candidates, consumers...)
		return nil
	}
}

// WithCodec overrides the codec used to decode payloads (default: codec.JSON()).
func WithCodec(c codec.Codec) Option {
	return func(l *Listener) error {
		if c == nil {
			return fmt.Errorf("codec cannot be nil")
		}
		l.codec = c
		return nil
	}
}

// WithValidator overrides the payload validator (default: OzzoValidator).
// Pass NoopValidator{} to disable validation.
func WithValidator(v Validator) Option {
	return func(l *Listener) error {
		if v == nil {
			return fmt.Errorf("validator cannot be nil")
		}
		l.validator = v
		return nil
	}
}

// WithObserver sets the observer notified about dispatch outcomes.
func WithObserver(o Observer) Option {
	return func(l *Listener) error {
		if o == nil {
			return fmt.Errorf("observer cannot be nil")
		}
		l.observer = o
		return nil
	}
}

// WithApplicationName sets the application name attached to per-message log
// context.
func WithApplicationName(name string) Option {
	return func(l *Listener) error {
		l.appName = strings.TrimSpace(name)
		return nil
	}
}

// WithSensitiveFields names payload fields that are masked whenever a
// payload is logged.
func WithSensitiveFields(fields ...string) Option {
	return func(l *Listener) error {
		for _, f := range fields {
			if strings.TrimSpace(f) == "" {
				return fmt.Errorf("sensitive field name cannot be blank")
			}
			l.masked[f] = struct{}{}
		}
		return nil
	}
}
