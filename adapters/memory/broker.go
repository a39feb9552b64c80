// Package memory provides in-memory implementations of the msgdispatch broker
// and outbox repositories. They are meant for tests, examples and single
// process deployments.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coregx/msgdispatch"
	"github.com/coregx/msgdispatch/model"
)

var (
	// ErrBrokerClosed is returned when operations are attempted on a closed broker.
	ErrBrokerClosed = errors.New("broker is closed")
)

// destination holds the retained messages and the handlers of one destination.
type destination struct {
	mu       sync.RWMutex
	messages []*model.StructuredMessage
	handlers []msgdispatch.MessageHandler
}

func (d *destination) add(msg *model.StructuredMessage) []msgdispatch.MessageHandler {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg)
	handlers := make([]msgdispatch.MessageHandler, len(d.handlers))
	copy(handlers, d.handlers)
	return handlers
}

func (d *destination) snapshot() []*model.StructuredMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := make([]*model.StructuredMessage, len(d.messages))
	copy(result, d.messages)
	return result
}

// Broker is an in-memory msgdispatch.Broker.
//
// Send retains a copy of every message and hands it synchronously to the
// handlers subscribed to the destination, in subscription order. Handler
// errors are joined and returned to the sender.
type Broker struct {
	mu           sync.RWMutex
	destinations map[string]*destination
	closed       bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{destinations: make(map[string]*destination)}
}

// getOrCreate returns the destination for the given name, creating it if necessary.
func (b *Broker) getOrCreate(name string) *destination {
	b.mu.RLock()
	d, ok := b.destinations[name]
	b.mu.RUnlock()
	if ok {
		return d
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok = b.destinations[name]; ok {
		return d
	}
	d = &destination{}
	b.destinations[name] = d
	return d
}

func (b *Broker) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Subscribe registers handler for the messages sent to name.
// Listener.AcceptFunc is the usual handler.
func (b *Broker) Subscribe(name string, handler msgdispatch.MessageHandler) error {
	if handler == nil {
		return msgdispatch.NewError(msgdispatch.ErrCodeArgument, "handler is required")
	}
	if b.isClosed() {
		return ErrBrokerClosed
	}

	d := b.getOrCreate(name)
	d.mu.Lock()
	d.handlers = append(d.handlers, handler)
	d.mu.Unlock()
	return nil
}

// Send implements msgdispatch.Broker.
func (b *Broker) Send(ctx context.Context, name string, msg *model.StructuredMessage) error {
	if msg == nil {
		return msgdispatch.NewError(msgdispatch.ErrCodeArgument, "message is required")
	}
	if b.isClosed() {
		return ErrBrokerClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	inbound := msg.Clone()
	inbound.Headers[model.HeaderReceivedDestination] = name

	var errs []error
	for i, handler := range b.getOrCreate(name).add(inbound) {
		if err := handler(ctx, inbound.Clone()); err != nil {
			errs = append(errs, fmt.Errorf("handler %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Messages returns the messages sent to name so far, oldest first.
func (b *Broker) Messages(name string) []*model.StructuredMessage {
	b.mu.RLock()
	d, ok := b.destinations[name]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	return d.snapshot()
}

// Close drops all retained messages and handlers. Further calls fail with
// ErrBrokerClosed.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	b.closed = true
	b.destinations = make(map[string]*destination)
	return nil
}
