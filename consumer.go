package msgdispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"

	"github.com/coregx/msgdispatch/codec"
	"github.com/coregx/msgdispatch/model"
)

// Consumer handles the messages of one type for one listener.
//
// Consumers are declared with Bind, BindTypeAware or BindUnknown, which state
// the listener id, the message type and the payload shape up front.
type Consumer interface {
	// ListenerID names the listener this consumer belongs to.
	ListenerID() string

	// MessageType is the tag this consumer is bound to. Ignored when
	// ConsumesUnknownTypes is true.
	MessageType() model.MessageType

	// ConsumesUnknownTypes reports whether this is the catch-all consumer.
	ConsumesUnknownTypes() bool

	// Name identifies the consumer in logs and configuration errors.
	Name() string

	// PayloadType names the Go type the payload is decoded into.
	PayloadType() string

	// Decode converts a structured payload into a pointer to the consumer's
	// payload type.
	Decode(c codec.Codec, p model.Payload) (any, error)

	// Consume handles a payload previously returned by Decode.
	Consume(ctx context.Context, payload any, msg *model.StructuredMessage) error
}

// ConsumerFunc handles a decoded payload together with the original message.
type ConsumerFunc[P any] func(ctx context.Context, payload P, msg *model.StructuredMessage) error

// BindOption customizes a consumer declaration.
type BindOption func(*bindConfig)

type bindConfig struct {
	name string
}

// WithConsumerName sets the name used in logs and configuration errors. The
// default name holds the payload type and the file and line of the Bind call.
func WithConsumerName(name string) BindOption {
	return func(c *bindConfig) {
		c.name = name
	}
}

type typedConsumer[P any] struct {
	listenerID  string
	messageType model.MessageType
	unknown     bool
	name        string
	payloadType string
	fn          ConsumerFunc[P]
}

// Bind declares a consumer of messageType payloads decoded as P.
//
// Example:
//
//	created := msgdispatch.Bind("orders", "ORDER_CREATED",
//	    func(ctx context.Context, e OrderCreated, msg *model.StructuredMessage) error {
//	        return store.Save(ctx, e)
//	    })
func Bind[P any](listenerID string, messageType model.MessageType, fn ConsumerFunc[P], opts ...BindOption) Consumer {
	return newTypedConsumer(listenerID, messageType, false, fn, opts)
}

// BindTypeAware declares a consumer whose message type is the one reported
// by the zero value of P. P should be a value type; a zero value that cannot
// report its tag is rejected when the listener is built.
func BindTypeAware[P model.TypeAware](listenerID string, fn ConsumerFunc[P], opts ...BindOption) Consumer {
	return newTypedConsumer(listenerID, zeroTag[P](), false, fn, opts)
}

// BindUnknown declares the catch-all consumer of a listener. It receives
// messages without a tag and messages whose tag has no consumer of its own.
func BindUnknown[P any](listenerID string, fn ConsumerFunc[P], opts ...BindOption) Consumer {
	return newTypedConsumer(listenerID, model.UnknownMessageType, true, fn, opts)
}

func newTypedConsumer[P any](listenerID string, messageType model.MessageType, unknown bool, fn ConsumerFunc[P], opts []BindOption) *typedConsumer[P] {
	payloadType := reflect.TypeFor[P]().String()
	cfg := bindConfig{name: fmt.Sprintf("Consumer[payload: %s]", payloadType)}
	// Skip newTypedConsumer and the Bind function that called it.
	if _, file, line, ok := runtime.Caller(2); ok {
		cfg.name = fmt.Sprintf("%s at %s:%d", cfg.name, filepath.Base(file), line)
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &typedConsumer[P]{
		listenerID:  listenerID,
		messageType: messageType,
		unknown:     unknown,
		name:        cfg.name,
		payloadType: payloadType,
		fn:          fn,
	}
}

// zeroTag reads the tag of P's zero value. A panicking accessor yields the
// sentinel, which the dispatch table rejects.
func zeroTag[P model.TypeAware]() (tag model.MessageType) {
	defer func() {
		if recover() != nil {
			tag = model.UnknownMessageType
		}
	}()
	var zero P
	return zero.MessageType()
}

func (c *typedConsumer[P]) ListenerID() string             { return c.listenerID }
func (c *typedConsumer[P]) MessageType() model.MessageType { return c.messageType }
func (c *typedConsumer[P]) ConsumesUnknownTypes() bool     { return c.unknown }
func (c *typedConsumer[P]) Name() string                   { return c.name }
func (c *typedConsumer[P]) PayloadType() string            { return c.payloadType }

func (c *typedConsumer[P]) Decode(cd codec.Codec, p model.Payload) (any, error) {
	var payload P
	if err := cd.ToTyped(p, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *typedConsumer[P]) Consume(ctx context.Context, payload any, msg *model.StructuredMessage) error {
	typed, ok := payload.(*P)
	if !ok {
		return NewError(ErrCodeArgument, fmt.Sprintf("%s expects *%s, got %T", c.name, c.payloadType, payload))
	}
	return c.fn(ctx, *typed, msg)
}

// String implements fmt.Stringer.
func (c *typedConsumer[P]) String() string {
	return c.name
}
