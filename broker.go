package msgdispatch

import (
	"context"

	"github.com/coregx/msgdispatch/model"
)

// Broker transports structured messages to a named destination.
//
// Implementations live in the adapters packages (Kafka, NATS, RabbitMQ,
// Redis Streams, in-memory) and in OutboxBroker. Send returns nil once the
// broker accepted the message; any failure is reported as an error.
type Broker interface {
	Send(ctx context.Context, destination string, msg *model.StructuredMessage) error
}

// BrokerFunc adapts a function to Broker.
type BrokerFunc func(ctx context.Context, destination string, msg *model.StructuredMessage) error

// Send implements Broker.
func (f BrokerFunc) Send(ctx context.Context, destination string, msg *model.StructuredMessage) error {
	return f(ctx, destination, msg)
}

// MessageHandler is the callback broker subscribers invoke once per inbound
// message. Listener.Accept satisfies it.
type MessageHandler func(ctx context.Context, msg *model.StructuredMessage) error
