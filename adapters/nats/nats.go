// Package nats connects msgdispatch to NATS.
//
// Publisher implements msgdispatch.Broker: the destination is the subject and
// headers travel as NATS headers. Subscriber listens on a subject, optionally
// in a queue group, and hands every message to a msgdispatch.MessageHandler.
//
// # Usage
//
//	conn, _ := nats.Connect(nats.DefaultURL)
//	pub := natsadapter.NewPublisher(conn, natsadapter.PublisherConfig{})
//
//	sub := natsadapter.NewSubscriber(conn, natsadapter.SubscriberConfig{
//	    Subject: "orders.>",
//	    Queue:   "order-service",
//	}, listener.AcceptFunc())
//	go sub.Run(ctx)
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/coregx/msgdispatch"
	"github.com/coregx/msgdispatch/codec"
	"github.com/coregx/msgdispatch/model"
)

// PublisherConfig configures the NATS publisher.
type PublisherConfig struct {
	// FlushTimeout bounds the flush after every Send, making Send report
	// connection failures. Zero skips the flush.
	FlushTimeout time.Duration

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c PublisherConfig) applyDefaults() PublisherConfig {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	PublishMsg(m *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
}

// Publisher sends structured messages to NATS subjects.
type Publisher struct {
	config PublisherConfig
	conn   conn
}

// NewPublisher creates a publisher on an established connection.
func NewPublisher(nc *nats.Conn, config PublisherConfig) *Publisher {
	return &Publisher{config: config.applyDefaults(), conn: nc}
}

// Send implements msgdispatch.Broker.
func (p *Publisher) Send(_ context.Context, subject string, msg *model.StructuredMessage) error {
	m, err := ToMsg(subject, msg)
	if err != nil {
		return err
	}

	if err := p.conn.PublishMsg(m); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	if p.config.FlushTimeout > 0 {
		if err := p.conn.FlushTimeout(p.config.FlushTimeout); err != nil {
			return fmt.Errorf("failed to flush %s: %w", subject, err)
		}
	}

	p.config.Logger.Debug("Published message", "subject", subject, "id", msg.ID())
	return nil
}

// ToMsg converts a structured message to a NATS message.
func ToMsg(subject string, msg *model.StructuredMessage) (*nats.Msg, error) {
	if msg == nil {
		return nil, msgdispatch.NewError(msgdispatch.ErrCodeArgument, "message is required")
	}

	data, err := codec.EncodePayload(msg.Payload)
	if err != nil {
		return nil, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDecode, "failed to encode payload", err)
	}

	m := nats.NewMsg(subject)
	m.Data = data
	for name, v := range msg.Headers {
		if name == model.HeaderReceivedDestination {
			continue
		}
		m.Header.Set(name, codec.HeaderString(v))
	}
	return m, nil
}

// FromMsg converts a NATS message back to a structured message.
func FromMsg(m *nats.Msg) (*model.StructuredMessage, error) {
	payload, err := codec.DecodePayload(m.Data)
	if err != nil {
		return nil, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDecode,
			fmt.Sprintf("invalid message on %s", m.Subject), err)
	}

	headers := make(model.Headers, len(m.Header)+1)
	for name := range m.Header {
		headers[name] = m.Header.Get(name)
	}
	if key, ok := headers[model.HeaderMessageKey].(string); ok {
		headers[model.HeaderMessageKey] = []byte(key)
	}
	headers[model.HeaderReceivedDestination] = m.Subject

	return model.NewStructuredMessage(payload, headers), nil
}

// SubscriberConfig configures the NATS subscriber.
type SubscriberConfig struct {
	// Subject is the NATS subject to subscribe to. Wildcards are allowed.
	Subject string

	// Queue is the optional queue group name for load balancing.
	Queue string

	// Acknowledge enables Ack on success and Nak on failure. Use it with
	// JetStream subscriptions; core NATS messages cannot be acknowledged.
	Acknowledge bool

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c SubscriberConfig) applyDefaults() SubscriberConfig {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Subscriber dispatches the messages of a subject to a handler.
type Subscriber struct {
	config  SubscriberConfig
	conn    *nats.Conn
	handler msgdispatch.MessageHandler
}

// NewSubscriber creates a subscriber on an established connection.
func NewSubscriber(nc *nats.Conn, config SubscriberConfig, handler msgdispatch.MessageHandler) *Subscriber {
	return &Subscriber{config: config.applyDefaults(), conn: nc, handler: handler}
}

// Run subscribes and blocks until ctx is canceled, then drains the
// subscription.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.handler == nil {
		return msgdispatch.NewError(msgdispatch.ErrCodeConfiguration, "handler is required")
	}

	cb := func(m *nats.Msg) { s.handle(ctx, m) }

	var (
		sub *nats.Subscription
		err error
	)
	if s.config.Queue != "" {
		sub, err = s.conn.QueueSubscribe(s.config.Subject, s.config.Queue, cb)
	} else {
		sub, err = s.conn.Subscribe(s.config.Subject, cb)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.config.Subject, err)
	}

	s.config.Logger.Info("NATS subscription started",
		"subject", s.config.Subject,
		"queue", s.config.Queue,
	)

	<-ctx.Done()
	s.config.Logger.Debug("Context canceled, closing subscription")
	return sub.Drain()
}

// acker is the acknowledgment part of *nats.Msg.
type acker interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
}

func (s *Subscriber) handle(ctx context.Context, m *nats.Msg) {
	s.dispatch(ctx, m, m)
}

// dispatch runs the handler on m and acknowledges through a when enabled.
func (s *Subscriber) dispatch(ctx context.Context, m *nats.Msg, a acker) {
	log := s.config.Logger.With("subject", m.Subject)

	msg, err := FromMsg(m)
	if err == nil {
		err = s.handler(ctx, msg)
	}

	if err != nil {
		log.Warn("Message handling failed", "error", err)
		if s.config.Acknowledge {
			if nakErr := a.Nak(); nakErr != nil {
				log.Error("Failed to nak message", "error", nakErr)
			}
		}
		return
	}

	if s.config.Acknowledge {
		if ackErr := a.Ack(); ackErr != nil {
			log.Error("Failed to ack message", "error", ackErr)
		}
	}
}
