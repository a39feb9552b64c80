package msgdispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/coregx/msgdispatch/codec"
	"github.com/coregx/msgdispatch/model"
	"github.com/coregx/msgdispatch/resolver"
)

// OutboxBroker is a Broker backed by a relational outbox.
//
// Send stores the message and creates one pending delivery per active
// subscription of the destination. A QueueWorker later dispatches the
// deliveries to the subscribed listeners, retrying failures with backoff.
//
// Thread safety: Safe for concurrent use.
type OutboxBroker struct {
	messageRepo      MessageRepository
	deliveryRepo     DeliveryRepository
	subscriptionRepo SubscriptionRepository
	resolver         resolver.TypeResolver
	logger           Logger
}

// OutboxOption is a function that configures an OutboxBroker.
type OutboxOption func(*OutboxBroker) error

// NewOutboxBroker creates a new OutboxBroker with the provided options.
//
// Required options:
//   - WithOutboxRepositories: message, delivery and subscription repositories
//   - WithOutboxLogger: logger instance
//
// Optional options:
//   - WithOutboxResolver: resolver used to record the message type column
func NewOutboxBroker(opts ...OutboxOption) (*OutboxBroker, error) {
	b := &OutboxBroker{
		resolver: resolver.NoOp(),
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply outbox option", err)
		}
	}

	if b.messageRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithOutboxRepositories)")
	}
	if b.deliveryRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryRepository is required (use WithOutboxRepositories)")
	}
	if b.subscriptionRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionRepository is required (use WithOutboxRepositories)")
	}
	if b.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithOutboxLogger)")
	}

	return b, nil
}

// WithOutboxRepositories sets the required repositories.
func WithOutboxRepositories(
	messageRepo MessageRepository,
	deliveryRepo DeliveryRepository,
	subscriptionRepo SubscriptionRepository,
) OutboxOption {
	return func(b *OutboxBroker) error {
		if messageRepo == nil {
			return fmt.Errorf("messageRepo cannot be nil")
		}
		if deliveryRepo == nil {
			return fmt.Errorf("deliveryRepo cannot be nil")
		}
		if subscriptionRepo == nil {
			return fmt.Errorf("subscriptionRepo cannot be nil")
		}

		b.messageRepo = messageRepo
		b.deliveryRepo = deliveryRepo
		b.subscriptionRepo = subscriptionRepo
		return nil
	}
}

// WithOutboxLogger sets the logger instance.
func WithOutboxLogger(logger Logger) OutboxOption {
	return func(b *OutboxBroker) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		b.logger = logger
		return nil
	}
}

// WithOutboxResolver sets the resolver used to fill the message_type column.
// The tag inside headers or payload is stored either way.
func WithOutboxResolver(r resolver.TypeResolver) OutboxOption {
	return func(b *OutboxBroker) error {
		if r == nil {
			return fmt.Errorf("resolver cannot be nil")
		}
		b.resolver = r
		return nil
	}
}

// Send implements Broker.
//
// The process:
//  1. Encode headers and payload
//  2. Store the message
//  3. Create one pending delivery per active subscription of destination
//
// A destination without subscriptions is not an error: the message is
// stored and a warning is logged.
func (b *OutboxBroker) Send(ctx context.Context, destination string, msg *model.StructuredMessage) error {
	if strings.TrimSpace(destination) == "" {
		return NewError(ErrCodeArgument, "destination is required")
	}
	if msg == nil {
		return NewError(ErrCodeArgument, "message is required")
	}

	headers, err := codec.EncodeHeaders(msg.Headers)
	if err != nil {
		return NewErrorWithCause(ErrCodeDecode, "failed to encode headers", err)
	}
	payload, err := codec.EncodePayload(msg.Payload)
	if err != nil {
		return NewErrorWithCause(ErrCodeDecode, "failed to encode payload", err)
	}

	uid := msg.ID()
	if uid == "" {
		uid = uuid.NewString()
	}
	tag, _ := b.resolver.Read(msg)
	key, _ := msg.MessageKey()

	stored := model.NewStoredMessage(uid, destination, tag, key, msg.PartitionKey(), string(headers), string(payload))
	stored, err = b.messageRepo.Save(ctx, stored)
	if err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "failed to save message", err)
	}

	subscriptions, err := b.subscriptionRepo.FindActiveByDestination(ctx, destination)
	if err != nil && !IsNoData(err) {
		return NewErrorWithCause(ErrCodeDatabase, "failed to load subscriptions", err)
	}

	if len(subscriptions) == 0 {
		b.logger.Warnf("No active subscriptions found for destination [%s]: message %s stored without deliveries",
			destination, uid)
		return nil
	}

	created := 0
	for _, sub := range subscriptions {
		delivery := model.NewDelivery(sub.ID, stored.ID)
		if _, err := b.deliveryRepo.Save(ctx, &delivery); err != nil {
			b.logger.Errorf("Failed to create delivery for subscription %d: %v", sub.ID, err)
			continue
		}
		created++
	}

	if created == 0 {
		return NewError(ErrCodeDatabase, fmt.Sprintf("failed to create any delivery for message %s", uid))
	}

	b.logger.Debugf("Message %s stored (id=%d, destination=%s, deliveries=%d)", uid, stored.ID, destination, created)
	return nil
}

// Restore rebuilds the structured message of a stored message. The
// receivedDestination header is set to the stored destination.
func Restore(m model.StoredMessage) (*model.StructuredMessage, error) {
	headers, err := codec.DecodeHeaders([]byte(m.Headers))
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDecode, fmt.Sprintf("failed to decode headers of message %d", m.ID), err)
	}
	payload, err := codec.DecodePayload([]byte(m.Payload))
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDecode, fmt.Sprintf("failed to decode payload of message %d", m.ID), err)
	}

	msg := model.NewStructuredMessage(payload, headers)
	msg.Headers[model.HeaderReceivedDestination] = m.Destination
	if _, ok := msg.Headers[model.HeaderID]; !ok {
		msg.Headers[model.HeaderID] = m.MessageUID
	}
	return msg, nil
}
