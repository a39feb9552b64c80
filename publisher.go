package msgdispatch

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coregx/msgdispatch/codec"
	"github.com/coregx/msgdispatch/model"
	"github.com/coregx/msgdispatch/resolver"
)

// Publisher builds structured messages, stamps their type tag and hands them
// to a Broker.
//
// Thread safety: Safe for concurrent use.
type Publisher struct {
	broker   Broker
	codec    codec.Codec
	resolver resolver.TypeResolver
	logger   Logger
	observer Observer
	masked   map[string]struct{}
	newID    func() string
	now      func() time.Time
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher) error

// NewPublisher creates a new Publisher with the provided options.
//
// Required options:
//   - WithPublisherBroker: transport for outgoing messages
//   - WithPublisherLogger: logger instance
//
// Optional options:
//   - WithPublisherResolver: resolver used when a request names none
//   - WithPublisherCodec: payload codec (default: codec.JSON())
//   - WithMaskedFields: payload fields hidden from logs
//   - WithPublisherObserver: metrics hooks
//
// Example:
//
//	publisher, err := msgdispatch.NewPublisher(
//	    msgdispatch.WithPublisherBroker(kafkaPublisher),
//	    msgdispatch.WithPublisherLogger(logger),
//	    msgdispatch.WithPublisherResolver(headerResolver),
//	)
func NewPublisher(opts ...PublisherOption) (*Publisher, error) {
	p := &Publisher{
		codec:    codec.JSON(),
		observer: NoopObserver{},
		masked:   map[string]struct{}{},
		newID:    uuid.NewString,
		now:      time.Now,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply publisher option", err)
		}
	}

	if p.broker == nil {
		return nil, NewError(ErrCodeConfiguration, "Broker is required (use WithPublisherBroker)")
	}
	if p.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithPublisherLogger)")
	}

	return p, nil
}

// WithPublisherBroker sets the broker used for transport.
func WithPublisherBroker(broker Broker) PublisherOption {
	return func(p *Publisher) error {
		if broker == nil {
			return fmt.Errorf("broker cannot be nil")
		}
		p.broker = broker
		return nil
	}
}

// WithPublisherLogger sets the logger instance.
func WithPublisherLogger(logger Logger) PublisherOption {
	return func(p *Publisher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// WithPublisherCodec overrides the payload codec.
func WithPublisherCodec(c codec.Codec) PublisherOption {
	return func(p *Publisher) error {
		if c == nil {
			return fmt.Errorf("codec cannot be nil")
		}
		p.codec = c
		return nil
	}
}

// WithPublisherResolver sets the resolver used by requests that do not carry
// their own.
func WithPublisherResolver(r resolver.TypeResolver) PublisherOption {
	return func(p *Publisher) error {
		if r == nil {
			return fmt.Errorf("resolver cannot be nil")
		}
		p.resolver = r
		return nil
	}
}

// WithMaskedFields names payload fields whose values are replaced in log
// output. The transmitted payload is never altered.
func WithMaskedFields(fields ...string) PublisherOption {
	return func(p *Publisher) error {
		for _, f := range fields {
			if strings.TrimSpace(f) == "" {
				return fmt.Errorf("masked field name cannot be blank")
			}
			p.masked[f] = struct{}{}
		}
		return nil
	}
}

// WithPublisherObserver sets the observer notified about publish outcomes.
func WithPublisherObserver(o Observer) PublisherOption {
	return func(p *Publisher) error {
		if o == nil {
			return fmt.Errorf("observer cannot be nil")
		}
		p.observer = o
		return nil
	}
}

// WithIDGenerator overrides the generator of message id headers.
func WithIDGenerator(fn func() string) PublisherOption {
	return func(p *Publisher) error {
		if fn == nil {
			return fmt.Errorf("id generator cannot be nil")
		}
		p.newID = fn
		return nil
	}
}

// PublishRequest describes one outgoing message.
//
// A payload implementing model.PartitionKeyAware or model.MessageKeyAware
// supplies the partition key or message key the request leaves unset.
type PublishRequest struct {
	Destination  string                // Broker destination (topic, subject, exchange routing key)
	Payload      any                   // model.TypeAware or map[string]any
	MessageKey   any                   // nil, string, []byte or fmt.Stringer
	PartitionKey string                // Routing hint, "" lets the broker choose
	Resolver     resolver.TypeResolver // Overrides the publisher default
}

// PublishResult describes an accepted message.
type PublishResult struct {
	MessageID   string            `json:"messageId"`
	Destination string            `json:"destination"`
	MessageType model.MessageType `json:"messageType"`
}

// Publish converts the payload, stamps its type tag and sends it.
//
// The process:
//  1. Validate the request and classify the payload
//  2. Convert the payload to its structured form
//  3. Let the resolver write the type tag
//  4. Attach id, timestamp, partition key and message key headers
//  5. Send through the broker
//
// A payload that is neither type-aware nor a map is rejected with
// ErrCodeArgument before anything is sent.
func (p *Publisher) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	msg, err := p.build(req)
	if err != nil {
		p.observer.PublishFailed(req.Destination, ErrorCode(err))
		return nil, err
	}

	res := p.resolverFor(req)
	tag, _ := res.Read(msg)

	p.logger.Infof("Sending message to [%s]: type=%s, id=%s, payload=%s",
		req.Destination, tag.DisplayName(), msg.ID(), describePayload(msg.Payload, fieldSet(p.masked, req.Payload)))

	if err := p.broker.Send(ctx, req.Destination, msg); err != nil {
		p.logger.Errorf("Failed to send message %s to [%s]: %v", msg.ID(), req.Destination, err)
		p.observer.PublishFailed(req.Destination, ErrCodeTransport)
		return nil, NewErrorWithCause(ErrCodeTransport, fmt.Sprintf("failed to send message to %s", req.Destination), err)
	}

	p.observer.MessagePublished(req.Destination, tag.String())

	return &PublishResult{
		MessageID:   msg.ID(),
		Destination: req.Destination,
		MessageType: tag,
	}, nil
}

// PublishBatch publishes several messages. Individual failures are logged and
// skipped; the results of the accepted messages are returned.
func (p *Publisher) PublishBatch(ctx context.Context, requests []PublishRequest) ([]*PublishResult, error) {
	if len(requests) == 0 {
		return []*PublishResult{}, nil
	}

	results := make([]*PublishResult, 0, len(requests))
	for _, req := range requests {
		result, err := p.Publish(ctx, req)
		if err != nil {
			p.logger.Errorf("Failed to publish message (destination=%s): %v", req.Destination, err)
			continue
		}
		results = append(results, result)
	}

	return results, nil
}

// build produces the structured message without any side effect.
func (p *Publisher) build(req PublishRequest) (*model.StructuredMessage, error) {
	if strings.TrimSpace(req.Destination) == "" {
		return nil, NewError(ErrCodeArgument, "destination is required")
	}
	if req.Payload == nil {
		return nil, NewError(ErrCodeArgument, "payload is required")
	}
	res := p.resolverFor(req)
	if res == nil {
		return nil, NewError(ErrCodeArgument, "type resolver is required (set PublishRequest.Resolver or use WithPublisherResolver)")
	}

	typed, source, err := classify(req.Payload, res)
	if err != nil {
		return nil, err
	}

	partitionKey, messageKey := payloadKeys(req)

	key, hasKey, err := messageKeyBytes(messageKey)
	if err != nil {
		return nil, err
	}

	payload, err := p.codec.ToStructured(req.Payload)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDecode, fmt.Sprintf("failed to convert payload %T", req.Payload), err)
	}

	msg := model.NewStructuredMessage(payload, model.Headers{
		model.HeaderID:           p.newID(),
		model.HeaderTimestamp:    p.now().UnixMilli(),
		model.HeaderPartitionKey: partitionKey,
	})
	if hasKey {
		msg.Headers[model.HeaderMessageKey] = key
	}

	if typed != nil {
		res.WriteTyped(typed, msg.Payload, msg.Headers)
	} else {
		res.WriteMap(source, msg.Payload, msg.Headers)
	}

	return msg, nil
}

func (p *Publisher) resolverFor(req PublishRequest) resolver.TypeResolver {
	if req.Resolver != nil {
		return req.Resolver
	}
	return p.resolver
}

// payloadKeys returns the partition key and message key of req, falling back
// to the ones the payload supplies.
func payloadKeys(req PublishRequest) (string, any) {
	partitionKey, messageKey := req.PartitionKey, req.MessageKey
	if pk, ok := req.Payload.(model.PartitionKeyAware); ok && partitionKey == "" {
		partitionKey = pk.PartitionKey()
	}
	if mk, ok := req.Payload.(model.MessageKeyAware); ok && messageKey == nil {
		if k := mk.MessageKey(); k != "" {
			messageKey = k
		}
	}
	return partitionKey, messageKey
}

// classify sorts a payload into type-aware or map form. A nil pointer is
// rejected like a missing payload.
func classify(payload any, res resolver.TypeResolver) (model.TypeAware, map[string]any, error) {
	if rv := reflect.ValueOf(payload); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil, NewError(ErrCodeArgument, fmt.Sprintf("payload is a nil %T", payload))
	}

	switch v := payload.(type) {
	case model.TypeAware:
		return v, nil, nil
	case model.Payload:
		return nil, v, nil
	case map[string]any:
		return nil, v, nil
	default:
		return nil, nil, NewError(ErrCodeArgument, fmt.Sprintf(
			"unsupported payload type %T: expected model.TypeAware or map[string]any (resolver %s)", payload, res.Name()))
	}
}

// messageKeyBytes converts a message key to its wire form. A nil key is
// reported as absent, which differs from an empty key.
func messageKeyBytes(key any) ([]byte, bool, error) {
	switch k := key.(type) {
	case nil:
		return nil, false, nil
	case string:
		return []byte(k), true, nil
	case []byte:
		return k, true, nil
	case fmt.Stringer:
		return []byte(k.String()), true, nil
	default:
		return nil, false, NewError(ErrCodeArgument, fmt.Sprintf("unsupported message key type %T", key))
	}
}
