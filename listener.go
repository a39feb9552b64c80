package msgdispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coregx/msgdispatch/codec"
	"github.com/coregx/msgdispatch/model"
	"github.com/coregx/msgdispatch/resolver"
)

// Listener receives messages from a broker subscription and routes each one
// to the consumer bound to its type tag.
//
// Routing:
//   - a message whose tag has a consumer goes to that consumer
//   - any other message goes to the catch-all consumer (BindUnknown), if any
//   - otherwise the message is logged and dropped
//
// Errors raised while decoding, validating or consuming are returned so the
// broker integration can redeliver or dead-letter the message.
//
// Thread safety: Safe for concurrent use. The dispatch table is immutable
// after NewListener returns.
type Listener struct {
	id         string
	appName    string
	resolver   resolver.TypeResolver
	codec      codec.Codec
	validator  Validator
	logger     Logger
	observer   Observer
	masked     map[string]struct{}
	candidates []Consumer
	table      *dispatchTable
}

// NewListener creates a listener identified by id and builds its dispatch
// table from the consumers declared for that id.
//
// Required options:
//   - WithResolver: type resolver matching the publishing side
//   - WithLogger: logger instance
//
// Optional options:
//   - WithConsumers: candidate consumers
//   - WithCodec: payload codec (default: codec.JSON())
//   - WithValidator: payload validator (default: OzzoValidator)
//   - WithObserver: metrics hooks
//   - WithApplicationName: name attached to per-message log context
//   - WithSensitiveFields: payload fields masked in logs
//
// A consumer with a blank message type, or two consumers bound to the same
// type, fail construction with ErrCodeConfiguration.
func NewListener(id string, opts ...Option) (*Listener, error) {
	if strings.TrimSpace(id) == "" {
		return nil, NewError(ErrCodeConfiguration, "listener id is required")
	}

	l := &Listener{
		id:        id,
		codec:     codec.JSON(),
		validator: OzzoValidator{},
		observer:  NoopObserver{},
		masked:    map[string]struct{}{},
	}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply listener option", err)
		}
	}

	if l.resolver == nil {
		return nil, NewError(ErrCodeConfiguration, "TypeResolver is required (use WithResolver)")
	}
	if l.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}

	table, err := newDispatchTable(id, l.candidates, l.logger)
	if err != nil {
		return nil, err
	}
	l.table = table
	l.candidates = nil

	return l, nil
}

// ID returns the listener id.
func (l *Listener) ID() string {
	return l.id
}

// Bindings returns the bound message types in sorted order. The catch-all
// consumer, if any, is listed first under model.UnknownMessageType.
func (l *Listener) Bindings() []Binding {
	return l.table.bindings()
}

// Handles reports whether a message with the given tag would reach a consumer.
func (l *Listener) Handles(tag model.MessageType) bool {
	_, _, ok := l.table.lookup(tag)
	return ok
}

// AcceptFunc adapts the listener to the callback used by broker subscribers.
func (l *Listener) AcceptFunc() MessageHandler {
	return l.Accept
}

// Accept dispatches one inbound message.
//
// The process:
//  1. Read the type tag; a missing tag becomes model.UnknownMessageType
//  2. Look up the consumer, falling back to the catch-all consumer
//  3. Decode the payload into the consumer's payload type
//  4. Validate the decoded payload
//  5. Invoke the consumer
//
// A message without a consumer is not an error: it is logged and nil is
// returned. Decoding failures are reported with ErrCodeDecode, validation
// failures with ErrCodeValidation, and consumer errors are returned as is.
func (l *Listener) Accept(ctx context.Context, msg *model.StructuredMessage) error {
	if msg == nil {
		return NewError(ErrCodeArgument, "message is required")
	}

	tag, ok := l.resolver.Read(msg)
	if !ok {
		tag = model.UnknownMessageType
	}
	log := withPrefix(l.logger, l.logContext(msg, tag))

	// Observer events carry the matched table key, never the inbound tag,
	// which is chosen by producers.
	consumer, key, found := l.table.lookup(tag)
	if !found {
		log.Infof("No message consumer found in listener [%s] for type %s: %s",
			l.id, tag.DisplayName(), describePayload(msg.Payload, l.masked))
		l.observer.MessageIgnored(l.id)
		return nil
	}

	start := time.Now()

	payload, err := consumer.Decode(l.codec, msg.Payload)
	if err != nil {
		return l.fail(log, consumer, key, msg, nil, "decode", NewErrorWithCause(ErrCodeDecode,
			fmt.Sprintf("failed to decode payload as %s", consumer.PayloadType()), err))
	}

	if err := l.validator.Validate(payload); err != nil {
		return l.fail(log, consumer, key, msg, payload, "validation", NewErrorWithCause(ErrCodeValidation,
			fmt.Sprintf("payload rejected for consumer %s", consumer.Name()), err))
	}

	if err := consumer.Consume(ctx, payload, msg); err != nil {
		return l.fail(log, consumer, key, msg, payload, "consumer", err)
	}

	elapsed := time.Since(start)
	l.observer.MessageDispatched(l.id, key.String(), elapsed)
	log.Debugf("Message consumed by %s in %v", consumer.Name(), elapsed)

	return nil
}

// fail logs a consumption failure with the masked payload and returns err.
// decoded, when set, may declare additional sensitive fields.
func (l *Listener) fail(log Logger, c Consumer, key model.MessageType, msg *model.StructuredMessage, decoded any, stage string, err error) error {
	log.Errorf("Message consumption failed in listener [%s] (consumer %s, stage %s): %v; payload=%s",
		l.id, c.Name(), stage, err, describePayload(msg.Payload, fieldSet(l.masked, decoded)))
	l.observer.ConsumeFailed(l.id, key.String(), stage)
	return err
}

// logContext renders the per-message context prepended to log lines.
func (l *Listener) logContext(msg *model.StructuredMessage, tag model.MessageType) string {
	var b strings.Builder
	b.WriteString("[")
	if l.appName != "" {
		fmt.Fprintf(&b, "app=%s ", l.appName)
	}
	fmt.Fprintf(&b, "listener=%s", l.id)
	if dest := msg.Destination(); dest != "" {
		fmt.Fprintf(&b, " destination=%s", dest)
	}
	if id := msg.ID(); id != "" {
		fmt.Fprintf(&b, " id=%s", id)
	}
	fmt.Fprintf(&b, " type=%s]", tag.DisplayName())
	return b.String()
}
