// Package kafka connects msgdispatch to Apache Kafka.
//
// Publisher implements msgdispatch.Broker: the destination is the topic, the
// message key becomes the Kafka record key and the remaining headers become
// Kafka record headers. Subscriber reads a consumer group and hands every
// record to a msgdispatch.MessageHandler, usually Listener.AcceptFunc().
//
// # Usage
//
//	pub := kafka.NewPublisher(kafka.PublisherConfig{
//	    Brokers: []string{"localhost:9092"},
//	})
//	defer pub.Close()
//
//	sub := kafka.NewSubscriber(kafka.SubscriberConfig{
//	    Brokers:       []string{"localhost:9092"},
//	    Topics:        []string{"orders"},
//	    ConsumerGroup: "order-service",
//	}, listener.AcceptFunc())
//	go sub.Run(ctx)
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/coregx/msgdispatch"
	"github.com/coregx/msgdispatch/codec"
	"github.com/coregx/msgdispatch/model"
)

// PublisherConfig configures the Kafka publisher.
type PublisherConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// BatchSize is the number of messages to batch before sending.
	// Default is 100.
	BatchSize int

	// BatchTimeout is the maximum time to wait for a full batch.
	// Default is 10 milliseconds, so a synchronous Send is not held back.
	BatchTimeout time.Duration

	// RequiredAcks controls producer acknowledgment.
	// Default is kafka.RequireAll for durability.
	RequiredAcks kafka.RequiredAcks

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c PublisherConfig) applyDefaults() PublisherConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 10 * time.Millisecond
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = kafka.RequireAll
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// writer is the part of *kafka.Writer the publisher uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends structured messages to Kafka topics, one writer per topic.
type Publisher struct {
	config    PublisherConfig
	newWriter func(topic string) writer
	writers   map[string]writer
	mu        sync.Mutex
}

// NewPublisher creates a new Kafka publisher.
func NewPublisher(config PublisherConfig) *Publisher {
	p := &Publisher{
		config:  config.applyDefaults(),
		writers: make(map[string]writer),
	}
	p.newWriter = p.kafkaWriter
	return p
}

func (p *Publisher) kafkaWriter(topic string) writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    p.config.BatchSize,
		BatchTimeout: p.config.BatchTimeout,
		RequiredAcks: p.config.RequiredAcks,
	}
}

// getWriter returns or creates a writer for the given topic.
func (p *Publisher) getWriter(topic string) writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := p.newWriter(topic)
	p.writers[topic] = w
	return w
}

// Send implements msgdispatch.Broker.
func (p *Publisher) Send(ctx context.Context, topic string, msg *model.StructuredMessage) error {
	record, err := ToRecord(msg)
	if err != nil {
		return err
	}

	if err := p.getWriter(topic).WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.config.Logger.Debug("Published message", "topic", topic, "id", msg.ID())
	return nil
}

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close writer for %s: %w", topic, err))
		}
	}
	p.writers = make(map[string]writer)
	return errors.Join(errs...)
}

// HeaderKeySource records on the wire what the Kafka record key was taken
// from, so FromRecord can tell a message key from a partition key that only
// served as the record key.
const HeaderKeySource = "kafka_keySource"

// Values of HeaderKeySource.
const (
	KeySourceMessage   = "message"
	KeySourcePartition = "partition"
)

// ToRecord converts a structured message to a Kafka record. The message key
// header becomes the record key; partition routing uses the record key, or
// the partition key header when no message key was given.
func ToRecord(msg *model.StructuredMessage) (kafka.Message, error) {
	if msg == nil {
		return kafka.Message{}, msgdispatch.NewError(msgdispatch.ErrCodeArgument, "message is required")
	}

	value, err := codec.EncodePayload(msg.Payload)
	if err != nil {
		return kafka.Message{}, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDecode, "failed to encode payload", err)
	}

	record := kafka.Message{Value: value}
	keySource := ""
	if key, ok := msg.MessageKey(); ok {
		record.Key = key
		keySource = KeySourceMessage
	} else if pk := msg.PartitionKey(); pk != "" {
		record.Key = []byte(pk)
		keySource = KeySourcePartition
	}

	for name, v := range msg.Headers {
		switch name {
		case model.HeaderMessageKey, model.HeaderReceivedDestination, HeaderKeySource:
			continue
		}
		record.Headers = append(record.Headers, kafka.Header{Key: name, Value: codec.HeaderBytes(v)})
	}
	if keySource != "" {
		record.Headers = append(record.Headers, kafka.Header{Key: HeaderKeySource, Value: []byte(keySource)})
	}

	return record, nil
}

// FromRecord converts a Kafka record back to a structured message. Header
// values arrive as strings. The record key is restored as the message key
// unless HeaderKeySource says it was derived from the partition key. Records
// from producers that do not write HeaderKeySource keep a non-nil key as the
// message key.
func FromRecord(record kafka.Message) (*model.StructuredMessage, error) {
	payload, err := codec.DecodePayload(record.Value)
	if err != nil {
		return nil, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDecode,
			fmt.Sprintf("invalid record at %s/%d@%d", record.Topic, record.Partition, record.Offset), err)
	}

	headers := make(model.Headers, len(record.Headers)+2)
	keySource := ""
	for _, h := range record.Headers {
		if h.Key == HeaderKeySource {
			keySource = string(h.Value)
			continue
		}
		headers[h.Key] = string(h.Value)
	}
	switch keySource {
	case KeySourceMessage:
		key := record.Key
		if key == nil {
			key = []byte{}
		}
		headers[model.HeaderMessageKey] = key
	case KeySourcePartition:
	default:
		if record.Key != nil {
			headers[model.HeaderMessageKey] = record.Key
		}
	}
	headers[model.HeaderReceivedDestination] = record.Topic

	return model.NewStructuredMessage(payload, headers), nil
}

// SubscriberConfig configures the Kafka subscriber.
type SubscriberConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// Topics is the list of topics to subscribe to.
	Topics []string

	// ConsumerGroup is the consumer group ID. Required.
	ConsumerGroup string

	// StartOffset controls where to start reading when no committed offset exists.
	// Default is kafka.FirstOffset.
	StartOffset int64

	// MaxWait is the maximum time to wait for new messages.
	// Default is 1 second.
	MaxWait time.Duration

	// RetryBackoff is how long the subscriber waits after a fetch error, and
	// before handing a failed record to the handler again.
	// Default is 1 second.
	RetryBackoff time.Duration

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c SubscriberConfig) applyDefaults() SubscriberConfig {
	if c.StartOffset == 0 {
		c.StartOffset = kafka.FirstOffset
	}
	if c.MaxWait <= 0 {
		c.MaxWait = time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// reader is the part of *kafka.Reader the subscriber uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Subscriber consumes a Kafka consumer group.
//
// An offset is committed only after the handler returned nil. A failed record
// is retried every RetryBackoff until the handler accepts it or ctx ends, so
// the subscriber never commits past it. A record whose value cannot be
// decoded can never succeed; it is logged and committed.
type Subscriber struct {
	config  SubscriberConfig
	handler msgdispatch.MessageHandler
	reader  reader
}

// NewSubscriber creates a new Kafka subscriber dispatching to handler.
func NewSubscriber(config SubscriberConfig, handler msgdispatch.MessageHandler) *Subscriber {
	config = config.applyDefaults()
	return &Subscriber{
		config:  config,
		handler: handler,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     config.Brokers,
			GroupID:     config.ConsumerGroup,
			GroupTopics: config.Topics,
			StartOffset: config.StartOffset,
			MaxWait:     config.MaxWait,
		}),
	}
}

// Run reads records until ctx is canceled. It returns nil on cancellation.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.handler == nil {
		return msgdispatch.NewError(msgdispatch.ErrCodeConfiguration, "handler is required")
	}

	s.config.Logger.Info("Kafka subscription started",
		"topics", s.config.Topics,
		"group", s.config.ConsumerGroup,
		"brokers", s.config.Brokers,
	)

	for {
		record, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.config.Logger.Debug("Context canceled, closing subscription")
				return nil
			}
			s.config.Logger.Error("Failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.config.RetryBackoff):
			}
			continue
		}

		s.handle(ctx, record)
	}
}

// handle dispatches one record and commits its offset once the handler
// succeeded. It returns early, without committing, when ctx ends.
func (s *Subscriber) handle(ctx context.Context, record kafka.Message) {
	log := s.config.Logger.With("topic", record.Topic, "partition", record.Partition, "offset", record.Offset)

	msg, err := FromRecord(record)
	if err != nil {
		log.Error("Skipping undecodable record", "error", err)
		s.commit(ctx, log, record)
		return
	}

	for attempt := 1; ; attempt++ {
		err := s.handler(ctx, msg.Clone())
		if err == nil {
			break
		}
		log.Warn("Handler failed, record will be retried", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			log.Debug("Context canceled, record left uncommitted")
			return
		case <-time.After(s.config.RetryBackoff):
		}
	}

	s.commit(ctx, log, record)
}

func (s *Subscriber) commit(ctx context.Context, log *slog.Logger, record kafka.Message) {
	if err := s.reader.CommitMessages(ctx, record); err != nil {
		log.Error("Failed to commit offset", "error", err)
	}
}

// Close closes the Kafka reader.
func (s *Subscriber) Close() error {
	return s.reader.Close()
}
