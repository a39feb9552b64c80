// Package redis connects msgdispatch to Redis Streams.
//
// Publisher implements msgdispatch.Broker: the destination is the stream key
// and every message becomes one entry with a "payload" and a "headers" field,
// both JSON. Subscriber reads a stream through a consumer group and
// acknowledges an entry only after the handler accepted it. Failed entries
// stay in the consumer's pending list and are handed to the handler again on
// start and every ReclaimInterval.
//
// # Usage
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	pub := redis.NewPublisher(client, redis.PublisherConfig{MaxLen: 100000})
//
//	sub := redis.NewSubscriber(client, redis.SubscriberConfig{
//	    Stream:   "orders",
//	    Group:    "order-service",
//	    Consumer: hostname,
//	}, listener.AcceptFunc())
//	go sub.Run(ctx)
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/coregx/msgdispatch"
	"github.com/coregx/msgdispatch/codec"
	"github.com/coregx/msgdispatch/model"
)

// Stream entry fields.
const (
	FieldPayload = "payload"
	FieldHeaders = "headers"
)

// PublisherConfig configures the Redis Streams publisher.
type PublisherConfig struct {
	// MaxLen caps the stream length with approximate trimming.
	// Zero leaves streams untrimmed.
	MaxLen int64

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c PublisherConfig) applyDefaults() PublisherConfig {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Publisher appends structured messages to Redis streams.
type Publisher struct {
	config PublisherConfig
	client goredis.Cmdable
}

// NewPublisher creates a publisher. client may be a plain, cluster or
// universal client.
func NewPublisher(client goredis.Cmdable, config PublisherConfig) *Publisher {
	return &Publisher{config: config.applyDefaults(), client: client}
}

// Send implements msgdispatch.Broker.
func (p *Publisher) Send(ctx context.Context, stream string, msg *model.StructuredMessage) error {
	values, err := ToValues(msg)
	if err != nil {
		return err
	}

	args := &goredis.XAddArgs{Stream: stream, Values: values}
	if p.config.MaxLen > 0 {
		args.MaxLen = p.config.MaxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	p.config.Logger.Debug("Published message", "stream", stream, "entry", id, "id", msg.ID())
	return nil
}

// ToValues converts a structured message to stream entry fields.
func ToValues(msg *model.StructuredMessage) (map[string]any, error) {
	if msg == nil {
		return nil, msgdispatch.NewError(msgdispatch.ErrCodeArgument, "message is required")
	}

	payload, err := codec.EncodePayload(msg.Payload)
	if err != nil {
		return nil, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDecode, "failed to encode payload", err)
	}

	headers := msg.Clone().Headers
	delete(headers, model.HeaderReceivedDestination)
	rawHeaders, err := codec.EncodeHeaders(headers)
	if err != nil {
		return nil, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDecode, "failed to encode headers", err)
	}

	return map[string]any{
		FieldPayload: string(payload),
		FieldHeaders: string(rawHeaders),
	}, nil
}

// FromEntry converts a stream entry back to a structured message.
func FromEntry(stream string, entry goredis.XMessage) (*model.StructuredMessage, error) {
	rawPayload, _ := entry.Values[FieldPayload].(string)
	payload, err := codec.DecodePayload([]byte(rawPayload))
	if err != nil {
		return nil, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDecode,
			fmt.Sprintf("invalid entry %s in %s", entry.ID, stream), err)
	}

	rawHeaders, _ := entry.Values[FieldHeaders].(string)
	headers, err := codec.DecodeHeaders([]byte(rawHeaders))
	if err != nil {
		return nil, msgdispatch.NewErrorWithCause(msgdispatch.ErrCodeDecode,
			fmt.Sprintf("invalid headers in entry %s of %s", entry.ID, stream), err)
	}
	headers[model.HeaderReceivedDestination] = stream

	return model.NewStructuredMessage(payload, headers), nil
}

// SubscriberConfig configures the Redis Streams subscriber.
type SubscriberConfig struct {
	// Stream is the stream key. Required.
	Stream string

	// Group is the consumer group. Created with the stream when missing.
	// Required.
	Group string

	// Consumer names this reader within the group.
	// Default is a random UUID.
	Consumer string

	// StartID is where a newly created group starts reading.
	// Default is "0", the beginning of the stream. Use "$" for new entries only.
	StartID string

	// Count is the maximum number of entries per read.
	// Default is 10.
	Count int64

	// Block is how long a read waits for new entries.
	// Default is 1 second.
	Block time.Duration

	// RetryBackoff is the wait after a failed read.
	// Default is 1 second.
	RetryBackoff time.Duration

	// ReclaimInterval is how often entries this consumer read but did not
	// acknowledge are handed to the handler again. They are also reclaimed
	// once when Run starts.
	// Default is 30 seconds.
	ReclaimInterval time.Duration

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c SubscriberConfig) applyDefaults() SubscriberConfig {
	if c.Consumer == "" {
		c.Consumer = uuid.NewString()
	}
	if c.StartID == "" {
		c.StartID = "0"
	}
	if c.Count <= 0 {
		c.Count = 10
	}
	if c.Block <= 0 {
		c.Block = time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.ReclaimInterval <= 0 {
		c.ReclaimInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Subscriber dispatches the entries of a stream to a handler.
type Subscriber struct {
	config  SubscriberConfig
	client  goredis.Cmdable
	handler msgdispatch.MessageHandler
}

// NewSubscriber creates a consumer group subscriber.
func NewSubscriber(client goredis.Cmdable, config SubscriberConfig, handler msgdispatch.MessageHandler) *Subscriber {
	return &Subscriber{config: config.applyDefaults(), client: client, handler: handler}
}

// Run ensures the consumer group exists and reads until ctx is canceled.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.handler == nil {
		return msgdispatch.NewError(msgdispatch.ErrCodeConfiguration, "handler is required")
	}
	if s.config.Stream == "" || s.config.Group == "" {
		return msgdispatch.NewError(msgdispatch.ErrCodeConfiguration, "stream and group are required")
	}

	if err := s.ensureGroup(ctx); err != nil {
		return err
	}

	s.config.Logger.Info("Redis stream subscription started",
		"stream", s.config.Stream,
		"group", s.config.Group,
		"consumer", s.config.Consumer,
	)

	s.reclaim(ctx)
	lastReclaim := time.Now()

	for {
		if ctx.Err() != nil {
			s.config.Logger.Debug("Context canceled, closing subscription")
			return nil
		}

		if time.Since(lastReclaim) >= s.config.ReclaimInterval {
			s.reclaim(ctx)
			lastReclaim = time.Now()
		}

		streams, err := s.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    s.config.Group,
			Consumer: s.config.Consumer,
			Streams:  []string{s.config.Stream, ">"},
			Count:    s.config.Count,
			Block:    s.config.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				s.config.Logger.Debug("Context canceled, closing subscription")
				return nil
			}
			s.config.Logger.Error("Failed to read stream", "stream", s.config.Stream, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.config.RetryBackoff):
			}
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				s.handle(ctx, stream.Stream, entry)
			}
		}
	}
}

func (s *Subscriber) ensureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.config.Stream, s.config.Group, s.config.StartID).Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create group %s on %s: %w", s.config.Group, s.config.Stream, err)
	}
	return nil
}

// reclaim walks this consumer's pending list once and hands every entry to
// the handler again. Entries that fail stay pending for the next pass.
func (s *Subscriber) reclaim(ctx context.Context) {
	start := "0"
	for ctx.Err() == nil {
		streams, err := s.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    s.config.Group,
			Consumer: s.config.Consumer,
			Streams:  []string{s.config.Stream, start},
			Count:    s.config.Count,
			Block:    -1,
		}).Result()
		if err != nil {
			if !errors.Is(err, goredis.Nil) && ctx.Err() == nil {
				s.config.Logger.Error("Failed to read pending entries", "stream", s.config.Stream, "error", err)
			}
			return
		}

		read := 0
		for _, stream := range streams {
			for _, entry := range stream.Messages {
				read++
				start = entry.ID
				s.handle(ctx, stream.Stream, entry)
			}
		}
		if read == 0 {
			return
		}
		s.config.Logger.Debug("Reclaimed pending entries", "stream", s.config.Stream, "count", read)
		if int64(read) < s.config.Count {
			return
		}
	}
}

// handle dispatches one entry and acknowledges it on success. An entry that
// cannot be decoded is acknowledged too, since no retry can fix it.
func (s *Subscriber) handle(ctx context.Context, stream string, entry goredis.XMessage) {
	log := s.config.Logger.With("stream", stream, "entry", entry.ID)

	msg, err := FromEntry(stream, entry)
	if err != nil {
		log.Error("Dropping undecodable entry", "error", err)
	} else if err := s.handler(ctx, msg); err != nil {
		log.Warn("Entry left pending", "error", err)
		return
	}

	if err := s.client.XAck(ctx, stream, s.config.Group, entry.ID).Err(); err != nil {
		log.Error("Failed to ack entry", "error", err)
	}
}
