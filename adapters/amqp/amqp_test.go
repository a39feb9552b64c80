package amqp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/msgdispatch"
	"github.com/coregx/msgdispatch/model"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent []published
	err  error
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

// fakeAcknowledger implements amqp.Acknowledger.
type fakeAcknowledger struct {
	acked    []uint64
	nacked   []uint64
	requeued bool
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.nacked = append(a.nacked, tag)
	a.requeued = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func createdMessage() *model.StructuredMessage {
	return model.NewStructuredMessage(
		model.Payload{"orderId": "o-1"},
		model.Headers{
			model.HeaderID:         "m-3",
			model.HeaderMessageKey: []byte("cust-1"),
			"messageType":          "ORDER_CREATED",
			"timestamp":            1700000000000,
			"retries":              uint8(2),
		},
	)
}

func TestToPublishing(t *testing.T) {
	p, err := ToPublishing(createdMessage())
	require.NoError(t, err)

	assert.Equal(t, "application/json", p.ContentType)
	assert.Equal(t, "m-3", p.MessageId)
	assert.JSONEq(t, `{"orderId":"o-1"}`, string(p.Body))
	assert.Equal(t, "ORDER_CREATED", p.Headers["messageType"])
	assert.Equal(t, int64(1700000000000), p.Headers["timestamp"])
	assert.Equal(t, []byte("cust-1"), p.Headers[model.HeaderMessageKey])
	assert.Equal(t, "2", p.Headers["retries"])
	assert.NoError(t, p.Headers.Validate())
}

func TestToPublishing_NilMessage(t *testing.T) {
	_, err := ToPublishing(nil)
	assert.Equal(t, msgdispatch.ErrCodeArgument, msgdispatch.ErrorCode(err))
}

func TestFromDelivery(t *testing.T) {
	p, err := ToPublishing(createdMessage())
	require.NoError(t, err)

	msg, err := FromDelivery(amqp.Delivery{RoutingKey: "orders.created", Headers: p.Headers, Body: p.Body, MessageId: p.MessageId})
	require.NoError(t, err)

	assert.Equal(t, "orders.created", msg.Destination())
	assert.Equal(t, "m-3", msg.ID())
	key, ok := msg.MessageKey()
	assert.True(t, ok)
	assert.Equal(t, []byte("cust-1"), key)

	msg, err = FromDelivery(amqp.Delivery{RoutingKey: "orders", Body: []byte(`{}`), MessageId: "m-4"})
	require.NoError(t, err)
	assert.Equal(t, "m-4", msg.ID(), "message id property fills a missing id header")
}

func TestPublisher_Send(t *testing.T) {
	fake := &fakeChannel{}
	p := &Publisher{config: PublisherConfig{Exchange: "orders", Logger: quiet}.applyDefaults(), ch: fake}

	require.NoError(t, p.Send(context.Background(), "orders.created", createdMessage()))
	require.Len(t, fake.sent, 1)
	assert.Equal(t, "orders", fake.sent[0].exchange)
	assert.Equal(t, "orders.created", fake.sent[0].key)
	assert.Equal(t, amqp.Persistent, fake.sent[0].msg.DeliveryMode)

	fake.err = errors.New("channel closed")
	err := p.Send(context.Background(), "orders.created", createdMessage())
	assert.ErrorIs(t, err, fake.err)
}

func TestSubscriber_Dispatch(t *testing.T) {
	p, err := ToPublishing(createdMessage())
	require.NoError(t, err)

	tests := []struct {
		name       string
		body       []byte
		handlerErr error
		requeue    bool
		wantAck    bool
	}{
		{name: "accepted", body: p.Body, wantAck: true},
		{name: "consumer failure requeued", body: p.Body, handlerErr: errors.New("boom"), requeue: true},
		{name: "consumer failure dead-lettered", body: p.Body, handlerErr: errors.New("boom")},
		{name: "invalid body", body: []byte("<xml/>")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			s := &Subscriber{
				config:  SubscriberConfig{Queue: "orders", Requeue: tt.requeue, Logger: quiet}.applyDefaults(),
				handler: func(context.Context, *model.StructuredMessage) error { return tt.handlerErr },
			}

			s.dispatch(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 9, Headers: p.Headers, Body: tt.body})

			if tt.wantAck {
				assert.Equal(t, []uint64{9}, ack.acked)
				assert.Empty(t, ack.nacked)
				return
			}
			assert.Empty(t, ack.acked)
			assert.Equal(t, []uint64{9}, ack.nacked)
			assert.Equal(t, tt.requeue, ack.requeued)
		})
	}
}

func TestSubscriber_Configuration(t *testing.T) {
	handler := func(context.Context, *model.StructuredMessage) error { return nil }

	err := NewSubscriber(nil, SubscriberConfig{Queue: "orders"}, nil).Run(context.Background())
	assert.Equal(t, msgdispatch.ErrCodeConfiguration, msgdispatch.ErrorCode(err))

	err = NewSubscriber(nil, SubscriberConfig{}, handler).Run(context.Background())
	assert.Equal(t, msgdispatch.ErrCodeConfiguration, msgdispatch.ErrorCode(err))
}
