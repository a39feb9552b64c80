package msgdispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/msgdispatch/model"
	"github.com/coregx/msgdispatch/resolver"
)

func newTestPublisher(t *testing.T, broker Broker, opts ...PublisherOption) (*Publisher, *recordingLogger) {
	t.Helper()
	logger := newRecordingLogger()
	base := []PublisherOption{
		WithPublisherBroker(broker),
		WithPublisherLogger(logger),
		WithPublisherResolver(headerResolver(t)),
		WithIDGenerator(sequentialIDs()),
	}
	p, err := NewPublisher(append(base, opts...)...)
	require.NoError(t, err)
	return p, logger
}

func TestNewPublisher_RequiredOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []PublisherOption
		want string
	}{
		{
			name: "missing broker",
			opts: []PublisherOption{WithPublisherLogger(&NoopLogger{})},
			want: "Broker is required",
		},
		{
			name: "missing logger",
			opts: []PublisherOption{WithPublisherBroker(&recordingBroker{})},
			want: "Logger is required",
		},
		{
			name: "nil broker",
			opts: []PublisherOption{WithPublisherBroker(nil), WithPublisherLogger(&NoopLogger{})},
			want: "broker cannot be nil",
		},
		{
			name: "blank masked field",
			opts: []PublisherOption{
				WithPublisherBroker(&recordingBroker{}),
				WithPublisherLogger(&NoopLogger{}),
				WithMaskedFields("password", " "),
			},
			want: "masked field name cannot be blank",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPublisher(tt.opts...)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, IsCode(err, ErrCodeConfiguration))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPublisher_Publish_TypedPayload(t *testing.T) {
	broker := &recordingBroker{}
	p, _ := newTestPublisher(t, broker)

	result, err := p.Publish(context.Background(), PublishRequest{
		Destination: "orders",
		Payload:     orderCreated{OrderID: "o-1", CustomerID: "cust-1", Amount: 12.5},
		MessageKey:  "cust-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "msg-1", result.MessageID)
	assert.Equal(t, "orders", result.Destination)
	assert.Equal(t, model.MessageType("ORDER_CREATED"), result.MessageType)

	calls := broker.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "orders", calls[0].destination)

	msg := calls[0].msg
	assert.Equal(t, "ORDER_CREATED", msg.Headers["messageType"])
	assert.Equal(t, "msg-1", msg.ID())
	assert.Equal(t, "", msg.PartitionKey())
	assert.Contains(t, msg.Headers, model.HeaderTimestamp)

	key, ok := msg.MessageKey()
	require.True(t, ok)
	assert.Equal(t, []byte("cust-1"), key)

	assert.Equal(t, "o-1", msg.Payload["orderId"])
	assert.Equal(t, 12.5, msg.Payload["amount"])
	assert.NotContains(t, msg.Payload, "type", "header resolver must not touch the payload")
}

func TestPublisher_Publish_MapPayload(t *testing.T) {
	tests := []struct {
		name       string
		resolver   resolver.TypeResolver
		payload    map[string]any
		wantTag    model.MessageType
		wantHeader any
	}{
		{
			name:       "header resolver copies the payload field",
			resolver:   headerResolver(t),
			payload:    map[string]any{"type": "ORDER_CANCELLED", "orderId": "o-2"},
			wantTag:    "ORDER_CANCELLED",
			wantHeader: "ORDER_CANCELLED",
		},
		{
			name:     "payload resolver keeps the tag in the payload",
			resolver: payloadResolver(t),
			payload:  map[string]any{"type": "ORDER_CANCELLED", "orderId": "o-2"},
			wantTag:  "ORDER_CANCELLED",
		},
		{
			name:     "map without tag stays untagged",
			resolver: headerResolver(t),
			payload:  map[string]any{"orderId": "o-3"},
			wantTag:  model.UnknownMessageType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := &recordingBroker{}
			p, _ := newTestPublisher(t, broker)

			result, err := p.Publish(context.Background(), PublishRequest{
				Destination:  "orders",
				Payload:      tt.payload,
				PartitionKey: "p-7",
				Resolver:     tt.resolver,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantTag, result.MessageType)

			msg := broker.calls()[0].msg
			assert.Equal(t, tt.wantHeader, msg.Headers["messageType"])
			assert.Equal(t, "p-7", msg.PartitionKey())

			_, hasKey := msg.MessageKey()
			assert.False(t, hasKey)
		})
	}
}

func TestPublisher_Publish_BlankTagIsNotWritten(t *testing.T) {
	broker := &recordingBroker{}
	p, _ := newTestPublisher(t, broker)

	result, err := p.Publish(context.Background(), PublishRequest{
		Destination: "notes",
		Payload:     untyped{Note: "hello"},
	})
	require.NoError(t, err)
	assert.True(t, result.MessageType.IsUnknown())

	msg := broker.calls()[0].msg
	assert.NotContains(t, msg.Headers, "messageType")
}

func TestPublisher_Publish_RejectsUnsupportedPayload(t *testing.T) {
	broker := &recordingBroker{}
	observer := newCountingObserver()
	p, _ := newTestPublisher(t, broker, WithPublisherObserver(observer))

	tests := []struct {
		name string
		req  PublishRequest
		want string
	}{
		{
			name: "bare string",
			req:  PublishRequest{Destination: "orders", Payload: "ORDER_CREATED"},
			want: "unsupported payload type string",
		},
		{
			name: "struct without tag",
			req:  PublishRequest{Destination: "orders", Payload: struct{ ID int }{ID: 1}},
			want: "unsupported payload type",
		},
		{
			name: "missing destination",
			req:  PublishRequest{Payload: orderCreated{OrderID: "o-1"}},
			want: "destination is required",
		},
		{
			name: "missing payload",
			req:  PublishRequest{Destination: "orders"},
			want: "payload is required",
		},
		{
			name: "unsupported key",
			req:  PublishRequest{Destination: "orders", Payload: orderCreated{OrderID: "o-1"}, MessageKey: 42},
			want: "unsupported message key type int",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Publish(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, IsCode(err, ErrCodeArgument))
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.Empty(t, broker.calls(), "nothing may be sent for a rejected request")
	assert.Equal(t, len(tests), observer.count("publish_failed"))
	assert.Equal(t, ErrCodeArgument, observer.lastDetail("publish_failed"))
}

func TestPublisher_Publish_RequiresResolver(t *testing.T) {
	broker := &recordingBroker{}
	p, err := NewPublisher(WithPublisherBroker(broker), WithPublisherLogger(&NoopLogger{}))
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), PublishRequest{
		Destination: "orders",
		Payload:     orderCreated{OrderID: "o-1"},
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeArgument))
	assert.Empty(t, broker.calls())
}

func TestPublisher_Publish_EmptyKeyDiffersFromNoKey(t *testing.T) {
	broker := &recordingBroker{}
	p, _ := newTestPublisher(t, broker)
	ctx := context.Background()

	_, err := p.Publish(ctx, PublishRequest{Destination: "orders", Payload: orderCreated{OrderID: "o-1"}})
	require.NoError(t, err)
	_, err = p.Publish(ctx, PublishRequest{Destination: "orders", Payload: orderCreated{OrderID: "o-1"}, MessageKey: []byte{}})
	require.NoError(t, err)

	calls := broker.calls()
	require.Len(t, calls, 2)

	_, hasKey := calls[0].msg.MessageKey()
	assert.False(t, hasKey)

	key, hasKey := calls[1].msg.MessageKey()
	assert.True(t, hasKey)
	assert.Empty(t, key)
}

func TestPublisher_Publish_MasksSensitiveFieldsInLogs(t *testing.T) {
	broker := &recordingBroker{}
	p, logger := newTestPublisher(t, broker, WithMaskedFields("customerId"))

	_, err := p.Publish(context.Background(), PublishRequest{
		Destination: "orders",
		Payload:     orderCreated{OrderID: "o-1", CustomerID: "cust-1", CardNumber: "4111111111111111"},
	})
	require.NoError(t, err)

	infos := logger.get("info")
	require.Len(t, infos, 1)
	assert.Contains(t, infos[0], "Sending message to [orders]")
	assert.Contains(t, infos[0], "'ORDER_CREATED'")
	assert.NotContains(t, infos[0], "4111111111111111")
	assert.NotContains(t, infos[0], "cust-1")
	assert.Contains(t, infos[0], maskedValue)

	msg := broker.calls()[0].msg
	assert.Equal(t, "4111111111111111", msg.Payload["cardNumber"], "transmitted payload must stay intact")
	assert.Equal(t, "cust-1", msg.Payload["customerId"])
}

func TestPublisher_Publish_BrokerFailure(t *testing.T) {
	broker := &recordingBroker{err: errors.New("connection refused")}
	observer := newCountingObserver()
	p, logger := newTestPublisher(t, broker, WithPublisherObserver(observer))

	_, err := p.Publish(context.Background(), PublishRequest{
		Destination: "orders",
		Payload:     orderCreated{OrderID: "o-1"},
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeTransport))
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 1, observer.count("publish_failed"))
	assert.Equal(t, 0, observer.count("published"))
	assert.True(t, logger.contains("error", "Failed to send message msg-1 to [orders]"))
}

func TestPublisher_PublishBatch(t *testing.T) {
	broker := &recordingBroker{}
	observer := newCountingObserver()
	p, _ := newTestPublisher(t, broker, WithPublisherObserver(observer))

	results, err := p.PublishBatch(context.Background(), []PublishRequest{
		{Destination: "orders", Payload: orderCreated{OrderID: "o-1"}},
		{Destination: "orders", Payload: 17},
		{Destination: "orders", Payload: orderCancelled{OrderID: "o-1", Reason: "changed mind"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, model.MessageType("ORDER_CREATED"), results[0].MessageType)
	assert.Equal(t, model.MessageType("ORDER_CANCELLED"), results[1].MessageType)
	assert.Len(t, broker.calls(), 2)
	assert.Equal(t, 2, observer.count("published"))
	assert.Equal(t, 1, observer.count("publish_failed"))

	empty, err := p.PublishBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

type shipmentDispatched struct {
	ShipmentID string `json:"shipmentId"`
	Carrier    string `json:"carrier"`
}

func (shipmentDispatched) MessageType() model.MessageType { return "SHIPMENT_DISPATCHED" }
func (s shipmentDispatched) PartitionKey() string         { return s.Carrier }
func (s shipmentDispatched) MessageKey() string           { return s.ShipmentID }

func TestPublisher_Publish_PayloadSuppliedKeys(t *testing.T) {
	tests := []struct {
		name          string
		req           PublishRequest
		wantPartition string
		wantKey       []byte
		wantHasKey    bool
	}{
		{
			name:          "keys taken from payload",
			req:           PublishRequest{Destination: "shipments", Payload: shipmentDispatched{ShipmentID: "s-1", Carrier: "dhl"}},
			wantPartition: "dhl",
			wantKey:       []byte("s-1"),
			wantHasKey:    true,
		},
		{
			name: "request keys win",
			req: PublishRequest{
				Destination:  "shipments",
				Payload:      shipmentDispatched{ShipmentID: "s-1", Carrier: "dhl"},
				PartitionKey: "ups",
				MessageKey:   "override",
			},
			wantPartition: "ups",
			wantKey:       []byte("override"),
			wantHasKey:    true,
		},
		{
			name:          "empty payload message key means none",
			req:           PublishRequest{Destination: "shipments", Payload: shipmentDispatched{Carrier: "dhl"}},
			wantPartition: "dhl",
		},
		{
			name: "explicit empty request key is kept",
			req: PublishRequest{
				Destination: "shipments",
				Payload:     shipmentDispatched{ShipmentID: "s-1", Carrier: "dhl"},
				MessageKey:  []byte{},
			},
			wantPartition: "dhl",
			wantKey:       []byte{},
			wantHasKey:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := &recordingBroker{}
			p, _ := newTestPublisher(t, broker)

			_, err := p.Publish(context.Background(), tt.req)
			require.NoError(t, err)

			calls := broker.calls()
			require.Len(t, calls, 1)
			msg := calls[0].msg

			assert.Equal(t, tt.wantPartition, msg.PartitionKey())
			key, hasKey := msg.MessageKey()
			assert.Equal(t, tt.wantHasKey, hasKey)
			if tt.wantHasKey {
				assert.Equal(t, tt.wantKey, key)
			}
		})
	}
}

func TestPublisher_Publish_RejectsNilPointerPayload(t *testing.T) {
	broker := &recordingBroker{}
	p, _ := newTestPublisher(t, broker)

	var payload *shipmentDispatched
	result, err := p.Publish(context.Background(), PublishRequest{Destination: "shipments", Payload: payload})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, IsCode(err, ErrCodeArgument))
	assert.Contains(t, err.Error(), "payload is a nil *msgdispatch.shipmentDispatched")
	assert.Empty(t, broker.calls())
}
