package msgdispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/msgdispatch/codec"
	"github.com/coregx/msgdispatch/model"
)

type refTagged struct {
	Tag string `json:"tag"`
}

func (r refTagged) MessageType() model.MessageType { return model.MessageType(r.Tag) }

func TestBind_Declarations(t *testing.T) {
	noop := func(context.Context, orderCreated, *model.StructuredMessage) error { return nil }

	typed := BindTypeAware("orders", noop)
	assert.Equal(t, "orders", typed.ListenerID())
	assert.Equal(t, model.MessageType("ORDER_CREATED"), typed.MessageType())
	assert.False(t, typed.ConsumesUnknownTypes())
	assert.Regexp(t, `^Consumer\[payload: msgdispatch\.orderCreated\] at consumer_test\.go:\d+$`, typed.Name())

	explicit := Bind("orders", "ORDER_CREATED_V2", noop, WithConsumerName("V2"))
	assert.Equal(t, model.MessageType("ORDER_CREATED_V2"), explicit.MessageType())
	assert.Equal(t, "V2", explicit.Name())

	catchAll := BindUnknown("orders", noop)
	assert.True(t, catchAll.ConsumesUnknownTypes())
	assert.True(t, catchAll.MessageType().IsUnknown())
}

func TestBind_DefaultNamesAreDistinct(t *testing.T) {
	noop := func(context.Context, orderCreated, *model.StructuredMessage) error { return nil }

	first := Bind("orders", "X", noop)
	second := Bind("orders", "X", noop)
	assert.NotEqual(t, first.Name(), second.Name())

	_, err := NewListener("orders",
		WithResolver(headerResolver(t)),
		WithLogger(&NoopLogger{}),
		WithConsumers(first, second),
	)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeConfiguration))
	assert.Contains(t, err.Error(), "["+second.Name()+"]")
	assert.Contains(t, err.Error(), "["+first.Name()+"]")
}

func TestBindTypeAware_PointerPayloadYieldsSentinel(t *testing.T) {
	c := BindTypeAware("orders", func(context.Context, *refTagged, *model.StructuredMessage) error { return nil })
	assert.True(t, c.MessageType().IsUnknown())
}

func TestConsumer_DecodeAndConsume(t *testing.T) {
	var got *refTagged
	c := Bind("orders", "REF", func(_ context.Context, p *refTagged, _ *model.StructuredMessage) error {
		got = p
		return nil
	})

	decoded, err := c.Decode(codec.JSON(), model.Payload{"tag": "REF"})
	require.NoError(t, err)
	require.NoError(t, c.Consume(context.Background(), decoded, model.NewStructuredMessage(nil, nil)))
	require.NotNil(t, got)
	assert.Equal(t, "REF", got.Tag)

	err = c.Consume(context.Background(), "not a payload", nil)
	assert.True(t, IsCode(err, ErrCodeArgument))
}
