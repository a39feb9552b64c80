package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/msgdispatch/model"
)

type typedPayload struct {
	tag model.MessageType
}

func (p typedPayload) MessageType() model.MessageType { return p.tag }

type stringer string

func (s stringer) String() string { return string(s) }

func newHeader(t *testing.T) *HeaderBased {
	t.Helper()
	r, err := NewHeaderBased("messageType", "type")
	require.NoError(t, err)
	return r
}

func newPayload(t *testing.T) *PayloadBased {
	t.Helper()
	r, err := NewPayloadBased("type")
	require.NoError(t, err)
	return r
}

func TestConstruction_BlankFields(t *testing.T) {
	tests := []struct {
		name string
		make func() error
	}{
		{name: "header: blank header field", make: func() error { _, err := NewHeaderBased(" ", "type"); return err }},
		{name: "header: blank payload field", make: func() error { _, err := NewHeaderBased("messageType", ""); return err }},
		{name: "payload: blank field", make: func() error { _, err := NewPayloadBased("\t"); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.make()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBlankField)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	tags := []model.MessageType{"ORDER_CREATED", "x", "order.cancelled.v2", " padded "}

	resolvers := map[string]TypeResolver{
		"header":  newHeader(t),
		"payload": newPayload(t),
	}

	for name, r := range resolvers {
		for _, tag := range tags {
			t.Run(name+"/typed/"+string(tag), func(t *testing.T) {
				msg := model.NewStructuredMessage(nil, nil)
				r.WriteTyped(typedPayload{tag: tag}, msg.Payload, msg.Headers)

				got, ok := r.Read(msg)
				assert.True(t, ok)
				assert.Equal(t, tag, got)
			})
			t.Run(name+"/map/"+string(tag), func(t *testing.T) {
				src := map[string]any{"type": string(tag), "amount": 42}
				msg := model.NewStructuredMessage(model.Payload{"amount": 42}, nil)
				r.WriteMap(src, msg.Payload, msg.Headers)

				got, ok := r.Read(msg)
				assert.True(t, ok)
				assert.Equal(t, tag, got)
			})
		}
	}
}

func TestWrite_BlankTagLeavesTargetUntouched(t *testing.T) {
	blanks := []model.MessageType{model.UnknownMessageType, "   "}

	for _, tag := range blanks {
		header := newHeader(t)
		headers := model.Headers{}
		payload := model.Payload{}
		header.WriteTyped(typedPayload{tag: tag}, payload, headers)
		header.WriteMap(map[string]any{"type": string(tag)}, payload, headers)
		header.WriteMap(map[string]any{}, payload, headers)
		assert.NotContains(t, headers, "messageType")
		assert.Empty(t, payload)

		pl := newPayload(t)
		headers = model.Headers{}
		payload = model.Payload{}
		pl.WriteTyped(typedPayload{tag: tag}, payload, headers)
		pl.WriteMap(map[string]any{"type": string(tag)}, payload, headers)
		pl.WriteMap(nil, payload, headers)
		assert.NotContains(t, payload, "type")
		assert.Empty(t, headers)
	}
}

type pointerPayload struct {
	tag model.MessageType
}

func (p *pointerPayload) MessageType() model.MessageType {
	if p == nil {
		return "NIL_SAFE"
	}
	return p.tag
}

func TestWriteTyped_NilSources(t *testing.T) {
	tests := []struct {
		name    string
		src     model.TypeAware
		wantTag string
	}{
		{name: "untyped nil", src: nil},
		{name: "nil pointer to value receiver", src: (*typedPayload)(nil)},
		{name: "nil pointer with nil-safe method", src: (*pointerPayload)(nil), wantTag: "NIL_SAFE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := model.Headers{}
			payload := model.Payload{}

			assert.NotPanics(t, func() {
				newHeader(t).WriteTyped(tt.src, payload, headers)
				newPayload(t).WriteTyped(tt.src, payload, headers)
			})

			if tt.wantTag == "" {
				assert.Empty(t, headers)
				assert.Empty(t, payload)
				return
			}
			assert.Equal(t, tt.wantTag, headers["messageType"])
			assert.Equal(t, tt.wantTag, payload["type"])
		})
	}
}

func TestHeaderBased_WritesOnlyHeaders(t *testing.T) {
	r := newHeader(t)
	payload := model.Payload{"type": "A"}
	headers := model.Headers{}

	r.WriteMap(map[string]any{"type": "A"}, payload, headers)

	assert.Equal(t, "A", headers["messageType"])
	assert.Equal(t, model.Payload{"type": "A"}, payload)
}

func TestPayloadBased_WritesOnlyPayload(t *testing.T) {
	r := newPayload(t)
	payload := model.Payload{}
	headers := model.Headers{}

	r.WriteTyped(typedPayload{tag: "B"}, payload, headers)

	assert.Equal(t, "B", payload["type"])
	assert.Empty(t, headers)
}

func TestRead(t *testing.T) {
	header := newHeader(t)

	tests := []struct {
		name    string
		value   any
		tag     model.MessageType
		present bool
	}{
		{name: "string", value: "ORDER_CREATED", tag: "ORDER_CREATED", present: true},
		{name: "bytes", value: []byte("ORDER_CREATED"), tag: "ORDER_CREATED", present: true},
		{name: "message type", value: model.MessageType("X"), tag: "X", present: true},
		{name: "stringer", value: stringer("S"), tag: "S", present: true},
		{name: "number", value: 42, tag: "42", present: true},
		{name: "empty", value: "", tag: model.UnknownMessageType, present: false},
		{name: "whitespace", value: "  ", tag: model.UnknownMessageType, present: false},
		{name: "nil", value: nil, tag: model.UnknownMessageType, present: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := model.NewStructuredMessage(nil, model.Headers{"messageType": tt.value})
			got, ok := header.Read(msg)
			assert.Equal(t, tt.present, ok)
			assert.Equal(t, tt.tag, got)
		})
	}

	t.Run("missing field", func(t *testing.T) {
		_, ok := header.Read(model.NewStructuredMessage(nil, nil))
		assert.False(t, ok)
	})
	t.Run("nil message", func(t *testing.T) {
		_, ok := header.Read(nil)
		assert.False(t, ok)
		_, ok = newPayload(t).Read(nil)
		assert.False(t, ok)
	})
	t.Run("nil maps", func(t *testing.T) {
		_, ok := newPayload(t).Read(&model.StructuredMessage{})
		assert.False(t, ok)
	})
}

func TestNoOp(t *testing.T) {
	r := NoOp()
	payload := model.Payload{}
	headers := model.Headers{}

	r.WriteTyped(typedPayload{tag: "A"}, payload, headers)
	r.WriteMap(map[string]any{"type": "A"}, payload, headers)

	assert.Empty(t, payload)
	assert.Empty(t, headers)

	_, ok := r.Read(model.NewStructuredMessage(model.Payload{"type": "A"}, model.Headers{"messageType": "A"}))
	assert.False(t, ok)
	assert.Equal(t, "NoOp", r.Name())
}

func TestName(t *testing.T) {
	assert.Equal(t, "HeaderBased[header: messageType, payload: type]", newHeader(t).Name())
	assert.Equal(t, "PayloadBased[field: type]", newPayload(t).Name())
	assert.Equal(t, "messageType", newHeader(t).HeaderField())
	assert.Equal(t, "type", newPayload(t).Field())
}
