package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/msgdispatch/model"
)

type orderCreated struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
	Amount  int    `json:"amount"`
}

func TestJSON_ToStructured(t *testing.T) {
	c := JSON()

	p, err := c.ToStructured(orderCreated{Type: "ORDER_CREATED", OrderID: "o-1", Amount: 42})
	require.NoError(t, err)
	assert.Equal(t, "ORDER_CREATED", p["type"])
	assert.Equal(t, "o-1", p["orderId"])
	assert.Equal(t, float64(42), p["amount"])
}

func TestJSON_ToStructured_CopiesPayload(t *testing.T) {
	src := model.Payload{"a": "b"}
	p, err := JSON().ToStructured(src)
	require.NoError(t, err)

	p["a"] = "changed"
	assert.Equal(t, "b", src["a"])
}

func TestJSON_ToStructured_RejectsNonObjects(t *testing.T) {
	for _, v := range []any{"bare string", 42, []int{1, 2}, nil} {
		_, err := JSON().ToStructured(v)
		assert.ErrorIs(t, err, ErrNotObject, "%v", v)
	}
}

func TestJSON_ToTyped(t *testing.T) {
	var out orderCreated
	err := JSON().ToTyped(model.Payload{"type": "ORDER_CREATED", "orderId": "o-2", "amount": float64(7)}, &out)
	require.NoError(t, err)
	assert.Equal(t, orderCreated{Type: "ORDER_CREATED", OrderID: "o-2", Amount: 7}, out)

	err = JSON().ToTyped(model.Payload{"amount": "not a number"}, &out)
	assert.Error(t, err)
}

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		err  error
	}{
		{name: "object", raw: `{"a":1}`},
		{name: "padded object", raw: "  {\"a\":1}\n"},
		{name: "empty", raw: "", err: ErrInvalidJSON},
		{name: "broken", raw: `{"a":`, err: ErrInvalidJSON},
		{name: "array", raw: `[1,2]`, err: ErrNotObject},
		{name: "string", raw: `"x"`, err: ErrNotObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodePayload([]byte(tt.raw))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, float64(1), p["a"])
		})
	}
}

func TestEncodePayload(t *testing.T) {
	raw, err := EncodePayload(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))

	raw, err = EncodePayload(model.Payload{"type": "A", "amount": 42})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"A","amount":42}`, string(raw))
}

func TestHeadersRoundTrip(t *testing.T) {
	h := model.Headers{
		model.HeaderMessageKey:   []byte("cust-1"),
		model.HeaderPartitionKey: "",
		model.HeaderID:           "abc",
		"messageType":            "ORDER_CREATED",
	}

	raw, err := EncodeHeaders(h)
	require.NoError(t, err)

	decoded, err := DecodeHeaders(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("cust-1"), decoded[model.HeaderMessageKey])
	assert.Equal(t, "", decoded[model.HeaderPartitionKey])
	assert.Equal(t, "abc", decoded[model.HeaderID])
	assert.Equal(t, "ORDER_CREATED", decoded["messageType"])

	empty, err := DecodeHeaders(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = DecodeHeaders([]byte(`{"bytes":{"k":"***"}}`))
	assert.Error(t, err)
}

func TestHeaders_StringValuesStayStrings(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "legacy byte marker", value: "b64:Y3VzdC0x"},
		{name: "bare base64", value: "Y3VzdC0x"},
		{name: "empty string", value: ""},
		{name: "looks like an envelope", value: `{"bytes":{"k":"AA=="}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeHeaders(model.Headers{"note": tt.value, model.HeaderMessageKey: []byte("b64:")})
			require.NoError(t, err)

			decoded, err := DecodeHeaders(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.value, decoded["note"])
			assert.Equal(t, []byte("b64:"), decoded[model.HeaderMessageKey])
		})
	}
}

func TestDecodeHeaders_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "invalid json", raw: `{`},
		{name: "flat object", raw: `{"messageType":"ORDER_CREATED"}`},
		{name: "values not an object", raw: `{"values":"ORDER_CREATED"}`},
		{name: "bytes not base64", raw: `{"bytes":{"k":"***"}}`},
		{name: "name in both sections", raw: `{"values":{"k":"a"},"bytes":{"k":"AA=="}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeHeaders([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestPeek(t *testing.T) {
	raw := []byte(`{"type":"ORDER_CREATED","meta":{"version":2}}`)

	v, ok := Peek(raw, "type")
	assert.True(t, ok)
	assert.Equal(t, "ORDER_CREATED", v)

	v, ok = Peek(raw, "meta.version")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	_, ok = Peek(raw, "missing")
	assert.False(t, ok)
}

func TestHeaderString(t *testing.T) {
	assert.Equal(t, "", HeaderString(nil))
	assert.Equal(t, "a", HeaderString("a"))
	assert.Equal(t, "b", HeaderString([]byte("b")))
	assert.Equal(t, "T", HeaderString(model.MessageType("T")))
	assert.Equal(t, "3", HeaderString(3))
	assert.Nil(t, HeaderBytes(nil))
}
