package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStructuredMessage(t *testing.T) {
	msg := NewStructuredMessage(nil, nil)
	require.NotNil(t, msg.Payload)
	require.NotNil(t, msg.Headers)
	assert.Empty(t, msg.ID())
	assert.Empty(t, msg.PartitionKey())
}

func TestStructuredMessage_MessageKey(t *testing.T) {
	tests := []struct {
		name    string
		headers Headers
		key     []byte
		present bool
	}{
		{name: "absent", headers: Headers{}, key: nil, present: false},
		{name: "nil value", headers: Headers{HeaderMessageKey: nil}, key: nil, present: false},
		{name: "bytes", headers: Headers{HeaderMessageKey: []byte("cust-1")}, key: []byte("cust-1"), present: true},
		{name: "string", headers: Headers{HeaderMessageKey: "cust-2"}, key: []byte("cust-2"), present: true},
		{name: "empty key", headers: Headers{HeaderMessageKey: []byte{}}, key: []byte{}, present: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewStructuredMessage(nil, tt.headers)
			key, ok := msg.MessageKey()
			assert.Equal(t, tt.present, ok)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestStructuredMessage_Headers(t *testing.T) {
	msg := NewStructuredMessage(Payload{"a": 1}, Headers{
		HeaderID:                  "abc",
		HeaderPartitionKey:        "p-1",
		HeaderReceivedDestination: []byte("orders"),
	})

	assert.Equal(t, "abc", msg.ID())
	assert.Equal(t, "p-1", msg.PartitionKey())
	assert.Equal(t, "orders", msg.Destination())
}

func TestStructuredMessage_Clone(t *testing.T) {
	msg := NewStructuredMessage(Payload{"a": 1}, Headers{"h": "v"})
	clone := msg.Clone()
	clone.Payload["a"] = 2
	clone.Headers["h"] = "w"

	assert.Equal(t, 1, msg.Payload["a"])
	assert.Equal(t, "v", msg.Headers["h"])

	var nilMsg *StructuredMessage
	assert.Nil(t, nilMsg.Clone())
}
