package model

import (
	"fmt"
	"maps"
)

// Well-known header names.
const (
	// HeaderPartitionKey carries the routing hint. Empty when none was given.
	HeaderPartitionKey = "partitionKey"

	// HeaderMessageKey carries the explicit message key as bytes.
	HeaderMessageKey = "kafka_messageKey"

	// HeaderID carries the message id assigned at publish time.
	HeaderID = "id"

	// HeaderTimestamp carries the publish time in unix milliseconds.
	HeaderTimestamp = "timestamp"

	// HeaderReceivedDestination is set on inbound messages to the destination
	// they were consumed from.
	HeaderReceivedDestination = "receivedDestination"
)

// Payload is the structured form of a message body.
type Payload map[string]any

// Headers holds message metadata.
type Headers map[string]any

// StructuredMessage pairs a payload with its headers. One instance is built
// per publish call and one is received per consumed message.
type StructuredMessage struct {
	Payload Payload `json:"payload"`
	Headers Headers `json:"headers"`
}

// NewStructuredMessage creates a message, allocating empty maps for nil
// arguments.
func NewStructuredMessage(payload Payload, headers Headers) *StructuredMessage {
	if payload == nil {
		payload = Payload{}
	}
	if headers == nil {
		headers = Headers{}
	}
	return &StructuredMessage{Payload: payload, Headers: headers}
}

// ID returns the message id header, or "" if missing.
func (m *StructuredMessage) ID() string {
	return m.headerString(HeaderID)
}

// PartitionKey returns the routing hint, "" if none was set.
func (m *StructuredMessage) PartitionKey() string {
	return m.headerString(HeaderPartitionKey)
}

// Destination returns the destination an inbound message was received from.
func (m *StructuredMessage) Destination() string {
	return m.headerString(HeaderReceivedDestination)
}

// MessageKey returns the explicit message key. The second result is false
// when no key was attached, which is different from an empty key.
func (m *StructuredMessage) MessageKey() ([]byte, bool) {
	if m == nil || m.Headers == nil {
		return nil, false
	}
	v, ok := m.Headers[HeaderMessageKey]
	if !ok || v == nil {
		return nil, false
	}
	switch key := v.(type) {
	case []byte:
		return key, true
	case string:
		return []byte(key), true
	default:
		return []byte(fmt.Sprint(key)), true
	}
}

// Clone returns a shallow copy with fresh top-level maps.
func (m *StructuredMessage) Clone() *StructuredMessage {
	if m == nil {
		return nil
	}
	return &StructuredMessage{
		Payload: maps.Clone(m.Payload),
		Headers: maps.Clone(m.Headers),
	}
}

func (m *StructuredMessage) headerString(name string) string {
	if m == nil || m.Headers == nil {
		return ""
	}
	switch v := m.Headers[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
