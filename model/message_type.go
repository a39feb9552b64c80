// Package model contains the message, tag and outbox persistence types of the
// dispatch layer.
package model

import "strings"

// MessageType identifies the logical kind of a message.
//
// The empty string is reserved as UnknownMessageType. Broker header maps may
// reject null values, so "no type" is always expressed as the empty tag and
// never as an absent value.
type MessageType string

// UnknownMessageType is the sentinel tag for messages whose type is unknown or
// not bound to any consumer.
const UnknownMessageType MessageType = ""

// String returns the tag as a plain string.
func (t MessageType) String() string {
	return string(t)
}

// IsBlank reports whether the tag is empty or consists of whitespace only.
func (t MessageType) IsBlank() bool {
	return strings.TrimSpace(string(t)) == ""
}

// IsUnknown reports whether the tag is the UnknownMessageType sentinel.
func (t MessageType) IsUnknown() bool {
	return t == UnknownMessageType
}

// DisplayName renders the tag for logs, replacing the sentinel with a
// readable marker.
func (t MessageType) DisplayName() string {
	if t.IsUnknown() {
		return "<UNKNOWN/UNBOUND>"
	}
	return "'" + string(t) + "'"
}

// TypeAware is implemented by payloads that carry their own message type.
type TypeAware interface {
	MessageType() MessageType
}

// PartitionKeyAware is implemented by payloads that supply their own routing
// hint, for example a customer id. "" means no hint.
type PartitionKeyAware interface {
	PartitionKey() string
}

// MessageKeyAware is implemented by payloads that supply their own message
// key. "" means no key.
type MessageKeyAware interface {
	MessageKey() string
}
