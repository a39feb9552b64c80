package model

import "time"

const tablePrefix = "msgdispatch_"

// StoredMessage is a message persisted by the outbox broker.
// Stored messages are immutable once created; every active subscription of
// the destination gets its own Delivery pointing at it.
type StoredMessage struct {
	ID           int64       `json:"id" db:"id"`
	MessageUID   string      `json:"messageUid" db:"message_uid"`     // Publisher-assigned id header
	Destination  string      `json:"destination" db:"destination"`    // Destination the message was sent to
	MessageType  MessageType `json:"messageType" db:"message_type"`   // Resolved tag, "" when unknown
	MessageKey   []byte      `json:"messageKey" db:"message_key"`     // nil when no key was supplied
	PartitionKey string      `json:"partitionKey" db:"partition_key"` // Routing hint
	Headers      string      `json:"headers" db:"headers"`            // Encoded headers
	Payload      string      `json:"payload" db:"payload"`            // Encoded payload
	CreatedAt    time.Time   `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for StoredMessage.
func (m StoredMessage) TableName() string {
	return tablePrefix + "message"
}

// NewStoredMessage creates a message record ready to be saved.
// headers and payload are expected in their encoded wire form.
func NewStoredMessage(uid, destination string, messageType MessageType, key []byte, partitionKey, headers, payload string) StoredMessage {
	return StoredMessage{
		MessageUID:   uid,
		Destination:  destination,
		MessageType:  messageType,
		MessageKey:   key,
		PartitionKey: partitionKey,
		Headers:      headers,
		Payload:      payload,
		CreatedAt:    time.Now(),
	}
}

// HasKey reports whether an explicit message key was stored.
func (m StoredMessage) HasKey() bool {
	return m.MessageKey != nil
}
