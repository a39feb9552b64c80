package model

import (
	"database/sql"
	"time"
)

// DeadLetter is a delivery that exhausted its retries.
//
// It keeps enough denormalized data (destination, listener, tag, payload) to
// be inspected and replayed without joining the message table. Entries stay
// until an operator resolves or deletes them.
type DeadLetter struct {
	ID             int64 `json:"id" db:"id"`
	SubscriptionID int64 `json:"subscriptionId" db:"subscription_id"`
	MessageID      int64 `json:"messageId" db:"message_id"`
	DeliveryID     int64 `json:"deliveryId" db:"delivery_id"`

	Destination string      `json:"destination" db:"destination"`
	ListenerID  string      `json:"listenerId" db:"listener_id"`
	MessageType MessageType `json:"messageType" db:"message_type"`
	Payload     string      `json:"payload" db:"payload"`

	AttemptCount  int    `json:"attemptCount" db:"attempt_count"`
	LastError     string `json:"lastError" db:"last_error"`
	FailureReason string `json:"failureReason" db:"failure_reason"`

	FirstAttemptAt time.Time `json:"firstAttemptAt" db:"first_attempt_at"`
	LastAttemptAt  time.Time `json:"lastAttemptAt" db:"last_attempt_at"`
	MovedToDLQAt   time.Time `json:"movedToDlqAt" db:"moved_to_dlq_at"`

	IsResolved     bool         `json:"isResolved" db:"is_resolved"`
	ResolvedAt     sql.NullTime `json:"resolvedAt" db:"resolved_at"`
	ResolvedBy     string       `json:"resolvedBy" db:"resolved_by"`
	ResolutionNote string       `json:"resolutionNote" db:"resolution_note"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for DeadLetter.
func (d DeadLetter) TableName() string {
	return tablePrefix + "dead_letter"
}

// NewDeadLetter builds a dead letter from a failed delivery and the records it
// points at.
func NewDeadLetter(delivery Delivery, sub Subscription, msg StoredMessage, reason string) DeadLetter {
	now := time.Now()
	last := now
	if delivery.LastAttemptAt.Valid {
		last = delivery.LastAttemptAt.Time
	}
	return DeadLetter{
		SubscriptionID: delivery.SubscriptionID,
		MessageID:      delivery.MessageID,
		DeliveryID:     delivery.ID,
		Destination:    sub.Destination,
		ListenerID:     sub.ListenerID,
		MessageType:    msg.MessageType,
		Payload:        msg.Payload,
		AttemptCount:   delivery.AttemptCount,
		LastError:      delivery.LastError.String,
		FailureReason:  reason,
		FirstAttemptAt: delivery.CreatedAt,
		LastAttemptAt:  last,
		MovedToDLQAt:   now,
		CreatedAt:      now,
	}
}

// Resolve marks the entry as handled by an operator, for example after a
// manual replay.
func (d *DeadLetter) Resolve(resolvedBy, note string) {
	d.IsResolved = true
	d.ResolvedAt = sql.NullTime{Time: time.Now(), Valid: true}
	d.ResolvedBy = resolvedBy
	d.ResolutionNote = note
}

// Age returns how long the entry has been dead-lettered.
func (d *DeadLetter) Age() time.Duration {
	return time.Since(d.MovedToDLQAt)
}

// IsOld reports whether the entry has waited longer than threshold.
func (d *DeadLetter) IsOld(threshold time.Duration) bool {
	return d.Age() > threshold
}

// DLQStats aggregates dead-letter counts for monitoring.
type DLQStats struct {
	TotalItems      int       `json:"totalItems"`
	UnresolvedItems int       `json:"unresolvedItems"`
	ResolvedItems   int       `json:"resolvedItems"`
	LastUpdated     time.Time `json:"lastUpdated"`
}
