package model

import (
	"database/sql"
	"time"
)

// Subscription connects a listener to a destination of the outbox broker.
// Every message sent to the destination is queued once per active
// subscription. Inactive subscriptions are kept for audit.
type Subscription struct {
	ID          int64        `json:"id" db:"id"`
	Destination string       `json:"destination" db:"destination"` // Destination being consumed
	ListenerID  string       `json:"listenerId" db:"listener_id"`  // Listener receiving the messages
	IsActive    bool         `json:"isActive" db:"is_active"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
	DeletedAt   sql.NullTime `json:"deletedAt" db:"deleted_at"` // Soft delete timestamp
}

// TableName returns the database table name for Subscription.
func (m Subscription) TableName() string {
	return tablePrefix + "subscription"
}

// NewSubscription creates an active subscription.
func NewSubscription(destination, listenerID string) Subscription {
	return Subscription{
		Destination: destination,
		ListenerID:  listenerID,
		IsActive:    true,
		CreatedAt:   time.Now(),
	}
}

// Deactivate performs a soft delete.
func (m *Subscription) Deactivate() {
	m.IsActive = false
	m.DeletedAt = sql.NullTime{Time: time.Now(), Valid: true}
}

// Activate reverses Deactivate.
func (m *Subscription) Activate() {
	m.IsActive = true
	m.DeletedAt = sql.NullTime{}
}
