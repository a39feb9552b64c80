package model

import (
	"database/sql"
	"time"
)

// DeliveryStatus represents the lifecycle state of a delivery.
type DeliveryStatus string

const (
	// DeliveryStatusPending indicates the message awaits its first dispatch.
	DeliveryStatusPending DeliveryStatus = "pending"

	// DeliveryStatusSent indicates the listener accepted the message.
	DeliveryStatusSent DeliveryStatus = "sent"

	// DeliveryStatusFailed indicates the listener failed and a retry is scheduled.
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// DefaultDeliveryTTL is how long a delivery stays eligible for dispatch.
const DefaultDeliveryTTL = 24 * time.Hour

// Delivery is one stored message queued for one subscription.
//
// Lifecycle:
//  1. Created as PENDING, ready immediately
//  2. Dispatched to the subscribed listener: SENT on success, FAILED otherwise
//  3. FAILED deliveries are retried with exponential backoff
//  4. Past the dead-letter threshold the delivery becomes a DeadLetter
type Delivery struct {
	ID             int64          `json:"id" db:"id"`
	SubscriptionID int64          `json:"subscriptionId" db:"subscription_id"`
	MessageID      int64          `json:"messageId" db:"message_id"`
	Status         DeliveryStatus `json:"status" db:"status"`
	AttemptCount   int            `json:"attemptCount" db:"attempt_count"`
	LastAttemptAt  sql.NullTime   `json:"lastAttemptAt" db:"last_attempt_at"`
	NextRetryAt    sql.NullTime   `json:"nextRetryAt" db:"next_retry_at"`
	LastError      sql.NullString `json:"lastError" db:"last_error"`
	ExpiresAt      time.Time      `json:"expiresAt" db:"expires_at"`
	CompletedAt    sql.NullTime   `json:"completedAt" db:"completed_at"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for Delivery.
func (d *Delivery) TableName() string {
	return tablePrefix + "delivery"
}

// NewDelivery creates a pending delivery that is ready immediately and
// expires after DefaultDeliveryTTL.
func NewDelivery(subscriptionID, messageID int64) Delivery {
	now := time.Now()
	return Delivery{
		SubscriptionID: subscriptionID,
		MessageID:      messageID,
		Status:         DeliveryStatusPending,
		NextRetryAt:    sql.NullTime{Time: now, Valid: true},
		ExpiresAt:      now.Add(DefaultDeliveryTTL),
		CreatedAt:      now,
	}
}

// MarkFailed records a failed attempt and schedules the next one after retryAfter.
func (d *Delivery) MarkFailed(err error, retryAfter time.Duration) {
	now := time.Now()
	d.Status = DeliveryStatusFailed
	d.AttemptCount++
	d.LastAttemptAt = sql.NullTime{Time: now, Valid: true}
	d.NextRetryAt = sql.NullTime{Time: now.Add(retryAfter), Valid: true}
	if err != nil {
		d.LastError = sql.NullString{String: err.Error(), Valid: true}
	}
}

// MarkSent records a successful attempt.
func (d *Delivery) MarkSent() {
	now := time.Now()
	d.Status = DeliveryStatusSent
	d.AttemptCount++
	d.LastAttemptAt = sql.NullTime{Time: now, Valid: true}
	d.CompletedAt = sql.NullTime{Time: now, Valid: true}
	d.NextRetryAt = sql.NullTime{}
}

// IsExpired reports whether the delivery passed its expiry time.
func (d *Delivery) IsExpired() bool {
	return time.Now().After(d.ExpiresAt)
}

// ShouldRetry reports whether a failed delivery reached its retry time.
func (d *Delivery) ShouldRetry() bool {
	if d.Status != DeliveryStatusFailed || !d.NextRetryAt.Valid {
		return false
	}
	return !time.Now().Before(d.NextRetryAt.Time)
}

// CanAttemptDelivery checks the business rules for a dispatch attempt.
//
// Returns:
//   - ErrDeliveryExpired: the delivery has expired
//   - ErrDeliveryAlreadySent: the listener already accepted it
//   - ErrMaxAttemptsExceeded: the retry limit is reached
//   - ErrNotReadyForRetry: the backoff delay has not elapsed
func (d *Delivery) CanAttemptDelivery(maxAttempts int) error {
	if d.IsExpired() {
		return ErrDeliveryExpired
	}
	if d.Status == DeliveryStatusSent {
		return ErrDeliveryAlreadySent
	}
	if d.AttemptCount >= maxAttempts {
		return ErrMaxAttemptsExceeded
	}
	if d.Status == DeliveryStatusFailed && !d.ShouldRetry() {
		return ErrNotReadyForRetry
	}
	return nil
}

// ShouldMoveToDLQ reports whether a failed delivery reached the dead-letter threshold.
func (d *Delivery) ShouldMoveToDLQ(threshold int) bool {
	return d.Status == DeliveryStatusFailed && d.AttemptCount >= threshold
}

// TimeUntilRetry returns the remaining backoff, 0 when ready now.
func (d *Delivery) TimeUntilRetry() (time.Duration, error) {
	if !d.NextRetryAt.Valid {
		return 0, ErrNoRetryScheduled
	}
	if wait := time.Until(d.NextRetryAt.Time); wait > 0 {
		return wait, nil
	}
	return 0, nil
}

// Age returns the time since the delivery was created.
func (d *Delivery) Age() time.Duration {
	return time.Since(d.CreatedAt)
}
