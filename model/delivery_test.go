package model

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelivery_TableName(t *testing.T) {
	d := Delivery{}
	assert.Equal(t, "msgdispatch_delivery", d.TableName())
}

func TestNewDelivery(t *testing.T) {
	before := time.Now()
	d := NewDelivery(12, 34)

	assert.Equal(t, int64(12), d.SubscriptionID)
	assert.Equal(t, int64(34), d.MessageID)
	assert.Equal(t, DeliveryStatusPending, d.Status)
	assert.Equal(t, 0, d.AttemptCount)
	assert.False(t, d.LastAttemptAt.Valid)
	assert.True(t, d.NextRetryAt.Valid)
	assert.False(t, d.LastError.Valid)
	assert.WithinDuration(t, before, d.CreatedAt, time.Second)
	assert.WithinDuration(t, before.Add(DefaultDeliveryTTL), d.ExpiresAt, time.Second)
	assert.NoError(t, d.CanAttemptDelivery(10))
}

func TestDelivery_MarkFailed(t *testing.T) {
	tests := []struct {
		name             string
		initialAttempts  int
		err              error
		retryAfter       time.Duration
		expectedAttempts int
	}{
		{
			name:             "first failure",
			initialAttempts:  0,
			err:              errors.New("consumer timeout"),
			retryAfter:       30 * time.Second,
			expectedAttempts: 1,
		},
		{
			name:             "failure without error",
			initialAttempts:  1,
			err:              nil,
			retryAfter:       time.Minute,
			expectedAttempts: 2,
		},
		{
			name:             "reaching threshold",
			initialAttempts:  4,
			err:              errors.New("validation failed"),
			retryAfter:       5 * time.Minute,
			expectedAttempts: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDelivery(1, 1)
			d.AttemptCount = tt.initialAttempts

			before := time.Now()
			d.MarkFailed(tt.err, tt.retryAfter)

			assert.Equal(t, DeliveryStatusFailed, d.Status)
			assert.Equal(t, tt.expectedAttempts, d.AttemptCount)
			assert.True(t, d.LastAttemptAt.Valid)
			assert.WithinDuration(t, before.Add(tt.retryAfter), d.NextRetryAt.Time, time.Second)
			if tt.err != nil {
				assert.True(t, d.LastError.Valid)
				assert.Equal(t, tt.err.Error(), d.LastError.String)
			} else {
				assert.False(t, d.LastError.Valid)
			}
		})
	}
}

func TestDelivery_MarkSent(t *testing.T) {
	d := NewDelivery(1, 1)
	d.MarkSent()

	assert.Equal(t, DeliveryStatusSent, d.Status)
	assert.Equal(t, 1, d.AttemptCount)
	assert.True(t, d.CompletedAt.Valid)
	assert.False(t, d.NextRetryAt.Valid)
	assert.ErrorIs(t, d.CanAttemptDelivery(10), ErrDeliveryAlreadySent)
}

func TestDelivery_CanAttemptDelivery(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(d *Delivery)
		expected error
	}{
		{
			name:     "pending",
			mutate:   func(d *Delivery) {},
			expected: nil,
		},
		{
			name:     "expired",
			mutate:   func(d *Delivery) { d.ExpiresAt = time.Now().Add(-time.Minute) },
			expected: ErrDeliveryExpired,
		},
		{
			name:     "max attempts",
			mutate:   func(d *Delivery) { d.AttemptCount = 3 },
			expected: ErrMaxAttemptsExceeded,
		},
		{
			name: "failed, backoff pending",
			mutate: func(d *Delivery) {
				d.MarkFailed(errors.New("boom"), time.Hour)
			},
			expected: ErrNotReadyForRetry,
		},
		{
			name: "failed, backoff elapsed",
			mutate: func(d *Delivery) {
				d.MarkFailed(errors.New("boom"), time.Hour)
				d.NextRetryAt = sql.NullTime{Time: time.Now().Add(-time.Second), Valid: true}
			},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDelivery(1, 1)
			tt.mutate(&d)
			err := d.CanAttemptDelivery(3)
			if tt.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestDelivery_ShouldMoveToDLQ(t *testing.T) {
	d := NewDelivery(1, 1)
	assert.False(t, d.ShouldMoveToDLQ(2))

	d.MarkFailed(errors.New("a"), 0)
	assert.False(t, d.ShouldMoveToDLQ(2))

	d.MarkFailed(errors.New("b"), 0)
	assert.True(t, d.ShouldMoveToDLQ(2))
}

func TestDelivery_TimeUntilRetry(t *testing.T) {
	d := Delivery{}
	_, err := d.TimeUntilRetry()
	assert.ErrorIs(t, err, ErrNoRetryScheduled)

	d.NextRetryAt = sql.NullTime{Time: time.Now().Add(-time.Minute), Valid: true}
	wait, err := d.TimeUntilRetry()
	assert.NoError(t, err)
	assert.Equal(t, time.Duration(0), wait)

	d.NextRetryAt = sql.NullTime{Time: time.Now().Add(time.Minute), Valid: true}
	wait, err = d.TimeUntilRetry()
	assert.NoError(t, err)
	assert.InDelta(t, float64(time.Minute), float64(wait), float64(time.Second))
}
