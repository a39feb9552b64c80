// Package retry provides the exponential backoff used by the outbox worker
// to redeliver messages that a listener failed to consume.
package retry

import (
	"fmt"
	"math"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Strategy configures redelivery of failed deliveries.
//
// The delay before attempt n+1 is min(BaseDelay * ExponentialBase^n, MaxDelay).
// A delivery whose attempt count reaches DLQThreshold becomes a dead letter.
type Strategy struct {
	MaxAttempts     int           `yaml:"max_attempts" json:"maxAttempts"`         // Hard limit on attempts
	BaseDelay       time.Duration `yaml:"base_delay" json:"baseDelay"`             // Delay after the first failure
	MaxDelay        time.Duration `yaml:"max_delay" json:"maxDelay"`               // Cap for any delay
	ExponentialBase float64       `yaml:"exponential_base" json:"exponentialBase"` // Backoff multiplier
	DLQThreshold    int           `yaml:"dlq_threshold" json:"dlqThreshold"`       // Attempts before dead-lettering
}

// DefaultStrategy returns the default strategy: 10 attempts at most, delays
// from 30s doubling up to 30m, dead-lettered after 5 failed attempts.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxAttempts:     10,
		BaseDelay:       30 * time.Second,
		MaxDelay:        30 * time.Minute,
		ExponentialBase: 2.0,
		DLQThreshold:    5,
	}
}

// Validate implements validation.Validatable.
func (s Strategy) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&s.BaseDelay, validation.Min(time.Duration(0))),
		validation.Field(&s.MaxDelay, validation.Required, validation.Min(s.BaseDelay)),
		validation.Field(&s.ExponentialBase, validation.Required, validation.Min(1.0)),
		validation.Field(&s.DLQThreshold, validation.Required, validation.Min(1), validation.Max(s.MaxAttempts)),
	)
}

// CalculateRetryDelay returns the delay to wait after attemptNumber failed
// attempts. Values <= 0 yield BaseDelay.
func (s Strategy) CalculateRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(attemptNumber))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}

	return time.Duration(delay)
}

// ShouldMoveToDLQ reports whether attemptCount reached the DLQ threshold.
func (s Strategy) ShouldMoveToDLQ(attemptCount int) bool {
	return attemptCount >= s.DLQThreshold
}

// IsRetryable reports whether another attempt is allowed.
func (s Strategy) IsRetryable(attemptCount int) bool {
	return attemptCount < s.MaxAttempts
}

// Delays returns the delays a delivery goes through before it is
// dead-lettered.
func (s Strategy) Delays() []time.Duration {
	last := s.MaxAttempts
	if s.DLQThreshold > 0 && s.DLQThreshold < last {
		last = s.DLQThreshold
	}
	delays := make([]time.Duration, 0, last)
	for i := 1; i < last; i++ {
		delays = append(delays, s.CalculateRetryDelay(i))
	}
	return delays
}

// GetRetrySchedule returns a human-readable description of the schedule.
//
// Example output for the default strategy:
//
//	Retry Schedule:
//	  Attempt 1: immediately
//	  Attempt 2: after 1m0s
//	  ...
//	  Attempt 5: after 8m0s
//	  → Move to DLQ
func (s Strategy) GetRetrySchedule() string {
	var b strings.Builder
	b.WriteString("Retry Schedule:\n")
	b.WriteString("  Attempt 1: immediately\n")
	for i, delay := range s.Delays() {
		fmt.Fprintf(&b, "  Attempt %d: after %v\n", i+2, delay)
	}
	if s.DLQThreshold <= s.MaxAttempts {
		b.WriteString("  → Move to DLQ\n")
	}
	return b.String()
}
