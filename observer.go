package msgdispatch

import "time"

// Observer receives dispatch events, typically to feed metrics.
// See the metric package for a Prometheus implementation.
//
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	// MessagePublished is called after the broker accepted a message.
	MessagePublished(destination, messageType string)

	// PublishFailed is called when a publish call fails. reason is an error code.
	PublishFailed(destination, reason string)

	// MessageDispatched is called after a consumer handled a message.
	// messageType is the type the consumer is bound to, "" for the catch-all.
	MessageDispatched(listenerID, messageType string, elapsed time.Duration)

	// ConsumeFailed is called when decoding, validation or the consumer failed.
	// messageType is the bound type as in MessageDispatched.
	ConsumeFailed(listenerID, messageType, reason string)

	// MessageIgnored is called on a routing miss. The inbound tag is only
	// logged, since any producer can choose it.
	MessageIgnored(listenerID string)

	// DeliveryCompleted is called by the outbox worker after each attempt.
	// outcome is one of "sent", "failed", "dead_lettered".
	DeliveryCompleted(listenerID, outcome string)
}

// NoopObserver ignores all events.
type NoopObserver struct{}

func (NoopObserver) MessagePublished(string, string)                 {}
func (NoopObserver) PublishFailed(string, string)                    {}
func (NoopObserver) MessageDispatched(string, string, time.Duration) {}
func (NoopObserver) ConsumeFailed(string, string, string)            {}
func (NoopObserver) MessageIgnored(string)                           {}
func (NoopObserver) DeliveryCompleted(string, string)                {}
