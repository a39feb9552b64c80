package msgdispatch

import (
	"context"

	"github.com/coregx/msgdispatch/model"
)

// NotificationService defines an optional interface for sending notifications
// about outbox events (failed deliveries, dead letters, subscription changes).
//
// Implementations might send emails, chat messages or feed alerting systems.
type NotificationService interface {
	// NotifyDLQItemAdded is called when a delivery is moved to the Dead Letter Queue.
	NotifyDLQItemAdded(ctx context.Context, dl model.DeadLetter) error

	// NotifyDeliveryFailure is called after every failed delivery attempt.
	NotifyDeliveryFailure(ctx context.Context, delivery *model.Delivery, err error) error

	// NotifySubscriptionCreated is called when a new subscription is created.
	NotifySubscriptionCreated(ctx context.Context, subscription model.Subscription) error

	// NotifySubscriptionDeactivated is called when a subscription is deactivated.
	NotifySubscriptionDeactivated(ctx context.Context, subscription model.Subscription) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
type NoOpNotificationService struct{}

// NotifyDLQItemAdded does nothing.
func (n *NoOpNotificationService) NotifyDLQItemAdded(_ context.Context, _ model.DeadLetter) error {
	return nil
}

// NotifyDeliveryFailure does nothing.
func (n *NoOpNotificationService) NotifyDeliveryFailure(_ context.Context, _ *model.Delivery, _ error) error {
	return nil
}

// NotifySubscriptionCreated does nothing.
func (n *NoOpNotificationService) NotifySubscriptionCreated(_ context.Context, _ model.Subscription) error {
	return nil
}

// NotifySubscriptionDeactivated does nothing.
func (n *NoOpNotificationService) NotifySubscriptionDeactivated(_ context.Context, _ model.Subscription) error {
	return nil
}

// LoggingNotificationService writes notifications to a Logger.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a new LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifyDLQItemAdded logs a dead letter.
func (n *LoggingNotificationService) NotifyDLQItemAdded(_ context.Context, dl model.DeadLetter) error {
	n.logger.Warnf("Message moved to DLQ: message_id=%d, destination=%s, listener=%s, type=%s, attempts=%d, reason=%s",
		dl.MessageID, dl.Destination, dl.ListenerID, dl.MessageType.DisplayName(), dl.AttemptCount, dl.FailureReason)
	return nil
}

// NotifyDeliveryFailure logs a failed attempt.
func (n *LoggingNotificationService) NotifyDeliveryFailure(_ context.Context, delivery *model.Delivery, err error) error {
	n.logger.Warnf("Delivery failed: delivery_id=%d, message_id=%d, attempt=%d, error=%v",
		delivery.ID, delivery.MessageID, delivery.AttemptCount, err)
	return nil
}

// NotifySubscriptionCreated logs a new subscription.
func (n *LoggingNotificationService) NotifySubscriptionCreated(_ context.Context, subscription model.Subscription) error {
	n.logger.Infof("Subscription created: id=%d, destination=%s, listener=%s",
		subscription.ID, subscription.Destination, subscription.ListenerID)
	return nil
}

// NotifySubscriptionDeactivated logs a deactivated subscription.
func (n *LoggingNotificationService) NotifySubscriptionDeactivated(_ context.Context, subscription model.Subscription) error {
	n.logger.Infof("Subscription deactivated: id=%d, destination=%s, listener=%s",
		subscription.ID, subscription.Destination, subscription.ListenerID)
	return nil
}
