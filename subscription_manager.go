package msgdispatch

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/msgdispatch/model"
)

// SubscriptionManager handles the lifecycle of outbox subscriptions, which
// route the messages of a destination to a listener.
//
// Key operations:
//   - Subscribe: bind a destination to a listener (idempotent)
//   - Unsubscribe: deactivate a subscription
//   - ListSubscriptions: query active subscriptions of a destination
//   - ReactivateSubscription: re-enable a deactivated subscription
//
// Thread safety: Safe for concurrent use.
type SubscriptionManager struct {
	subscriptionRepo    SubscriptionRepository
	notificationService NotificationService
	logger              Logger
}

// SubscriptionManagerOption is a function that configures a SubscriptionManager.
type SubscriptionManagerOption func(*SubscriptionManager) error

// NewSubscriptionManager creates a new SubscriptionManager with the provided options.
//
// Required options:
//   - WithSubscriptionManagerRepository: subscription repository
//   - WithSubscriptionManagerLogger: logger instance
//
// Optional options:
//   - WithSubscriptionManagerNotifications: notified about created and deactivated subscriptions
//
// Example:
//
//	manager, err := msgdispatch.NewSubscriptionManager(
//	    msgdispatch.WithSubscriptionManagerRepository(subRepo),
//	    msgdispatch.WithSubscriptionManagerLogger(logger),
//	)
func NewSubscriptionManager(opts ...SubscriptionManagerOption) (*SubscriptionManager, error) {
	sm := &SubscriptionManager{
		notificationService: &NoOpNotificationService{},
	}

	for _, opt := range opts {
		if err := opt(sm); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply subscription manager option", err)
		}
	}

	if sm.subscriptionRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionRepository is required")
	}
	if sm.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required")
	}

	return sm, nil
}

// WithSubscriptionManagerRepository sets the required subscription repository.
func WithSubscriptionManagerRepository(subscriptionRepo SubscriptionRepository) SubscriptionManagerOption {
	return func(sm *SubscriptionManager) error {
		if subscriptionRepo == nil {
			return fmt.Errorf("subscriptionRepo cannot be nil")
		}
		sm.subscriptionRepo = subscriptionRepo
		return nil
	}
}

// WithSubscriptionManagerLogger sets the logger instance for the subscription manager.
// Logger is required and must not be nil.
func WithSubscriptionManagerLogger(logger Logger) SubscriptionManagerOption {
	return func(sm *SubscriptionManager) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		sm.logger = logger
		return nil
	}
}

// WithSubscriptionManagerNotifications sets the notification service.
func WithSubscriptionManagerNotifications(service NotificationService) SubscriptionManagerOption {
	return func(sm *SubscriptionManager) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		sm.notificationService = service
		return nil
	}
}

// SubscribeRequest represents a request to bind a destination to a listener.
type SubscribeRequest struct {
	Destination string `json:"destination"`
	ListenerID  string `json:"listenerId"`
}

// Validate implements validation.Validatable.
func (r SubscribeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Destination, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.ListenerID, validation.Required, validation.Length(1, 255)),
	)
}

// Subscribe binds a destination to a listener.
//
// An active subscription for the same pair is returned unchanged, and an
// inactive one is reactivated, so calling Subscribe twice is harmless.
func (sm *SubscriptionManager) Subscribe(ctx context.Context, req SubscribeRequest) (*model.Subscription, error) {
	req.Destination = strings.TrimSpace(req.Destination)
	req.ListenerID = strings.TrimSpace(req.ListenerID)
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid subscribe request", err)
	}

	existing, err := sm.subscriptionRepo.FindByDestinationAndListener(ctx, req.Destination, req.ListenerID)
	switch {
	case err == nil && existing.IsActive:
		sm.logger.Warnf("Subscription already exists: destination=%s, listener=%s", req.Destination, req.ListenerID)
		return &existing, nil
	case err == nil:
		return sm.ReactivateSubscription(ctx, existing.ID)
	case !IsNoData(err):
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to check existing subscriptions", err)
	}

	subscription, err := sm.subscriptionRepo.Save(ctx, model.NewSubscription(req.Destination, req.ListenerID))
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save subscription", err)
	}

	sm.logger.Infof("Subscription created: id=%d, destination=%s, listener=%s",
		subscription.ID, req.Destination, req.ListenerID)

	if err := sm.notificationService.NotifySubscriptionCreated(ctx, subscription); err != nil {
		sm.logger.Warnf("Failed to send subscription notification: %v", err)
	}

	return &subscription, nil
}

// Unsubscribe deactivates an existing subscription. The record is kept and
// can be reactivated later; an already inactive subscription is returned
// without error.
func (sm *SubscriptionManager) Unsubscribe(ctx context.Context, subscriptionID int64) (*model.Subscription, error) {
	subscription, err := sm.load(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if !subscription.IsActive {
		sm.logger.Warnf("Subscription already inactive: id=%d", subscriptionID)
		return &subscription, nil
	}

	subscription.Deactivate()
	subscription, err = sm.subscriptionRepo.Save(ctx, subscription)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save subscription", err)
	}

	sm.logger.Infof("Subscription deactivated: id=%d", subscriptionID)

	if err := sm.notificationService.NotifySubscriptionDeactivated(ctx, subscription); err != nil {
		sm.logger.Warnf("Failed to send subscription notification: %v", err)
	}

	return &subscription, nil
}

// ListSubscriptions returns the active subscriptions of a destination.
// An empty destination lists the active subscriptions of all destinations.
//
// Returns an empty slice if none found (not an error).
func (sm *SubscriptionManager) ListSubscriptions(ctx context.Context, destination string) ([]model.Subscription, error) {
	subscriptions, err := sm.subscriptionRepo.List(ctx, Filter{
		Destination: strings.TrimSpace(destination),
		ActiveOnly:  true,
	})
	if err != nil {
		if IsNoData(err) {
			return []model.Subscription{}, nil
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load subscriptions", err)
	}

	return subscriptions, nil
}

// GetSubscription retrieves a single subscription by ID.
func (sm *SubscriptionManager) GetSubscription(ctx context.Context, subscriptionID int64) (*model.Subscription, error) {
	subscription, err := sm.load(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

// ReactivateSubscription reactivates a previously deactivated subscription.
// If the subscription is already active, returns without error.
func (sm *SubscriptionManager) ReactivateSubscription(ctx context.Context, subscriptionID int64) (*model.Subscription, error) {
	subscription, err := sm.load(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if subscription.IsActive {
		sm.logger.Warnf("Subscription already active: id=%d", subscriptionID)
		return &subscription, nil
	}

	subscription.Activate()
	subscription, err = sm.subscriptionRepo.Save(ctx, subscription)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save subscription", err)
	}

	sm.logger.Infof("Subscription reactivated: id=%d", subscriptionID)

	return &subscription, nil
}

func (sm *SubscriptionManager) load(ctx context.Context, subscriptionID int64) (model.Subscription, error) {
	if subscriptionID == 0 {
		return model.Subscription{}, NewError(ErrCodeValidation, "subscription ID is required")
	}

	subscription, err := sm.subscriptionRepo.Load(ctx, subscriptionID)
	if err != nil {
		if IsNoData(err) {
			return model.Subscription{}, NewErrorWithCause(ErrCodeValidation, fmt.Sprintf("subscription not found: %d", subscriptionID), err)
		}
		return model.Subscription{}, NewErrorWithCause(ErrCodeDatabase, "failed to load subscription", err)
	}
	return subscription, nil
}
