package main

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/msgdispatch"
	"github.com/coregx/msgdispatch/model"
	"github.com/coregx/msgdispatch/resolver"
)

// ordersListenerID identifies the demo listener, also in outbox subscriptions.
const ordersListenerID = "orders"

// Order message types.
const (
	OrderCreatedType   model.MessageType = "ORDER_CREATED"
	OrderCancelledType model.MessageType = "ORDER_CANCELLED"
)

// OrderCreated is published when a customer places an order.
type OrderCreated struct {
	OrderID    string  `json:"orderId"`
	CustomerID string  `json:"customerId"`
	Amount     float64 `json:"amount"`
}

// MessageType implements model.TypeAware.
func (OrderCreated) MessageType() model.MessageType { return OrderCreatedType }

// Validate implements validation.Validatable.
func (o OrderCreated) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.OrderID, validation.Required),
		validation.Field(&o.CustomerID, validation.Required),
		validation.Field(&o.Amount, validation.Min(0.0)),
	)
}

// OrderCancelled is published when an order is withdrawn.
type OrderCancelled struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// MessageType implements model.TypeAware.
func (OrderCancelled) MessageType() model.MessageType { return OrderCancelledType }

// Validate implements validation.Validatable.
func (o OrderCancelled) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.OrderID, validation.Required),
	)
}

// newOrdersListener builds the demo listener: typed consumers for created and
// cancelled orders, and an audit consumer for everything else.
func newOrdersListener(res resolver.TypeResolver, logger msgdispatch.Logger, opts ...msgdispatch.Option) (*msgdispatch.Listener, error) {
	consumers := msgdispatch.WithConsumers(
		msgdispatch.BindTypeAware(ordersListenerID,
			func(_ context.Context, o OrderCreated, msg *model.StructuredMessage) error {
				logger.Infof("Order %s created for customer %s: amount=%.2f (message %s)",
					o.OrderID, o.CustomerID, o.Amount, msg.ID())
				return nil
			}),
		msgdispatch.BindTypeAware(ordersListenerID,
			func(_ context.Context, o OrderCancelled, msg *model.StructuredMessage) error {
				logger.Infof("Order %s cancelled: reason=%q (message %s)", o.OrderID, o.Reason, msg.ID())
				return nil
			}),
		msgdispatch.BindUnknown(ordersListenerID,
			func(_ context.Context, p map[string]any, msg *model.StructuredMessage) error {
				logger.Infof("Audit: unbound message %s from [%s] with %d fields", msg.ID(), msg.Destination(), len(p))
				return nil
			}, msgdispatch.WithConsumerName("Audit")),
	)

	all := append([]msgdispatch.Option{
		msgdispatch.WithResolver(res),
		msgdispatch.WithLogger(logger),
		consumers,
	}, opts...)
	return msgdispatch.NewListener(ordersListenerID, all...)
}
