// Package msgdispatch tags messages with a logical message type on the way out
// and routes them to typed consumers on the way in.
//
// A message type ([model.MessageType]) is a short string such as
// "ORDER_CREATED". The empty string is the UNKNOWN sentinel: a message without
// a usable tag is never dropped silently, it is handed to the listener's
// catch-all consumer or ignored with an observer event.
//
// # Features
//
//   - Publisher that tags outbound payloads through a pluggable TypeResolver
//   - Header-based and payload-based resolvers (see package resolver)
//   - Dispatch table per listener: (message type) -> consumer, with a catch-all
//   - Typed consumers built with Go generics: Bind, BindTypeAware, BindUnknown
//   - Payload validation via ozzo-validation before a consumer runs
//   - Sensitive field masking in logs
//   - Broker adapters: in-memory, Kafka, NATS, RabbitMQ (AMQP 0-9-1), Redis Streams
//   - Transactional outbox with retry, exponential backoff and Dead Letter Queue
//   - Relica repositories for MySQL, PostgreSQL and SQLite, with embedded migrations
//   - Prometheus metrics (see package metric)
//
// # Quick Start
//
// Define a payload that knows its own type:
//
//	type OrderCreated struct {
//	    OrderID string  `json:"orderId"`
//	    Amount  float64 `json:"amount"`
//	}
//
//	func (OrderCreated) MessageType() model.MessageType { return "ORDER_CREATED" }
//
// Build a listener with typed consumers:
//
//	res, _ := resolver.NewHeaderBased("messageType", "type")
//
//	listener, err := msgdispatch.NewListener("orders",
//	    msgdispatch.WithResolver(res),
//	    msgdispatch.WithLogger(logger),
//	    msgdispatch.WithConsumers(
//	        msgdispatch.BindTypeAware("orders", func(ctx context.Context, o OrderCreated, msg *model.StructuredMessage) error {
//	            return ship(ctx, o)
//	        }),
//	        msgdispatch.BindUnknown("orders", func(ctx context.Context, p map[string]any, msg *model.StructuredMessage) error {
//	            return audit(ctx, p)
//	        }),
//	    ),
//	)
//
// Subscribe it to a broker and publish:
//
//	broker := memory.NewBroker()
//	_ = broker.Subscribe("orders", listener.AcceptFunc())
//
//	publisher, _ := msgdispatch.NewPublisher(
//	    msgdispatch.WithPublisherBroker(broker),
//	    msgdispatch.WithPublisherResolver(res),
//	)
//
//	_, err = publisher.Publish(ctx, msgdispatch.PublishRequest{
//	    Destination: "orders",
//	    Payload:     OrderCreated{OrderID: "o-1", Amount: 12.5},
//	})
//
// # Outbox
//
// OutboxBroker implements Broker by persisting messages and one delivery per
// active subscription. QueueWorker polls pending deliveries, dispatches them to
// the registered listeners and retries failures on the schedule of package
// retry (1m, 2m, 4m, 8m by default, capped at 30m). A delivery that fails its
// fifth attempt moves to the Dead Letter Queue.
//
//	db, _ := sql.Open("sqlite3", "msgdispatch.db")
//	_ = msgdispatch.ApplyMigrations(ctx, db, "sqlite3")
//	repos := relica.NewRepositories(db, "sqlite3")
//
//	outbox, _ := msgdispatch.NewOutboxBroker(
//	    msgdispatch.WithOutboxRepositories(repos.Message, repos.Delivery, repos.Subscription),
//	)
//	worker, _ := msgdispatch.NewQueueWorker(
//	    msgdispatch.WithWorkerRepositories(repos.Delivery, repos.Message, repos.Subscription, repos.DeadLetter),
//	    msgdispatch.WithListeners(listener),
//	)
//	go worker.Run(ctx, 30*time.Second)
//
// # Errors
//
// All errors returned by the package are *Error values carrying a code
// (ErrCodeValidation, ErrCodeDecode, ErrCodeTransport, ...). Use ErrorCode,
// IsCode and IsNoData to inspect them.
//
// # Logging
//
// Logger is a small printf-style interface. NewSlogLogger adapts a
// *slog.Logger and NoopLogger discards everything.
package msgdispatch
