// Package relica provides the outbox repositories on top of the Relica query
// builder (github.com/coregx/relica).
//
// Implemented interfaces:
//   - msgdispatch.MessageRepository
//   - msgdispatch.DeliveryRepository
//   - msgdispatch.SubscriptionRepository
//   - msgdispatch.DeadLetterRepository
//
// Example usage:
//
//	db, err := sql.Open("sqlite3", "file:outbox.db?_foreign_keys=on")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := msgdispatch.ApplyMigrations(ctx, db, "sqlite3"); err != nil {
//	    log.Fatal(err)
//	}
//
//	repos := relica.NewRepositories(db, "sqlite3")
//
//	outbox, err := msgdispatch.NewOutboxBroker(
//	    msgdispatch.WithOutboxRepositories(repos.Message, repos.Delivery, repos.Subscription),
//	    msgdispatch.WithOutboxLogger(logger),
//	)
//	worker, err := msgdispatch.NewQueueWorker(
//	    msgdispatch.WithWorkerRepositories(repos.Delivery, repos.Message, repos.Subscription, repos.DeadLetter),
//	    msgdispatch.WithListeners(ordersListener),
//	    msgdispatch.WithWorkerLogger(logger),
//	)
package relica
