package relica

import (
	"database/sql"

	"github.com/coregx/msgdispatch"
)

// DefaultTablePrefix is the table prefix used by the constructors without
// an explicit prefix. It matches the bundled migrations.
const DefaultTablePrefix = "msgdispatch_"

// Repositories holds all repository implementations.
type Repositories struct {
	Message      msgdispatch.MessageRepository
	Delivery     msgdispatch.DeliveryRepository
	Subscription msgdispatch.SubscriptionRepository
	DeadLetter   msgdispatch.DeadLetterRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return NewRepositoriesWithPrefix(db, driverName, DefaultTablePrefix)
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *Repositories {
	return &Repositories{
		Message:      NewMessageRepositoryWithPrefix(db, driverName, prefix),
		Delivery:     NewDeliveryRepositoryWithPrefix(db, driverName, prefix),
		Subscription: NewSubscriptionRepositoryWithPrefix(db, driverName, prefix),
		DeadLetter:   NewDeadLetterRepositoryWithPrefix(db, driverName, prefix),
	}
}
