package model

// DomainError represents a business rule violation of a model.
type DomainError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
}

func (e DomainError) Error() string {
	return e.Message
}

// Domain errors returned by Delivery.
var (
	ErrDeliveryExpired     = DomainError{Code: "DELIVERY_EXPIRED", Message: "Delivery has expired"}
	ErrDeliveryAlreadySent = DomainError{Code: "ALREADY_SENT", Message: "Delivery already sent"}
	ErrMaxAttemptsExceeded = DomainError{Code: "MAX_ATTEMPTS", Message: "Maximum delivery attempts exceeded"}
	ErrNotReadyForRetry    = DomainError{Code: "NOT_READY", Message: "Not ready for retry yet"}
	ErrNoRetryScheduled    = DomainError{Code: "NO_RETRY", Message: "No retry scheduled"}
)
