package dispatcher

import (
	"fmt"

	"github.com/anonto42/order-notify/backend/internal/models"
)

// StatusWriteError is returned when no delivery status could be written back onto the
// record. Status holds the failure status that was last attempted.
type StatusWriteError struct {
	RecordID string
	Status   models.DeliveryStatus
	Err      error
}

// Error returns the error message for a StatusWriteError.
func (e *StatusWriteError) Error() string {
	return fmt.Sprintf("unable to record delivery status for %s: %s", e.RecordID, e.Err)
}

// Unwrap returns the underlying store error.
func (e *StatusWriteError) Unwrap() error {
	return e.Err
}
