package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/stockledger/stockledger-backend/pkg/errors"
)

// IsSerializationFailure reports whether the error is a transient transaction
// conflict (serialization failure or deadlock). These are safe to retry.
// Matches both the raw pq error and the AppError MapPQError turns it into, so
// callers retry no matter which layer surfaced the conflict.
func IsSerializationFailure(err error) bool {
	if errors.Is(err, errors.ErrConcurrencyConflict) {
		return true
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Serialization failure (40001) / deadlock (40P01)
	case "40001", "40P01":
		return errors.ConcurrencyConflict()

	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_positive"):
		return errors.Validation(map[string]string{
			"quantity": "must be greater than zero",
		})

	case strings.Contains(constraint, "movement_type_valid"):
		return errors.Validation(map[string]string{
			"movement_type": "must be one of: RECEIPT, ISSUE, TRANSFER, ADJUSTMENT, RESERVED",
		})

	case strings.Contains(constraint, "batch_status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: QUARANTINE, AVAILABLE, BLOCKED, ISSUED",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "batch_number"):
		return "a batch with this batch number already exists for the product"
	default:
		return "a record with these values already exists"
	}
}
