package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockledger/stockledger-backend/internal/stock/repository"
	"github.com/stockledger/stockledger-backend/pkg/config"
	"github.com/stockledger/stockledger-backend/pkg/errors"
)

// MovementRequest describes one movement to be committed to the ledger.
// Quantity is a positive magnitude; direction comes from the warehouse ends.
type MovementRequest struct {
	BatchID         string          `json:"batch_id" validate:"required,uuid"`
	MovementType    string          `json:"movement_type" validate:"required,oneof=RECEIPT ISSUE TRANSFER ADJUSTMENT RESERVED"`
	Quantity        decimal.Decimal `json:"quantity" validate:"required"`
	FromWarehouseID *string         `json:"from_warehouse_id,omitempty" validate:"omitempty,uuid"`
	ToWarehouseID   *string         `json:"to_warehouse_id,omitempty" validate:"omitempty,uuid"`
	ReferenceDoc    *string         `json:"reference_doc,omitempty"`
	ReasonCode      *string         `json:"reason_code,omitempty"`
}

// ValidationPolicy is an immutable bundle of rule toggles passed with every
// validation call. Callers needing a waiver construct a new value; there is no
// mutable global state to flip.
type ValidationPolicy struct {
	// AllowExpired permits issuing past-expiry stock, for supervised
	// destruction or recall returns. Requires a reason code.
	AllowExpired bool
	// AllowRestricted permits issuing from a QUARANTINE or BLOCKED batch,
	// for quality sampling.
	AllowRestricted bool
	// RequireReasonForAdjustment rejects ADJUSTMENT movements without a
	// reason code.
	RequireReasonForAdjustment bool
	// RequireReasonForRestricted rejects waiver issues from restricted
	// stock without a reason code.
	RequireReasonForRestricted bool
}

// DefaultPolicy is the strict policy used for normal movement traffic
func DefaultPolicy() ValidationPolicy {
	return ValidationPolicy{
		RequireReasonForAdjustment: true,
		RequireReasonForRestricted: true,
	}
}

// PolicyFromConfig builds the baseline policy from service configuration
func PolicyFromConfig(cfg *config.StockConfig) ValidationPolicy {
	return ValidationPolicy{
		RequireReasonForAdjustment: cfg.RequireReasonForAdjustment,
		RequireReasonForRestricted: cfg.RequireReasonForRestricted,
	}
}

// Validator runs the movement rule chain. Rules execute in a fixed order and
// the first failure wins, so callers always see the most specific error for
// the earliest failing rule.
type Validator struct {
	warehouses WarehouseStore
}

// NewValidator creates a movement validator
func NewValidator(warehouses WarehouseStore) *Validator {
	return &Validator{warehouses: warehouses}
}

// ValidateMovement checks a request against the batch it targets and the
// positions derived from the ledger as of this transaction. The rule order is
// fixed: request shape, warehouse existence, restricted stock, expiry, then
// sufficiency.
func (v *Validator) ValidateMovement(
	ctx context.Context,
	tenantID string,
	req *MovementRequest,
	batch *repository.Batch,
	positions []*StockPosition,
	policy ValidationPolicy,
	now time.Time,
) error {
	if err := checkShape(req, policy); err != nil {
		return err
	}
	if err := v.checkWarehouses(ctx, tenantID, req); err != nil {
		return err
	}
	if err := checkRestricted(req, batch, policy); err != nil {
		return err
	}
	if err := checkExpiry(req, batch, policy, now); err != nil {
		return err
	}
	return checkSufficiency(req, positions)
}

// checkShape verifies the quantity is a positive magnitude and the warehouse
// ends match the movement type. The HTTP layer and the database check
// constraint reject non-positive quantities as well.
func checkShape(req *MovementRequest, policy ValidationPolicy) error {
	if !req.Quantity.IsPositive() {
		return errors.Validation(map[string]string{
			"quantity": "quantity must be greater than zero",
		})
	}

	from := req.FromWarehouseID != nil
	to := req.ToWarehouseID != nil

	switch req.MovementType {
	case repository.MovementTypeReceipt:
		if !to || from {
			return errors.Validation(map[string]string{
				"to_warehouse_id": "RECEIPT requires a destination warehouse and no source",
			})
		}
	case repository.MovementTypeIssue:
		if !from || to {
			return errors.Validation(map[string]string{
				"from_warehouse_id": "ISSUE requires a source warehouse and no destination",
			})
		}
	case repository.MovementTypeTransfer:
		if !from || !to {
			return errors.Validation(map[string]string{
				"from_warehouse_id": "TRANSFER requires both a source and a destination warehouse",
			})
		}
		if *req.FromWarehouseID == *req.ToWarehouseID {
			return errors.Validation(map[string]string{
				"to_warehouse_id": "TRANSFER source and destination must differ",
			})
		}
	case repository.MovementTypeAdjustment:
		if from == to {
			return errors.Validation(map[string]string{
				"movement_type": "ADJUSTMENT requires exactly one warehouse end",
			})
		}
		if policy.RequireReasonForAdjustment && emptyReason(req.ReasonCode) {
			return errors.Validation(map[string]string{
				"reason_code": "ADJUSTMENT requires a reason code",
			})
		}
	case repository.MovementTypeReserved:
		if from == to {
			return errors.Validation(map[string]string{
				"movement_type": "RESERVED requires exactly one warehouse end",
			})
		}
	default:
		return errors.Validation(map[string]string{
			"movement_type": fmt.Sprintf("unknown movement type %q", req.MovementType),
		})
	}
	return nil
}

// checkWarehouses resolves every warehouse end against active master data
func (v *Validator) checkWarehouses(ctx context.Context, tenantID string, req *MovementRequest) error {
	if req.FromWarehouseID != nil {
		if _, err := v.warehouses.GetActive(ctx, tenantID, *req.FromWarehouseID); err != nil {
			return err
		}
	}
	if req.ToWarehouseID != nil {
		if _, err := v.warehouses.GetActive(ctx, tenantID, *req.ToWarehouseID); err != nil {
			return err
		}
	}
	return nil
}

// checkRestricted blocks issue-like movements from batches held under quality
// restriction. A policy waiver lets quality staff pull samples, but only with
// a documented reason.
func checkRestricted(req *MovementRequest, batch *repository.Batch, policy ValidationPolicy) error {
	if !consumesStock(req) {
		return nil
	}
	switch batch.Status {
	case repository.BatchStatusAvailable:
		return nil
	case repository.BatchStatusIssued:
		return errors.InvalidState(fmt.Sprintf("batch %s is fully issued", batch.BatchNumber))
	default:
		if policy.AllowRestricted {
			if policy.RequireReasonForRestricted && emptyReason(req.ReasonCode) {
				return errors.Validation(map[string]string{
					"reason_code": "issuing restricted stock requires a reason code",
				})
			}
			return nil
		}
		return errors.InvalidState(fmt.Sprintf("batch %s is %s and cannot be issued", batch.BatchNumber, batch.Status))
	}
}

// checkExpiry blocks issue-like movements of expired stock
func checkExpiry(req *MovementRequest, batch *repository.Batch, policy ValidationPolicy, now time.Time) error {
	if !consumesStock(req) {
		return nil
	}
	if !batch.IsExpired(now) {
		return nil
	}
	if policy.AllowExpired {
		if emptyReason(req.ReasonCode) {
			return errors.Validation(map[string]string{
				"reason_code": "issuing expired stock requires a reason code",
			})
		}
		return nil
	}
	return errors.InvalidState(fmt.Sprintf("batch %s expired on %s", batch.BatchNumber, batch.ExpiryDate.Format("2006-01-02")))
}

// checkSufficiency verifies the source warehouse can cover the quantity.
// Status gating is rule 2's job, so the comparison here is against physical
// unreserved stock. A downward adjustment corrects the record rather than
// ships, so it only needs on-hand.
func checkSufficiency(req *MovementRequest, positions []*StockPosition) error {
	switch req.MovementType {
	case repository.MovementTypeIssue, repository.MovementTypeTransfer:
		movable := movableAt(positions, *req.FromWarehouseID)
		if movable.LessThan(req.Quantity) {
			return errors.InsufficientStock(req.Quantity, movable)
		}
	case repository.MovementTypeReserved:
		if req.FromWarehouseID != nil {
			movable := movableAt(positions, *req.FromWarehouseID)
			if movable.LessThan(req.Quantity) {
				return errors.InsufficientStock(req.Quantity, movable)
			}
		} else {
			reserved := reservedAt(positions, *req.ToWarehouseID)
			if reserved.LessThan(req.Quantity) {
				return errors.InvalidState("reservation release exceeds reserved quantity")
			}
		}
	case repository.MovementTypeAdjustment:
		if req.FromWarehouseID != nil {
			onHand := onHandAt(positions, *req.FromWarehouseID)
			if onHand.LessThan(req.Quantity) {
				return errors.InsufficientStock(req.Quantity, onHand)
			}
		}
	}
	return nil
}

// consumesStock reports whether the request draws stock out of a warehouse
func consumesStock(req *MovementRequest) bool {
	switch req.MovementType {
	case repository.MovementTypeIssue:
		return true
	case repository.MovementTypeReserved:
		return req.FromWarehouseID != nil
	default:
		return false
	}
}

func emptyReason(reason *string) bool {
	return reason == nil || *reason == ""
}

// movableAt is the physically movable quantity at a warehouse, on-hand minus
// active reservations, ignoring batch status.
func movableAt(positions []*StockPosition, warehouseID string) decimal.Decimal {
	for _, pos := range positions {
		if pos.WarehouseID == warehouseID {
			return pos.OnHand.Sub(pos.Reserved)
		}
	}
	return decimal.Zero
}

func onHandAt(positions []*StockPosition, warehouseID string) decimal.Decimal {
	for _, pos := range positions {
		if pos.WarehouseID == warehouseID {
			return pos.OnHand
		}
	}
	return decimal.Zero
}

func reservedAt(positions []*StockPosition, warehouseID string) decimal.Decimal {
	for _, pos := range positions {
		if pos.WarehouseID == warehouseID {
			return pos.Reserved
		}
	}
	return decimal.Zero
}
