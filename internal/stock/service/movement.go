package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stockledger/stockledger-backend/internal/stock/repository"
	"github.com/stockledger/stockledger-backend/pkg/database"
	"github.com/stockledger/stockledger-backend/pkg/errors"
	"github.com/stockledger/stockledger-backend/pkg/logger"
)

// EventSink receives post-commit notifications. Implementations must be safe
// to call after the transaction has committed and must not fail the request;
// delivery problems are theirs to log.
type EventSink interface {
	MovementCommitted(ctx context.Context, m *repository.Movement)
	BatchReceived(ctx context.Context, b *repository.Batch, m *repository.Movement)
	BatchIssued(ctx context.Context, b *repository.Batch)
	BatchStatusChanged(ctx context.Context, b *repository.Batch, previous string)
}

// ReceiptRequest registers a new batch arriving at a warehouse
type ReceiptRequest struct {
	ProductID       string          `json:"product_id" validate:"required,uuid"`
	BatchNumber     string          `json:"batch_number" validate:"required,max=64"`
	ExpiryDate      time.Time       `json:"expiry_date" validate:"required"`
	ManufactureDate *time.Time      `json:"manufacture_date,omitempty"`
	ToWarehouseID   string          `json:"to_warehouse_id" validate:"required,uuid"`
	Quantity        decimal.Decimal `json:"quantity" validate:"required"`
	ReferenceDoc    *string         `json:"reference_doc,omitempty"`
}

// allowedTransitions is the batch status state machine. ISSUED is terminal
// and is only ever set by the coordinator itself when an issue exhausts the
// batch.
var allowedTransitions = map[string]map[string]bool{
	repository.BatchStatusQuarantine: {
		repository.BatchStatusAvailable: true,
		repository.BatchStatusBlocked:   true,
	},
	repository.BatchStatusAvailable: {
		repository.BatchStatusBlocked: true,
	},
	repository.BatchStatusBlocked: {
		repository.BatchStatusAvailable: true,
	},
	repository.BatchStatusIssued: {},
}

// Coordinator owns every write to the ledger. All movements against a batch
// serialize on the batch row lock, so two transactions can never both pass
// validation against the same stale positions.
type Coordinator struct {
	db         TxRunner
	batches    BatchStore
	movements  MovementStore
	warehouses WarehouseStore
	products   ProductStore
	validator  *Validator
	events     EventSink
	policy     ValidationPolicy
	retries    int
	logger     *logger.Logger
}

// NewCoordinator creates a movement coordinator. events may be nil when no
// broker is configured; retries below 1 falls back to a single attempt.
func NewCoordinator(
	db TxRunner,
	batches BatchStore,
	movements MovementStore,
	warehouses WarehouseStore,
	products ProductStore,
	events EventSink,
	policy ValidationPolicy,
	retries int,
	log *logger.Logger,
) *Coordinator {
	if retries < 1 {
		retries = 1
	}
	return &Coordinator{
		db:         db,
		batches:    batches,
		movements:  movements,
		warehouses: warehouses,
		products:   products,
		validator:  NewValidator(warehouses),
		events:     events,
		policy:     policy,
		retries:    retries,
		logger:     log,
	}
}

// CreateMovement validates and appends one movement to the ledger. The batch
// row is locked for the whole unit of work, so validation, append and any
// status transition commit atomically. Serialization failures are retried a
// bounded number of times before surfacing as a concurrency conflict.
func (c *Coordinator) CreateMovement(ctx context.Context, tenantID, performedBy string, req *MovementRequest) (*repository.Movement, error) {
	return c.CreateMovementWithPolicy(ctx, tenantID, performedBy, req, c.policy)
}

// CreateMovementWithPolicy is CreateMovement with an explicit rule policy,
// for callers holding a waiver such as quality sampling.
func (c *Coordinator) CreateMovementWithPolicy(ctx context.Context, tenantID, performedBy string, req *MovementRequest, policy ValidationPolicy) (*repository.Movement, error) {
	product, err := c.productForBatch(ctx, tenantID, req.BatchID)
	if err != nil {
		return nil, err
	}

	var (
		movement *repository.Movement
		issued   *repository.Batch
	)

	for attempt := 1; attempt <= c.retries; attempt++ {
		movement, issued = nil, nil

		err = c.db.Transaction(ctx, func(tx *sqlx.Tx) error {
			batch, txErr := c.batches.GetForUpdateTx(ctx, tx, tenantID, req.BatchID)
			if txErr != nil {
				return txErr
			}

			ledger, txErr := c.movements.ListForBatchesTx(ctx, tx, tenantID, []string{batch.ID})
			if txErr != nil {
				return txErr
			}
			positions := FoldPositions(batch, ledger)

			now := time.Now().UTC()
			if txErr := c.validator.ValidateMovement(ctx, tenantID, req, batch, positions, policy, now); txErr != nil {
				return txErr
			}

			m := &repository.Movement{
				TenantID:        tenantID,
				BatchID:         batch.ID,
				FromWarehouseID: req.FromWarehouseID,
				ToWarehouseID:   req.ToWarehouseID,
				MovementType:    req.MovementType,
				Quantity:        req.Quantity,
				UOM:             product.UnitOfMeasure,
				BatchStatus:     batch.Status,
				ReferenceDoc:    req.ReferenceDoc,
				ReasonCode:      req.ReasonCode,
				PerformedBy:     performedBy,
			}
			if txErr := c.movements.AppendTx(ctx, tx, m); txErr != nil {
				return txErr
			}

			if req.MovementType == repository.MovementTypeIssue {
				after := FoldPositions(batch, append(ledger, m))
				if exhausted(after) {
					if txErr := c.batches.UpdateStatusTx(ctx, tx, tenantID, batch.ID, repository.BatchStatusIssued); txErr != nil {
						return txErr
					}
					batch.Status = repository.BatchStatusIssued
					issued = batch
				}
			}

			movement = m
			return nil
		})

		if err == nil {
			break
		}
		if !database.IsSerializationFailure(err) {
			return nil, err
		}
		c.logger.Warn().
			Str("tenant_id", tenantID).
			Str("batch_id", req.BatchID).
			Int("attempt", attempt).
			Msg("serialization failure, retrying movement")
	}
	if err != nil {
		return nil, errors.ConcurrencyConflict()
	}

	c.publishCommitted(ctx, movement, issued)
	return movement, nil
}

// ReceiveBatch registers goods arriving from a supplier. The batch row and its
// opening RECEIPT movement commit in one transaction; new stock always lands
// in QUARANTINE until quality releases it.
func (c *Coordinator) ReceiveBatch(ctx context.Context, tenantID, performedBy string, req *ReceiptRequest) (*repository.Batch, *repository.Movement, error) {
	if !req.Quantity.IsPositive() {
		return nil, nil, errors.Validation(map[string]string{
			"quantity": "quantity must be greater than zero",
		})
	}
	product, err := c.products.GetByID(ctx, tenantID, req.ProductID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := c.warehouses.GetActive(ctx, tenantID, req.ToWarehouseID); err != nil {
		return nil, nil, err
	}

	batch := &repository.Batch{
		TenantID:        tenantID,
		ProductID:       req.ProductID,
		BatchNumber:     req.BatchNumber,
		ExpiryDate:      req.ExpiryDate,
		ManufactureDate: req.ManufactureDate,
		Status:          repository.BatchStatusQuarantine,
	}
	var movement *repository.Movement

	err = c.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if txErr := c.batches.CreateTx(ctx, tx, batch); txErr != nil {
			return txErr
		}
		movement = &repository.Movement{
			TenantID:      tenantID,
			BatchID:       batch.ID,
			ToWarehouseID: &req.ToWarehouseID,
			MovementType:  repository.MovementTypeReceipt,
			Quantity:      req.Quantity,
			UOM:           product.UnitOfMeasure,
			BatchStatus:   batch.Status,
			ReferenceDoc:  req.ReferenceDoc,
			PerformedBy:   performedBy,
		}
		return c.movements.AppendTx(ctx, tx, movement)
	})
	if err != nil {
		return nil, nil, err
	}

	if c.events != nil {
		c.events.BatchReceived(ctx, batch, movement)
		c.events.MovementCommitted(ctx, movement)
	}

	c.logger.Info().
		Str("tenant_id", tenantID).
		Str("batch_id", batch.ID).
		Str("batch_number", batch.BatchNumber).
		Str("quantity", req.Quantity.String()).
		Msg("batch received into quarantine")

	return batch, movement, nil
}

// ApplyStatusTransition moves a batch through the quality state machine.
// Re-applying the current status is a no-op, so redelivered quality events
// are harmless.
func (c *Coordinator) ApplyStatusTransition(ctx context.Context, tenantID, batchID, newStatus, performedBy string) (*repository.Batch, error) {
	if _, ok := allowedTransitions[newStatus]; !ok {
		return nil, errors.Validation(map[string]string{
			"status": "unknown batch status " + newStatus,
		})
	}

	var (
		batch    *repository.Batch
		previous string
		changed  bool
	)
	err := c.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		b, txErr := c.batches.GetForUpdateTx(ctx, tx, tenantID, batchID)
		if txErr != nil {
			return txErr
		}
		if b.Status == newStatus {
			batch = b
			return nil
		}
		if !allowedTransitions[b.Status][newStatus] {
			return errors.InvalidState("batch " + b.BatchNumber + " cannot move from " + b.Status + " to " + newStatus)
		}
		// Capture the prior status before the store touches the row; stores
		// may hand back the same object they mutate.
		previous = b.Status
		if txErr := c.batches.UpdateStatusTx(ctx, tx, tenantID, b.ID, newStatus); txErr != nil {
			return txErr
		}
		b.Status = newStatus
		batch = b
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		c.logger.Info().
			Str("tenant_id", tenantID).
			Str("batch_id", batch.ID).
			Str("from", previous).
			Str("to", newStatus).
			Str("performed_by", performedBy).
			Msg("batch status transition")

		if c.events != nil {
			c.events.BatchStatusChanged(ctx, batch, previous)
		}
	}
	return batch, nil
}

// productForBatch resolves the product behind a batch for unit-of-measure
// stamping on the movement row.
func (c *Coordinator) productForBatch(ctx context.Context, tenantID, batchID string) (*repository.Product, error) {
	batch, err := c.batches.GetByID(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	return c.products.GetByID(ctx, tenantID, batch.ProductID)
}

// exhausted reports whether a batch has no stock left anywhere
func exhausted(positions []*StockPosition) bool {
	return !TotalOnHand(positions).IsPositive()
}

func (c *Coordinator) publishCommitted(ctx context.Context, movement *repository.Movement, issued *repository.Batch) {
	if c.events == nil {
		return
	}
	c.events.MovementCommitted(ctx, movement)
	if issued != nil {
		c.events.BatchIssued(ctx, issued)
	}
}
