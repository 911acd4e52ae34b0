package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stockledger/stockledger-backend/pkg/database"
)

// Movement types
const (
	MovementTypeReceipt    = "RECEIPT"
	MovementTypeIssue      = "ISSUE"
	MovementTypeTransfer   = "TRANSFER"
	MovementTypeAdjustment = "ADJUSTMENT"
	MovementTypeReserved   = "RESERVED"
)

// Movement is an immutable ledger entry. Quantity is always a positive
// magnitude; direction is carried by the movement type and by which warehouse
// ends are set. A warehouse gains stock when it is the destination and loses
// stock when it is the source. RESERVED movements do not move stock: with a
// source warehouse set they reserve quantity there, with a destination
// warehouse set they release a prior reservation.
//
// Once appended a movement is never mutated or deleted. Corrections are new
// offsetting movements. The movement history per batch is the audit trail and
// the sole input for stock derivation.
type Movement struct {
	ID              string          `db:"id" json:"id"`
	TenantID        string          `db:"tenant_id" json:"tenant_id"`
	BatchID         string          `db:"batch_id" json:"batch_id"`
	FromWarehouseID *string         `db:"from_warehouse_id" json:"from_warehouse_id,omitempty"`
	ToWarehouseID   *string         `db:"to_warehouse_id" json:"to_warehouse_id,omitempty"`
	MovementType    string          `db:"movement_type" json:"movement_type"`
	Quantity        decimal.Decimal `db:"quantity" json:"quantity"`
	UOM             string          `db:"uom" json:"uom"`
	// BatchStatus snapshots the batch status at append time for the audit
	// trail; derivation gates on the batch's current status, not on this.
	BatchStatus  string    `db:"batch_status" json:"batch_status"`
	ReferenceDoc *string   `db:"reference_doc" json:"reference_doc,omitempty"`
	ReasonCode   *string   `db:"reason_code" json:"reason_code,omitempty"`
	PerformedBy  string    `db:"performed_by" json:"performed_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// MovementRepository handles the append-only movement ledger. It deliberately
// exposes no update or delete operations.
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

const movementColumns = `id, tenant_id, batch_id, from_warehouse_id, to_warehouse_id, movement_type, quantity, uom, batch_status, reference_doc, reason_code, performed_by, created_at`

// AppendTx appends a movement to the ledger within a transaction
func (r *MovementRepository) AppendTx(ctx context.Context, tx *sqlx.Tx, m *Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_movements (
			id, tenant_id, batch_id, from_warehouse_id, to_warehouse_id,
			movement_type, quantity, uom, batch_status, reference_doc, reason_code, performed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`

	err := tx.QueryRowxContext(ctx, query,
		m.ID, m.TenantID, m.BatchID, m.FromWarehouseID, m.ToWarehouseID,
		m.MovementType, m.Quantity, m.UOM, m.BatchStatus, m.ReferenceDoc,
		m.ReasonCode, m.PerformedBy,
	).Scan(&m.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// ListByBatch returns the full movement history for a batch in append order
func (r *MovementRepository) ListByBatch(ctx context.Context, tenantID, batchID string) ([]*Movement, error) {
	var movements []*Movement
	query := `
		SELECT ` + movementColumns + ` FROM stock_movements
		WHERE tenant_id = $1 AND batch_id = $2
		ORDER BY created_at, id
	`
	if err := r.db.SelectContext(ctx, &movements, query, tenantID, batchID); err != nil {
		return nil, err
	}
	return movements, nil
}

// ListForBatches returns all movements for the given batches in append order
func (r *MovementRepository) ListForBatches(ctx context.Context, tenantID string, batchIDs []string) ([]*Movement, error) {
	return r.listForBatches(ctx, r.db, tenantID, batchIDs)
}

// ListForBatchesTx is ListForBatches inside a coordinator transaction, so the
// fold sees the ledger under the batch row lock.
func (r *MovementRepository) ListForBatchesTx(ctx context.Context, tx *sqlx.Tx, tenantID string, batchIDs []string) ([]*Movement, error) {
	return r.listForBatches(ctx, tx, tenantID, batchIDs)
}

func (r *MovementRepository) listForBatches(ctx context.Context, q sqlx.QueryerContext, tenantID string, batchIDs []string) ([]*Movement, error) {
	if len(batchIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+movementColumns+` FROM stock_movements
		WHERE tenant_id = ? AND batch_id IN (?)
		ORDER BY created_at, id
	`, tenantID, batchIDs)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)

	var movements []*Movement
	if err := sqlx.SelectContext(ctx, q, &movements, query, args...); err != nil {
		return nil, err
	}
	return movements, nil
}
