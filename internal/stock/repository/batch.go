package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockledger/stockledger-backend/pkg/database"
	"github.com/stockledger/stockledger-backend/pkg/errors"
)

// Batch statuses. Receipt puts a batch into QUARANTINE; the quality domain
// releases it to AVAILABLE or blocks it; the movement coordinator transitions
// it to ISSUED once its available stock is exhausted. ISSUED is terminal for
// this service.
const (
	BatchStatusQuarantine = "QUARANTINE"
	BatchStatusAvailable  = "AVAILABLE"
	BatchStatusBlocked    = "BLOCKED"
	BatchStatusIssued     = "ISSUED"
)

// Batch represents a manufactured lot of a product with a single expiry date.
// Batches are never physically deleted; soft-delete preserves the audit trail.
type Batch struct {
	ID              string     `db:"id" json:"id"`
	TenantID        string     `db:"tenant_id" json:"tenant_id"`
	ProductID       string     `db:"product_id" json:"product_id"`
	BatchNumber     string     `db:"batch_number" json:"batch_number"`
	ExpiryDate      time.Time  `db:"expiry_date" json:"expiry_date"`
	ManufactureDate *time.Time `db:"manufacture_date" json:"manufacture_date,omitempty"`
	Status          string     `db:"status" json:"status"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt       *time.Time `db:"deleted_at" json:"-"`
}

// IsExpired reports whether the batch expiry date is in the past.
func (b *Batch) IsExpired(now time.Time) bool {
	return b.ExpiryDate.Before(now)
}

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

const batchColumns = `id, tenant_id, product_id, batch_number, expiry_date, manufacture_date, status, created_at, updated_at, deleted_at`

// CreateTx inserts a new batch within a transaction
func (r *BatchRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, batch *Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.Status == "" {
		batch.Status = BatchStatusQuarantine
	}

	query := `
		INSERT INTO batches (id, tenant_id, product_id, batch_number, expiry_date, manufacture_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		batch.ID, batch.TenantID, batch.ProductID, batch.BatchNumber,
		batch.ExpiryDate, batch.ManufactureDate, batch.Status,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a non-deleted batch by ID within a tenant
func (r *BatchRepository) GetByID(ctx context.Context, tenantID, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT ` + batchColumns + ` FROM batches WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &batch, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// GetForUpdateTx loads a batch with a row lock. This is the serialization
// point for all movements against the batch: concurrent coordinators queue
// here, so nobody validates against a stale position.
func (r *BatchRepository) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, tenantID, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT ` + batchColumns + ` FROM batches WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL FOR UPDATE`
	if err := tx.GetContext(ctx, &batch, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// GetByNumber gets a batch by product and batch number
func (r *BatchRepository) GetByNumber(ctx context.Context, tenantID, productID, batchNumber string) (*Batch, error) {
	var batch Batch
	query := `
		SELECT ` + batchColumns + ` FROM batches
		WHERE tenant_id = $1 AND product_id = $2 AND batch_number = $3 AND deleted_at IS NULL
	`
	if err := r.db.GetContext(ctx, &batch, query, tenantID, productID, batchNumber); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// ListByProduct lists batches for a product in FEFO order
// (expiry date ascending, then receipt time ascending)
func (r *BatchRepository) ListByProduct(ctx context.Context, tenantID, productID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT ` + batchColumns + ` FROM batches
		WHERE tenant_id = $1 AND product_id = $2 AND deleted_at IS NULL
		ORDER BY expiry_date, created_at
	`
	if err := r.db.SelectContext(ctx, &batches, query, tenantID, productID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListAll lists all non-deleted batches of a tenant in FEFO order
func (r *BatchRepository) ListAll(ctx context.Context, tenantID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT ` + batchColumns + ` FROM batches
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY expiry_date, created_at
	`
	if err := r.db.SelectContext(ctx, &batches, query, tenantID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListExpiring lists non-issued batches expiring within the given number of days
func (r *BatchRepository) ListExpiring(ctx context.Context, tenantID string, withinDays int) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT ` + batchColumns + ` FROM batches
		WHERE tenant_id = $1 AND deleted_at IS NULL AND status <> $2
		AND expiry_date <= NOW() + INTERVAL '1 day' * $3
		ORDER BY expiry_date, created_at
	`
	if err := r.db.SelectContext(ctx, &batches, query, tenantID, BatchStatusIssued, withinDays); err != nil {
		return nil, err
	}
	return batches, nil
}

// UpdateStatusTx updates a batch status within a transaction
func (r *BatchRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, tenantID, id, status string) error {
	query := `
		UPDATE batches SET status = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
	`
	result, err := tx.ExecContext(ctx, query, tenantID, id, status)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// UpdateStatus updates a batch status outside a coordinator transaction.
// Used by quality-event consumers applying external transitions.
func (r *BatchRepository) UpdateStatus(ctx context.Context, tenantID, id, status string) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return r.UpdateStatusTx(ctx, tx, tenantID, id, status)
	})
}

// SoftDelete marks a batch as deleted without removing it from the ledger history
func (r *BatchRepository) SoftDelete(ctx context.Context, tenantID, id string) error {
	query := `
		UPDATE batches SET deleted_at = NOW(), updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, tenantID, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}
