package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/stockledger/stockledger-backend/internal/stock/repository"
)

// BatchStore provides access to batch rows
type BatchStore interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, batch *repository.Batch) error
	GetByID(ctx context.Context, tenantID, id string) (*repository.Batch, error)
	GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, tenantID, id string) (*repository.Batch, error)
	GetByNumber(ctx context.Context, tenantID, productID, batchNumber string) (*repository.Batch, error)
	ListByProduct(ctx context.Context, tenantID, productID string) ([]*repository.Batch, error)
	ListAll(ctx context.Context, tenantID string) ([]*repository.Batch, error)
	ListExpiring(ctx context.Context, tenantID string, withinDays int) ([]*repository.Batch, error)
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, tenantID, id, status string) error
	UpdateStatus(ctx context.Context, tenantID, id, status string) error
}

// MovementStore provides append and read access to the movement ledger
type MovementStore interface {
	AppendTx(ctx context.Context, tx *sqlx.Tx, m *repository.Movement) error
	ListByBatch(ctx context.Context, tenantID, batchID string) ([]*repository.Movement, error)
	ListForBatches(ctx context.Context, tenantID string, batchIDs []string) ([]*repository.Movement, error)
	ListForBatchesTx(ctx context.Context, tx *sqlx.Tx, tenantID string, batchIDs []string) ([]*repository.Movement, error)
}

// WarehouseStore resolves movement endpoints
type WarehouseStore interface {
	GetActive(ctx context.Context, tenantID, id string) (*repository.Warehouse, error)
}

// ProductStore resolves catalog entries
type ProductStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*repository.Product, error)
}

// TxRunner executes a unit of work inside a database transaction
type TxRunner interface {
	Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error
}
