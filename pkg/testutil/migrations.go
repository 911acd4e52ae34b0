package testutil

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// StockMigrations returns the schema for the stock ledger service in apply
// order. Kept as plain SQL so integration tests exercise the same constraints
// production runs with, including the check constraints the error mapper
// translates.
func StockMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			name VARCHAR(255) NOT NULL,
			sku VARCHAR(100),
			unit_of_measure VARCHAR(20) NOT NULL DEFAULT 'unit',
			requires_cold_chain BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		)`,

		`CREATE TABLE IF NOT EXISTS warehouses (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			name VARCHAR(255) NOT NULL,
			code VARCHAR(50),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		)`,

		`CREATE TABLE IF NOT EXISTS batches (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			product_id UUID NOT NULL REFERENCES products(id),
			batch_number VARCHAR(64) NOT NULL,
			expiry_date DATE NOT NULL,
			manufacture_date DATE,
			status VARCHAR(20) NOT NULL DEFAULT 'QUARANTINE',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ,
			CONSTRAINT batches_batch_status_valid CHECK (status IN ('QUARANTINE', 'AVAILABLE', 'BLOCKED', 'ISSUED')),
			CONSTRAINT batches_tenant_product_batch_number_unique UNIQUE (tenant_id, product_id, batch_number)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_batches_fefo
			ON batches (tenant_id, product_id, expiry_date, created_at)
			WHERE deleted_at IS NULL`,

		`CREATE TABLE IF NOT EXISTS stock_movements (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			batch_id UUID NOT NULL REFERENCES batches(id),
			from_warehouse_id UUID REFERENCES warehouses(id),
			to_warehouse_id UUID REFERENCES warehouses(id),
			movement_type VARCHAR(20) NOT NULL,
			quantity NUMERIC(14, 4) NOT NULL,
			uom VARCHAR(20) NOT NULL,
			batch_status VARCHAR(20) NOT NULL,
			reference_doc VARCHAR(128),
			reason_code VARCHAR(64),
			performed_by UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT stock_movements_quantity_positive CHECK (quantity > 0),
			CONSTRAINT stock_movements_movement_type_valid CHECK (movement_type IN ('RECEIPT', 'ISSUE', 'TRANSFER', 'ADJUSTMENT', 'RESERVED')),
			CONSTRAINT stock_movements_has_endpoint CHECK (from_warehouse_id IS NOT NULL OR to_warehouse_id IS NOT NULL)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_stock_movements_batch
			ON stock_movements (tenant_id, batch_id, created_at)`,
	}
}

// ApplyMigrations runs the given statements in order
func ApplyMigrations(ctx context.Context, db *sqlx.DB, migrations []string) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}

// TruncateStockTables clears all stock data between tests
func TruncateStockTables(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `TRUNCATE stock_movements, batches, warehouses, products CASCADE`)
	return err
}
