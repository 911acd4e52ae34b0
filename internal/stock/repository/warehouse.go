package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/stockledger/stockledger-backend/pkg/database"
	"github.com/stockledger/stockledger-backend/pkg/errors"
)

// Warehouse is master data owned by an external domain. This service only
// resolves warehouses to validate movement endpoints.
type Warehouse struct {
	ID        string     `db:"id" json:"id"`
	TenantID  string     `db:"tenant_id" json:"tenant_id"`
	Name      string     `db:"name" json:"name"`
	Code      *string    `db:"code" json:"code,omitempty"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// WarehouseRepository handles warehouse lookups
type WarehouseRepository struct {
	db *database.DB
}

// NewWarehouseRepository creates a new warehouse repository
func NewWarehouseRepository(db *database.DB) *WarehouseRepository {
	return &WarehouseRepository{db: db}
}

// GetActive resolves an active, non-deleted warehouse within a tenant
func (r *WarehouseRepository) GetActive(ctx context.Context, tenantID, id string) (*Warehouse, error) {
	var wh Warehouse
	query := `
		SELECT id, tenant_id, name, code, is_active, created_at, updated_at, deleted_at
		FROM warehouses
		WHERE tenant_id = $1 AND id = $2 AND is_active = true AND deleted_at IS NULL
	`
	if err := r.db.GetContext(ctx, &wh, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("warehouse")
		}
		return nil, err
	}
	return &wh, nil
}

// Create inserts a warehouse. Master-data ownership lives elsewhere; this
// exists for provisioning and test setup.
func (r *WarehouseRepository) Create(ctx context.Context, wh *Warehouse) error {
	if wh.ID == "" {
		wh.ID = uuid.New().String()
	}

	query := `
		INSERT INTO warehouses (id, tenant_id, name, code, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowxContext(ctx, query,
		wh.ID, wh.TenantID, wh.Name, wh.Code, wh.IsActive,
	).Scan(&wh.CreatedAt, &wh.UpdatedAt)
}
