package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/stockledger/stockledger-backend/pkg/database"
	"github.com/stockledger/stockledger-backend/pkg/errors"
)

// Product is catalog master data. Batches reference products, so the
// service keeps a read model here for validation and reporting.
type Product struct {
	ID                string     `db:"id" json:"id"`
	TenantID          string     `db:"tenant_id" json:"tenant_id"`
	Name              string     `db:"name" json:"name"`
	SKU               *string    `db:"sku" json:"sku,omitempty"`
	UnitOfMeasure     string     `db:"unit_of_measure" json:"unit_of_measure"`
	RequiresColdChain bool       `db:"requires_cold_chain" json:"requires_cold_chain"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt         *time.Time `db:"deleted_at" json:"-"`
}

// ProductRepository handles product lookups
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID retrieves a product by ID within a tenant
func (r *ProductRepository) GetByID(ctx context.Context, tenantID, id string) (*Product, error) {
	var p Product
	query := `
		SELECT id, tenant_id, name, sku, unit_of_measure, requires_cold_chain,
		       is_active, created_at, updated_at, deleted_at
		FROM products
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
	`
	if err := r.db.GetContext(ctx, &p, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("product")
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a product. Catalog ownership lives elsewhere; this exists
// for provisioning and test setup.
func (r *ProductRepository) Create(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.UnitOfMeasure == "" {
		p.UnitOfMeasure = "unit"
	}

	query := `
		INSERT INTO products (id, tenant_id, name, sku, unit_of_measure, requires_cold_chain, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowxContext(ctx, query,
		p.ID, p.TenantID, p.Name, p.SKU, p.UnitOfMeasure, p.RequiresColdChain, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}
