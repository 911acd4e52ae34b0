package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stockledger/stockledger-backend/internal/stock/repository"
)

// FixtureFactory creates test data with sensible defaults. Every call bumps a
// sequence so names and batch numbers stay unique within a test.
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{}
}

func (f *FixtureFactory) next() int {
	f.sequence++
	return f.sequence
}

// Product returns an active product fixture
func (f *FixtureFactory) Product(tenantID string) *repository.Product {
	n := f.next()
	sku := fmt.Sprintf("SKU-%04d", n)
	return &repository.Product{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		Name:          fmt.Sprintf("Test Product %d", n),
		SKU:           &sku,
		UnitOfMeasure: "box",
		IsActive:      true,
	}
}

// Warehouse returns an active warehouse fixture
func (f *FixtureFactory) Warehouse(tenantID string) *repository.Warehouse {
	n := f.next()
	code := fmt.Sprintf("WH-%02d", n)
	return &repository.Warehouse{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Name:     fmt.Sprintf("Test Warehouse %d", n),
		Code:     &code,
		IsActive: true,
	}
}

// Batch returns a batch fixture expiring after the given duration. Negative
// durations produce an already expired batch.
func (f *FixtureFactory) Batch(tenantID, productID, status string, expiresIn time.Duration) *repository.Batch {
	n := f.next()
	manufactured := time.Now().UTC().AddDate(0, -6, 0)
	return &repository.Batch{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		ProductID:       productID,
		BatchNumber:     fmt.Sprintf("LOT-%04d", n),
		ExpiryDate:      time.Now().UTC().Add(expiresIn).Truncate(24 * time.Hour),
		ManufactureDate: &manufactured,
		Status:          status,
	}
}

// TenantID returns a fresh tenant identifier
func (f *FixtureFactory) TenantID() string {
	return uuid.New().String()
}

// UserID returns a fresh user identifier for performed_by fields
func (f *FixtureFactory) UserID() string {
	return uuid.New().String()
}
