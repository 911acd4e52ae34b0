package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockledger/stockledger-backend/pkg/errors"
	"github.com/stockledger/stockledger-backend/pkg/logger"
)

// AllocationRequest asks for a picking plan covering a quantity of a product.
// WarehouseID narrows the plan to one warehouse when set. UOM defaults to the
// product's unit of measure and must match it when given.
type AllocationRequest struct {
	ProductID   string          `json:"product_id" validate:"required,uuid"`
	WarehouseID string          `json:"warehouse_id,omitempty" validate:"omitempty,uuid"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	UOM         string          `json:"uom,omitempty" validate:"omitempty,max=16"`
}

// AllocationLine is one pick in a plan
type AllocationLine struct {
	BatchID     string          `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	WarehouseID string          `json:"warehouse_id"`
	ExpiryDate  time.Time       `json:"expiry_date"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// AllocationPlan is an advisory picking plan. It reserves nothing; the stock
// it names can be taken by another order between planning and commit. Callers
// wanting a hard hold follow up with RESERVED movements for the plan's lines.
type AllocationPlan struct {
	ProductID string           `json:"product_id"`
	Requested decimal.Decimal  `json:"requested"`
	UOM       string           `json:"uom"`
	Lines     []AllocationLine `json:"lines"`
	PlannedAt time.Time        `json:"planned_at"`
}

// Allocator builds first-expiry-first-out picking plans
type Allocator struct {
	calc     *Calculator
	products ProductStore
	logger   *logger.Logger
}

// NewAllocator creates a new allocator
func NewAllocator(calc *Calculator, products ProductStore, log *logger.Logger) *Allocator {
	return &Allocator{
		calc:     calc,
		products: products,
		logger:   log,
	}
}

// PlanAllocation walks the product's batches in expiry order, earliest first,
// and greedily consumes available stock until the requested quantity is
// covered. Batches sharing an expiry date are taken oldest receipt first. The
// plan is all or nothing: if total available stock cannot cover the request,
// no partial plan is returned.
func (a *Allocator) PlanAllocation(ctx context.Context, tenantID string, req *AllocationRequest) (*AllocationPlan, error) {
	if !req.Quantity.IsPositive() {
		return nil, errors.Validation(map[string]string{
			"quantity": "quantity must be greater than zero",
		})
	}
	product, err := a.products.GetByID(ctx, tenantID, req.ProductID)
	if err != nil {
		return nil, err
	}
	uom := req.UOM
	if uom == "" {
		uom = product.UnitOfMeasure
	} else if uom != product.UnitOfMeasure {
		return nil, errors.Validation(map[string]string{
			"uom": fmt.Sprintf("product %s is measured in %s", product.Name, product.UnitOfMeasure),
		})
	}

	now := time.Now().UTC()
	positions, err := a.calc.ComputePositions(ctx, tenantID, PositionFilter{
		ProductID:     req.ProductID,
		WarehouseID:   req.WarehouseID,
		AvailableOnly: true,
		AsOf:          now,
	})
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, pos := range positions {
		total = total.Add(pos.Available)
	}
	if total.LessThan(req.Quantity) {
		return nil, errors.InsufficientStock(req.Quantity, total)
	}

	plan := &AllocationPlan{
		ProductID: req.ProductID,
		Requested: req.Quantity,
		UOM:       uom,
		PlannedAt: now,
	}

	remaining := req.Quantity
	for _, pos := range positions {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, pos.Available)
		plan.Lines = append(plan.Lines, AllocationLine{
			BatchID:     pos.BatchID,
			BatchNumber: pos.BatchNumber,
			WarehouseID: pos.WarehouseID,
			ExpiryDate:  pos.ExpiryDate,
			Quantity:    take,
		})
		remaining = remaining.Sub(take)
	}

	a.logger.Debug().
		Str("tenant_id", tenantID).
		Str("product_id", req.ProductID).
		Str("requested", req.Quantity.String()).
		Int("lines", len(plan.Lines)).
		Msg("allocation plan built")

	return plan, nil
}
