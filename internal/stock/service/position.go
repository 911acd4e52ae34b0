package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockledger/stockledger-backend/internal/stock/repository"
	"github.com/stockledger/stockledger-backend/pkg/logger"
)

// StockPosition is the derived quantity view for one batch in one warehouse.
// It is never stored; it is recomputed by folding the movement ledger, so the
// same ledger always yields the same position.
type StockPosition struct {
	TenantID    string          `json:"tenant_id"`
	ProductID   string          `json:"product_id"`
	BatchID     string          `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	WarehouseID string          `json:"warehouse_id"`
	ExpiryDate  time.Time       `json:"expiry_date"`
	BatchStatus string          `json:"batch_status"`
	OnHand      decimal.Decimal `json:"on_hand"`
	Reserved    decimal.Decimal `json:"reserved"`
	Available   decimal.Decimal `json:"available"`
}

// PositionFilter narrows a position query. Filters combine conjunctively and
// a zero AsOf means "now".
type PositionFilter struct {
	BatchID       string
	ProductID     string
	WarehouseID   string
	AvailableOnly bool
	AsOf          time.Time
}

// Calculator derives stock positions from the ledger
type Calculator struct {
	batches   BatchStore
	movements MovementStore
	logger    *logger.Logger
}

// NewCalculator creates a new position calculator
func NewCalculator(batches BatchStore, movements MovementStore, log *logger.Logger) *Calculator {
	return &Calculator{
		batches:   batches,
		movements: movements,
		logger:    log,
	}
}

// ComputePositions folds the movement ledger into per-batch, per-warehouse
// positions. Results keep the batch expiry order of the underlying query, so
// callers iterating the slice walk batches first-expiry-first.
func (c *Calculator) ComputePositions(ctx context.Context, tenantID string, filter PositionFilter) ([]*StockPosition, error) {
	var (
		batches []*repository.Batch
		err     error
	)
	switch {
	case filter.BatchID != "":
		var batch *repository.Batch
		batch, err = c.batches.GetByID(ctx, tenantID, filter.BatchID)
		if err == nil {
			batches = []*repository.Batch{batch}
		}
	case filter.ProductID != "":
		batches, err = c.batches.ListByProduct(ctx, tenantID, filter.ProductID)
	default:
		batches, err = c.batches.ListAll(ctx, tenantID)
	}
	if err != nil {
		return nil, err
	}
	if filter.BatchID != "" && filter.ProductID != "" && len(batches) == 1 && batches[0].ProductID != filter.ProductID {
		return []*StockPosition{}, nil
	}
	if len(batches) == 0 {
		return []*StockPosition{}, nil
	}

	batchIDs := make([]string, len(batches))
	for i, b := range batches {
		batchIDs[i] = b.ID
	}

	movements, err := c.movements.ListForBatches(ctx, tenantID, batchIDs)
	if err != nil {
		return nil, err
	}

	byBatch := make(map[string][]*repository.Movement, len(batches))
	for _, m := range movements {
		byBatch[m.BatchID] = append(byBatch[m.BatchID], m)
	}

	asOf := filter.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	positions := make([]*StockPosition, 0, len(batches))
	for _, batch := range batches {
		for _, pos := range FoldPositions(batch, byBatch[batch.ID]) {
			if filter.WarehouseID != "" && pos.WarehouseID != filter.WarehouseID {
				continue
			}
			if filter.AvailableOnly {
				if batch.Status != repository.BatchStatusAvailable {
					continue
				}
				if batch.IsExpired(asOf) {
					continue
				}
				if !pos.Available.IsPositive() {
					continue
				}
			}
			positions = append(positions, pos)
		}
	}

	return positions, nil
}

// FoldPositions replays a batch's movements in ledger order and returns one
// position per warehouse the batch has touched, in first-touch order.
//
// Quantity is always a positive magnitude; direction comes from the movement
// ends. A from-warehouse end decrements on-hand, a to-warehouse end increments
// it. RESERVED rows move the reserved counter instead: a from end places a
// reservation, a to end releases one.
func FoldPositions(batch *repository.Batch, movements []*repository.Movement) []*StockPosition {
	acc := make(map[string]*StockPosition)
	var order []string

	at := func(warehouseID string) *StockPosition {
		pos, ok := acc[warehouseID]
		if !ok {
			pos = &StockPosition{
				TenantID:    batch.TenantID,
				ProductID:   batch.ProductID,
				BatchID:     batch.ID,
				BatchNumber: batch.BatchNumber,
				WarehouseID: warehouseID,
				ExpiryDate:  batch.ExpiryDate,
				BatchStatus: batch.Status,
				OnHand:      decimal.Zero,
				Reserved:    decimal.Zero,
			}
			acc[warehouseID] = pos
			order = append(order, warehouseID)
		}
		return pos
	}

	for _, m := range movements {
		if m.MovementType == repository.MovementTypeReserved {
			if m.FromWarehouseID != nil {
				pos := at(*m.FromWarehouseID)
				pos.Reserved = pos.Reserved.Add(m.Quantity)
			}
			if m.ToWarehouseID != nil {
				pos := at(*m.ToWarehouseID)
				pos.Reserved = pos.Reserved.Sub(m.Quantity)
			}
			continue
		}
		if m.FromWarehouseID != nil {
			pos := at(*m.FromWarehouseID)
			pos.OnHand = pos.OnHand.Sub(m.Quantity)
		}
		if m.ToWarehouseID != nil {
			pos := at(*m.ToWarehouseID)
			pos.OnHand = pos.OnHand.Add(m.Quantity)
		}
	}

	positions := make([]*StockPosition, 0, len(order))
	for _, warehouseID := range order {
		pos := acc[warehouseID]
		pos.Available = availableFor(batch, pos)
		positions = append(positions, pos)
	}
	return positions
}

// availableFor gates the allocatable quantity on the batch's current status.
// Stock held under QUARANTINE or BLOCKED stays on hand but is not available
// until quality releases the batch.
func availableFor(batch *repository.Batch, pos *StockPosition) decimal.Decimal {
	if batch.Status != repository.BatchStatusAvailable {
		return decimal.Zero
	}
	return pos.OnHand.Sub(pos.Reserved)
}

// TotalOnHand sums on-hand quantity across a batch's positions
func TotalOnHand(positions []*StockPosition) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range positions {
		total = total.Add(pos.OnHand)
	}
	return total
}

// AvailableAt returns the available quantity at one warehouse, zero when the
// batch has never touched it.
func AvailableAt(positions []*StockPosition, warehouseID string) decimal.Decimal {
	for _, pos := range positions {
		if pos.WarehouseID == warehouseID {
			return pos.Available
		}
	}
	return decimal.Zero
}
