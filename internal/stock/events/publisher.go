package events

import (
	"context"

	"github.com/stockledger/stockledger-backend/internal/stock/repository"
	"github.com/stockledger/stockledger-backend/pkg/logger"
	"github.com/stockledger/stockledger-backend/pkg/messaging"
)

// StockEventPublisher pushes ledger events to the stock exchange for the
// audit and quality domains. Publishing happens after commit and is best
// effort: a broker outage is logged, never propagated, since the ledger row
// is already durable.
//
// A nil publisher is valid and drops everything, so wiring without a broker
// needs no stub.
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a stock event publisher
func NewStockEventPublisher(publisher *messaging.Publisher, log *logger.Logger) *StockEventPublisher {
	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}
}

// MovementCommitted announces a successful ledger append
func (p *StockEventPublisher) MovementCommitted(ctx context.Context, m *repository.Movement) {
	if p == nil || p.publisher == nil {
		return
	}
	event := messaging.MovementCommittedEvent{
		MovementID:      m.ID,
		TenantID:        m.TenantID,
		BatchID:         m.BatchID,
		MovementType:    m.MovementType,
		Quantity:        m.Quantity.String(),
		UOM:             m.UOM,
		FromWarehouseID: m.FromWarehouseID,
		ToWarehouseID:   m.ToWarehouseID,
		ReasonCode:      m.ReasonCode,
		PerformedBy:     m.PerformedBy,
	}
	if err := p.publisher.Publish(ctx, messaging.EventMovementCommitted, event); err != nil {
		p.logger.Error().Err(err).
			Str("movement_id", m.ID).
			Msg("failed to publish movement committed event")
	}
}

// BatchReceived announces a goods receipt
func (p *StockEventPublisher) BatchReceived(ctx context.Context, b *repository.Batch, m *repository.Movement) {
	if p == nil || p.publisher == nil {
		return
	}
	warehouseID := ""
	if m.ToWarehouseID != nil {
		warehouseID = *m.ToWarehouseID
	}
	event := messaging.BatchReceivedEvent{
		TenantID:    b.TenantID,
		BatchID:     b.ID,
		ProductID:   b.ProductID,
		BatchNumber: b.BatchNumber,
		ExpiryDate:  b.ExpiryDate.Format("2006-01-02"),
		Quantity:    m.Quantity.String(),
		WarehouseID: warehouseID,
	}
	if err := p.publisher.Publish(ctx, messaging.EventBatchReceived, event); err != nil {
		p.logger.Error().Err(err).
			Str("batch_id", b.ID).
			Msg("failed to publish batch received event")
	}
}

// BatchIssued announces that an issue emptied the batch everywhere
func (p *StockEventPublisher) BatchIssued(ctx context.Context, b *repository.Batch) {
	if p == nil || p.publisher == nil {
		return
	}
	event := messaging.BatchStatusChangedEvent{
		TenantID: b.TenantID,
		BatchID:  b.ID,
		ToStatus: repository.BatchStatusIssued,
	}
	if err := p.publisher.Publish(ctx, messaging.EventBatchIssued, event); err != nil {
		p.logger.Error().Err(err).
			Str("batch_id", b.ID).
			Msg("failed to publish batch issued event")
	}
}

// BatchStatusChanged announces a quality-driven status transition
func (p *StockEventPublisher) BatchStatusChanged(ctx context.Context, b *repository.Batch, previous string) {
	if p == nil || p.publisher == nil {
		return
	}
	event := messaging.BatchStatusChangedEvent{
		TenantID:   b.TenantID,
		BatchID:    b.ID,
		FromStatus: previous,
		ToStatus:   b.Status,
	}
	if err := p.publisher.Publish(ctx, messaging.EventBatchStatusChanged, event); err != nil {
		p.logger.Error().Err(err).
			Str("batch_id", b.ID).
			Msg("failed to publish batch status changed event")
	}
}
