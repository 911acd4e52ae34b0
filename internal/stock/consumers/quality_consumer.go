package consumers

import (
	"context"

	"github.com/stockledger/stockledger-backend/internal/stock/repository"
	"github.com/stockledger/stockledger-backend/internal/stock/service"
	"github.com/stockledger/stockledger-backend/pkg/errors"
	"github.com/stockledger/stockledger-backend/pkg/logger"
	"github.com/stockledger/stockledger-backend/pkg/messaging"
)

// QualityConsumer listens for decisions from the quality domain and applies
// them to batch status. Quality releasing a batch is the only way stock moves
// out of QUARANTINE or BLOCKED into circulation.
type QualityConsumer struct {
	consumer    *messaging.Consumer
	coordinator *service.Coordinator
	logger      *logger.Logger
}

// NewQualityConsumer creates and wires the quality event consumer
func NewQualityConsumer(rmq *messaging.RabbitMQ, coordinator *service.Coordinator, log *logger.Logger) (*QualityConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "stock.quality-decisions", log)
	if err != nil {
		return nil, err
	}

	qc := &QualityConsumer{
		consumer:    consumer,
		coordinator: coordinator,
		logger:      log,
	}

	if err := consumer.Subscribe(messaging.ExchangeQualityEvents, "quality.batch.*"); err != nil {
		return nil, err
	}

	consumer.RegisterHandler(messaging.EventBatchReleased, qc.transitionTo(repository.BatchStatusAvailable))
	consumer.RegisterHandler(messaging.EventBatchBlocked, qc.transitionTo(repository.BatchStatusBlocked))
	consumer.RegisterHandler(messaging.EventBatchQuarantined, qc.transitionTo(repository.BatchStatusQuarantine))

	return qc, nil
}

// Start begins consuming quality events
func (qc *QualityConsumer) Start(ctx context.Context) error {
	return qc.consumer.Start(ctx)
}

// transitionTo builds a handler applying one target status. An illegal
// transition is acked rather than retried: the quality decision cannot become
// legal by redelivery, and the conflict is logged for operators.
func (qc *QualityConsumer) transitionTo(status string) messaging.MessageHandler {
	return func(ctx context.Context, event *messaging.Event) error {
		var payload messaging.BatchStatusChangedEvent
		if err := event.UnmarshalData(&payload); err != nil {
			qc.logger.Error().Err(err).
				Str("event_id", event.ID).
				Msg("malformed quality event payload")
			return nil
		}
		if payload.TenantID == "" || payload.BatchID == "" {
			qc.logger.Error().
				Str("event_id", event.ID).
				Msg("quality event missing tenant or batch")
			return nil
		}

		_, err := qc.coordinator.ApplyStatusTransition(ctx, payload.TenantID, payload.BatchID, status, "quality-service")
		if err != nil {
			if errors.Is(err, errors.ErrInvalidState) || errors.Is(err, errors.ErrNotFound) {
				qc.logger.Warn().Err(err).
					Str("batch_id", payload.BatchID).
					Str("target_status", status).
					Msg("quality transition not applied")
				return nil
			}
			return err
		}

		qc.logger.Info().
			Str("tenant_id", payload.TenantID).
			Str("batch_id", payload.BatchID).
			Str("status", status).
			Msg("quality decision applied")
		return nil
	}
}
