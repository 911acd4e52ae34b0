package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Stock events (published by this service)
	EventMovementCommitted  = "stock.movement.committed"
	EventBatchReceived      = "stock.batch.received"
	EventBatchIssued        = "stock.batch.issued"
	EventBatchStatusChanged = "stock.batch.status_changed"

	// Quality events (consumed; emitted by the quality domain)
	EventBatchReleased    = "quality.batch.released"
	EventBatchBlocked     = "quality.batch.blocked"
	EventBatchQuarantined = "quality.batch.quarantined"
)

// Exchange names
const (
	ExchangeStockEvents   = "stock.events"
	ExchangeQualityEvents = "quality.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// GenerateEventID generates a unique event identifier
func GenerateEventID() string {
	return uuid.New().String()
}

// MovementCommittedEvent is emitted after every successful ledger append so
// the audit domain can observe what happened without reading the ledger.
type MovementCommittedEvent struct {
	MovementID      string  `json:"movement_id"`
	TenantID        string  `json:"tenant_id"`
	BatchID         string  `json:"batch_id"`
	MovementType    string  `json:"movement_type"`
	Quantity        string  `json:"quantity"`
	UOM             string  `json:"uom"`
	FromWarehouseID *string `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   *string `json:"to_warehouse_id,omitempty"`
	ReasonCode      *string `json:"reason_code,omitempty"`
	PerformedBy     string  `json:"performed_by"`
}

// BatchStatusChangedEvent signals a batch status transition. Published when
// this core transitions a batch to ISSUED, and consumed when the quality
// domain releases, blocks, or quarantines a batch.
type BatchStatusChangedEvent struct {
	TenantID   string `json:"tenant_id"`
	BatchID    string `json:"batch_id"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status"`
	Reason     string `json:"reason,omitempty"`
}

// BatchReceivedEvent is emitted when a goods receipt creates a new batch.
type BatchReceivedEvent struct {
	TenantID    string `json:"tenant_id"`
	BatchID     string `json:"batch_id"`
	ProductID   string `json:"product_id"`
	BatchNumber string `json:"batch_number"`
	ExpiryDate  string `json:"expiry_date"`
	Quantity    string `json:"quantity"`
	WarehouseID string `json:"warehouse_id"`
}
