package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stockledger/stockledger-backend/internal/stock/repository"
	"github.com/stockledger/stockledger-backend/pkg/errors"
	"github.com/stockledger/stockledger-backend/pkg/logger"
)

const testTenant = "11111111-1111-1111-1111-111111111111"

func testLogger() *logger.Logger {
	return logger.New("stock-service-test", "test")
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func strPtr(s string) *string { return &s }

// fakeBatchStore keeps batches in memory and serves them in expiry order, the
// same order the SQL queries use.
type fakeBatchStore struct {
	batches       map[string]*repository.Batch
	forUpdateErrs []error
	statusLog     []string
}

func newFakeBatchStore(batches ...*repository.Batch) *fakeBatchStore {
	s := &fakeBatchStore{batches: make(map[string]*repository.Batch)}
	for _, b := range batches {
		s.batches[b.ID] = b
	}
	return s
}

func (s *fakeBatchStore) CreateTx(_ context.Context, _ *sqlx.Tx, batch *repository.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.Status == "" {
		batch.Status = repository.BatchStatusQuarantine
	}
	now := time.Now().UTC()
	batch.CreatedAt = now
	batch.UpdatedAt = now
	s.batches[batch.ID] = batch
	return nil
}

func (s *fakeBatchStore) GetByID(_ context.Context, tenantID, id string) (*repository.Batch, error) {
	b, ok := s.batches[id]
	if !ok || b.TenantID != tenantID {
		return nil, errors.NotFound("batch")
	}
	return b, nil
}

func (s *fakeBatchStore) GetForUpdateTx(ctx context.Context, _ *sqlx.Tx, tenantID, id string) (*repository.Batch, error) {
	if len(s.forUpdateErrs) > 0 {
		err := s.forUpdateErrs[0]
		s.forUpdateErrs = s.forUpdateErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.GetByID(ctx, tenantID, id)
}

func (s *fakeBatchStore) GetByNumber(_ context.Context, tenantID, productID, batchNumber string) (*repository.Batch, error) {
	for _, b := range s.batches {
		if b.TenantID == tenantID && b.ProductID == productID && b.BatchNumber == batchNumber {
			return b, nil
		}
	}
	return nil, errors.NotFound("batch")
}

func (s *fakeBatchStore) ListByProduct(_ context.Context, tenantID, productID string) ([]*repository.Batch, error) {
	var out []*repository.Batch
	for _, b := range s.batches {
		if b.TenantID == tenantID && b.ProductID == productID {
			out = append(out, b)
		}
	}
	sortFEFO(out)
	return out, nil
}

func (s *fakeBatchStore) ListAll(_ context.Context, tenantID string) ([]*repository.Batch, error) {
	var out []*repository.Batch
	for _, b := range s.batches {
		if b.TenantID == tenantID {
			out = append(out, b)
		}
	}
	sortFEFO(out)
	return out, nil
}

func (s *fakeBatchStore) ListExpiring(_ context.Context, tenantID string, withinDays int) ([]*repository.Batch, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, withinDays)
	var out []*repository.Batch
	for _, b := range s.batches {
		if b.TenantID == tenantID && b.Status != repository.BatchStatusIssued && !b.ExpiryDate.After(cutoff) {
			out = append(out, b)
		}
	}
	sortFEFO(out)
	return out, nil
}

func (s *fakeBatchStore) UpdateStatusTx(_ context.Context, _ *sqlx.Tx, tenantID, id, status string) error {
	b, ok := s.batches[id]
	if !ok || b.TenantID != tenantID {
		return errors.NotFound("batch")
	}
	b.Status = status
	s.statusLog = append(s.statusLog, id+":"+status)
	return nil
}

func (s *fakeBatchStore) UpdateStatus(ctx context.Context, tenantID, id, status string) error {
	return s.UpdateStatusTx(ctx, nil, tenantID, id, status)
}

func sortFEFO(batches []*repository.Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		if !batches[i].ExpiryDate.Equal(batches[j].ExpiryDate) {
			return batches[i].ExpiryDate.Before(batches[j].ExpiryDate)
		}
		return batches[i].CreatedAt.Before(batches[j].CreatedAt)
	})
}

// fakeMovementStore is an in-memory append-only ledger. Queued append errors
// are returned before anything is written, simulating statement failures.
type fakeMovementStore struct {
	movements  []*repository.Movement
	appendErrs []error
}

func newFakeMovementStore(movements ...*repository.Movement) *fakeMovementStore {
	return &fakeMovementStore{movements: movements}
}

func (s *fakeMovementStore) AppendTx(_ context.Context, _ *sqlx.Tx, m *repository.Movement) error {
	if len(s.appendErrs) > 0 {
		err := s.appendErrs[0]
		s.appendErrs = s.appendErrs[1:]
		if err != nil {
			return err
		}
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()
	s.movements = append(s.movements, m)
	return nil
}

func (s *fakeMovementStore) ListByBatch(_ context.Context, tenantID, batchID string) ([]*repository.Movement, error) {
	var out []*repository.Movement
	for _, m := range s.movements {
		if m.TenantID == tenantID && m.BatchID == batchID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeMovementStore) ListForBatches(_ context.Context, tenantID string, batchIDs []string) ([]*repository.Movement, error) {
	want := make(map[string]bool, len(batchIDs))
	for _, id := range batchIDs {
		want[id] = true
	}
	var out []*repository.Movement
	for _, m := range s.movements {
		if m.TenantID == tenantID && want[m.BatchID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeMovementStore) ListForBatchesTx(ctx context.Context, _ *sqlx.Tx, tenantID string, batchIDs []string) ([]*repository.Movement, error) {
	return s.ListForBatches(ctx, tenantID, batchIDs)
}

// fakeWarehouseStore resolves warehouses from a fixed set
type fakeWarehouseStore struct {
	warehouses map[string]*repository.Warehouse
}

func newFakeWarehouseStore(ids ...string) *fakeWarehouseStore {
	s := &fakeWarehouseStore{warehouses: make(map[string]*repository.Warehouse)}
	for _, id := range ids {
		s.warehouses[id] = &repository.Warehouse{
			ID:       id,
			TenantID: testTenant,
			Name:     "warehouse " + id,
			IsActive: true,
		}
	}
	return s
}

func (s *fakeWarehouseStore) GetActive(_ context.Context, tenantID, id string) (*repository.Warehouse, error) {
	wh, ok := s.warehouses[id]
	if !ok || wh.TenantID != tenantID || !wh.IsActive {
		return nil, errors.NotFound("warehouse")
	}
	return wh, nil
}

// fakeProductStore resolves products from a fixed set
type fakeProductStore struct {
	products map[string]*repository.Product
}

func newFakeProductStore(ids ...string) *fakeProductStore {
	s := &fakeProductStore{products: make(map[string]*repository.Product)}
	for _, id := range ids {
		s.products[id] = &repository.Product{
			ID:            id,
			TenantID:      testTenant,
			Name:          "product " + id,
			UnitOfMeasure: "unit",
			IsActive:      true,
		}
	}
	return s
}

func (s *fakeProductStore) GetByID(_ context.Context, tenantID, id string) (*repository.Product, error) {
	p, ok := s.products[id]
	if !ok || p.TenantID != tenantID {
		return nil, errors.NotFound("product")
	}
	return p, nil
}

// fakeTxRunner runs the unit of work without a real transaction. Queued errors
// are returned ahead of invoking fn, simulating commit failures.
type fakeTxRunner struct {
	errs  []error
	calls int
}

func (r *fakeTxRunner) Transaction(_ context.Context, fn func(*sqlx.Tx) error) error {
	r.calls++
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return err
		}
	}
	return fn(nil)
}

func testBatch(id, productID, batchNumber, status string, expiry, created time.Time) *repository.Batch {
	return &repository.Batch{
		ID:          id,
		TenantID:    testTenant,
		ProductID:   productID,
		BatchNumber: batchNumber,
		ExpiryDate:  expiry,
		Status:      status,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func receipt(batchID, toWarehouse, qty string) *repository.Movement {
	return &repository.Movement{
		ID:            uuid.New().String(),
		TenantID:      testTenant,
		BatchID:       batchID,
		ToWarehouseID: strPtr(toWarehouse),
		MovementType:  repository.MovementTypeReceipt,
		Quantity:      dec(qty),
		UOM:           "unit",
		BatchStatus:   repository.BatchStatusQuarantine,
		PerformedBy:   uuid.New().String(),
	}
}

func issue(batchID, fromWarehouse, qty string) *repository.Movement {
	return &repository.Movement{
		ID:              uuid.New().String(),
		TenantID:        testTenant,
		BatchID:         batchID,
		FromWarehouseID: strPtr(fromWarehouse),
		MovementType:    repository.MovementTypeIssue,
		Quantity:        dec(qty),
		UOM:             "unit",
		BatchStatus:     repository.BatchStatusAvailable,
		PerformedBy:     uuid.New().String(),
	}
}

func transfer(batchID, fromWarehouse, toWarehouse, qty string) *repository.Movement {
	return &repository.Movement{
		ID:              uuid.New().String(),
		TenantID:        testTenant,
		BatchID:         batchID,
		FromWarehouseID: strPtr(fromWarehouse),
		ToWarehouseID:   strPtr(toWarehouse),
		MovementType:    repository.MovementTypeTransfer,
		Quantity:        dec(qty),
		UOM:             "unit",
		BatchStatus:     repository.BatchStatusAvailable,
		PerformedBy:     uuid.New().String(),
	}
}

func reserve(batchID, atWarehouse, qty string) *repository.Movement {
	return &repository.Movement{
		ID:              uuid.New().String(),
		TenantID:        testTenant,
		BatchID:         batchID,
		FromWarehouseID: strPtr(atWarehouse),
		MovementType:    repository.MovementTypeReserved,
		Quantity:        dec(qty),
		UOM:             "unit",
		BatchStatus:     repository.BatchStatusAvailable,
		PerformedBy:     uuid.New().String(),
	}
}
