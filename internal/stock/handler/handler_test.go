package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stockledger/stockledger-backend/internal/stock/repository"
	"github.com/stockledger/stockledger-backend/internal/stock/service"
	"github.com/stockledger/stockledger-backend/pkg/errors"
	"github.com/stockledger/stockledger-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTenant    = "11111111-1111-1111-1111-111111111111"
	testUser      = "33333333-3333-3333-3333-333333333333"
	testProduct   = "44444444-4444-4444-4444-444444444444"
	testWarehouse = "55555555-5555-5555-5555-555555555555"
	testBatchID   = "66666666-6666-6666-6666-666666666666"
)

// memBatchStore serves a fixed batch set
type memBatchStore struct {
	batches            map[string]*repository.Batch
	lastExpiringWindow int
}

func (s *memBatchStore) CreateTx(_ context.Context, _ *sqlx.Tx, b *repository.Batch) error {
	if b.ID == "" {
		b.ID = "batch-" + b.BatchNumber
	}
	s.batches[b.ID] = b
	return nil
}

func (s *memBatchStore) GetByID(_ context.Context, tenantID, id string) (*repository.Batch, error) {
	b, ok := s.batches[id]
	if !ok || b.TenantID != tenantID {
		return nil, errors.NotFound("batch")
	}
	return b, nil
}

func (s *memBatchStore) GetForUpdateTx(ctx context.Context, _ *sqlx.Tx, tenantID, id string) (*repository.Batch, error) {
	return s.GetByID(ctx, tenantID, id)
}

func (s *memBatchStore) GetByNumber(_ context.Context, _, _, _ string) (*repository.Batch, error) {
	return nil, errors.NotFound("batch")
}

func (s *memBatchStore) ListByProduct(_ context.Context, tenantID, productID string) ([]*repository.Batch, error) {
	var out []*repository.Batch
	for _, b := range s.batches {
		if b.TenantID == tenantID && b.ProductID == productID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memBatchStore) ListAll(_ context.Context, tenantID string) ([]*repository.Batch, error) {
	var out []*repository.Batch
	for _, b := range s.batches {
		if b.TenantID == tenantID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memBatchStore) ListExpiring(ctx context.Context, tenantID string, withinDays int) ([]*repository.Batch, error) {
	s.lastExpiringWindow = withinDays
	return s.ListAll(ctx, tenantID)
}

func (s *memBatchStore) UpdateStatusTx(_ context.Context, _ *sqlx.Tx, tenantID, id, status string) error {
	b, ok := s.batches[id]
	if !ok || b.TenantID != tenantID {
		return errors.NotFound("batch")
	}
	b.Status = status
	return nil
}

func (s *memBatchStore) UpdateStatus(ctx context.Context, tenantID, id, status string) error {
	return s.UpdateStatusTx(ctx, nil, tenantID, id, status)
}

// memMovementStore is an in-memory ledger
type memMovementStore struct {
	movements []*repository.Movement
}

func (s *memMovementStore) AppendTx(_ context.Context, _ *sqlx.Tx, m *repository.Movement) error {
	m.ID = "m-" + m.MovementType
	m.CreatedAt = time.Now().UTC()
	s.movements = append(s.movements, m)
	return nil
}

func (s *memMovementStore) ListByBatch(_ context.Context, tenantID, batchID string) ([]*repository.Movement, error) {
	var out []*repository.Movement
	for _, m := range s.movements {
		if m.TenantID == tenantID && m.BatchID == batchID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMovementStore) ListForBatches(_ context.Context, tenantID string, batchIDs []string) ([]*repository.Movement, error) {
	want := make(map[string]bool)
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

func (s *memMovementStore) ListForBatchesTx(ctx context.Context, _ *sqlx.Tx, tenantID string, batchIDs []string) ([]*repository.Movement, error) {
	return s.ListForBatches(ctx, tenantID, batchIDs)
}

type memWarehouseStore struct{}

func (memWarehouseStore) GetActive(_ context.Context, tenantID, id string) (*repository.Warehouse, error) {
	if id != testWarehouse {
		return nil, errors.NotFound("warehouse")
	}
	return &repository.Warehouse{ID: id, TenantID: tenantID, Name: "main", IsActive: true}, nil
}

type memProductStore struct{}

func (memProductStore) GetByID(_ context.Context, tenantID, id string) (*repository.Product, error) {
	if id != testProduct {
		return nil, errors.NotFound("product")
	}
	return &repository.Product{ID: id, TenantID: tenantID, Name: "amoxicillin", UnitOfMeasure: "box", IsActive: true}, nil
}

type memTxRunner struct{}

func (memTxRunner) Transaction(_ context.Context, fn func(*sqlx.Tx) error) error {
	return fn(nil)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func strPtr(s string) *string { return &s }

type testServer struct {
	router    http.Handler
	batches   *memBatchStore
	movements *memMovementStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.New("stock-service-test", "test")

	now := time.Now().UTC()
	batches := &memBatchStore{batches: map[string]*repository.Batch{
		testBatchID: {
			ID:          testBatchID,
			TenantID:    testTenant,
			ProductID:   testProduct,
			BatchNumber: "LOT-001",
			ExpiryDate:  now.AddDate(1, 0, 0),
			Status:      repository.BatchStatusAvailable,
			CreatedAt:   now.AddDate(0, -1, 0),
		},
	}}
	movements := &memMovementStore{movements: []*repository.Movement{
		{
			ID:            "m-seed",
			TenantID:      testTenant,
			BatchID:       testBatchID,
			ToWarehouseID: strPtr(testWarehouse),
			MovementType:  repository.MovementTypeReceipt,
			Quantity:      dec("100"),
			UOM:           "box",
			BatchStatus:   repository.BatchStatusQuarantine,
			PerformedBy:   testUser,
			CreatedAt:     now.AddDate(0, -1, 0),
		},
	}}

	coordinator := service.NewCoordinator(
		memTxRunner{}, batches, movements,
		memWarehouseStore{}, memProductStore{},
		nil, service.DefaultPolicy(), 3, log,
	)
	calc := service.NewCalculator(batches, movements, log)
	allocator := service.NewAllocator(calc, memProductStore{}, log)

	router := NewRouter(
		log,
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) },
		NewMovementHandler(coordinator, movements, log),
		NewPositionHandler(calc, log),
		NewAllocationHandler(allocator, log),
		NewBatchHandler(coordinator, batches, 30*24*time.Hour, log),
	)

	return &testServer{router: router, batches: batches, movements: movements}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, tenantID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
		req.Header.Set("X-User-ID", testUser)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestMissingTenantHeader(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/positions", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthNeedsNoIdentity(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateMovement(t *testing.T) {
	t.Run("valid issue commits", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/movements", map[string]interface{}{
			"batch_id":          testBatchID,
			"movement_type":     "ISSUE",
			"quantity":          "40",
			"from_warehouse_id": testWarehouse,
		}, testTenant)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Len(t, ts.movements.movements, 2)
	})

	t.Run("insufficient stock maps to conflict", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/movements", map[string]interface{}{
			"batch_id":          testBatchID,
			"movement_type":     "ISSUE",
			"quantity":          "500",
			"from_warehouse_id": testWarehouse,
		}, testTenant)

		require.Equal(t, http.StatusConflict, rec.Code)
		body := decodeResponse(t, rec)
		errBody := body["error"].(map[string]interface{})
		assert.Equal(t, "INSUFFICIENT_STOCK", errBody["code"])
		details := errBody["details"].(map[string]interface{})
		assert.Equal(t, "500", details["requested"])
		assert.Equal(t, "100", details["available"])
	})

	t.Run("bad movement type is a validation error", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/movements", map[string]interface{}{
			"batch_id":          testBatchID,
			"movement_type":     "RETURN",
			"quantity":          "1",
			"from_warehouse_id": testWarehouse,
		}, testTenant)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("foreign tenant cannot touch the batch", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/movements", map[string]interface{}{
			"batch_id":          testBatchID,
			"movement_type":     "ISSUE",
			"quantity":          "1",
			"from_warehouse_id": testWarehouse,
		}, "22222222-2222-2222-2222-222222222222")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListPositions(t *testing.T) {
	t.Run("by product", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/v1/positions?product_id="+testProduct, nil, testTenant)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeResponse(t, rec)
		data := body["data"].([]interface{})
		require.Len(t, data, 1)
		pos := data[0].(map[string]interface{})
		assert.Equal(t, testWarehouse, pos["warehouse_id"])
		assert.Equal(t, "100", pos["on_hand"])
	})

	t.Run("by batch", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/v1/positions?batch_id="+testBatchID, nil, testTenant)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeResponse(t, rec)
		data := body["data"].([]interface{})
		require.Len(t, data, 1)
		pos := data[0].(map[string]interface{})
		assert.Equal(t, testBatchID, pos["batch_id"])
	})

	t.Run("unknown batch is not found", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/v1/positions?batch_id=missing", nil, testTenant)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPlanAllocation(t *testing.T) {
	ts := newTestServer(t)

	t.Run("plan covers the request", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/allocations/plan", map[string]interface{}{
			"product_id": testProduct,
			"quantity":   "60",
		}, testTenant)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeResponse(t, rec)
		plan := body["data"].(map[string]interface{})
		assert.Equal(t, "box", plan["uom"])
		lines := plan["lines"].([]interface{})
		require.Len(t, lines, 1)
		line := lines[0].(map[string]interface{})
		assert.Equal(t, testBatchID, line["batch_id"])
		assert.Equal(t, "60", line["quantity"])
	})

	t.Run("shortfall is a conflict", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/allocations/plan", map[string]interface{}{
			"product_id": testProduct,
			"quantity":   "5000",
		}, testTenant)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestBatchEndpoints(t *testing.T) {
	t.Run("get batch", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/v1/batches/"+testBatchID, nil, testTenant)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeResponse(t, rec)
		batch := body["data"].(map[string]interface{})
		assert.Equal(t, "LOT-001", batch["batch_number"])
	})

	t.Run("receipt creates a quarantined batch", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/batches/receipt", map[string]interface{}{
			"product_id":      testProduct,
			"batch_number":    "LOT-002",
			"expiry_date":     time.Now().UTC().AddDate(1, 0, 0).Format(time.RFC3339),
			"to_warehouse_id": testWarehouse,
			"quantity":        "250",
		}, testTenant)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		body := decodeResponse(t, rec)
		data := body["data"].(map[string]interface{})
		batch := data["batch"].(map[string]interface{})
		assert.Equal(t, "QUARANTINE", batch["status"])
	})

	t.Run("expiring list uses the configured window by default", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/v1/batches/expiring", nil, testTenant)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 30, ts.batches.lastExpiringWindow)

		rec = ts.do(t, http.MethodGet, "/api/v1/batches/expiring?within_days=7", nil, testTenant)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 7, ts.batches.lastExpiringWindow)
	})

	t.Run("status transition rejects illegal moves", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/batches/"+testBatchID+"/status", map[string]interface{}{
			"status": "ISSUED",
		}, testTenant)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("blocking an available batch succeeds", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/batches/"+testBatchID+"/status", map[string]interface{}{
			"status": "BLOCKED",
		}, testTenant)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, repository.BatchStatusBlocked, ts.batches.batches[testBatchID].Status)
	})
}
