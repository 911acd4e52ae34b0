package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stockledger/stockledger-backend/internal/stock/service"
	"github.com/stockledger/stockledger-backend/pkg/errors"
	"github.com/stockledger/stockledger-backend/pkg/httputil"
	"github.com/stockledger/stockledger-backend/pkg/logger"
	"github.com/stockledger/stockledger-backend/pkg/tenant"
)

const defaultExpiryWindowDays = 90

// BatchHandler exposes batch lifecycle endpoints
type BatchHandler struct {
	coordinator      *service.Coordinator
	batches          service.BatchStore
	expiryWindowDays int
	logger           *logger.Logger
}

// NewBatchHandler creates a new batch handler. expiryWindow is the default
// lookahead for the expiring list when the caller gives none.
func NewBatchHandler(coordinator *service.Coordinator, batches service.BatchStore, expiryWindow time.Duration, log *logger.Logger) *BatchHandler {
	days := int(expiryWindow.Hours() / 24)
	if days < 1 {
		days = defaultExpiryWindowDays
	}
	return &BatchHandler{
		coordinator:      coordinator,
		batches:          batches,
		expiryWindowDays: days,
		logger:           log,
	}
}

// Receive handles POST /batches/receipt. New stock always lands in
// quarantine; quality releases it through the event stream.
func (h *BatchHandler) Receive(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req service.ReceiptRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, movement, err := h.coordinator.ReceiveBatch(r.Context(), tenantID, performerID(r.Context()), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, map[string]interface{}{
		"batch":    batch,
		"movement": movement,
	})
}

// Get handles GET /batches/{batchID}
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.batches.GetByID(r.Context(), tenantID, chi.URLParam(r, "batchID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// List handles GET /batches. Results come back in expiry order, earliest
// first, so the list doubles as a picking sequence.
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	productID := r.URL.Query().Get("product_id")
	var (
		batches interface{}
		listErr error
	)
	if productID != "" {
		batches, listErr = h.batches.ListByProduct(r.Context(), tenantID, productID)
	} else {
		batches, listErr = h.batches.ListAll(r.Context(), tenantID)
	}
	if listErr != nil {
		httputil.Error(w, listErr)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// ListExpiring handles GET /batches/expiring?within_days=N
func (h *BatchHandler) ListExpiring(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	withinDays := h.expiryWindowDays
	if raw := r.URL.Query().Get("within_days"); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed < 1 {
			httputil.Error(w, errors.BadRequest("within_days must be a positive integer"))
			return
		}
		withinDays = parsed
	}

	batches, err := h.batches.ListExpiring(r.Context(), tenantID, withinDays)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// statusRequest is the body for POST /batches/{batchID}/status
type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=QUARANTINE AVAILABLE BLOCKED"`
}

// UpdateStatus handles POST /batches/{batchID}/status. ISSUED is not
// accepted here; only issue movements set it.
func (h *BatchHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req statusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.coordinator.ApplyStatusTransition(r.Context(), tenantID, chi.URLParam(r, "batchID"), req.Status, performerID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}
