package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockledger/stockledger-backend/internal/stock/service"
	"github.com/stockledger/stockledger-backend/pkg/httputil"
	"github.com/stockledger/stockledger-backend/pkg/logger"
	"github.com/stockledger/stockledger-backend/pkg/tenant"
)

// MovementHandler exposes the ledger write and read endpoints
type MovementHandler struct {
	coordinator *service.Coordinator
	movements   service.MovementStore
	logger      *logger.Logger
}

// NewMovementHandler creates a new movement handler
func NewMovementHandler(coordinator *service.Coordinator, movements service.MovementStore, log *logger.Logger) *MovementHandler {
	return &MovementHandler{
		coordinator: coordinator,
		movements:   movements,
		logger:      log,
	}
}

// Create handles POST /movements
func (h *MovementHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req service.MovementRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	movement, err := h.coordinator.CreateMovement(r.Context(), tenantID, performerID(r.Context()), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movement)
}

// ListByBatch handles GET /batches/{batchID}/movements
func (h *MovementHandler) ListByBatch(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	batchID := chi.URLParam(r, "batchID")
	movements, err := h.movements.ListByBatch(r.Context(), tenantID, batchID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, movements)
}
