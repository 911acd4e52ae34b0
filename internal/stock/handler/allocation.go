package handler

import (
	"net/http"

	"github.com/stockledger/stockledger-backend/internal/stock/service"
	"github.com/stockledger/stockledger-backend/pkg/httputil"
	"github.com/stockledger/stockledger-backend/pkg/logger"
	"github.com/stockledger/stockledger-backend/pkg/tenant"
)

// AllocationHandler exposes FEFO plan building
type AllocationHandler struct {
	allocator *service.Allocator
	logger    *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(allocator *service.Allocator, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		allocator: allocator,
		logger:    log,
	}
}

// Plan handles POST /allocations/plan. The response is advisory; nothing is
// reserved until the caller commits RESERVED or ISSUE movements.
func (h *AllocationHandler) Plan(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req service.AllocationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	plan, err := h.allocator.PlanAllocation(r.Context(), tenantID, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, plan)
}
