package handler

import (
	"net/http"

	"github.com/stockledger/stockledger-backend/internal/stock/service"
	"github.com/stockledger/stockledger-backend/pkg/httputil"
	"github.com/stockledger/stockledger-backend/pkg/logger"
	"github.com/stockledger/stockledger-backend/pkg/tenant"
)

// PositionHandler exposes the derived stock position view
type PositionHandler struct {
	calc   *service.Calculator
	logger *logger.Logger
}

// NewPositionHandler creates a new position handler
func NewPositionHandler(calc *service.Calculator, log *logger.Logger) *PositionHandler {
	return &PositionHandler{
		calc:   calc,
		logger: log,
	}
}

// List handles GET /positions. Positions are recomputed from the ledger on
// every call; there is no cached quantity to go stale.
func (h *PositionHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	filter := service.PositionFilter{
		BatchID:       r.URL.Query().Get("batch_id"),
		ProductID:     r.URL.Query().Get("product_id"),
		WarehouseID:   r.URL.Query().Get("warehouse_id"),
		AvailableOnly: r.URL.Query().Get("available_only") == "true",
	}

	positions, err := h.calc.ComputePositions(r.Context(), tenantID, filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, positions)
}
