package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/adcal/slotmarket/internal/domain"
)

// SaleService defines the sale query methods the handler requires.
type SaleService interface {
	ListSalesByDay(ctx context.Context, day int, opts domain.ListOpts) ([]domain.Sale, error)
	ListRecentSales(ctx context.Context, limit int) ([]domain.Sale, error)
}

// SaleHandler serves the sale history endpoints.
type SaleHandler struct {
	sales  SaleService
	logger *slog.Logger
}

// NewSaleHandler creates a SaleHandler with the given service and logger.
func NewSaleHandler(sales SaleService, logger *slog.Logger) *SaleHandler {
	return &SaleHandler{
		sales:  sales,
		logger: logHandler(logger, "sale"),
	}
}

// listSalesResponse wraps the sale list output.
type listSalesResponse struct {
	Sales []domain.Sale `json:"sales"`
}

// ListRecent returns the most recent sales across all days.
// GET /api/sales?limit=50
func (h *SaleHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	sales, err := h.sales.ListRecentSales(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list recent sales failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list sales")
		return
	}
	if sales == nil {
		sales = []domain.Sale{}
	}
	writeJSON(w, http.StatusOK, listSalesResponse{Sales: sales})
}

// ListByDay returns sales for a single day, newest first.
// GET /api/slots/{day}/sales?limit=50&offset=0
func (h *SaleHandler) ListByDay(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed day index")
		return
	}
	opts := parseListOpts(r)

	sales, err := h.sales.ListSalesByDay(r.Context(), day, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list sales by day failed",
			slog.Int("day", day),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list sales")
		return
	}
	if sales == nil {
		sales = []domain.Sale{}
	}
	writeJSON(w, http.StatusOK, listSalesResponse{Sales: sales})
}
