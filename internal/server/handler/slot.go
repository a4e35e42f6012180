package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/adcal/slotmarket/internal/domain"
)

// SlotService defines the methods that the slot handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type SlotService interface {
	Days() int
	CurrentDay(now time.Time) (int, bool)
	GetSlot(ctx context.Context, day int) (domain.Slot, error)
	ListSlots(ctx context.Context) ([]domain.Slot, error)
	OwnerOf(ctx context.Context, day int) (common.Address, error)
	SetOwner(ctx context.Context, day int, newOwner, caller common.Address) (domain.Slot, error)
	SetContent(ctx context.Context, day int, url, imageURL string, caller common.Address) (domain.Slot, error)
	SetAskPrice(ctx context.Context, day int, price *big.Int, caller common.Address) (domain.Slot, error)
	BuyFromAsk(ctx context.Context, day int, caller common.Address) (domain.Slot, domain.Sale, error)
	PlaceBid(ctx context.Context, day int, amount *big.Int, caller common.Address) (domain.Slot, error)
	SellToBid(ctx context.Context, day int, caller common.Address) (domain.Slot, domain.Sale, error)
}

// SlotHandler serves the slot endpoints.
type SlotHandler struct {
	slots  SlotService
	logger *slog.Logger
}

// NewSlotHandler creates a SlotHandler with the given service and logger.
func NewSlotHandler(slots SlotService, logger *slog.Logger) *SlotHandler {
	return &SlotHandler{
		slots:  slots,
		logger: logHandler(logger, "slot"),
	}
}

// listSlotsResponse wraps the list endpoint output with arena metadata.
type listSlotsResponse struct {
	Slots []domain.Slot `json:"slots"`
	Days  int           `json:"days"`
}

// ListSlots returns every slot in day order.
// GET /api/slots
func (h *SlotHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.slots.ListSlots(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list slots failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list slots")
		return
	}

	writeJSON(w, http.StatusOK, listSlotsResponse{
		Slots: slots,
		Days:  h.slots.Days(),
	})
}

// GetSlot returns a single slot by its day index.
// GET /api/slots/{day}
func (h *SlotHandler) GetSlot(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed day index")
		return
	}

	slot, err := h.slots.GetSlot(r.Context(), day)
	if writeDomainError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// todayResponse pairs the resolved day index with its slot.
type todayResponse struct {
	Day  int         `json:"day"`
	Slot domain.Slot `json:"slot"`
}

// GetToday resolves the current wall-clock day to a slot index and returns
// that slot. Outside the arena's calendar window it responds 404.
// GET /api/slots/today
func (h *SlotHandler) GetToday(w http.ResponseWriter, r *http.Request) {
	day, ok := h.slots.CurrentDay(time.Now().UTC())
	if !ok {
		writeError(w, http.StatusNotFound, "no slot scheduled for today")
		return
	}

	slot, err := h.slots.GetSlot(r.Context(), day)
	if writeDomainError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, todayResponse{Day: day, Slot: slot})
}

// GetOwner returns the current owner of a slot.
// GET /api/slots/{day}/owner
func (h *SlotHandler) GetOwner(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed day index")
		return
	}

	owner, err := h.slots.OwnerOf(r.Context(), day)
	if writeDomainError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": owner.Hex()})
}

// setOwnerRequest is the body of the owner reassignment endpoint.
type setOwnerRequest struct {
	NewOwner string `json:"new_owner"`
}

// SetOwner reassigns a slot to a new owner without payment.
// PUT /api/slots/{day}/owner
func (h *SlotHandler) SetOwner(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed day index")
		return
	}
	caller, ok := callerParam(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity required")
		return
	}

	var req setOwnerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	newOwner, ok := parseAddress(req.NewOwner)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed new_owner address")
		return
	}

	slot, err := h.slots.SetOwner(r.Context(), day, newOwner, caller)
	if writeDomainError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// setContentRequest is the body of the content replacement endpoint.
type setContentRequest struct {
	AdURL      string `json:"ad_url"`
	AdImageURL string `json:"ad_image_url"`
}

// SetContent replaces both display strings of a slot.
// PUT /api/slots/{day}/content
func (h *SlotHandler) SetContent(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed day index")
		return
	}
	caller, ok := callerParam(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity required")
		return
	}

	var req setContentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	slot, err := h.slots.SetContent(r.Context(), day, req.AdURL, req.AdImageURL, caller)
	if writeDomainError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// setAskRequest is the body of the ask price endpoint.
type setAskRequest struct {
	AskPrice string `json:"ask_price"`
}

// SetAskPrice replaces a slot's ask price.
// PUT /api/slots/{day}/ask
func (h *SlotHandler) SetAskPrice(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed day index")
		return
	}
	caller, ok := callerParam(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity required")
		return
	}

	var req setAskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	price, ok := parseAmount(req.AskPrice)
	if !ok {
		writeError(w, http.StatusBadRequest, "ask_price must be a non-negative decimal integer")
		return
	}

	slot, err := h.slots.SetAskPrice(r.Context(), day, price, caller)
	if writeDomainError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// saleResponse pairs the post-transition slot with the recorded sale.
type saleResponse struct {
	Slot domain.Slot `json:"slot"`
	Sale domain.Sale `json:"sale"`
}

// BuyFromAsk purchases a slot at its ask price on behalf of the caller.
// POST /api/slots/{day}/buy
func (h *SlotHandler) BuyFromAsk(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed day index")
		return
	}
	caller, ok := callerParam(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity required")
		return
	}

	slot, sale, err := h.slots.BuyFromAsk(r.Context(), day, caller)
	if writeDomainError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, saleResponse{Slot: slot, Sale: sale})
}

// placeBidRequest is the body of the bid endpoint.
type placeBidRequest struct {
	Amount string `json:"amount"`
}

// PlaceBid records an open bid on a slot, replacing any previous bid.
// POST /api/slots/{day}/bids
func (h *SlotHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed day index")
		return
	}
	caller, ok := callerParam(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity required")
		return
	}

	var req placeBidRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be a non-negative decimal integer")
		return
	}

	slot, err := h.slots.PlaceBid(r.Context(), day, amount, caller)
	if writeDomainError(w, err) {
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

// SellToBid accepts the open bid on a slot owned by the caller.
// POST /api/slots/{day}/accept
func (h *SlotHandler) SellToBid(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed day index")
		return
	}
	caller, ok := callerParam(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity required")
		return
	}

	slot, sale, err := h.slots.SellToBid(r.Context(), day, caller)
	if writeDomainError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, saleResponse{Slot: slot, Sale: sale})
}
