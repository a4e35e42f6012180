// Package handler contains the HTTP handlers of the slot market API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/adcal/slotmarket/internal/domain"
	"github.com/adcal/slotmarket/internal/server/middleware"
)

// writeJSON responds with v encoded as JSON. Marshal must happen before the
// status line goes out, so a failure can still surface as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError responds with the API's {"error": msg} envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinel errors onto HTTP status codes. It
// returns false when err is nil.
func writeDomainError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, domain.ErrOutOfRange):
		writeError(w, http.StatusNotFound, "day out of range")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "caller does not own this slot")
	case errors.Is(err, domain.ErrNoBid):
		writeError(w, http.StatusConflict, "no open bid on this slot")
	case errors.Is(err, domain.ErrPaymentFailed):
		writeError(w, http.StatusPaymentRequired, "token transfer failed")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "slot is locked by a concurrent operation")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
	return true
}

// parseListOpts reads limit and offset query parameters, clamping limit to
// [1, 500] with a default of 50. Unparseable values fall back to defaults.
func parseListOpts(r *http.Request) domain.ListOpts {
	opts := domain.ListOpts{Limit: 50}
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		opts.Limit = min(n, 500)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		opts.Offset = n
	}
	return opts
}

// dayParam extracts the {day} path parameter. A malformed value is reported
// as -1 plus false; range checking is left to the market.
func dayParam(r *http.Request) (int, bool) {
	day, err := strconv.Atoi(r.PathValue("day"))
	if err != nil {
		return -1, false
	}
	return day, true
}

// callerParam returns the authenticated caller set by the signature
// middleware.
func callerParam(r *http.Request) (common.Address, bool) {
	return middleware.CallerFrom(r.Context())
}

// parseAmount decodes a decimal token amount from a request field.
func parseAmount(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// parseAddress decodes a 0x-prefixed hex address from a request field.
func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// decodeBody unmarshals the JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
