package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"inventory-engine/internal/app"
	"inventory-engine/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorDetails(w, r, message, code, status, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, message, code string, status int, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
		Details:   details,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError is the HTTP rendering of a service error.
type apiError struct {
	Status  int
	Code    string
	Message string
	Details any
}

// classify maps engine errors onto HTTP status, a stable code and structured details.
func classify(err error) apiError {
	var (
		insufficient *core.InsufficientStockError
		shortage     *core.MaterialShortageError
		unsold       *core.UnsoldStockRemainingError
		notAssigned  *core.NotAssignedError
		transition   *core.InvalidTransitionError
		missing      *core.NotFoundError
	)

	switch {
	case errors.Is(err, app.ErrForbidden):
		return apiError{http.StatusForbidden, "FORBIDDEN", err.Error(), nil}

	case errors.As(err, &insufficient):
		code := "INSUFFICIENT_STOCK"
		if insufficient.AtShop {
			code = "INSUFFICIENT_SHOP_STOCK"
		}
		details := map[string]any{
			"product_id": insufficient.ProductID,
			"requested":  insufficient.Requested,
			"available":  insufficient.Available,
		}
		if insufficient.LocationID != nil {
			details["location_id"] = *insufficient.LocationID
		}
		if len(insufficient.Shortfalls) > 0 {
			details["shortfalls"] = insufficient.Shortfalls
		}
		return apiError{http.StatusConflict, code, err.Error(), details}

	case errors.As(err, &shortage):
		code := "INSUFFICIENT_MATERIAL"
		switch shortage.Kind {
		case core.MaterialBulk:
			code = "INSUFFICIENT_BULK_MATERIAL"
		case core.MaterialPackaging:
			code = "INSUFFICIENT_PACKAGING"
		}
		return apiError{http.StatusConflict, code, err.Error(), map[string]any{
			"material_id": shortage.MaterialID,
			"required":    shortage.Required,
			"available":   shortage.Available,
		}}

	case errors.As(err, &unsold):
		return apiError{http.StatusConflict, "UNSOLD_STOCK_REMAINING", err.Error(), map[string]any{
			"location_id": unsold.LocationID,
			"product_id":  unsold.ProductID,
			"remaining":   unsold.Remaining,
			"requested":   unsold.Requested,
		}}

	case errors.As(err, &notAssigned):
		return apiError{http.StatusConflict, "NOT_ASSIGNED_TO_LOCATION", err.Error(), map[string]any{
			"location_id": notAssigned.LocationID,
			"product_id":  notAssigned.ProductID,
		}}

	case errors.As(err, &transition):
		return apiError{http.StatusConflict, "INVALID_TRANSITION", err.Error(), map[string]any{
			"from": transition.From,
			"to":   transition.To,
		}}

	case errors.As(err, &missing):
		return apiError{http.StatusNotFound, "NOT_FOUND", err.Error(), map[string]any{
			"entity": missing.Entity,
			"id":     missing.ID,
		}}

	case errors.Is(err, core.ErrConcurrencyConflict):
		return apiError{http.StatusConflict, "CONCURRENCY_CONFLICT", "concurrent update, please retry", nil}
	case errors.Is(err, core.ErrBusy):
		return apiError{http.StatusServiceUnavailable, "BUSY", "store busy, please retry", nil}
	case errors.Is(err, core.ErrInsufficientStock):
		return apiError{http.StatusConflict, "INSUFFICIENT_STOCK", err.Error(), nil}
	case errors.Is(err, core.ErrInvalidQuantity):
		return apiError{http.StatusBadRequest, "INVALID_QUANTITY", err.Error(), nil}
	case errors.Is(err, core.ErrInvalidEndpoint):
		return apiError{http.StatusBadRequest, "INVALID_ENDPOINT", err.Error(), nil}
	case errors.Is(err, core.ErrInvalidInput):
		return apiError{http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil}
	}
	return apiError{http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil}
}

// fail renders err and records it. Internal errors are logged with their cause; the
// client only sees a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	if e.Status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	if h.metrics != nil {
		h.metrics.ObserveError(e.Code)
	}
	writeErrorDetails(w, r, e.Message, e.Code, e.Status, e.Details)
}
