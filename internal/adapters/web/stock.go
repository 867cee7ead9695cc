package web

import (
	"net/http"

	"inventory-engine/internal/app"
)

// apiAssign handles POST /api/v1/stock/assign.
// Body: { location_id, product_id, quantity, min_stock_level?, max_stock_level?, replenish? }
func (h *Handler) apiAssign(w http.ResponseWriter, r *http.Request) {
	var req app.AssignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Assign(r.Context(), identity(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiMove handles POST /api/v1/stock/move.
func (h *Handler) apiMove(w http.ResponseWriter, r *http.Request) {
	var req app.MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Move(r.Context(), identity(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiReassign handles POST /api/v1/stock/reassign. quantity is the new absolute level.
func (h *Handler) apiReassign(w http.ResponseWriter, r *http.Request) {
	var req app.ReassignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Reassign(r.Context(), identity(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiUnassign handles DELETE /api/v1/locations/{locationID}/allocations/{productID}.
func (h *Handler) apiUnassign(w http.ResponseWriter, r *http.Request) {
	locationID, ok := intParam(w, r, "locationID")
	if !ok {
		return
	}
	productID, ok := intParam(w, r, "productID")
	if !ok {
		return
	}
	res, err := h.svc.Unassign(r.Context(), identity(r), locationID, productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiLowStock handles GET /api/v1/stock/low.
func (h *Handler) apiLowStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.LowStock(r.Context(), identity(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, rows)
}

// apiReceiveStock handles POST /api/v1/products/{productID}/receive.
// Body: { quantity, reference_id? }
func (h *Handler) apiReceiveStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := intParam(w, r, "productID")
	if !ok {
		return
	}
	var req app.ReceiveStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ProductID = productID
	res, err := h.svc.ReceiveStock(r.Context(), identity(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiSweep handles POST /api/v1/reservations/sweep.
func (h *Handler) apiSweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RunSweep(r.Context(), identity(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}
