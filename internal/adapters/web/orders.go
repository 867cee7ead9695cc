package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"inventory-engine/internal/app"
)

// apiListOrders handles GET /api/v1/orders?status=&shop_id=&limit=.
func (h *Handler) apiListOrders(w http.ResponseWriter, r *http.Request) {
	shopID, ok := intQuery(w, r, "shop_id")
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit")
	if !ok {
		return
	}
	req := app.ListOrdersRequest{Status: r.URL.Query().Get("status"), ShopID: shopID}
	if limit != nil {
		req.Limit = *limit
	}
	result, err := h.svc.ListOrders(r.Context(), identity(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, result.Orders)
}

// apiCreateOrder handles POST /api/v1/orders.
// Body: { shop_id?, payment_status?, paid_amount?, items: [{kind?, product_id | material_id, quantity, unit_price}] }
func (h *Handler) apiCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req app.CreateOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeError(w, r, "at least one item is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.CreateOrder(r.Context(), identity(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Order)
}

// apiGetOrder handles GET /api/v1/orders/{ref}.
func (h *Handler) apiGetOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetOrder(r.Context(), identity(r), chi.URLParam(r, "ref"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// apiDeleteOrder handles DELETE /api/v1/orders/{ref}.
func (h *Handler) apiDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteOrder(r.Context(), identity(r), chi.URLParam(r, "ref")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiListReservations handles GET /api/v1/orders/{ref}/reservations.
func (h *Handler) apiListReservations(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListReservations(r.Context(), identity(r), chi.URLParam(r, "ref"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiConfirmOrder handles POST /api/v1/orders/{ref}/confirm.
func (h *Handler) apiConfirmOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.svc.ConfirmOrder)
}

// apiProcessOrder handles POST /api/v1/orders/{ref}/process and returns the picking list.
func (h *Handler) apiProcessOrder(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ProcessOrder(r.Context(), identity(r), chi.URLParam(r, "ref"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, list)
}

// apiFulfillOrder handles POST /api/v1/orders/{ref}/fulfill.
// Body: { tracking_number? }
func (h *Handler) apiFulfillOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TrackingNumber string `json:"tracking_number"`
	}
	if r.ContentLength > 0 && !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.CompleteFulfillment(r.Context(), identity(r), chi.URLParam(r, "ref"), body.TrackingNumber)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// apiCompleteOrder handles POST /api/v1/orders/{ref}/complete.
func (h *Handler) apiCompleteOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.svc.CompleteOrder)
}

// apiCancelOrder handles POST /api/v1/orders/{ref}/cancel.
func (h *Handler) apiCancelOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.svc.CancelOrder)
}

// apiRestockOrder handles POST /api/v1/orders/{ref}/restock.
func (h *Handler) apiRestockOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.svc.RestockCancelledOrder)
}

// apiUpdatePayment handles POST /api/v1/orders/{ref}/payment.
// Body: { status, paid_amount }
func (h *Handler) apiUpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req app.UpdatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.UpdatePayment(r.Context(), identity(r), chi.URLParam(r, "ref"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

type orderActionFunc func(ctx context.Context, id app.Identity, ref string) (*app.OrderResult, error)

func (h *Handler) orderAction(w http.ResponseWriter, r *http.Request, fn orderActionFunc) {
	result, err := fn(r.Context(), identity(r), chi.URLParam(r, "ref"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}
