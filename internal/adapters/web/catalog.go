package web

import (
	"net/http"

	"github.com/shopspring/decimal"

	"inventory-engine/internal/app"
	"inventory-engine/internal/core"
)

// apiListProducts handles GET /api/v1/products.
func (h *Handler) apiListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.ListProducts(r.Context(), identity(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, products)
}

// apiCreateProduct handles POST /api/v1/products.
func (h *Handler) apiCreateProduct(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SKU                 string `json:"sku"`
		Name                string `json:"name"`
		Kind                string `json:"kind"`
		SizeSpec            string `json:"size_spec"`
		MinStockLevel       int    `json:"min_stock_level"`
		BulkMaterialID      *int   `json:"bulk_material_id"`
		PackagingMaterialID *int   `json:"packaging_material_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	p, err := h.svc.CreateProduct(r.Context(), identity(r), core.ProductInput{
		SKU:                 body.SKU,
		Name:                body.Name,
		Kind:                core.ProductKind(body.Kind),
		SizeSpec:            body.SizeSpec,
		MinStockLevel:       body.MinStockLevel,
		BulkMaterialID:      body.BulkMaterialID,
		PackagingMaterialID: body.PackagingMaterialID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, p)
}

// apiStockSummary handles GET /api/v1/products/{productID}/summary.
func (h *Handler) apiStockSummary(w http.ResponseWriter, r *http.Request) {
	productID, ok := intParam(w, r, "productID")
	if !ok {
		return
	}
	s, err := h.svc.StockSummary(r.Context(), identity(r), productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, s)
}

// apiListMovements handles GET /api/v1/products/{productID}/movements?limit=.
func (h *Handler) apiListMovements(w http.ResponseWriter, r *http.Request) {
	productID, ok := intParam(w, r, "productID")
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit")
	if !ok {
		return
	}
	n := 100
	if limit != nil {
		n = *limit
	}
	movements, err := h.svc.ListMovements(r.Context(), identity(r), productID, n)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, movements)
}

// apiVerifyChain handles GET /api/v1/products/{productID}/chain.
func (h *Handler) apiVerifyChain(w http.ResponseWriter, r *http.Request) {
	productID, ok := intParam(w, r, "productID")
	if !ok {
		return
	}
	report, err := h.svc.VerifyChain(r.Context(), identity(r), productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, report)
}

// apiConservation handles GET /api/v1/products/{productID}/conservation.
func (h *Handler) apiConservation(w http.ResponseWriter, r *http.Request) {
	productID, ok := intParam(w, r, "productID")
	if !ok {
		return
	}
	report, err := h.svc.Conservation(r.Context(), identity(r), productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, report)
}

// apiListLocations handles GET /api/v1/locations.
func (h *Handler) apiListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.svc.ListLocations(r.Context(), identity(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, locations)
}

// apiCreateLocation handles POST /api/v1/locations.
// Body: { kind: shop|warehouse, code, name }
func (h *Handler) apiCreateLocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind string `json:"kind"`
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	l, err := h.svc.CreateLocation(r.Context(), identity(r), core.LocationInput{
		Kind: core.LocationKind(body.Kind),
		Code: body.Code,
		Name: body.Name,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, l)
}

// apiSetLocationActive handles POST /api/v1/locations/{locationID}/activate and /deactivate.
func (h *Handler) apiSetLocationActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locationID, ok := intParam(w, r, "locationID")
		if !ok {
			return
		}
		l, err := h.svc.SetLocationActive(r.Context(), identity(r), locationID, active)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, l)
	}
}

// apiListMaterials handles GET /api/v1/materials.
func (h *Handler) apiListMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := h.svc.ListMaterials(r.Context(), identity(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, materials)
}

// apiCreateMaterial handles POST /api/v1/materials.
// Body: { kind: bulk|packaging|raw, name, unit? }
func (h *Handler) apiCreateMaterial(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
		Unit string `json:"unit"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	m, err := h.svc.CreateMaterial(r.Context(), identity(r), core.MaterialInput{
		Kind: core.MaterialKind(body.Kind),
		Name: body.Name,
		Unit: body.Unit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, m)
}

// apiReceiveMaterial handles POST /api/v1/materials/{materialID}/receive.
// Body: { amount, reference_id? }
func (h *Handler) apiReceiveMaterial(w http.ResponseWriter, r *http.Request) {
	materialID, ok := intParam(w, r, "materialID")
	if !ok {
		return
	}
	var body struct {
		Amount      decimal.Decimal `json:"amount"`
		ReferenceID string          `json:"reference_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	mm, err := h.svc.ReceiveMaterial(r.Context(), identity(r), app.ReceiveMaterialRequest{
		MaterialID:  materialID,
		Amount:      body.Amount,
		ReferenceID: body.ReferenceID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, mm)
}
