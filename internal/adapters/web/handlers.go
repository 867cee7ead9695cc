package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"inventory-engine/internal/app"
)

// HTTPObserver receives per-request metrics. Implemented by metrics.Metrics.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
	ObserveError(code string)
}

// Options configures NewHandler. Metrics and MetricsHandler may be nil.
type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	RequestTimeout time.Duration
	Logger         *zap.Logger
	Metrics        HTTPObserver
	MetricsHandler http.Handler
}

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	log       *zap.Logger
	metrics   HTTPObserver
	jwtSecret string
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		svc:       svc,
		log:       log,
		metrics:   opts.Metrics,
		jwtSecret: opts.JWTSecret,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(log, opts.Metrics))
	r.Use(Recoverer(log))
	r.Use(CORS(opts.AllowedOrigins))

	// ── Public ───────────────────────────────────────────────────────────────
	r.Get("/api/health", h.health)
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	// ── Protected API routes (401 JSON if unauthenticated) ───────────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(1 << 20))
		r.Use(RequestTimeout(opts.RequestTimeout))

		r.Get("/api/auth/me", h.me)

		r.Route("/api/v1", func(r chi.Router) {
			// Stock placement
			r.Post("/stock/assign", h.apiAssign)
			r.Post("/stock/move", h.apiMove)
			r.Post("/stock/reassign", h.apiReassign)
			r.Delete("/locations/{locationID}/allocations/{productID}", h.apiUnassign)
			r.Get("/stock/low", h.apiLowStock)

			// Products and reporting
			r.Get("/products", h.apiListProducts)
			r.Post("/products", h.apiCreateProduct)
			r.Get("/products/{productID}/summary", h.apiStockSummary)
			r.Get("/products/{productID}/movements", h.apiListMovements)
			r.Get("/products/{productID}/chain", h.apiVerifyChain)
			r.Get("/products/{productID}/conservation", h.apiConservation)
			r.Post("/products/{productID}/receive", h.apiReceiveStock)

			// Locations and materials
			r.Get("/locations", h.apiListLocations)
			r.Post("/locations", h.apiCreateLocation)
			r.Post("/locations/{locationID}/activate", h.apiSetLocationActive(true))
			r.Post("/locations/{locationID}/deactivate", h.apiSetLocationActive(false))
			r.Get("/materials", h.apiListMaterials)
			r.Post("/materials", h.apiCreateMaterial)
			r.Post("/materials/{materialID}/receive", h.apiReceiveMaterial)

			// Orders
			r.Get("/orders", h.apiListOrders)
			r.Post("/orders", h.apiCreateOrder)
			r.Get("/orders/{ref}", h.apiGetOrder)
			r.Delete("/orders/{ref}", h.apiDeleteOrder)
			r.Get("/orders/{ref}/reservations", h.apiListReservations)
			r.Post("/orders/{ref}/confirm", h.apiConfirmOrder)
			r.Post("/orders/{ref}/process", h.apiProcessOrder)
			r.Post("/orders/{ref}/fulfill", h.apiFulfillOrder)
			r.Post("/orders/{ref}/complete", h.apiCompleteOrder)
			r.Post("/orders/{ref}/cancel", h.apiCancelOrder)
			r.Post("/orders/{ref}/restock", h.apiRestockOrder)
			r.Post("/orders/{ref}/payment", h.apiUpdatePayment)

			// Reservations
			r.Post("/reservations/sweep", h.apiSweep)
		})
	})

	h.router = r
	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// identity returns the caller injected by RequireAuth.
func identity(r *http.Request) app.Identity {
	if id := identityFromContext(r.Context()); id != nil {
		return *id
	}
	return app.Identity{}
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

// intParam parses a positive integer URL parameter, writing a 400 on failure.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v <= 0 {
		writeError(w, r, fmt.Sprintf("%s must be a positive integer", name), "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

// intQuery parses an optional integer query parameter.
func intQuery(w http.ResponseWriter, r *http.Request, name string) (*int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, r, fmt.Sprintf("%s must be an integer", name), "BAD_REQUEST", http.StatusBadRequest)
		return nil, false
	}
	return &v, true
}
