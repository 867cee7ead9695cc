package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-engine/internal/core"
)

func TestMovementsCommitted(t *testing.T) {
	m := New()
	m.MovementsCommitted(context.Background(), []core.Movement{
		{Type: core.MovementSale, Quantity: 3},
		{Type: core.MovementSale, Quantity: 2},
		{Type: core.MovementAssign, Quantity: 10},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MovementsTotal.WithLabelValues("sale")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.MovedUnitsTotal.WithLabelValues("sale")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.MovedUnitsTotal.WithLabelValues("assign")))
}

func TestObserveSweep(t *testing.T) {
	m := New()
	m.ObserveSweep(core.SweepResult{Expired: 4, Elapsed: time.Second}, nil)
	m.ObserveSweep(core.SweepResult{Expired: 1, Failed: 1}, nil)
	m.ObserveSweep(core.SweepResult{}, errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRunsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRunsTotal.WithLabelValues("partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRunsTotal.WithLabelValues("error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.SweepExpiredTotal))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveHTTP(http.MethodGet, "/api/health", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `http_requests_total{method="GET",route="/api/health",status="200"} 1`))
}
