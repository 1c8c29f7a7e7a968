package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCountersAreExposed(t *testing.T) {
	m := New()
	m.OrdersAccepted.WithLabelValues("BUY").Inc()
	m.OrdersAccepted.WithLabelValues("BUY").Inc()
	m.Trades.Add(3)
	m.Observe(OpAdd, time.Now())

	body := scrape(t, m)
	assert.Contains(t, body, `matchbook_orders_accepted_total{side="BUY"} 2`)
	assert.Contains(t, body, "matchbook_trades_total 3")
	assert.Contains(t, body, `matchbook_operation_duration_seconds_count{op="add"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestInstancesAreIsolated(t *testing.T) {
	a, b := New(), New()
	a.Cancels.Inc()
	assert.Contains(t, scrape(t, a), "matchbook_cancels_total 1")
	assert.Contains(t, scrape(t, b), "matchbook_cancels_total 0")
}
