package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistered(t *testing.T) {
	FlattenTotal.WithLabelValues("closed_market").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "futures_bot_flatten_total" {
			found = true
			break
		}
	}
	assert.True(t, found, "futures_bot_flatten_total metric not found")
	assert.GreaterOrEqual(t, testutil.ToFloat64(FlattenTotal.WithLabelValues("closed_market")), 1.0)
}

func TestHandlerServesMetrics(t *testing.T) {
	HealthErrorStreak.Set(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "futures_bot_health_error_streak 2")
}
