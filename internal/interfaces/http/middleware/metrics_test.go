package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func TestHTTPMetrics_RecordsRequests(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	router := gin.New()
	router.Use(HTTPMetrics(provider.Meter("test"), zaptest.NewLogger(t)))
	router.GET("/workflow/:domain/:number", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/workflow/sales/SO-1", nil))
	}
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "http_server_request_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				route, _ := dp.Attributes.Value(attribute.Key("route"))
				totals[route.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(3), totals["/workflow/:domain/:number"])
	assert.Equal(t, int64(1), totals["unmatched"])
}

func TestHTTPMetricsStatusGroup(t *testing.T) {
	tests := map[int]string{
		http.StatusOK:                  "2xx",
		http.StatusFound:               "3xx",
		http.StatusUnprocessableEntity: "4xx",
		http.StatusServiceUnavailable:  "5xx",
		http.StatusContinue:            "1xx",
	}
	for code, want := range tests {
		assert.Equal(t, want, HTTPMetricsStatusGroup(code))
	}
}
