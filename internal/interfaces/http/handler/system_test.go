package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCounts map[string]int

func (f fixedCounts) ConnectionCounts() map[string]int { return f }

func TestNewSystemHandler(t *testing.T) {
	h := NewSystemHandler("docflow", "1.0.0", WithHealthCheck("nil", nil))
	assert.NotNil(t, h)
	assert.False(t, h.startTime.IsZero())
	assert.Empty(t, h.checks)
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	h := NewSystemHandler("docflow", "1.0.0",
		WithDomains(func() []string { return []string{"invoice", "sales"} }),
		WithConnectionCounter(fixedCounts{"workflow": 2}),
	)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/system/info", nil)

	h.GetSystemInfo(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "docflow", data["name"])
	assert.Equal(t, "1.0.0", data["version"])
	assert.NotEmpty(t, data["go_version"])
	assert.NotEmpty(t, data["uptime"])
	assert.Equal(t, []any{"invoice", "sales"}, data["domains"])
	assert.Equal(t, map[string]any{"workflow": float64(2)}, data["connections"])
}

func TestSystemHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		dbErr      error
		wantStatus int
		wantHealth string
		wantCheck  string
	}{
		{"all dependencies up", nil, http.StatusOK, "healthy", "ok"},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable, "unhealthy", "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandler("docflow", "1.0.0",
				WithHealthCheck("database", PingerFunc(func() error { return tt.dbErr })))

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

			h.Health(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			data := decodeResponse(t, w).Data.(map[string]any)
			assert.Equal(t, tt.wantHealth, data["status"])
			checks := data["checks"].(map[string]any)
			assert.Equal(t, tt.wantCheck, checks["database"])
		})
	}
}

func TestSystemHandler_Ping(t *testing.T) {
	h := NewSystemHandler("docflow", "1.0.0")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/system/ping", nil)

	h.Ping(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "pong", data["message"])

	_, err := time.Parse(time.RFC3339, data["timestamp"].(string))
	require.NoError(t, err)
}
