package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func corsRouter(cfg CORSConfig) *gin.Engine {
	router := gin.New()
	router.Use(CORSWithConfig(cfg))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestCORSWithConfig(t *testing.T) {
	whitelist := DefaultCORSConfig()
	whitelist.AllowOrigins = []string{"https://erp.example.com"}
	wildcard := DefaultCORSConfig()
	wildcard.AllowOrigins = []string{"*"}

	tests := []struct {
		name        string
		cfg         CORSConfig
		method      string
		origin      string
		status      int
		allowOrigin string
		credentials string
	}{
		{"empty whitelist", DefaultCORSConfig(), http.MethodGet, "https://erp.example.com", http.StatusOK, "", ""},
		{"whitelisted origin", whitelist, http.MethodGet, "https://erp.example.com", http.StatusOK, "https://erp.example.com", "true"},
		{"foreign origin", whitelist, http.MethodGet, "https://evil.example.com", http.StatusOK, "", ""},
		{"wildcard never sends credentials", wildcard, http.MethodGet, "https://any.example.com", http.StatusOK, "*", ""},
		{"preflight allowed", whitelist, http.MethodOptions, "https://erp.example.com", http.StatusNoContent, "https://erp.example.com", "true"},
		{"preflight rejected", whitelist, http.MethodOptions, "https://evil.example.com", http.StatusNoContent, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			corsRouter(tt.cfg).ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.allowOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.credentials, w.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestCORSWithConfig_AllowsActorHeaders(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://erp.example.com"}

	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set("Origin", "https://erp.example.com")
	w := httptest.NewRecorder()
	corsRouter(cfg).ServeHTTP(w, req)

	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), ActorIDHeader)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Last-Event-ID")
	assert.Equal(t, "43200", w.Header().Get("Access-Control-Max-Age"))
}

func TestSecureWithConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		router := gin.New()
		router.Use(Secure())
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", w.Header().Get("Content-Security-Policy"))
		assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
	})

	t.Run("hsts", func(t *testing.T) {
		cfg := DefaultSecurityConfig()
		cfg.HSTSEnabled = true
		router := gin.New()
		router.Use(SecureWithConfig(cfg))
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	})
}
