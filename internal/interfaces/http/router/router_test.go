package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func respond(body string) gin.HandlerFunc {
	return func(c *gin.Context) { c.String(http.StatusOK, body) }
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestGroup_Attach(t *testing.T) {
	engine := gin.New()
	g := NewGroup("/documents")
	g.GET("", respond("list")).
		POST("/:id", respond("create")).
		PUT("/:id", respond("update")).
		DELETE("/:id", respond("delete")).
		Handle(http.MethodPatch, "/:id", respond("patch"))
	g.Attach(engine.Group(APIPrefix))

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/v1/documents", "list"},
		{http.MethodPost, "/api/v1/documents/7", "create"},
		{http.MethodPut, "/api/v1/documents/7", "update"},
		{http.MethodDelete, "/api/v1/documents/7", "delete"},
		{http.MethodPatch, "/api/v1/documents/7", "patch"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			w := serve(engine, tt.method, tt.path)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.body, w.Body.String())
		})
	}

	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/documents").Code)
}

func TestGroup_MiddlewareScope(t *testing.T) {
	engine := gin.New()
	var calls []string
	mark := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) {
			calls = append(calls, name)
			c.Next()
		}
	}

	admin := NewGroup("/admin", mark("admin"))
	admin.GET("/status", respond("status"))
	admin.Group("/numbering", mark("numbering")).POST("/reset", respond("reset"))
	public := NewGroup("/public")
	public.GET("/ping", respond("pong"))

	api := engine.Group(APIPrefix, mark("api"))
	admin.Attach(api)
	public.Attach(api)

	serve(engine, http.MethodPost, "/api/v1/admin/numbering/reset")
	assert.Equal(t, []string{"api", "admin", "numbering"}, calls)

	calls = nil
	serve(engine, http.MethodGet, "/api/v1/admin/status")
	assert.Equal(t, []string{"api", "admin"}, calls)

	calls = nil
	w := serve(engine, http.MethodGet, "/api/v1/public/ping")
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, []string{"api"}, calls)
}

func TestGroup_AbortingMiddleware(t *testing.T) {
	engine := gin.New()
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusForbidden) }
	g := NewGroup("/admin", deny)
	g.GET("/status", respond("status"))
	g.Attach(engine.Group(APIPrefix))

	w := serve(engine, http.MethodGet, "/api/v1/admin/status")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Body.String())
}
