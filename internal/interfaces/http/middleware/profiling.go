package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	ProfilingLabelRoute  = "route"
	ProfilingLabelMethod = "method"
	ProfilingLabelDomain = "domain"
)

// ProfilingConfig holds configuration for the profiling middleware.
type ProfilingConfig struct {
	Enabled   bool
	SkipPaths []string
}

// DefaultProfilingConfig returns default profiling middleware configuration.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled:   true,
		SkipPaths: []string{"/health", "/api/v1/health"},
	}
}

// ProfilingWithConfig tags the goroutines serving a request with Pyroscope
// labels: route pattern, HTTP method and workflow domain. The SSE stream
// route is skipped as its goroutine outlives normal requests.
func ProfilingWithConfig(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath {
				c.Next()
				return
			}
		}
		if strings.HasSuffix(path, "/stream") {
			c.Next()
			return
		}

		pyroscope.TagWrapper(c.Request.Context(), pyroscope.Labels(extractProfilingLabels(c)...), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// extractProfilingLabels returns key/value pairs. Only low-cardinality values
// are used; document numbers never become labels.
func extractProfilingLabels(c *gin.Context) []string {
	labels := make([]string, 0, 6)
	if method := c.Request.Method; method != "" {
		labels = append(labels, ProfilingLabelMethod, method)
	}
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	labels = append(labels, ProfilingLabelRoute, route)
	if domain := c.Param("domain"); domain != "" {
		labels = append(labels, ProfilingLabelDomain, domain)
	}
	return labels
}
