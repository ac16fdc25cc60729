package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/erp/docflow/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping() error
}

// PingerFunc adapts a function to Pinger
type PingerFunc func() error

// Ping calls f
func (f PingerFunc) Ping() error { return f() }

// ConnectionCounter reports live event stream subscribers per topic
type ConnectionCounter interface {
	ConnectionCounts() map[string]int
}

// SystemHandler serves health and build information
type SystemHandler struct {
	BaseHandler
	name        string
	version     string
	startTime   time.Time
	checks      map[string]Pinger
	connections ConnectionCounter
	domains     func() []string
}

// SystemOption configures a SystemHandler
type SystemOption func(*SystemHandler)

// WithHealthCheck adds a named dependency to the health report
func WithHealthCheck(name string, p Pinger) SystemOption {
	return func(h *SystemHandler) {
		if p != nil {
			h.checks[name] = p
		}
	}
}

// WithConnectionCounter exposes stream subscriber counts
func WithConnectionCounter(c ConnectionCounter) SystemOption {
	return func(h *SystemHandler) { h.connections = c }
}

// WithDomains exposes the registered workflow domains
func WithDomains(fn func() []string) SystemOption {
	return func(h *SystemHandler) { h.domains = fn }
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name, version string, opts ...SystemOption) *SystemHandler {
	h := &SystemHandler{
		name:      name,
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]Pinger),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	GoVersion   string         `json:"go_version"`
	Uptime      string         `json:"uptime"`
	Domains     []string       `json:"domains,omitempty"`
	Connections map[string]int `json:"connections,omitempty"`
}

// GetSystemInfo returns version, uptime and workflow wiring
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.domains != nil {
		info.Domains = h.domains()
	}
	if h.connections != nil {
		info.Connections = h.connections.ConnectionCounts()
	}
	h.Success(c, info)
}

// HealthResponse is the health report
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Health pings every registered dependency. Any failure yields 503.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Checks:    make(map[string]string, len(h.checks)),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for name, p := range h.checks {
		if err := ping(ctx, p); err != nil {
			resp.Status = "unhealthy"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, dto.NewSuccessResponse(resp))
}

func ping(ctx context.Context, p Pinger) error {
	done := make(chan error, 1)
	go func() { done <- p.Ping() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Ping is a liveness check
func (h *SystemHandler) Ping(c *gin.Context) {
	h.Success(c, PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
