package router

import (
	"github.com/erp/docflow/internal/interfaces/http/handler"
	"github.com/erp/docflow/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// AdminRole may reset number series
const AdminRole = "admin"

// Handlers are the HTTP handlers served under the API prefix
type Handlers struct {
	Workflow  *handler.WorkflowHandler
	Approval  *handler.ApprovalHandler
	Numbering *handler.NumberingHandler
	Events    *handler.EventStreamHandler
	System    *handler.SystemHandler
}

// WorkflowRoutes serves transitions, audit trails and event feeds
func WorkflowRoutes(h Handlers) *Group {
	g := NewGroup("/workflow")
	g.GET("/replay/:topic", h.Workflow.Replay)
	g.GET("/events/:topic/stream", h.Events.Stream)
	g.GET("/events/:topic/connections", h.Events.Connections)
	g.POST("/:domain/:number/transition", h.Workflow.Transition).
		GET("/:domain/:number", h.Workflow.GetState).
		GET("/:domain/:number/audit", h.Workflow.GetAudit)
	return g
}

// ApprovalRoutes serves approval requests and votes
func ApprovalRoutes(h Handlers) *Group {
	g := NewGroup("/approval")
	g.POST("/request", h.Approval.RequestApproval).
		POST("/vote", h.Approval.CastVote).
		GET("/:domain/:documentId", h.Approval.GetRequest)
	return g
}

// ApprovalRuleRoutes serves approval rule management
func ApprovalRuleRoutes(h Handlers) *Group {
	g := NewGroup("/approval-rules")
	g.POST("", h.Approval.CreateRule).
		GET("", h.Approval.ListRules).
		GET("/:id", h.Approval.GetRule).
		PUT("/:id", h.Approval.UpdateRule).
		DELETE("/:id", h.Approval.DeactivateRule)
	return g
}

// NumberingRoutes serves document numbers
func NumberingRoutes(h Handlers) *Group {
	g := NewGroup("/numbering")
	g.POST("/next", h.Numbering.Next).
		GET("/status", h.Numbering.Status)
	return g
}

// AdminRoutes requires the admin role
func AdminRoutes(h Handlers) *Group {
	g := NewGroup("/admin", middleware.RequireRole(AdminRole))
	g.Group("/numbering").POST("/reset", h.Numbering.Reset)
	return g
}

// SystemRoutes serves build information
func SystemRoutes(h Handlers) *Group {
	g := NewGroup("/system")
	g.GET("/info", h.System.GetSystemInfo).
		GET("/ping", h.System.Ping)
	return g
}

// Mount registers the API groups and the unauthenticated health checks.
// apiMiddleware runs for /api routes only.
func Mount(engine *gin.Engine, h Handlers, apiMiddleware ...gin.HandlerFunc) {
	engine.GET("/health", h.System.Health)
	engine.GET(APIPrefix+"/health", h.System.Health)

	api := engine.Group(APIPrefix, apiMiddleware...)
	for _, g := range []*Group{
		WorkflowRoutes(h),
		ApprovalRoutes(h),
		ApprovalRuleRoutes(h),
		NumberingRoutes(h),
		AdminRoutes(h),
		SystemRoutes(h),
	} {
		g.Attach(api)
	}
}
