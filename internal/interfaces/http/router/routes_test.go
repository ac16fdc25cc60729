package router

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	approvalapp "github.com/erp/docflow/internal/application/approval"
	numberingapp "github.com/erp/docflow/internal/application/numbering"
	"github.com/erp/docflow/internal/application/workflow"
	domainworkflow "github.com/erp/docflow/internal/domain/workflow"
	"github.com/erp/docflow/internal/infrastructure/config"
	"github.com/erp/docflow/internal/infrastructure/event"
	"github.com/erp/docflow/internal/infrastructure/lock"
	"github.com/erp/docflow/internal/infrastructure/persistence/memory"
	"github.com/erp/docflow/internal/interfaces/http/handler"
	"github.com/erp/docflow/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newMountedEngine(t *testing.T) *gin.Engine {
	t.Helper()
	log := zaptest.NewLogger(t)

	def, err := domainworkflow.NewDefinition("invoice", true, domainworkflow.GuardTotalPositive)
	require.NoError(t, err)
	registry, err := domainworkflow.NewRegistry(def)
	require.NoError(t, err)

	bus := event.NewBroadcaster(log)
	t.Cleanup(bus.Close)
	rules := memory.NewRuleRepository()
	engine := approvalapp.NewEngine(rules, memory.NewRequestRepository(), log, nil)
	locker := lock.NewKeyedLocker(0, 0)
	sm := workflow.NewStateMachine(registry, memory.NewStateStore(), memory.NewAuditLog(), memory.NewDocumentRepository(), bus,
		workflow.WithLocker(locker), workflow.WithApprovalGate(engine), workflow.WithLogger(log))
	generator := numberingapp.NewGenerator(memory.NewCounterStore(), numberingapp.ConfigFrom(config.NumberingConfig{}), nil, log)

	h := Handlers{
		Workflow:  handler.NewWorkflowHandler(sm),
		Approval:  handler.NewApprovalHandler(approvalapp.NewService(engine, sm, rules, locker, log), "invoice"),
		Numbering: handler.NewNumberingHandler(generator),
		Events:    handler.NewEventStreamHandler(sm, bus),
		System:    handler.NewSystemHandler("docflow", "test", handler.WithDomains(sm.Domains)),
	}

	e := gin.New()
	Mount(e, h, middleware.ActorMiddleware(middleware.ActorMiddlewareConfig{}))
	return e
}

func TestMount_Routes(t *testing.T) {
	e := newMountedEngine(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		headers    map[string]string
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", "", nil, http.StatusOK},
		{"versioned health", http.MethodGet, "/api/v1/health", "", nil, http.StatusOK},
		{"system info", http.MethodGet, "/api/v1/system/info", "", nil, http.StatusOK},
		{"document state", http.MethodGet, "/api/v1/workflow/invoice/INV-1", "", nil, http.StatusOK},
		{"audit", http.MethodGet, "/api/v1/workflow/invoice/INV-1/audit", "", nil, http.StatusOK},
		{"replay", http.MethodGet, "/api/v1/workflow/replay/workflow", "", nil, http.StatusOK},
		{"connections", http.MethodGet, "/api/v1/workflow/events/invoice/connections", "", nil, http.StatusOK},
		{"transition", http.MethodPost, "/api/v1/workflow/invoice/INV-2/transition", `{"action":"submit"}`, nil, http.StatusOK},
		{"rules", http.MethodGet, "/api/v1/approval-rules", "", nil, http.StatusOK},
		{"approval without request", http.MethodGet, "/api/v1/approval/invoice/INV-1", "", nil, http.StatusNotFound},
		{"next number", http.MethodPost, "/api/v1/numbering/next", `{"domain":"invoice"}`, nil, http.StatusOK},
		{"reset without actor", http.MethodPost, "/api/v1/admin/numbering/reset", `{"domain":"invoice","value":1}`, nil, http.StatusUnauthorized},
		{
			"reset without admin role", http.MethodPost, "/api/v1/admin/numbering/reset", `{"domain":"invoice","value":1}`,
			map[string]string{"X-Actor-ID": "clerk", "X-Actor-Roles": "sales"}, http.StatusForbidden,
		},
		{
			"reset as admin", http.MethodPost, "/api/v1/admin/numbering/reset", `{"domain":"invoice","value":1}`,
			map[string]string{"X-Actor-ID": "root", "X-Actor-Roles": "admin"}, http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			e.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}
