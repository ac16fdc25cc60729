package handler

import (
	"bytes"
	"encoding/json"
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
	"github.com/erp/docflow/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// testApp wires the handlers over in-memory stores
type testApp struct {
	engine      *gin.Engine
	sm          *workflow.StateMachine
	broadcaster *event.Broadcaster
	stream      *EventStreamHandler
}

func newTestApp(t *testing.T, streamOpts ...EventStreamOption) *testApp {
	t.Helper()
	log := zaptest.NewLogger(t)

	var defs []*domainworkflow.Definition
	for name, d := range config.DefaultWorkflowDomains() {
		def, err := domainworkflow.NewDefinition(name, d.RequiresApproval, d.Guards...)
		require.NoError(t, err)
		defs = append(defs, def)
	}
	registry, err := domainworkflow.NewRegistry(defs...)
	require.NoError(t, err)

	bus := event.NewBroadcaster(log)
	t.Cleanup(bus.Close)

	rules := memory.NewRuleRepository()
	engine := approvalapp.NewEngine(rules, memory.NewRequestRepository(), log, nil)
	locker := lock.NewKeyedLocker(0, 0)
	sm := workflow.NewStateMachine(registry, memory.NewStateStore(), memory.NewAuditLog(), memory.NewDocumentRepository(), bus,
		workflow.WithLocker(locker),
		workflow.WithApprovalGate(engine),
		workflow.WithLogger(log),
	)
	svc := approvalapp.NewService(engine, sm, rules, locker, log)
	generator := numberingapp.NewGenerator(memory.NewCounterStore(), numberingapp.ConfigFrom(config.NumberingConfig{
		MultiTenant: true,
		Domains:     map[string]config.NumberingPolicyConfig{"invoice": {Width: 6}},
	}), nil, log)

	wf := NewWorkflowHandler(sm)
	ap := NewApprovalHandler(svc, "invoice")
	num := NewNumberingHandler(generator)
	stream := NewEventStreamHandler(sm, bus, append([]EventStreamOption{WithStreamLogger(log)}, streamOpts...)...)

	r := gin.New()
	r.Use(middleware.ActorMiddleware(middleware.ActorMiddlewareConfig{}))
	v1 := r.Group("/api/v1")
	v1.POST("/workflow/:domain/:number/transition", wf.Transition)
	v1.GET("/workflow/:domain/:number", wf.GetState)
	v1.GET("/workflow/:domain/:number/audit", wf.GetAudit)
	v1.GET("/workflow/replay/:topic", wf.Replay)
	v1.GET("/workflow/events/:topic/stream", stream.Stream)
	v1.GET("/workflow/events/:topic/connections", stream.Connections)
	v1.POST("/approval/request", ap.RequestApproval)
	v1.POST("/approval/vote", ap.CastVote)
	v1.GET("/approval/:domain/:documentId", ap.GetRequest)
	v1.POST("/approval-rules", ap.CreateRule)
	v1.GET("/approval-rules", ap.ListRules)
	v1.GET("/approval-rules/:id", ap.GetRule)
	v1.PUT("/approval-rules/:id", ap.UpdateRule)
	v1.DELETE("/approval-rules/:id", ap.DeactivateRule)
	v1.POST("/numbering/next", num.Next)
	v1.GET("/numbering/status", num.Status)
	v1.POST("/admin/numbering/reset", num.Reset)

	return &testApp{engine: r, sm: sm, broadcaster: bus, stream: stream}
}

// do sends a request; headers are name/value pairs
func (a *testApp) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func dataMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	resp := decodeResponse(t, w)
	require.True(t, resp.Success, w.Body.String())
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, w.Body.String())
	return m
}

func dataList(t *testing.T, w *httptest.ResponseRecorder) []any {
	t.Helper()
	resp := decodeResponse(t, w)
	require.True(t, resp.Success, w.Body.String())
	l, ok := resp.Data.([]any)
	require.True(t, ok, w.Body.String())
	return l
}
