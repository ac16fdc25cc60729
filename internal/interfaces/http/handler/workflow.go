package handler

import (
	"strconv"
	"time"

	"github.com/erp/docflow/internal/application/workflow"
	domainworkflow "github.com/erp/docflow/internal/domain/workflow"
	"github.com/gin-gonic/gin"
)

// TransitionRequest asks for one action on a document
type TransitionRequest struct {
	Action  string         `json:"action" binding:"required"`
	Payload map[string]any `json:"payload"`
	Reason  string         `json:"reason" binding:"max=500"`
}

// StateResponse is a document's current state
type StateResponse struct {
	Domain         string   `json:"domain"`
	DocumentNumber string   `json:"documentNumber"`
	State          string   `json:"state"`
	AllowedActions []string `json:"allowedActions,omitempty"`
}

// TransitionResponse is one audit entry
type TransitionResponse struct {
	ID             string    `json:"id"`
	Domain         string    `json:"domain"`
	DocumentNumber string    `json:"documentNumber"`
	FromState      string    `json:"fromState"`
	ToState        string    `json:"toState"`
	Action         string    `json:"action"`
	Actor          string    `json:"actor,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
	Timestamp      int64     `json:"timestamp"`
}

func toTransitionResponses(ts []domainworkflow.Transition) []TransitionResponse {
	out := make([]TransitionResponse, len(ts))
	for i, t := range ts {
		out[i] = TransitionResponse{
			ID:             t.ID.String(),
			Domain:         t.Domain,
			DocumentNumber: t.DocumentNumber,
			FromState:      string(t.FromState),
			ToState:        string(t.ToState),
			Action:         string(t.Action),
			Actor:          t.Actor,
			Reason:         t.Reason,
			OccurredAt:     t.OccurredAt,
			Timestamp:      t.OccurredAt.Unix(),
		}
	}
	return out
}

func actionNames(actions []domainworkflow.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}

// WorkflowHandler serves document transitions and their audit trail
type WorkflowHandler struct {
	BaseHandler
	sm *workflow.StateMachine
}

// NewWorkflowHandler creates a WorkflowHandler
func NewWorkflowHandler(sm *workflow.StateMachine) *WorkflowHandler {
	return &WorkflowHandler{sm: sm}
}

// Transition applies an action to a document
func (h *WorkflowHandler) Transition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	actor := actorOf(c)
	domain, number := c.Param("domain"), c.Param("number")
	var payload domainworkflow.Payload
	if req.Payload != nil {
		payload = domainworkflow.Payload(req.Payload)
	}
	state, err := h.sm.Transition(c.Request.Context(), workflow.TransitionCommand{
		Domain:         domain,
		DocumentNumber: number,
		Action:         domainworkflow.Action(req.Action),
		Payload:        payload,
		Actor:          actor.ID,
		ActorRoles:     actor.Roles,
		Reason:         req.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	_, allowed, err := h.sm.AllowedActions(c.Request.Context(), domain, number)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, StateResponse{
		Domain:         domain,
		DocumentNumber: number,
		State:          string(state),
		AllowedActions: actionNames(allowed),
	})
}

// GetState returns a document's state and the actions allowed from it
func (h *WorkflowHandler) GetState(c *gin.Context) {
	domain, number := c.Param("domain"), c.Param("number")
	state, allowed, err := h.sm.AllowedActions(c.Request.Context(), domain, number)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, StateResponse{
		Domain:         domain,
		DocumentNumber: number,
		State:          string(state),
		AllowedActions: actionNames(allowed),
	})
}

// GetAudit returns a document's transitions, oldest first
func (h *WorkflowHandler) GetAudit(c *gin.Context) {
	history, err := h.sm.History(c.Request.Context(), c.Param("domain"), c.Param("number"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toTransitionResponses(history))
}

// Replay returns the transitions on a topic at or after ?since=<unix seconds>
func (h *WorkflowHandler) Replay(c *gin.Context) {
	since, ok := h.parseSince(c)
	if !ok {
		return
	}
	ts, err := h.sm.Replay(c.Request.Context(), c.Param("topic"), since)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toTransitionResponses(ts))
}

// parseSince reads ?since as unix seconds; absent means the beginning
func (h *WorkflowHandler) parseSince(c *gin.Context) (time.Time, bool) {
	raw := c.Query("since")
	if raw == "" {
		return time.Unix(0, 0).UTC(), true
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs < 0 {
		h.BadRequest(c, "since must be a non-negative unix timestamp in seconds")
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}
