package handler

import (
	"net/http"
	"strconv"

	"github.com/erp/docflow/internal/application/approval"
	"github.com/erp/docflow/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ApprovalRequestRequest opens approval for a document
type ApprovalRequestRequest struct {
	Domain      string         `json:"domain"`
	DocumentID  string         `json:"documentId" binding:"required,max=100"`
	RequestedBy string         `json:"requestedBy" binding:"max=100"`
	Fields      map[string]any `json:"fields"`
}

// VoteRequest is one approver's decision
type VoteRequest struct {
	Domain     string `json:"domain"`
	DocumentID string `json:"documentId" binding:"required,max=100"`
	ApproverID string `json:"approverId" binding:"max=100"`
	Action     string `json:"action" binding:"required"`
	Comment    string `json:"comment" binding:"max=1000"`
}

// ApprovalHandler serves approval rules, requests and votes
type ApprovalHandler struct {
	BaseHandler
	svc *approval.Service
	// defaultDomain is used when a request body names no domain
	defaultDomain string
}

// NewApprovalHandler creates an ApprovalHandler
func NewApprovalHandler(svc *approval.Service, defaultDomain string) *ApprovalHandler {
	return &ApprovalHandler{svc: svc, defaultDomain: defaultDomain}
}

// RequestApproval opens or returns the approval request of a document
func (h *ApprovalHandler) RequestApproval(c *gin.Context) {
	var req ApprovalRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	view, err := h.svc.RequestApproval(c.Request.Context(), approval.RequestApprovalCommand{
		Domain:      firstNonEmpty(req.Domain, h.defaultDomain),
		DocumentID:  req.DocumentID,
		RequestedBy: firstNonEmpty(req.RequestedBy, actorOf(c).ID),
		Fields:      req.Fields,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// CastVote records a vote. An authenticated caller can only vote as
// themselves.
func (h *ApprovalHandler) CastVote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	actor := actorOf(c)
	if actor.ID != "" && req.ApproverID != "" && req.ApproverID != actor.ID {
		h.Error(c, http.StatusForbidden, dto.ErrCodeForbidden, "approverId must match the authenticated actor")
		return
	}
	view, err := h.svc.CastVote(c.Request.Context(), approval.VoteCommand{
		Domain:        firstNonEmpty(req.Domain, h.defaultDomain),
		DocumentID:    req.DocumentID,
		ApproverID:    firstNonEmpty(req.ApproverID, actor.ID),
		ApproverRoles: actor.Roles,
		Action:        req.Action,
		Comment:       req.Comment,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// GetRequest returns the newest approval request of a document
func (h *ApprovalHandler) GetRequest(c *gin.Context) {
	view, err := h.svc.GetRequest(c.Request.Context(), c.Param("domain"), c.Param("documentId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// CreateRule adds an approval rule
func (h *ApprovalHandler) CreateRule(c *gin.Context) {
	var in approval.RuleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.BindError(c, err)
		return
	}
	rule, err := h.svc.CreateRule(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, rule)
}

// ListRules lists rules in resolution order; ?active=true hides inactive ones
func (h *ApprovalHandler) ListRules(c *gin.Context) {
	activeOnly := false
	if raw := c.Query("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.BadRequest(c, "active must be a boolean")
			return
		}
		activeOnly = v
	}
	rules, err := h.svc.ListRules(c.Request.Context(), activeOnly)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rules)
}

// GetRule returns one rule
func (h *ApprovalHandler) GetRule(c *gin.Context) {
	id, ok := h.ruleID(c)
	if !ok {
		return
	}
	rule, err := h.svc.GetRule(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rule)
}

// UpdateRule replaces a rule's definition
func (h *ApprovalHandler) UpdateRule(c *gin.Context) {
	id, ok := h.ruleID(c)
	if !ok {
		return
	}
	var in approval.RuleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.BindError(c, err)
		return
	}
	rule, err := h.svc.UpdateRule(c.Request.Context(), id, in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rule)
}

// DeactivateRule takes a rule out of resolution. Rules are never deleted so
// requests can keep pointing at them.
func (h *ApprovalHandler) DeactivateRule(c *gin.Context) {
	id, ok := h.ruleID(c)
	if !ok {
		return
	}
	if err := h.svc.DeactivateRule(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ApprovalHandler) ruleID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "rule id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
