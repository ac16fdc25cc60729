package approval

import (
	"time"

	"github.com/erp/docflow/internal/domain/approval"
	"github.com/erp/docflow/internal/domain/workflow"
	"github.com/google/uuid"
)

// RequestApprovalCommand opens approval for a document
type RequestApprovalCommand struct {
	Domain      string
	DocumentID  string
	RequestedBy string
	// Fields feed rule resolution. When empty the stored document is used.
	Fields workflow.Payload
}

// VoteCommand is one approver's decision
type VoteCommand struct {
	Domain        string
	DocumentID    string
	ApproverID    string
	ApproverRoles []string
	Action        string
	Comment       string
}

// VoteView is a vote in API responses
type VoteView struct {
	ApproverID string    `json:"approverId"`
	Action     string    `json:"action"`
	Comment    string    `json:"comment,omitempty"`
	CastAt     time.Time `json:"castAt"`
}

// RequestView is an approval request together with the document state
type RequestView struct {
	ID                uuid.UUID  `json:"id"`
	Domain            string     `json:"domain"`
	DocumentID        string     `json:"documentId"`
	RequestedBy       string     `json:"requestedBy"`
	RuleName          string     `json:"ruleName"`
	RequiredApprovals int        `json:"requiredApprovals"`
	ApprovalCount     int        `json:"approvalCount"`
	Status            string     `json:"status"`
	DocumentState     string     `json:"documentState"`
	CanPost           bool       `json:"canPost"`
	CanPay            bool       `json:"canPay"`
	Votes             []VoteView `json:"votes"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// ToRequestView converts a request and the document's state
func ToRequestView(req *approval.Request, state workflow.State) *RequestView {
	votes := make([]VoteView, len(req.Votes))
	for i, v := range req.Votes {
		votes[i] = VoteView{
			ApproverID: v.ApproverID,
			Action:     string(v.Action),
			Comment:    v.Comment,
			CastAt:     v.CastAt,
		}
	}
	return &RequestView{
		ID:                req.ID,
		Domain:            req.Domain,
		DocumentID:        req.DocumentID,
		RequestedBy:       req.RequestedBy,
		RuleName:          req.RuleSnapshot.Name,
		RequiredApprovals: req.RequiredApprovals,
		ApprovalCount:     req.ApprovalCount(),
		Status:            string(req.Status),
		DocumentState:     string(state),
		CanPost:           req.CanPost(),
		CanPay:            req.CanPay(),
		Votes:             votes,
		CreatedAt:         req.CreatedAt,
		UpdatedAt:         req.UpdatedAt,
	}
}

// ConditionView is a rule condition in API requests and responses
type ConditionView struct {
	Field    string `json:"field" binding:"required"`
	Operator string `json:"operator" binding:"required"`
	Value    any    `json:"value"`
}

// RuleInput is the writable part of a rule
type RuleInput struct {
	Name              string          `json:"name" binding:"required,max=200"`
	Domain            string          `json:"domain" binding:"max=100"`
	Conditions        []ConditionView `json:"conditions" binding:"dive"`
	RequiredApprovals int             `json:"requiredApprovals" binding:"required,min=1"`
	ApprovalRoles     []string        `json:"approvalRoles"`
	Priority          int             `json:"priority"`
	Active            *bool           `json:"active"`
}

// ToDomain converts the input; Active defaults to true
func (in RuleInput) ToDomain() approval.RuleInput {
	conditions := make([]approval.Condition, len(in.Conditions))
	for i, c := range in.Conditions {
		conditions[i] = approval.Condition{Field: c.Field, Operator: approval.Operator(c.Operator), Value: c.Value}
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	return approval.RuleInput{
		Name:              in.Name,
		Domain:            in.Domain,
		Conditions:        conditions,
		RequiredApprovals: in.RequiredApprovals,
		ApprovalRoles:     in.ApprovalRoles,
		Priority:          in.Priority,
		Active:            active,
	}
}

// RuleView is a rule in API responses
type RuleView struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"`
	Domain            string          `json:"domain,omitempty"`
	Conditions        []ConditionView `json:"conditions"`
	RequiredApprovals int             `json:"requiredApprovals"`
	ApprovalRoles     []string        `json:"approvalRoles"`
	Priority          int             `json:"priority"`
	Active            bool            `json:"active"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// ToRuleView converts a rule
func ToRuleView(r *approval.Rule) *RuleView {
	conditions := make([]ConditionView, len(r.Conditions))
	for i, c := range r.Conditions {
		conditions[i] = ConditionView{Field: c.Field, Operator: string(c.Operator), Value: c.Value}
	}
	roles := r.ApprovalRoles
	if roles == nil {
		roles = []string{}
	}
	return &RuleView{
		ID:                r.ID,
		Name:              r.Name,
		Domain:            r.Domain,
		Conditions:        conditions,
		RequiredApprovals: r.RequiredApprovals,
		ApprovalRoles:     roles,
		Priority:          r.Priority,
		Active:            r.Active,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}
