package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/docflow/internal/domain/approval"
	"github.com/google/uuid"
)

// ApprovalRuleModel is the persistence model for approval rules
type ApprovalRuleModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name              string    `gorm:"type:varchar(200);not null"`
	Domain            string    `gorm:"type:varchar(64);not null;index"`
	ConditionsJSON    string    `gorm:"column:conditions;type:jsonb;not null"`
	RequiredApprovals int       `gorm:"not null"`
	ApprovalRolesJSON string    `gorm:"column:approval_roles;type:jsonb;not null"`
	Priority          int       `gorm:"not null;index"`
	Active            bool      `gorm:"not null;index"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ApprovalRuleModel) TableName() string {
	return "approval_rules"
}

// FromRule converts a domain rule
func FromRule(r *approval.Rule) (*ApprovalRuleModel, error) {
	conditions, err := json.Marshal(nonNilConditions(r.Conditions))
	if err != nil {
		return nil, fmt.Errorf("encode rule conditions: %w", err)
	}
	roles, err := json.Marshal(nonNilStrings(r.ApprovalRoles))
	if err != nil {
		return nil, fmt.Errorf("encode rule roles: %w", err)
	}
	return &ApprovalRuleModel{
		ID:                r.ID,
		Name:              r.Name,
		Domain:            r.Domain,
		ConditionsJSON:    string(conditions),
		RequiredApprovals: r.RequiredApprovals,
		ApprovalRolesJSON: string(roles),
		Priority:          r.Priority,
		Active:            r.Active,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}, nil
}

// ToDomain converts the row to an approval.Rule
func (m *ApprovalRuleModel) ToDomain() (*approval.Rule, error) {
	rule := &approval.Rule{
		ID:                m.ID,
		Name:              m.Name,
		Domain:            m.Domain,
		RequiredApprovals: m.RequiredApprovals,
		Priority:          m.Priority,
		Active:            m.Active,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(m.ConditionsJSON), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions of rule %s: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(m.ApprovalRolesJSON), &rule.ApprovalRoles); err != nil {
		return nil, fmt.Errorf("decode roles of rule %s: %w", m.ID, err)
	}
	return rule, nil
}

// ruleSnapshot is the JSON form of the rule frozen on a request
type ruleSnapshot struct {
	ID                uuid.UUID            `json:"id"`
	Name              string               `json:"name"`
	Domain            string               `json:"domain,omitempty"`
	Conditions        []approval.Condition `json:"conditions"`
	RequiredApprovals int                  `json:"requiredApprovals"`
	ApprovalRoles     []string             `json:"approvalRoles"`
	Priority          int                  `json:"priority"`
}

// ApprovalRequestModel is the persistence model for approval requests
type ApprovalRequestModel struct {
	ID                uuid.UUID           `gorm:"type:uuid;primaryKey"`
	Domain            string              `gorm:"type:varchar(64);not null;index:idx_approval_requests_document,priority:1"`
	DocumentID        string              `gorm:"type:varchar(128);not null;index:idx_approval_requests_document,priority:2"`
	RequestedBy       string              `gorm:"type:varchar(128)"`
	RequiredApprovals int                 `gorm:"not null"`
	RuleSnapshotJSON  string              `gorm:"column:rule_snapshot;type:jsonb;not null"`
	Status            string              `gorm:"type:varchar(32);not null"`
	Version           int                 `gorm:"not null"`
	CreatedAt         time.Time           `gorm:"not null;index"`
	UpdatedAt         time.Time           `gorm:"not null"`
	Votes             []ApprovalVoteModel `gorm:"foreignKey:RequestID"`
}

// TableName returns the table name for GORM
func (ApprovalRequestModel) TableName() string {
	return "approval_requests"
}

// FromRequest converts a domain request without its votes
func FromRequest(r *approval.Request) (*ApprovalRequestModel, error) {
	snap := ruleSnapshot{
		ID:                r.RuleSnapshot.ID,
		Name:              r.RuleSnapshot.Name,
		Domain:            r.RuleSnapshot.Domain,
		Conditions:        nonNilConditions(r.RuleSnapshot.Conditions),
		RequiredApprovals: r.RuleSnapshot.RequiredApprovals,
		ApprovalRoles:     nonNilStrings(r.RuleSnapshot.ApprovalRoles),
		Priority:          r.RuleSnapshot.Priority,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode rule snapshot: %w", err)
	}
	return &ApprovalRequestModel{
		ID:                r.ID,
		Domain:            r.Domain,
		DocumentID:        r.DocumentID,
		RequestedBy:       r.RequestedBy,
		RequiredApprovals: r.RequiredApprovals,
		RuleSnapshotJSON:  string(raw),
		Status:            string(r.Status),
		Version:           r.Version,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}, nil
}

// ToDomain converts the row and its preloaded votes
func (m *ApprovalRequestModel) ToDomain() (*approval.Request, error) {
	var snap ruleSnapshot
	if err := json.Unmarshal([]byte(m.RuleSnapshotJSON), &snap); err != nil {
		return nil, fmt.Errorf("decode rule snapshot of request %s: %w", m.ID, err)
	}
	req := &approval.Request{
		ID:                m.ID,
		Domain:            m.Domain,
		DocumentID:        m.DocumentID,
		RequestedBy:       m.RequestedBy,
		RequiredApprovals: m.RequiredApprovals,
		RuleSnapshot: approval.Rule{
			ID:                snap.ID,
			Name:              snap.Name,
			Domain:            snap.Domain,
			Conditions:        snap.Conditions,
			RequiredApprovals: snap.RequiredApprovals,
			ApprovalRoles:     snap.ApprovalRoles,
			Priority:          snap.Priority,
			Active:            true,
		},
		Status:    approval.Status(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Version:   m.Version,
		Votes:     make([]approval.Vote, 0, len(m.Votes)),
	}
	for _, v := range m.Votes {
		req.Votes = append(req.Votes, v.ToDomain())
	}
	return req, nil
}

// ApprovalVoteModel is one vote. The unique index enforces one vote per
// approver per request.
type ApprovalVoteModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	RequestID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_approval_votes_approver,priority:1"`
	ApproverID string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_approval_votes_approver,priority:2"`
	Action     string    `gorm:"type:varchar(16);not null"`
	Comment    string    `gorm:"type:text"`
	CastAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ApprovalVoteModel) TableName() string {
	return "approval_votes"
}

// FromVote converts a domain vote
func FromVote(v *approval.Vote) *ApprovalVoteModel {
	return &ApprovalVoteModel{
		ID:         v.ID,
		RequestID:  v.RequestID,
		ApproverID: v.ApproverID,
		Action:     string(v.Action),
		Comment:    v.Comment,
		CastAt:     v.CastAt,
	}
}

// ToDomain converts the row to an approval.Vote
func (m ApprovalVoteModel) ToDomain() approval.Vote {
	return approval.Vote{
		ID:         m.ID,
		RequestID:  m.RequestID,
		ApproverID: m.ApproverID,
		Action:     approval.VoteAction(m.Action),
		Comment:    m.Comment,
		CastAt:     m.CastAt,
	}
}

func nonNilConditions(c []approval.Condition) []approval.Condition {
	if c == nil {
		return []approval.Condition{}
	}
	return c
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
