package approval

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status of an approval request
type Status string

const (
	StatusPending           Status = "pending"
	StatusPartiallyApproved Status = "partially_approved"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
)

// IsActive reports whether the request still accepts votes
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusPartiallyApproved
}

// IsTerminal reports whether voting has concluded
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// VoteAction is an approver's decision
type VoteAction string

const (
	VoteApprove VoteAction = "approve"
	VoteReject  VoteAction = "reject"
)

// ParseVoteAction validates a raw vote action
func ParseVoteAction(raw string) (VoteAction, error) {
	switch VoteAction(strings.ToLower(strings.TrimSpace(raw))) {
	case VoteApprove:
		return VoteApprove, nil
	case VoteReject:
		return VoteReject, nil
	}
	return "", ErrInvalidVoteAction
}

// Vote is one approver's decision. Votes are append-only.
type Vote struct {
	ID         uuid.UUID
	RequestID  uuid.UUID
	ApproverID string
	Action     VoteAction
	Comment    string
	CastAt     time.Time
}

// Request tracks the votes for one document against the rule resolved when
// approval was requested.
type Request struct {
	ID                uuid.UUID
	Domain            string
	DocumentID        string
	RequestedBy       string
	RequiredApprovals int
	RuleSnapshot      Rule
	Status            Status
	Votes             []Vote
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int
}

// NewRequest opens a pending request governed by rule
func NewRequest(domain, documentID, requestedBy string, rule Rule) (*Request, error) {
	if domain == "" || documentID == "" {
		return nil, fmt.Errorf("approval request needs a domain and a document id")
	}
	if rule.RequiredApprovals < 1 {
		rule.RequiredApprovals = 1
	}
	now := time.Now().UTC()
	return &Request{
		ID:                uuid.New(),
		Domain:            domain,
		DocumentID:        documentID,
		RequestedBy:       requestedBy,
		RequiredApprovals: rule.RequiredApprovals,
		RuleSnapshot:      rule,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}, nil
}

// ApprovalCount returns the number of distinct approve votes
func (r *Request) ApprovalCount() int {
	seen := make(map[string]struct{}, len(r.Votes))
	for _, v := range r.Votes {
		if v.Action == VoteApprove {
			seen[v.ApproverID] = struct{}{}
		}
	}
	return len(seen)
}

// HasVoted reports whether approverID already voted
func (r *Request) HasVoted(approverID string) bool {
	for _, v := range r.Votes {
		if v.ApproverID == approverID {
			return true
		}
	}
	return false
}

// Cast records a vote and advances the status. roles is nil when the
// approver's roles are unknown, which skips the role check.
func (r *Request) Cast(approverID string, roles []string, action VoteAction, comment string) (*Vote, error) {
	if !r.Status.IsActive() {
		return nil, ErrNoActiveRequest
	}
	if approverID == "" {
		return nil, fmt.Errorf("approver id cannot be empty")
	}
	if action != VoteApprove && action != VoteReject {
		return nil, ErrInvalidVoteAction
	}
	if r.HasVoted(approverID) {
		return nil, ErrDuplicateVote
	}
	if roles != nil && !r.RuleSnapshot.HasRole(roles) {
		return nil, ErrApproverNotAuthorized
	}

	vote := Vote{
		ID:         uuid.New(),
		RequestID:  r.ID,
		ApproverID: approverID,
		Action:     action,
		Comment:    comment,
		CastAt:     time.Now().UTC(),
	}
	r.Votes = append(r.Votes, vote)

	switch {
	case action == VoteReject:
		r.Status = StatusRejected
	case r.ApprovalCount() >= r.RequiredApprovals:
		r.Status = StatusApproved
	default:
		r.Status = StatusPartiallyApproved
	}
	r.UpdatedAt = vote.CastAt
	return &vote, nil
}

// CanPost reports whether downstream posting is unblocked
func (r *Request) CanPost() bool {
	return r.Status == StatusApproved
}

// CanPay reports whether downstream payment is unblocked
func (r *Request) CanPay() bool {
	return r.Status == StatusApproved
}
