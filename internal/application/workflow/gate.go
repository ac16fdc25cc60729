package workflow

import (
	"context"

	"github.com/erp/docflow/internal/domain/workflow"
)

// VoteInput is an approve or reject decision on a document whose domain
// requires approval.
type VoteInput struct {
	Domain         string
	DocumentNumber string
	ApproverID     string
	// ApproverRoles is nil when the caller's roles are unknown.
	ApproverRoles []string
	Action        workflow.Action
	Comment       string
}

// ApprovalGate records votes for approval domains. terminal reports whether
// the vote settled the request, in which case the state machine commits the
// transition.
type ApprovalGate interface {
	Vote(ctx context.Context, in VoteInput) (terminal bool, err error)
}

// Locker serializes work per key
type Locker interface {
	Lock(key string) (release func(), err error)
}
