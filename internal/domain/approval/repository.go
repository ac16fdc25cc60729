package approval

import (
	"context"

	"github.com/google/uuid"
)

// RuleRepository stores approval rules
type RuleRepository interface {
	Create(ctx context.Context, rule *Rule) error
	Update(ctx context.Context, rule *Rule) error
	FindByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	// List returns rules ordered by priority descending.
	List(ctx context.Context, activeOnly bool) ([]Rule, error)
}

// RequestRepository stores approval requests and their votes
type RequestRepository interface {
	Create(ctx context.Context, req *Request) error
	// FindLatest returns the newest request for a document, or shared.ErrNotFound.
	FindLatest(ctx context.Context, domain, documentID string) (*Request, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Request, error)
	// SaveVote appends vote and persists the request's new status in one unit.
	// A second vote by the same approver fails with ErrDuplicateVote.
	SaveVote(ctx context.Context, req *Request, vote *Vote) error
}
