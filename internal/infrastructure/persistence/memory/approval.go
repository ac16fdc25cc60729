package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/erp/docflow/internal/domain/approval"
	"github.com/erp/docflow/internal/domain/shared"
	"github.com/google/uuid"
)

// RuleRepository implements approval.RuleRepository
type RuleRepository struct {
	mu    sync.RWMutex
	rules map[uuid.UUID]approval.Rule
}

// NewRuleRepository creates an empty RuleRepository
func NewRuleRepository() *RuleRepository {
	return &RuleRepository{rules: make(map[uuid.UUID]approval.Rule)}
}

var _ approval.RuleRepository = (*RuleRepository)(nil)

// Create stores a new rule
func (r *RuleRepository) Create(_ context.Context, rule *approval.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[rule.ID]; exists {
		return shared.ErrAlreadyExists
	}
	r.rules[rule.ID] = copyRule(*rule)
	return nil
}

// Update replaces an existing rule
func (r *RuleRepository) Update(_ context.Context, rule *approval.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[rule.ID]; !exists {
		return approval.ErrRuleNotFound
	}
	r.rules[rule.ID] = copyRule(*rule)
	return nil
}

// FindByID returns a copy of the rule
func (r *RuleRepository) FindByID(_ context.Context, id uuid.UUID) (*approval.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, approval.ErrRuleNotFound
	}
	c := copyRule(rule)
	return &c, nil
}

// List returns rules by priority descending, then name
func (r *RuleRepository) List(_ context.Context, activeOnly bool) ([]approval.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]approval.Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if activeOnly && !rule.Active {
			continue
		}
		out = append(out, copyRule(rule))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func copyRule(r approval.Rule) approval.Rule {
	r.Conditions = append([]approval.Condition(nil), r.Conditions...)
	r.ApprovalRoles = append([]string(nil), r.ApprovalRoles...)
	return r
}

// RequestRepository implements approval.RequestRepository
type RequestRepository struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]approval.Request
	// latest maps domain/document to request ids, oldest first
	latest map[string][]uuid.UUID
}

// NewRequestRepository creates an empty RequestRepository
func NewRequestRepository() *RequestRepository {
	return &RequestRepository{
		requests: make(map[uuid.UUID]approval.Request),
		latest:   make(map[string][]uuid.UUID),
	}
}

var _ approval.RequestRepository = (*RequestRepository)(nil)

func documentKey(domain, documentID string) string {
	return domain + "/" + documentID
}

// Create stores a new request
func (r *RequestRepository) Create(_ context.Context, req *approval.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.requests[req.ID]; exists {
		return shared.ErrAlreadyExists
	}
	r.requests[req.ID] = copyRequest(*req)
	key := documentKey(req.Domain, req.DocumentID)
	r.latest[key] = append(r.latest[key], req.ID)
	return nil
}

// FindLatest returns the newest request for a document
func (r *RequestRepository) FindLatest(_ context.Context, domain, documentID string) (*approval.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.latest[documentKey(domain, documentID)]
	if len(ids) == 0 {
		return nil, shared.ErrNotFound
	}
	c := copyRequest(r.requests[ids[len(ids)-1]])
	return &c, nil
}

// FindByID returns a copy of the request
func (r *RequestRepository) FindByID(_ context.Context, id uuid.UUID) (*approval.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	c := copyRequest(req)
	return &c, nil
}

// SaveVote stores the vote and new status if req.Version is current
func (r *RequestRepository) SaveVote(_ context.Context, req *approval.Request, vote *approval.Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[req.ID]
	if !ok {
		return shared.ErrNotFound
	}
	for _, v := range stored.Votes {
		if v.ApproverID == vote.ApproverID {
			return approval.ErrDuplicateVote
		}
	}
	if stored.Version != req.Version {
		return shared.ErrConcurrencyConflict
	}

	stored.Votes = append(stored.Votes, *vote)
	stored.Status = req.Status
	stored.UpdatedAt = req.UpdatedAt
	stored.Version++
	r.requests[req.ID] = copyRequest(stored)
	req.Version = stored.Version
	return nil
}

func copyRequest(req approval.Request) approval.Request {
	req.Votes = append([]approval.Vote(nil), req.Votes...)
	req.RuleSnapshot = copyRule(req.RuleSnapshot)
	return req
}
