// Package memory provides process-local implementations of the workflow,
// approval and numbering repositories. They back single-instance deployments
// with numbering.store=memory and the application tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erp/docflow/internal/domain/workflow"
)

// StateStore implements workflow.StateStore
type StateStore struct {
	mu     sync.RWMutex
	states map[string]workflow.State
}

// NewStateStore creates an empty StateStore
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]workflow.State)}
}

var _ workflow.StateStore = (*StateStore)(nil)

// Get returns the stored state
func (s *StateStore) Get(_ context.Context, ref workflow.DocumentRef) (workflow.State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[ref.Key()]
	return state, ok, nil
}

// CompareAndSet stores to when the current state is from
func (s *StateStore) CompareAndSet(_ context.Context, ref workflow.DocumentRef, from, to workflow.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.states[ref.Key()]
	if !ok {
		current = workflow.StateDraft
	}
	if current != from {
		return workflow.NewStateConflict(ref, from)
	}
	s.states[ref.Key()] = to
	return nil
}

// AuditLog implements workflow.AuditLog
type AuditLog struct {
	mu      sync.RWMutex
	entries []workflow.Transition
	targets map[string]struct{}
}

// NewAuditLog creates an empty AuditLog
func NewAuditLog() *AuditLog {
	return &AuditLog{targets: make(map[string]struct{})}
}

var _ workflow.AuditLog = (*AuditLog)(nil)

func targetKey(t *workflow.Transition) string {
	return t.Ref().Key() + "#" + string(t.ToState)
}

// Append records t once per (domain, document, to-state)
func (l *AuditLog) Append(_ context.Context, t *workflow.Transition) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := targetKey(t)
	if _, seen := l.targets[key]; seen {
		return nil
	}
	l.targets[key] = struct{}{}
	l.entries = append(l.entries, *t)
	return nil
}

// History returns a document's transitions, oldest first
func (l *AuditLog) History(_ context.Context, ref workflow.DocumentRef) ([]workflow.Transition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]workflow.Transition, 0)
	for _, t := range l.entries {
		if t.Domain == ref.Domain && t.DocumentNumber == ref.Number {
			out = append(out, t)
		}
	}
	sortByTime(out)
	return out, nil
}

// Since returns transitions at or after since
func (l *AuditLog) Since(_ context.Context, domain string, since time.Time) ([]workflow.Transition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]workflow.Transition, 0)
	for _, t := range l.entries {
		if domain != "" && t.Domain != domain {
			continue
		}
		if t.OccurredAt.Before(since) {
			continue
		}
		out = append(out, t)
	}
	sortByTime(out)
	return out, nil
}

// Len returns the number of entries
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func sortByTime(ts []workflow.Transition) {
	sort.SliceStable(ts, func(i, j int) bool {
		return ts[i].OccurredAt.Before(ts[j].OccurredAt)
	})
}

// DocumentRepository implements workflow.DocumentRepository. Payloads are
// cloned on the way in and out.
type DocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]workflow.Payload
}

// NewDocumentRepository creates an empty DocumentRepository
func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{docs: make(map[string]workflow.Payload)}
}

var _ workflow.DocumentRepository = (*DocumentRepository)(nil)

// Get returns a copy of the stored payload
func (r *DocumentRepository) Get(_ context.Context, ref workflow.DocumentRef) (workflow.Payload, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.docs[ref.Key()]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

// Save stores a copy of payload
func (r *DocumentRepository) Save(_ context.Context, ref workflow.DocumentRef, payload workflow.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[ref.Key()] = payload.Clone()
	return nil
}
