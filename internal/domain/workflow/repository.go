package workflow

import (
	"context"
	"time"
)

// StateStore persists the current state per document
type StateStore interface {
	// Get returns the stored state; found is false for unseen documents.
	Get(ctx context.Context, ref DocumentRef) (state State, found bool, err error)
	// CompareAndSet moves ref from the from state to the to state. A document
	// with no stored state counts as draft. It returns ErrStateConflict when
	// the stored state is not from.
	CompareAndSet(ctx context.Context, ref DocumentRef, from, to State) error
}

// LatestStateReader is implemented by stores that may serve cached reads.
// GetLatest always reads the backing store.
type LatestStateReader interface {
	GetLatest(ctx context.Context, ref DocumentRef) (state State, found bool, err error)
}

// AuditLog is the append-only record of transitions
type AuditLog interface {
	// Append durably records t. Appending a second transition into the same
	// (domain, document, to-state) is a no-op.
	Append(ctx context.Context, t *Transition) error
	// History returns a document's transitions, oldest first.
	History(ctx context.Context, ref DocumentRef) ([]Transition, error)
	// Since returns transitions at or after since, oldest first. An empty
	// domain selects all domains.
	Since(ctx context.Context, domain string, since time.Time) ([]Transition, error)
}

// DocumentRepository loads and stores document payloads owned by the host system
type DocumentRepository interface {
	Get(ctx context.Context, ref DocumentRef) (payload Payload, found bool, err error)
	Save(ctx context.Context, ref DocumentRef, payload Payload) error
}

// Publisher delivers committed transition events to subscribers
type Publisher interface {
	Publish(topic string, event Event)
}
