// Package lock serializes work on a single key, such as one document, while
// letting different keys proceed in parallel.
package lock

import (
	"time"

	"github.com/EagleChen/mapmutex"
	"github.com/erp/docflow/internal/domain/workflow"
)

const (
	defaultRetries  = 800
	defaultMaxDelay = 100 * time.Millisecond
	baseDelay       = 10 // nanoseconds
	backoffFactor   = 1.1
	jitter          = 0.2
)

// KeyedLocker hands out per-key locks with bounded retry
type KeyedLocker struct {
	m *mapmutex.Mutex
}

// NewKeyedLocker creates a locker. A caller gives up after retries attempts
// with exponential backoff capped at maxDelay.
func NewKeyedLocker(retries int, maxDelay time.Duration) *KeyedLocker {
	if retries <= 0 {
		retries = defaultRetries
	}
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	return &KeyedLocker{
		m: mapmutex.NewCustomizedMapMutex(retries, float64(maxDelay.Nanoseconds()), baseDelay, backoffFactor, jitter),
	}
}

// Lock acquires key and returns its release func. It fails with
// workflow.ErrDocumentBusy when the retries run out.
func (l *KeyedLocker) Lock(key string) (func(), error) {
	if !l.m.TryLock(key) {
		return nil, workflow.ErrDocumentBusy
	}
	return func() { l.m.Unlock(key) }, nil
}
