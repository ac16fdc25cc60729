// Package event fans committed workflow transitions out to live subscribers
// and, optionally, to other instances through Redis Pub/Sub.
package event

import (
	"errors"
	"sync"

	"github.com/erp/docflow/internal/domain/workflow"
	"github.com/erp/docflow/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscriber queue length
const DefaultBuffer = 64

// ErrClosed is returned when subscribing to a closed broadcaster
var ErrClosed = errors.New("broadcaster is closed")

// Subscription is one live listener on a topic. Events arrive on C in
// publish order until Close is called or the broadcaster shuts down.
type Subscription struct {
	ID    uuid.UUID
	Topic string
	C     <-chan workflow.Event

	ch   chan workflow.Event
	b    *Broadcaster
	once sync.Once
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.b.remove(s) })
}

// Broadcaster is an in-process topic fan-out. Publishing never blocks: an
// event that does not fit a subscriber's buffer is dropped for that
// subscriber only.
type Broadcaster struct {
	mu      sync.RWMutex
	topics  map[string]map[uuid.UUID]*Subscription
	buffer  int
	closed  bool
	logger  *zap.Logger
	metrics *telemetry.WorkflowMetrics
}

// BroadcasterOption configures a Broadcaster
type BroadcasterOption func(*Broadcaster)

// WithBuffer sets the per-subscriber queue length
func WithBuffer(n int) BroadcasterOption {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithMetrics records drops and subscriber counts
func WithMetrics(m *telemetry.WorkflowMetrics) BroadcasterOption {
	return func(b *Broadcaster) {
		b.metrics = m
	}
}

// NewBroadcaster creates a Broadcaster
func NewBroadcaster(logger *zap.Logger, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		topics:  make(map[string]map[uuid.UUID]*Subscription),
		buffer:  DefaultBuffer,
		logger:  logger,
		metrics: telemetry.NoopWorkflowMetrics(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ workflow.Publisher = (*Broadcaster)(nil)

// Subscribe registers a listener on topic
func (b *Broadcaster) Subscribe(topic string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	ch := make(chan workflow.Event, b.buffer)
	sub := &Subscription{ID: uuid.New(), Topic: topic, C: ch, ch: ch, b: b}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[uuid.UUID]*Subscription)
		b.topics[topic] = subs
	}
	subs[sub.ID] = sub
	b.metrics.SubscriberDelta(topic, 1)
	b.logger.Debug("subscriber added", zap.String("topic", topic), zap.String("subscription_id", sub.ID.String()))
	return sub, nil
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[sub.Topic]
	if !ok {
		return
	}
	if _, ok := subs[sub.ID]; !ok {
		return
	}
	delete(subs, sub.ID)
	if len(subs) == 0 {
		delete(b.topics, sub.Topic)
	}
	close(sub.ch)
	b.metrics.SubscriberDelta(sub.Topic, -1)
	b.logger.Debug("subscriber removed", zap.String("topic", sub.Topic), zap.String("subscription_id", sub.ID.String()))
}

// Publish delivers event to every subscriber of topic without blocking
func (b *Broadcaster) Publish(topic string, event workflow.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.topics[topic] {
		select {
		case sub.ch <- event:
		default:
			b.metrics.RecordEventDropped(topic)
			b.logger.Warn("subscriber queue full, event dropped",
				zap.String("topic", topic),
				zap.String("subscription_id", sub.ID.String()),
				zap.String("document_number", event.DocumentNumber),
				zap.String("to_state", string(event.ToState)),
			)
		}
	}
}

// ConnectionCount returns the number of subscribers on topic
func (b *Broadcaster) ConnectionCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// ConnectionCounts returns subscriber counts by topic
func (b *Broadcaster) ConnectionCounts() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]int, len(b.topics))
	for topic, subs := range b.topics {
		out[topic] = len(subs)
	}
	return out
}

// Close ends every subscription. Later publishes are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.topics {
		for _, sub := range subs {
			close(sub.ch)
			b.metrics.SubscriberDelta(topic, -1)
		}
	}
	b.topics = make(map[string]map[uuid.UUID]*Subscription)
	b.logger.Info("broadcaster closed")
}
