package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/erp/docflow/internal/domain/workflow"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultRelayChannel is the Pub/Sub channel shared by all instances
	DefaultRelayChannel = "docflow:workflow:events"
	// DefaultRelayQueue is the number of events waiting for Redis before
	// new ones are dropped
	DefaultRelayQueue = 256
	publishTimeout    = 2 * time.Second
)

// envelope is the wire form of a relayed event
type envelope struct {
	Origin string         `json:"origin"`
	Topic  string         `json:"topic"`
	Event  workflow.Event `json:"event"`
}

// RedisRelay publishes locally and mirrors each transition to Redis so that
// subscribers connected to other instances receive it too. Only events on
// workflow.TopicAll cross the wire; receivers fan them out to the domain
// topic themselves. Redis writes happen on the Run goroutine, so Publish never
// waits on Redis. Events that come back with this instance's origin are
// ignored.
type RedisRelay struct {
	client    *redis.Client
	local     workflow.Publisher
	channel   string
	origin    string
	queue     chan envelope
	logger    *zap.Logger
	mu        sync.Mutex
	observers []func(workflow.Event)
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	isRunning bool
}

// RelayOption configures a RedisRelay
type RelayOption func(*RedisRelay)

// WithRelayChannel sets the Pub/Sub channel name
func WithRelayChannel(channel string) RelayOption {
	return func(r *RedisRelay) {
		if channel != "" {
			r.channel = channel
		}
	}
}

// WithRelayQueue sets how many events may wait for Redis
func WithRelayQueue(size int) RelayOption {
	return func(r *RedisRelay) {
		if size > 0 {
			r.queue = make(chan envelope, size)
		}
	}
}

// WithRelayLogger sets the logger
func WithRelayLogger(logger *zap.Logger) RelayOption {
	return func(r *RedisRelay) {
		r.logger = logger
	}
}

// NewRedisRelay wraps local. The caller owns client.
func NewRedisRelay(client *redis.Client, local workflow.Publisher, opts ...RelayOption) *RedisRelay {
	r := &RedisRelay{
		client:  client,
		local:   local,
		channel: DefaultRelayChannel,
		origin:  uuid.NewString(),
		queue:   make(chan envelope, DefaultRelayQueue),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ workflow.Publisher = (*RedisRelay)(nil)

// Observe registers fn for events received from other instances
func (r *RedisRelay) Observe(fn func(workflow.Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Publish delivers locally, then queues the event for Redis. A full queue
// drops the remote copy and does not affect local delivery.
func (r *RedisRelay) Publish(topic string, event workflow.Event) {
	r.local.Publish(topic, event)
	if topic != workflow.TopicAll {
		return
	}
	select {
	case r.queue <- envelope{Origin: r.origin, Topic: topic, Event: event}:
	default:
		r.logger.Warn("Relay queue full, event not forwarded",
			zap.String("domain", event.Domain),
			zap.String("document_number", event.DocumentNumber))
	}
}

func (r *RedisRelay) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.queue:
			r.send(ctx, env)
		}
	}
}

func (r *RedisRelay) send(ctx context.Context, env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		r.logger.Error("Failed to marshal relayed event", zap.String("topic", env.Topic), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Error("Failed to relay event",
			zap.String("channel", r.channel),
			zap.String("document_number", env.Event.DocumentNumber),
			zap.Error(err))
	}
}

// Run subscribes to the relay channel and blocks until ctx is done or Stop is called
func (r *RedisRelay) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("relay already running")
	}
	subCtx, cancel := context.WithCancel(ctx)
	r.isRunning = true
	r.cancelFn = cancel
	r.doneCh = make(chan struct{})
	done := r.doneCh
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.isRunning = false
		r.mu.Unlock()
		close(done)
	}()

	pubsub := r.client.Subscribe(subCtx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	r.logger.Info("Subscribed to event relay channel", zap.String("channel", r.channel))
	go r.forward(subCtx)

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			r.logger.Info("Event relay stopped")
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				r.logger.Warn("Event relay channel closed")
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Error("Failed to unmarshal relayed event", zap.String("payload", payload), zap.Error(err))
		return
	}
	if env.Origin == r.origin {
		return
	}
	r.local.Publish(env.Topic, env.Event)
	if env.Topic == workflow.TopicAll && env.Event.Domain != "" {
		r.local.Publish(workflow.DomainTopic(env.Event.Domain), env.Event)
	}

	r.mu.Lock()
	observers := append([]func(workflow.Event){}, r.observers...)
	r.mu.Unlock()
	for _, fn := range observers {
		r.notify(fn, env.Event)
	}
}

func (r *RedisRelay) notify(fn func(workflow.Event), event workflow.Event) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic in relay observer", zap.Any("panic", p))
		}
	}()
	fn(event)
}

// Stop cancels Run and waits for it to return or ctx to expire
func (r *RedisRelay) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancelFn, r.doneCh
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
