package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultRuleChannel carries approval rule change notices between instances
	DefaultRuleChannel = "docflow:approval:rules"
	notifyTimeout      = 2 * time.Second
)

// RuleInvalidation tells other instances to drop their cached rule listings
// after a rule write. Without it a peer serves the old listing until its TTL
// expires.
type RuleInvalidation struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger
}

// NewRuleInvalidation creates an invalidation channel on client
func NewRuleInvalidation(client *redis.Client, channel string, logger *zap.Logger) *RuleInvalidation {
	if channel == "" {
		channel = DefaultRuleChannel
	}
	return &RuleInvalidation{client: client, channel: channel, origin: uuid.NewString(), logger: logger}
}

// Notify announces a rule change. Failures are logged; peers then catch up
// when their TTL expires.
func (i *RuleInvalidation) Notify(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := i.client.Publish(ctx, i.channel, i.origin).Err(); err != nil {
		i.logger.Warn("Failed to announce rule change", zap.String("channel", i.channel), zap.Error(err))
	}
}

// Run calls flush for every notice from another instance until ctx is done
func (i *RuleInvalidation) Run(ctx context.Context, flush func()) error {
	pubsub := i.client.Subscribe(ctx, i.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to rule channel: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			i.handle(msg.Payload, flush)
		}
	}
}

func (i *RuleInvalidation) handle(origin string, flush func()) {
	if origin == i.origin {
		return
	}
	i.logger.Debug("Rule change announced by peer", zap.String("origin", origin))
	flush()
}
