package cache

import (
	"context"
	"time"

	"github.com/erp/docflow/internal/domain/approval"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

const (
	activeRulesKey = "rules:active"
	allRulesKey    = "rules:all"
)

// CachedRuleRepository caches rule listings for ttl. Any write flushes the
// local cache and calls the change hook, which tells peers to flush theirs.
type CachedRuleRepository struct {
	inner    approval.RuleRepository
	c        *gocache.Cache
	onChange func(context.Context)
}

// RuleCacheOption configures a CachedRuleRepository
type RuleCacheOption func(*CachedRuleRepository)

// WithChangeHook calls fn after every successful write
func WithChangeHook(fn func(context.Context)) RuleCacheOption {
	return func(r *CachedRuleRepository) { r.onChange = fn }
}

// NewCachedRuleRepository wraps inner
func NewCachedRuleRepository(inner approval.RuleRepository, ttl time.Duration, opts ...RuleCacheOption) *CachedRuleRepository {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	r := &CachedRuleRepository{inner: inner, c: gocache.New(ttl, 2*ttl)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Flush drops every cached listing
func (r *CachedRuleRepository) Flush() {
	r.c.Flush()
}

func (r *CachedRuleRepository) changed(ctx context.Context) {
	r.c.Flush()
	if r.onChange != nil {
		r.onChange(ctx)
	}
}

var _ approval.RuleRepository = (*CachedRuleRepository)(nil)

// Create stores the rule and flushes the cache
func (r *CachedRuleRepository) Create(ctx context.Context, rule *approval.Rule) error {
	if err := r.inner.Create(ctx, rule); err != nil {
		return err
	}
	r.changed(ctx)
	return nil
}

// Update stores the rule and flushes the cache
func (r *CachedRuleRepository) Update(ctx context.Context, rule *approval.Rule) error {
	if err := r.inner.Update(ctx, rule); err != nil {
		return err
	}
	r.changed(ctx)
	return nil
}

// FindByID always reads the store
func (r *CachedRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*approval.Rule, error) {
	return r.inner.FindByID(ctx, id)
}

// List serves cached listings
func (r *CachedRuleRepository) List(ctx context.Context, activeOnly bool) ([]approval.Rule, error) {
	key := allRulesKey
	if activeOnly {
		key = activeRulesKey
	}
	if v, ok := r.c.Get(key); ok {
		return append([]approval.Rule(nil), v.([]approval.Rule)...), nil
	}
	rules, err := r.inner.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	r.c.SetDefault(key, rules)
	return append([]approval.Rule(nil), rules...), nil
}
