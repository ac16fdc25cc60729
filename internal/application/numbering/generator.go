// Package numbering issues human-readable document numbers such as
// SALES-ACME-2025-00042.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/docflow/internal/domain/numbering"
	"github.com/erp/docflow/internal/domain/shared"
	"github.com/erp/docflow/internal/infrastructure/config"
	"github.com/erp/docflow/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Config controls number formatting
type Config struct {
	MultiTenant  bool
	DefaultWidth int
	Policies     map[string]numbering.Policy
}

// ConfigFrom maps the numbering section of the application config
func ConfigFrom(cfg config.NumberingConfig) Config {
	policies := make(map[string]numbering.Policy, len(cfg.Domains))
	for domain, p := range cfg.Domains {
		policies[domain] = numbering.Policy{Width: p.Width, YearlyReset: p.YearlyReset}
	}
	return Config{
		MultiTenant:  cfg.MultiTenant,
		DefaultWidth: cfg.DefaultWidth,
		Policies:     policies,
	}
}

// Status describes one counter
type Status struct {
	Domain     string `json:"domain"`
	TenantID   string `json:"tenantId"`
	Year       *int   `json:"year,omitempty"`
	Prefix     string `json:"prefix"`
	Counter    int64  `json:"counter"`
	Current    string `json:"current,omitempty"`
	NextNumber string `json:"nextNumber"`
}

// Generator hands out numbers from a CounterStore. Uniqueness rests on the
// store's atomic increment, so any number of generators may share a store.
type Generator struct {
	store   numbering.CounterStore
	cfg     Config
	metrics *telemetry.WorkflowMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewGenerator creates a Generator
func NewGenerator(store numbering.CounterStore, cfg Config, metrics *telemetry.WorkflowMetrics, logger *zap.Logger) *Generator {
	if cfg.DefaultWidth < 1 {
		cfg.DefaultWidth = numbering.DefaultWidth
	}
	if metrics == nil {
		metrics = telemetry.NoopWorkflowMetrics()
	}
	return &Generator{
		store:   store,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func (g *Generator) policy(domain string) numbering.Policy {
	p := g.cfg.Policies[domain]
	if p.Width < 1 {
		p.Width = g.cfg.DefaultWidth
	}
	return p
}

// resolve builds the key for a request. Years only scope yearly-reset
// domains; those default to the current year.
func (g *Generator) resolve(domain, tenantID string, year *int) (numbering.Key, numbering.Policy, error) {
	p := g.policy(domain)
	var scoped *int
	if p.YearlyReset {
		if year != nil {
			if *year < 1 || *year > 9999 {
				return numbering.Key{}, p, shared.NewDomainError(shared.ErrInvalidInput.Code,
					fmt.Sprintf("year %d is out of range", *year))
			}
			y := *year
			scoped = &y
		} else {
			y := g.now().UTC().Year()
			scoped = &y
		}
	}
	key, err := numbering.NewKey(domain, tenantID, scoped)
	return key, p, err
}

// Next consumes and returns the next number. A number is never issued twice;
// a failure after the increment leaves a gap.
func (g *Generator) Next(ctx context.Context, domain, tenantID string, year *int) (string, error) {
	key, p, err := g.resolve(domain, tenantID, year)
	if err != nil {
		return "", err
	}
	prefix := numbering.Prefix(key, g.cfg.MultiTenant)
	counter, err := g.store.Increment(ctx, key, prefix, p.Width)
	if err != nil {
		g.logger.Error("Failed to increment number series", zap.String("key", key.String()), zap.Error(err))
		if errors.Is(err, numbering.ErrCounterPersistence) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %v", numbering.ErrCounterPersistence, key, err)
	}
	g.metrics.RecordNumberIssued(ctx, key.Domain)
	return numbering.Format(prefix, counter, p.Width), nil
}

// Peek returns the number Next would issue without consuming it
func (g *Generator) Peek(ctx context.Context, domain, tenantID string, year *int) (string, error) {
	st, err := g.Status(ctx, domain, tenantID, year)
	if err != nil {
		return "", err
	}
	return st.NextNumber, nil
}

// Status reports the counter behind a series
func (g *Generator) Status(ctx context.Context, domain, tenantID string, year *int) (*Status, error) {
	key, p, err := g.resolve(domain, tenantID, year)
	if err != nil {
		return nil, err
	}
	series, found, err := g.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read number series %s: %w", key, err)
	}
	if !found {
		series = numbering.Series{Key: key, Prefix: numbering.Prefix(key, g.cfg.MultiTenant), Width: p.Width}
	}
	return &Status{
		Domain:     key.Domain,
		TenantID:   key.TenantID,
		Year:       key.Year,
		Prefix:     series.Prefix,
		Counter:    series.Counter,
		Current:    series.Current(),
		NextNumber: series.NextPreview(),
	}, nil
}

// Reset sets a series' counter; the next issued number is value+1. Zero
// restarts the series. Any other value below the current counter would
// re-issue numbers and needs force.
func (g *Generator) Reset(ctx context.Context, domain, tenantID string, year *int, value int64, force bool) error {
	if value < 0 {
		return shared.NewDomainError(shared.ErrInvalidInput.Code, "counter value cannot be negative")
	}
	key, _, err := g.resolve(domain, tenantID, year)
	if err != nil {
		return err
	}
	if value > 0 && !force {
		series, found, err := g.store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read number series %s: %w", key, err)
		}
		if found && value < series.Counter {
			return shared.NewDomainError(numbering.ErrCounterRegression.Code,
				fmt.Sprintf("counter of %s is %d; resetting to %d needs force", key, series.Counter, value))
		}
	}
	if err := g.store.Reset(ctx, key, value); err != nil {
		return err
	}
	g.logger.Warn("Number series reset",
		zap.String("key", key.String()),
		zap.Int64("value", value),
		zap.Bool("force", force))
	return nil
}
