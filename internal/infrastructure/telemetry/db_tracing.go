package telemetry

import (
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const startedAtKey = "docflow:started_at"

// DBTracingConfig holds configuration for database tracing
type DBTracingConfig struct {
	Enabled         bool
	DBSystem        string
	SlowQueryThresh time.Duration
	// IncludeVariables keeps bound values in span statements. Development only.
	IncludeVariables bool
}

// RegisterDBTracing installs the otelgorm plugin and tags spans of slow
// statements with db.slow_query.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.IncludeVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(tx *gorm.DB) {
		tx.InstanceSet(startedAtKey, time.Now())
	}
	after := func(tx *gorm.DB) {
		v, ok := tx.InstanceGet(startedAtKey)
		if !ok || tx.Statement.Context == nil {
			return
		}
		elapsed := time.Since(v.(time.Time))
		if elapsed < cfg.SlowQueryThresh {
			return
		}
		trace.SpanFromContext(tx.Statement.Context).SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.duration_ms", elapsed.Milliseconds()),
		)
	}

	cb := db.Callback()
	registrations := []struct {
		name   string
		before func(string) error
		after  func(string) error
	}{
		{"create", func(n string) error { return cb.Create().Before("gorm:create").Register(n, before) }, func(n string) error { return cb.Create().After("gorm:create").Register(n, after) }},
		{"query", func(n string) error { return cb.Query().Before("gorm:query").Register(n, before) }, func(n string) error { return cb.Query().After("gorm:query").Register(n, after) }},
		{"update", func(n string) error { return cb.Update().Before("gorm:update").Register(n, before) }, func(n string) error { return cb.Update().After("gorm:update").Register(n, after) }},
		{"raw", func(n string) error { return cb.Raw().Before("gorm:raw").Register(n, before) }, func(n string) error { return cb.Raw().After("gorm:raw").Register(n, after) }},
	}
	for _, r := range registrations {
		if err := r.before("docflow_timing:before_" + r.name); err != nil {
			return err
		}
		if err := r.after("docflow_timing:after_" + r.name); err != nil {
			return err
		}
	}

	logger.Info("Database tracing enabled",
		zap.String("db_system", cfg.DBSystem),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}
