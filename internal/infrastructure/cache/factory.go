package cache

import (
	"fmt"

	"github.com/erp/docflow/internal/domain/numbering"
	"github.com/erp/docflow/internal/infrastructure/config"
	"github.com/erp/docflow/internal/infrastructure/persistence"
	"github.com/erp/docflow/internal/infrastructure/persistence/memory"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewCounterStore selects the counter backend named by cfg.Store
func NewCounterStore(cfg config.NumberingConfig, db *gorm.DB, client *redis.Client, logger *zap.Logger) (numbering.CounterStore, error) {
	switch cfg.Store {
	case "memory":
		logger.Warn("Using in-memory number series; counters are lost on restart and not shared between instances")
		return memory.NewCounterStore(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("numbering store redis requires a Redis client")
		}
		return NewRedisCounterStore(client), nil
	case "", "database":
		if db == nil {
			return nil, fmt.Errorf("numbering store database requires a database connection")
		}
		return persistence.NewGormCounterStore(db), nil
	default:
		return nil, fmt.Errorf("unknown numbering store %q", cfg.Store)
	}
}
