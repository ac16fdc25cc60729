package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/docflow/internal/domain/numbering"
	"github.com/erp/docflow/internal/domain/shared"
	"github.com/erp/docflow/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCounterStore implements numbering.CounterStore on the number_series table.
// The increment is a single UPDATE, so the row lock serializes callers across
// every process sharing the database.
type GormCounterStore struct {
	db *gorm.DB
}

// NewGormCounterStore creates a new GormCounterStore
func NewGormCounterStore(db *gorm.DB) *GormCounterStore {
	return &GormCounterStore{db: db}
}

var _ numbering.CounterStore = (*GormCounterStore)(nil)

func seriesScope(key numbering.Key) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("domain = ? AND tenant_id = ? AND year = ?", key.Domain, key.TenantID, key.YearValue())
	}
}

// Increment seeds the series on first use and returns the incremented counter
func (s *GormCounterStore) Increment(ctx context.Context, key numbering.Key, prefix string, width int) (int64, error) {
	var counter int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.NewNumberSeriesModel(key, prefix, width)
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "domain"}, {Name: "tenant_id"}, {Name: "year"}},
			DoNothing: true,
		}).Create(seed).Error; err != nil {
			return err
		}

		result := tx.Model(&models.NumberSeriesModel{}).
			Scopes(seriesScope(key)).
			Updates(map[string]any{
				"counter":    gorm.Expr("counter + 1"),
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("series %s vanished during increment", key)
		}

		var row models.NumberSeriesModel
		if err := tx.Scopes(seriesScope(key)).Take(&row).Error; err != nil {
			return err
		}
		counter = row.Counter
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", numbering.ErrCounterPersistence, key, err)
	}
	return counter, nil
}

// Get returns the persisted series
func (s *GormCounterStore) Get(ctx context.Context, key numbering.Key) (numbering.Series, bool, error) {
	var row models.NumberSeriesModel
	err := s.db.WithContext(ctx).Scopes(seriesScope(key)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return numbering.Series{}, false, nil
	}
	if err != nil {
		return numbering.Series{}, false, err
	}
	return row.ToDomain(), true, nil
}

// Reset overwrites the counter of an existing series
func (s *GormCounterStore) Reset(ctx context.Context, key numbering.Key, value int64) error {
	result := s.db.WithContext(ctx).Model(&models.NumberSeriesModel{}).
		Scopes(seriesScope(key)).
		Updates(map[string]any{
			"counter":    value,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
