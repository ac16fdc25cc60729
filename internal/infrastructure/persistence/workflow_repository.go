package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/docflow/internal/domain/workflow"
	"github.com/erp/docflow/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStateStore implements workflow.StateStore
type GormStateStore struct {
	db *gorm.DB
}

// NewGormStateStore creates a new GormStateStore
func NewGormStateStore(db *gorm.DB) *GormStateStore {
	return &GormStateStore{db: db}
}

var _ workflow.StateStore = (*GormStateStore)(nil)

// Get returns the current state of a document
func (s *GormStateStore) Get(ctx context.Context, ref workflow.DocumentRef) (workflow.State, bool, error) {
	var row models.WorkflowStateModel
	err := s.db.WithContext(ctx).
		Where("domain = ? AND document_number = ?", ref.Domain, ref.Number).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return workflow.State(row.State), true, nil
}

// CompareAndSet moves the document from one state to another in a single
// conditional statement. An absent row is inserted when from is draft.
func (s *GormStateStore) CompareAndSet(ctx context.Context, ref workflow.DocumentRef, from, to workflow.State) error {
	now := time.Now().UTC()
	db := s.db.WithContext(ctx)
	if from == workflow.StateDraft {
		row := models.WorkflowStateModel{
			Domain:         ref.Domain,
			DocumentNumber: ref.Number,
			State:          string(to),
			UpdatedAt:      now,
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "domain"}, {Name: "document_number"}},
			DoNothing: true,
		}).Create(&row)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 1 {
			return nil
		}
	}
	result := db.Model(&models.WorkflowStateModel{}).
		Where("domain = ? AND document_number = ? AND state = ?", ref.Domain, ref.Number, string(from)).
		Updates(map[string]any{"state": string(to), "updated_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return workflow.NewStateConflict(ref, from)
	}
	return nil
}

// GormAuditLog implements workflow.AuditLog on the workflow_transitions table
type GormAuditLog struct {
	db *gorm.DB
}

// NewGormAuditLog creates a new GormAuditLog
func NewGormAuditLog(db *gorm.DB) *GormAuditLog {
	return &GormAuditLog{db: db}
}

var _ workflow.AuditLog = (*GormAuditLog)(nil)

// Append inserts t unless the document already reached t.ToState
func (l *GormAuditLog) Append(ctx context.Context, t *workflow.Transition) error {
	return l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "domain"}, {Name: "document_number"}, {Name: "to_state"}},
		DoNothing: true,
	}).Create(models.FromTransition(t)).Error
}

// History returns a document's transitions, oldest first
func (l *GormAuditLog) History(ctx context.Context, ref workflow.DocumentRef) ([]workflow.Transition, error) {
	var rows []models.TransitionModel
	err := l.db.WithContext(ctx).
		Where("domain = ? AND document_number = ?", ref.Domain, ref.Number).
		Order("occurred_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toTransitions(rows), nil
}

// Since returns transitions at or after since. An empty domain selects all.
func (l *GormAuditLog) Since(ctx context.Context, domain string, since time.Time) ([]workflow.Transition, error) {
	query := l.db.WithContext(ctx).Where("occurred_at >= ?", since.UTC())
	if domain != "" {
		query = query.Where("domain = ?", domain)
	}
	var rows []models.TransitionModel
	if err := query.Order("occurred_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toTransitions(rows), nil
}

func toTransitions(rows []models.TransitionModel) []workflow.Transition {
	out := make([]workflow.Transition, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out
}

// GormDocumentRepository implements workflow.DocumentRepository
type GormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository creates a new GormDocumentRepository
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

var _ workflow.DocumentRepository = (*GormDocumentRepository)(nil)

// Get loads a document payload
func (r *GormDocumentRepository) Get(ctx context.Context, ref workflow.DocumentRef) (workflow.Payload, bool, error) {
	var row models.DocumentPayloadModel
	err := r.db.WithContext(ctx).
		Where("domain = ? AND document_number = ?", ref.Domain, ref.Number).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	payload, err := row.ToDomain()
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Save upserts a document payload
func (r *GormDocumentRepository) Save(ctx context.Context, ref workflow.DocumentRef, payload workflow.Payload) error {
	row, err := models.NewDocumentPayloadModel(ref, payload)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "domain"}, {Name: "document_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(row).Error
}
