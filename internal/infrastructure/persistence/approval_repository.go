package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/docflow/internal/domain/approval"
	"github.com/erp/docflow/internal/domain/shared"
	"github.com/erp/docflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormRuleRepository implements approval.RuleRepository
type GormRuleRepository struct {
	db *gorm.DB
}

// NewGormRuleRepository creates a new GormRuleRepository
func NewGormRuleRepository(db *gorm.DB) *GormRuleRepository {
	return &GormRuleRepository{db: db}
}

var _ approval.RuleRepository = (*GormRuleRepository)(nil)

// Create inserts a rule
func (r *GormRuleRepository) Create(ctx context.Context, rule *approval.Rule) error {
	model, err := models.FromRule(rule)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Create(model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.ErrAlreadyExists
	}
	return err
}

// Update overwrites an existing rule
func (r *GormRuleRepository) Update(ctx context.Context, rule *approval.Rule) error {
	model, err := models.FromRule(rule)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&models.ApprovalRuleModel{}).
		Where("id = ?", rule.ID).
		Updates(map[string]any{
			"name":               model.Name,
			"domain":             model.Domain,
			"conditions":         model.ConditionsJSON,
			"required_approvals": model.RequiredApprovals,
			"approval_roles":     model.ApprovalRolesJSON,
			"priority":           model.Priority,
			"active":             model.Active,
			"updated_at":         model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return approval.ErrRuleNotFound
	}
	return nil
}

// FindByID loads a rule
func (r *GormRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*approval.Rule, error) {
	var model models.ApprovalRuleModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, approval.ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain()
}

// List returns rules by priority descending, then name
func (r *GormRuleRepository) List(ctx context.Context, activeOnly bool) ([]approval.Rule, error) {
	query := r.db.WithContext(ctx)
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var rows []models.ApprovalRuleModel
	if err := query.Order("priority DESC").Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	rules := make([]approval.Rule, 0, len(rows))
	for i := range rows {
		rule, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, nil
}

// GormRequestRepository implements approval.RequestRepository
type GormRequestRepository struct {
	db *gorm.DB
}

// NewGormRequestRepository creates a new GormRequestRepository
func NewGormRequestRepository(db *gorm.DB) *GormRequestRepository {
	return &GormRequestRepository{db: db}
}

var _ approval.RequestRepository = (*GormRequestRepository)(nil)

func votesInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("cast_at ASC")
}

// Create inserts a request without votes
func (r *GormRequestRepository) Create(ctx context.Context, req *approval.Request) error {
	model, err := models.FromRequest(req)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Omit("Votes").Create(model).Error
}

// FindLatest returns the newest request for a document
func (r *GormRequestRepository) FindLatest(ctx context.Context, domain, documentID string) (*approval.Request, error) {
	var model models.ApprovalRequestModel
	err := r.db.WithContext(ctx).
		Preload("Votes", votesInOrder).
		Where("domain = ? AND document_id = ?", domain, documentID).
		Order("created_at DESC").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain()
}

// FindByID loads a request with its votes
func (r *GormRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*approval.Request, error) {
	var model models.ApprovalRequestModel
	err := r.db.WithContext(ctx).Preload("Votes", votesInOrder).Where("id = ?", id).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain()
}

// SaveVote inserts vote and moves the request to its new status under an
// optimistic version check. req.Version is bumped on success.
func (r *GormRequestRepository) SaveVote(ctx context.Context, req *approval.Request, vote *approval.Vote) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.ApprovalVoteModel{}).
			Where("request_id = ? AND approver_id = ?", req.ID, vote.ApproverID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return approval.ErrDuplicateVote
		}

		if err := tx.Create(models.FromVote(vote)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return approval.ErrDuplicateVote
			}
			return err
		}

		result := tx.Model(&models.ApprovalRequestModel{}).
			Where("id = ? AND version = ?", req.ID, req.Version).
			Updates(map[string]any{
				"status":     string(req.Status),
				"version":    req.Version + 1,
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}
		return nil
	})
	if err != nil {
		return err
	}
	req.Version++
	return nil
}
