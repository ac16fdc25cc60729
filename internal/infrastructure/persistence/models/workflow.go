package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/docflow/internal/domain/numbering"
	"github.com/erp/docflow/internal/domain/workflow"
	"github.com/google/uuid"
)

// NumberSeriesModel is one counter row. Year is 0 for series without yearly reset.
type NumberSeriesModel struct {
	Domain    string    `gorm:"type:varchar(64);primaryKey"`
	TenantID  string    `gorm:"type:varchar(64);primaryKey"`
	Year      int       `gorm:"primaryKey;autoIncrement:false"`
	Prefix    string    `gorm:"type:varchar(128);not null"`
	Counter   int64     `gorm:"not null"`
	Width     int       `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (NumberSeriesModel) TableName() string {
	return "number_series"
}

// NewNumberSeriesModel builds a zero-counter row for key
func NewNumberSeriesModel(key numbering.Key, prefix string, width int) *NumberSeriesModel {
	return &NumberSeriesModel{
		Domain:    key.Domain,
		TenantID:  key.TenantID,
		Year:      key.YearValue(),
		Prefix:    prefix,
		Width:     width,
		UpdatedAt: time.Now().UTC(),
	}
}

// ToDomain converts the row to a numbering.Series
func (m *NumberSeriesModel) ToDomain() numbering.Series {
	key := numbering.Key{Domain: m.Domain, TenantID: m.TenantID}
	if m.Year != 0 {
		year := m.Year
		key.Year = &year
	}
	return numbering.Series{Key: key, Prefix: m.Prefix, Counter: m.Counter, Width: m.Width}
}

// WorkflowStateModel holds the current state of one document
type WorkflowStateModel struct {
	Domain         string    `gorm:"type:varchar(64);primaryKey"`
	DocumentNumber string    `gorm:"type:varchar(128);primaryKey"`
	State          string    `gorm:"type:varchar(32);not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WorkflowStateModel) TableName() string {
	return "workflow_states"
}

// TransitionModel is one audit log row. The unique index on
// (domain, document_number, to_state) makes appends idempotent.
type TransitionModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Domain         string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_transitions_target,priority:1"`
	DocumentNumber string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_transitions_target,priority:2"`
	FromState      string    `gorm:"type:varchar(32);not null"`
	ToState        string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_transitions_target,priority:3"`
	Action         string    `gorm:"type:varchar(32);not null"`
	Actor          string    `gorm:"type:varchar(128)"`
	Reason         string    `gorm:"type:text"`
	OccurredAt     time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (TransitionModel) TableName() string {
	return "workflow_transitions"
}

// FromTransition converts a domain transition
func FromTransition(t *workflow.Transition) *TransitionModel {
	return &TransitionModel{
		ID:             t.ID,
		Domain:         t.Domain,
		DocumentNumber: t.DocumentNumber,
		FromState:      string(t.FromState),
		ToState:        string(t.ToState),
		Action:         string(t.Action),
		Actor:          t.Actor,
		Reason:         t.Reason,
		OccurredAt:     t.OccurredAt,
	}
}

// ToDomain converts the row to a workflow.Transition
func (m *TransitionModel) ToDomain() workflow.Transition {
	return workflow.Transition{
		ID:             m.ID,
		Domain:         m.Domain,
		DocumentNumber: m.DocumentNumber,
		FromState:      workflow.State(m.FromState),
		ToState:        workflow.State(m.ToState),
		Action:         workflow.Action(m.Action),
		Actor:          m.Actor,
		Reason:         m.Reason,
		OccurredAt:     m.OccurredAt.UTC(),
	}
}

// DocumentPayloadModel stores a document body as JSON
type DocumentPayloadModel struct {
	Domain         string    `gorm:"type:varchar(64);primaryKey"`
	DocumentNumber string    `gorm:"type:varchar(128);primaryKey"`
	PayloadJSON    string    `gorm:"column:payload;type:jsonb;not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DocumentPayloadModel) TableName() string {
	return "document_payloads"
}

// NewDocumentPayloadModel encodes payload for ref
func NewDocumentPayloadModel(ref workflow.DocumentRef, payload workflow.Payload) (*DocumentPayloadModel, error) {
	if payload == nil {
		payload = workflow.Payload{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload of %s: %w", ref.Key(), err)
	}
	return &DocumentPayloadModel{
		Domain:         ref.Domain,
		DocumentNumber: ref.Number,
		PayloadJSON:    string(raw),
		UpdatedAt:      time.Now().UTC(),
	}, nil
}

// ToDomain decodes the stored payload
func (m *DocumentPayloadModel) ToDomain() (workflow.Payload, error) {
	var payload workflow.Payload
	if err := json.Unmarshal([]byte(m.PayloadJSON), &payload); err != nil {
		return nil, fmt.Errorf("decode payload of %s/%s: %w", m.Domain, m.DocumentNumber, err)
	}
	return payload, nil
}

// WorkflowModels lists the models owned by the workflow tables, in migration order
func WorkflowModels() []any {
	return []any{
		&NumberSeriesModel{},
		&WorkflowStateModel{},
		&TransitionModel{},
		&DocumentPayloadModel{},
		&ApprovalRuleModel{},
		&ApprovalRequestModel{},
		&ApprovalVoteModel{},
	}
}
