package approval

import (
	"context"
	"fmt"
	"strings"

	"github.com/erp/docflow/internal/application/workflow"
	"github.com/erp/docflow/internal/domain/approval"
	"github.com/erp/docflow/internal/domain/shared"
	domainworkflow "github.com/erp/docflow/internal/domain/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service is the approval facade used by the HTTP layer. Votes go through
// the state machine so the document state and the request status move
// together.
type Service struct {
	engine *Engine
	sm     *workflow.StateMachine
	rules  approval.RuleRepository
	locker workflow.Locker
	logger *zap.Logger
}

// NewService creates the approval facade. The approval lock is taken before
// the document lock and never the other way round.
func NewService(
	engine *Engine,
	sm *workflow.StateMachine,
	rules approval.RuleRepository,
	locker workflow.Locker,
	logger *zap.Logger,
) *Service {
	return &Service{
		engine: engine,
		sm:     sm,
		rules:  rules,
		locker: locker,
		logger: logger,
	}
}

func approvalKey(domain, documentID string) string {
	return "approval:" + domainworkflow.DocumentRef{Domain: domain, Number: documentID}.Key()
}

func (s *Service) requireApproval(domain string) error {
	def, err := s.sm.Definition(domain)
	if err != nil {
		return err
	}
	if !def.RequiresApproval {
		return approval.ErrApprovalNotRequired
	}
	return nil
}

// RequestApproval opens an approval request. A draft document is submitted
// first. An existing active request is returned unchanged.
func (s *Service) RequestApproval(ctx context.Context, cmd RequestApprovalCommand) (*RequestView, error) {
	if err := s.requireApproval(cmd.Domain); err != nil {
		return nil, err
	}
	documentID := strings.TrimSpace(cmd.DocumentID)
	if documentID == "" {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "document id cannot be empty")
	}

	release, err := s.locker.Lock(approvalKey(cmd.Domain, documentID))
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := s.sm.CurrentState(ctx, cmd.Domain, documentID)
	if err != nil {
		return nil, err
	}
	switch state {
	case domainworkflow.StateApproved, domainworkflow.StatePosted:
		return nil, approval.ErrAlreadyApproved
	case domainworkflow.StateRejected:
		return nil, domainworkflow.NewInvalidTransition(state, domainworkflow.ActionSubmit)
	}

	fields := cmd.Fields
	if len(fields) == 0 {
		stored, found, err := s.sm.Document(ctx, cmd.Domain, documentID)
		if err != nil {
			return nil, fmt.Errorf("load document fields: %w", err)
		}
		if found {
			fields = stored
		}
	}

	if state == domainworkflow.StateDraft {
		var payload domainworkflow.Payload
		if len(cmd.Fields) > 0 {
			payload = cmd.Fields
		}
		state, err = s.sm.Transition(ctx, workflow.TransitionCommand{
			Domain:         cmd.Domain,
			DocumentNumber: documentID,
			Action:         domainworkflow.ActionSubmit,
			Payload:        payload,
			Actor:          cmd.RequestedBy,
			Reason:         "approval requested",
		})
		if err != nil {
			return nil, err
		}
	}

	req, _, err := s.engine.Open(ctx, cmd.Domain, documentID, cmd.RequestedBy, fields)
	if err != nil {
		return nil, err
	}
	return ToRequestView(req, state), nil
}

// CastVote records a vote and applies the resulting transition, if any
func (s *Service) CastVote(ctx context.Context, cmd VoteCommand) (*RequestView, error) {
	action, err := approval.ParseVoteAction(cmd.Action)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cmd.ApproverID) == "" {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "approver id cannot be empty")
	}
	if err := s.requireApproval(cmd.Domain); err != nil {
		return nil, err
	}
	documentID := strings.TrimSpace(cmd.DocumentID)

	release, err := s.locker.Lock(approvalKey(cmd.Domain, documentID))
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.sm.CurrentState(ctx, cmd.Domain, documentID)
	if err != nil {
		return nil, err
	}
	if current != domainworkflow.StatePending {
		return nil, approval.ErrNoActiveRequest
	}

	state, err := s.sm.Transition(ctx, workflow.TransitionCommand{
		Domain:         cmd.Domain,
		DocumentNumber: documentID,
		Action:         domainworkflow.Action(action),
		Actor:          cmd.ApproverID,
		ActorRoles:     cmd.ApproverRoles,
		Reason:         cmd.Comment,
	})
	if err != nil {
		return nil, err
	}
	req, err := s.engine.Latest(ctx, cmd.Domain, documentID)
	if err != nil {
		return nil, err
	}
	return ToRequestView(req, state), nil
}

// GetRequest returns the newest request for a document
func (s *Service) GetRequest(ctx context.Context, domain, documentID string) (*RequestView, error) {
	if err := s.requireApproval(domain); err != nil {
		return nil, err
	}
	req, err := s.engine.Latest(ctx, domain, documentID)
	if err != nil {
		return nil, err
	}
	state, err := s.sm.CurrentState(ctx, domain, documentID)
	if err != nil {
		return nil, err
	}
	return ToRequestView(req, state), nil
}

// CreateRule validates and stores a rule
func (s *Service) CreateRule(ctx context.Context, in RuleInput) (*RuleView, error) {
	rule, err := approval.NewRule(in.ToDomain())
	if err != nil {
		return nil, err
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("Approval rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("name", rule.Name),
		zap.Int("priority", rule.Priority),
		zap.Int("required_approvals", rule.RequiredApprovals))
	return ToRuleView(rule), nil
}

// UpdateRule replaces a rule's definition. Open requests keep their snapshot.
func (s *Service) UpdateRule(ctx context.Context, id uuid.UUID, in RuleInput) (*RuleView, error) {
	rule, err := s.rules.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rule.Update(in.ToDomain()); err != nil {
		return nil, err
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("Approval rule updated", zap.String("rule_id", id.String()))
	return ToRuleView(rule), nil
}

// GetRule returns one rule
func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*RuleView, error) {
	rule, err := s.rules.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToRuleView(rule), nil
}

// ListRules returns rules in resolution order
func (s *Service) ListRules(ctx context.Context, activeOnly bool) ([]RuleView, error) {
	rules, err := s.rules.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	views := make([]RuleView, len(rules))
	for i := range rules {
		views[i] = *ToRuleView(&rules[i])
	}
	return views, nil
}

// DeactivateRule takes a rule out of resolution
func (s *Service) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	rule, err := s.rules.FindByID(ctx, id)
	if err != nil {
		return err
	}
	rule.Deactivate()
	if err := s.rules.Update(ctx, rule); err != nil {
		return err
	}
	s.logger.Info("Approval rule deactivated", zap.String("rule_id", id.String()))
	return nil
}
