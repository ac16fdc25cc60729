// Package approval runs approval requests for documents whose domain needs
// N-eyes sign-off before it is approved.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erp/docflow/internal/application/workflow"
	"github.com/erp/docflow/internal/domain/approval"
	"github.com/erp/docflow/internal/domain/shared"
	domainworkflow "github.com/erp/docflow/internal/domain/workflow"
	"github.com/erp/docflow/internal/infrastructure/logger"
	"github.com/erp/docflow/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Engine resolves rules, opens requests and records votes. It does not lock:
// votes reach it through the state machine, which holds the document lock.
type Engine struct {
	rules    approval.RuleRepository
	requests approval.RequestRepository
	metrics  *telemetry.WorkflowMetrics
	logger   *zap.Logger
}

// NewEngine creates an approval engine
func NewEngine(
	rules approval.RuleRepository,
	requests approval.RequestRepository,
	logger *zap.Logger,
	metrics *telemetry.WorkflowMetrics,
) *Engine {
	if metrics == nil {
		metrics = telemetry.NoopWorkflowMetrics()
	}
	return &Engine{
		rules:    rules,
		requests: requests,
		metrics:  metrics,
		logger:   logger,
	}
}

var _ workflow.ApprovalGate = (*Engine)(nil)

// ResolveRule returns the rule governing a document with fields
func (e *Engine) ResolveRule(ctx context.Context, domain string, fields domainworkflow.Payload) (approval.Rule, error) {
	rules, err := e.rules.List(ctx, true)
	if err != nil {
		return approval.Rule{}, fmt.Errorf("list approval rules: %w", err)
	}
	return approval.ResolveRule(rules, domain, fields), nil
}

// Open returns the document's active request, or creates one under the rule
// resolved for fields. created is false when an active request already existed.
func (e *Engine) Open(ctx context.Context, domain, documentID, requestedBy string, fields domainworkflow.Payload) (*approval.Request, bool, error) {
	latest, err := e.latest(ctx, domain, documentID)
	if err != nil {
		return nil, false, err
	}
	if latest != nil {
		switch {
		case latest.Status == approval.StatusApproved:
			return nil, false, approval.ErrAlreadyApproved
		case latest.Status.IsActive():
			return latest, false, nil
		}
	}

	rule, err := e.ResolveRule(ctx, domain, fields)
	if err != nil {
		return nil, false, err
	}
	req, err := approval.NewRequest(domain, documentID, requestedBy, rule)
	if err != nil {
		return nil, false, shared.NewDomainError(shared.ErrInvalidInput.Code, err.Error())
	}
	if err := e.requests.Create(ctx, req); err != nil {
		return nil, false, fmt.Errorf("create approval request: %w", err)
	}

	logger.WithLogger(ctx, e.logger).Info("Approval request opened",
		zap.String("domain", domain),
		zap.String("document_id", documentID),
		zap.String("request_id", req.ID.String()),
		zap.String("rule", rule.Name),
		zap.Int("required_approvals", req.RequiredApprovals),
	)
	return req, true, nil
}

// Vote records one approver's decision on the document's latest request.
// terminal is true once the request is approved or rejected. A request that
// already reached the outcome the vote asks for reports terminal without a
// new vote, so a transition whose commit failed after the deciding vote can
// be retried.
func (e *Engine) Vote(ctx context.Context, in workflow.VoteInput) (bool, error) {
	action, err := approval.ParseVoteAction(string(in.Action))
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(in.ApproverID) == "" {
		return false, shared.NewDomainError(shared.ErrInvalidInput.Code, "approver id cannot be empty")
	}
	log := logger.WithLogger(ctx, e.logger).With(
		zap.String("domain", in.Domain),
		zap.String("document_id", in.DocumentNumber),
		zap.String("approver_id", in.ApproverID),
		zap.String("vote", string(action)),
	)

	req, err := e.latest(ctx, in.Domain, in.DocumentNumber)
	if err != nil {
		return false, err
	}
	if req == nil {
		return false, approval.ErrNoActiveRequest
	}
	if settled(req.Status, action) {
		log.Warn("Approval request already settled, completing transition",
			zap.String("request_id", req.ID.String()),
			zap.String("status", string(req.Status)))
		return true, nil
	}

	vote, err := req.Cast(in.ApproverID, in.ApproverRoles, action, in.Comment)
	if err != nil {
		e.metrics.RecordVote(ctx, in.Domain, string(action), shared.CodeOf(err))
		return false, err
	}
	if err := e.requests.SaveVote(ctx, req, vote); err != nil {
		if errors.Is(err, approval.ErrDuplicateVote) || errors.Is(err, shared.ErrConcurrencyConflict) {
			e.metrics.RecordVote(ctx, in.Domain, string(action), shared.CodeOf(err))
			return false, err
		}
		return false, fmt.Errorf("save vote: %w", err)
	}

	e.metrics.RecordVote(ctx, in.Domain, string(action), string(req.Status))
	log.Info("Vote recorded",
		zap.String("request_id", req.ID.String()),
		zap.String("status", string(req.Status)),
		zap.Int("approvals", req.ApprovalCount()),
		zap.Int("required_approvals", req.RequiredApprovals),
	)
	return req.Status.IsTerminal(), nil
}

// Latest returns the newest request for a document or NO_ACTIVE_REQUEST
func (e *Engine) Latest(ctx context.Context, domain, documentID string) (*approval.Request, error) {
	req, err := e.latest(ctx, domain, documentID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, approval.ErrNoActiveRequest
	}
	return req, nil
}

func (e *Engine) latest(ctx context.Context, domain, documentID string) (*approval.Request, error) {
	req, err := e.requests.FindLatest(ctx, domain, documentID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load approval request: %w", err)
	}
	return req, nil
}

func settled(status approval.Status, action approval.VoteAction) bool {
	return (status == approval.StatusApproved && action == approval.VoteApprove) ||
		(status == approval.StatusRejected && action == approval.VoteReject)
}
