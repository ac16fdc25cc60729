// Package workflow orchestrates document transitions: locking, guards, the
// approval gate, the audit log, state persistence and event publication.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/docflow/internal/domain/shared"
	"github.com/erp/docflow/internal/domain/workflow"
	"github.com/erp/docflow/internal/infrastructure/lock"
	"github.com/erp/docflow/internal/infrastructure/logger"
	"github.com/erp/docflow/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/erp/docflow/internal/application/workflow"

// TransitionCommand asks for action on one document
type TransitionCommand struct {
	Domain         string
	DocumentNumber string
	Action         workflow.Action
	// Payload replaces the stored document body when non-nil. When nil the
	// stored body is loaded for the guards.
	Payload    workflow.Payload
	Actor      string
	ActorRoles []string
	Reason     string
}

// StateMachine applies transitions to documents. Transitions on one document
// are linearized by a per-document lock; different documents run in parallel.
type StateMachine struct {
	registry  *workflow.Registry
	states    workflow.StateStore
	audit     workflow.AuditLog
	docs      workflow.DocumentRepository
	publisher workflow.Publisher
	locker    Locker
	gate      ApprovalGate
	metrics   *telemetry.WorkflowMetrics
	tracer    trace.Tracer
	logger    *zap.Logger
}

// Option configures a StateMachine
type Option func(*StateMachine)

// WithLocker replaces the default per-document lock
func WithLocker(l Locker) Option {
	return func(m *StateMachine) { m.locker = l }
}

// WithApprovalGate routes approve and reject on approval domains through gate
func WithApprovalGate(gate ApprovalGate) Option {
	return func(m *StateMachine) { m.gate = gate }
}

// WithMetrics records transition metrics
func WithMetrics(metrics *telemetry.WorkflowMetrics) Option {
	return func(m *StateMachine) { m.metrics = metrics }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *StateMachine) { m.logger = l }
}

// NewStateMachine wires the state machine to its stores
func NewStateMachine(
	registry *workflow.Registry,
	states workflow.StateStore,
	audit workflow.AuditLog,
	docs workflow.DocumentRepository,
	publisher workflow.Publisher,
	opts ...Option,
) *StateMachine {
	m := &StateMachine{
		registry:  registry,
		states:    states,
		audit:     audit,
		docs:      docs,
		publisher: publisher,
		locker:    lock.NewKeyedLocker(0, 0),
		metrics:   telemetry.NoopWorkflowMetrics(),
		tracer:    otel.Tracer(tracerName),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transition validates and applies cmd, returning the document's state
// afterwards. A vote that does not settle its approval request leaves the
// state unchanged and records no transition.
func (m *StateMachine) Transition(ctx context.Context, cmd TransitionCommand) (workflow.State, error) {
	start := time.Now()
	action := workflow.ParseAction(string(cmd.Action))
	ctx, span := m.tracer.Start(ctx, "workflow.Transition", trace.WithAttributes(
		attribute.String("workflow.domain", cmd.Domain),
		attribute.String("workflow.document_number", cmd.DocumentNumber),
		attribute.String("workflow.action", string(action)),
	))
	defer span.End()

	state, err := m.transition(ctx, cmd, action, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("workflow.state", string(state)))
	return state, nil
}

func (m *StateMachine) transition(ctx context.Context, cmd TransitionCommand, action workflow.Action, start time.Time) (workflow.State, error) {
	def, err := m.registry.Get(cmd.Domain)
	if err != nil {
		return "", err
	}
	ref, err := documentRef(cmd.Domain, cmd.DocumentNumber)
	if err != nil {
		return "", err
	}
	log := logger.WithLogger(ctx, m.logger).With(
		zap.String("domain", ref.Domain),
		zap.String("document_number", ref.Number),
		zap.String("action", string(action)),
	)

	release, err := m.locker.Lock(ref.Key())
	if err != nil {
		log.Warn("Document lock not acquired")
		return "", err
	}
	defer release()

	current, err := m.latestState(ctx, ref)
	if err != nil {
		return "", err
	}
	target, ok := def.Table.Next(current, action)
	if !ok {
		return "", workflow.NewInvalidTransition(current, action)
	}

	payload := cmd.Payload
	if payload == nil {
		stored, found, err := m.docs.Get(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("load document %s: %w", ref.Key(), err)
		}
		if found {
			payload = stored
		} else {
			payload = workflow.Payload{}
		}
	}
	if err := def.Guards.Evaluate(action, payload); err != nil {
		m.metrics.RecordGuardViolation(ctx, ref.Domain, guardName(err))
		log.Info("Transition rejected by guard", zap.String("guard", guardName(err)))
		return "", err
	}

	if def.RequiresApproval && action.IsVote() {
		if m.gate == nil {
			return "", fmt.Errorf("domain %s requires approval but no approval gate is configured", ref.Domain)
		}
		terminal, err := m.gate.Vote(ctx, VoteInput{
			Domain:         ref.Domain,
			DocumentNumber: ref.Number,
			ApproverID:     cmd.Actor,
			ApproverRoles:  cmd.ActorRoles,
			Action:         action,
			Comment:        cmd.Reason,
		})
		if err != nil {
			return "", err
		}
		if !terminal {
			log.Info("Vote recorded, approval still open", zap.String("state", string(current)))
			return current, nil
		}
	}

	t := workflow.NewTransition(ref, current, target, action, cmd.Actor, cmd.Reason)
	if err := m.commit(ctx, t, cmd.Payload, log); err != nil {
		if errors.Is(err, workflow.ErrStateConflict) {
			log.Warn("Document state changed concurrently", zap.String("from_state", string(current)))
			return "", err
		}
		log.Error("Transition commit failed", zap.Error(err))
		return "", err
	}

	m.metrics.RecordTransition(ctx, ref.Domain, string(action), string(target), time.Since(start))
	log.Info("Transition committed",
		zap.String("from_state", string(current)),
		zap.String("to_state", string(target)),
		zap.String("actor", cmd.Actor),
	)
	return target, nil
}

// commit moves the stored state with a compare-and-set on t.FromState, so a
// transition decided on a state another instance has since changed fails
// with ErrStateConflict. The audit entry follows the state; when it cannot
// be written the state is moved back.
func (m *StateMachine) commit(ctx context.Context, t *workflow.Transition, payload workflow.Payload, log *zap.Logger) error {
	ref := t.Ref()
	if err := m.states.CompareAndSet(ctx, ref, t.FromState, t.ToState); err != nil {
		if errors.Is(err, workflow.ErrStateConflict) {
			return err
		}
		return fmt.Errorf("save state: %w", err)
	}
	if err := m.audit.Append(ctx, t); err != nil {
		if rerr := m.states.CompareAndSet(ctx, ref, t.ToState, t.FromState); rerr != nil {
			log.Error("Failed to restore state after audit failure",
				zap.String("state", string(t.ToState)), zap.Error(rerr))
		}
		return fmt.Errorf("append audit entry: %w", err)
	}
	if payload != nil {
		if err := m.docs.Save(ctx, ref, payload); err != nil {
			return fmt.Errorf("save document: %w", err)
		}
	}
	event := t.Event()
	m.publisher.Publish(workflow.TopicAll, event)
	m.publisher.Publish(workflow.DomainTopic(t.Domain), event)
	return nil
}

func (m *StateMachine) currentState(ctx context.Context, ref workflow.DocumentRef) (workflow.State, error) {
	state, found, err := m.states.Get(ctx, ref)
	return resolveState(ref, state, found, err)
}

// latestState bypasses any read cache in front of the state store
func (m *StateMachine) latestState(ctx context.Context, ref workflow.DocumentRef) (workflow.State, error) {
	reader, ok := m.states.(workflow.LatestStateReader)
	if !ok {
		return m.currentState(ctx, ref)
	}
	state, found, err := reader.GetLatest(ctx, ref)
	return resolveState(ref, state, found, err)
}

func resolveState(ref workflow.DocumentRef, state workflow.State, found bool, err error) (workflow.State, error) {
	if err != nil {
		return "", fmt.Errorf("load state of %s: %w", ref.Key(), err)
	}
	if !found {
		return workflow.StateDraft, nil
	}
	return state, nil
}

// CurrentState returns a document's state, draft if it was never transitioned
func (m *StateMachine) CurrentState(ctx context.Context, domain, number string) (workflow.State, error) {
	if _, err := m.registry.Get(domain); err != nil {
		return "", err
	}
	ref, err := documentRef(domain, number)
	if err != nil {
		return "", err
	}
	return m.currentState(ctx, ref)
}

// AllowedActions lists the actions the table permits from the current state
func (m *StateMachine) AllowedActions(ctx context.Context, domain, number string) (workflow.State, []workflow.Action, error) {
	def, err := m.registry.Get(domain)
	if err != nil {
		return "", nil, err
	}
	ref, err := documentRef(domain, number)
	if err != nil {
		return "", nil, err
	}
	state, err := m.currentState(ctx, ref)
	if err != nil {
		return "", nil, err
	}
	return state, def.Table.Actions(state), nil
}

// History returns the document's transitions, oldest first
func (m *StateMachine) History(ctx context.Context, domain, number string) ([]workflow.Transition, error) {
	if _, err := m.registry.Get(domain); err != nil {
		return nil, err
	}
	ref, err := documentRef(domain, number)
	if err != nil {
		return nil, err
	}
	return m.audit.History(ctx, ref)
}

// Replay returns transitions on topic at or after since. "workflow" selects
// every domain; "workflow.<domain>" or a bare domain name selects one.
func (m *StateMachine) Replay(ctx context.Context, topic string, since time.Time) ([]workflow.Transition, error) {
	domain := workflow.DomainFromTopic(strings.TrimSpace(topic))
	if domain != "" {
		if _, err := m.registry.Get(domain); err != nil {
			return nil, err
		}
	}
	return m.audit.Since(ctx, domain, since)
}

// Definition returns the registered definition of domain
func (m *StateMachine) Definition(domain string) (*workflow.Definition, error) {
	return m.registry.Get(domain)
}

// Document returns the stored payload of a document
func (m *StateMachine) Document(ctx context.Context, domain, number string) (workflow.Payload, bool, error) {
	if _, err := m.registry.Get(domain); err != nil {
		return nil, false, err
	}
	ref, err := documentRef(domain, number)
	if err != nil {
		return nil, false, err
	}
	return m.docs.Get(ctx, ref)
}

// Domains returns the registered domain names
func (m *StateMachine) Domains() []string {
	return m.registry.Names()
}

func documentRef(domain, number string) (workflow.DocumentRef, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return workflow.DocumentRef{}, shared.NewDomainError(shared.ErrInvalidInput.Code, "document number cannot be empty")
	}
	return workflow.DocumentRef{Domain: domain, Number: number}, nil
}

func guardName(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Reason != "" {
		return de.Reason
	}
	return "unknown"
}
