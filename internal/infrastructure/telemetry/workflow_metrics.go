package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Attribute keys shared by workflow instruments
var (
	AttrDomain = attribute.Key("domain")
	AttrAction = attribute.Key("action")
	AttrState  = attribute.Key("to_state")
	AttrGuard  = attribute.Key("guard")
	AttrTopic  = attribute.Key("topic")
	AttrResult = attribute.Key("result")
)

// WorkflowMetrics records document lifecycle activity
type WorkflowMetrics struct {
	transitions     *Counter
	transitionTime  *Histogram
	guardViolations *Counter
	votes           *Counter
	numbersIssued   *Counter
	eventsDropped   *Counter
	subscribers     *UpDownCounter
}

// NewWorkflowMetrics creates the instruments on meter
func NewWorkflowMetrics(meter metric.Meter) (*WorkflowMetrics, error) {
	var (
		m   WorkflowMetrics
		err error
	)
	if m.transitions, err = NewCounter(meter, "docflow.transitions", "Committed document transitions", "{transition}"); err != nil {
		return nil, err
	}
	if m.transitionTime, err = NewHistogram(meter, "docflow.transition.duration", "Time to apply a transition", "s", SmallDurationBuckets...); err != nil {
		return nil, err
	}
	if m.guardViolations, err = NewCounter(meter, "docflow.guard.violations", "Transitions blocked by guards", "{violation}"); err != nil {
		return nil, err
	}
	if m.votes, err = NewCounter(meter, "docflow.approval.votes", "Approval votes cast", "{vote}"); err != nil {
		return nil, err
	}
	if m.numbersIssued, err = NewCounter(meter, "docflow.numbers.issued", "Document numbers issued", "{number}"); err != nil {
		return nil, err
	}
	if m.eventsDropped, err = NewCounter(meter, "docflow.events.dropped", "Events dropped for slow subscribers", "{event}"); err != nil {
		return nil, err
	}
	if m.subscribers, err = NewUpDownCounter(meter, "docflow.events.subscribers", "Open event subscriptions", "{subscriber}"); err != nil {
		return nil, err
	}
	return &m, nil
}

// NoopWorkflowMetrics returns metrics that record nothing
func NoopWorkflowMetrics() *WorkflowMetrics {
	m, _ := NewWorkflowMetrics(noop.NewMeterProvider().Meter("docflow"))
	return m
}

func (m *WorkflowMetrics) RecordTransition(ctx context.Context, domain, action, toState string, elapsed time.Duration) {
	attrs := []attribute.KeyValue{AttrDomain.String(domain), AttrAction.String(action), AttrState.String(toState)}
	m.transitions.Inc(ctx, attrs...)
	m.transitionTime.RecordDuration(ctx, elapsed, attrs...)
}

func (m *WorkflowMetrics) RecordGuardViolation(ctx context.Context, domain, guard string) {
	m.guardViolations.Inc(ctx, AttrDomain.String(domain), AttrGuard.String(guard))
}

func (m *WorkflowMetrics) RecordVote(ctx context.Context, domain, action, result string) {
	m.votes.Inc(ctx, AttrDomain.String(domain), AttrAction.String(action), AttrResult.String(result))
}

func (m *WorkflowMetrics) RecordNumberIssued(ctx context.Context, domain string) {
	m.numbersIssued.Inc(ctx, AttrDomain.String(domain))
}

func (m *WorkflowMetrics) RecordEventDropped(topic string) {
	m.eventsDropped.Inc(context.Background(), AttrTopic.String(topic))
}

func (m *WorkflowMetrics) SubscriberDelta(topic string, delta int64) {
	m.subscribers.Add(context.Background(), delta, AttrTopic.String(topic))
}
