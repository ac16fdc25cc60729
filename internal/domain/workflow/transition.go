package workflow

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentRef identifies a document within its domain
type DocumentRef struct {
	Domain string
	Number string
}

// Key returns "domain/number"
func (r DocumentRef) Key() string {
	return r.Domain + "/" + r.Number
}

// Transition is one applied state change. Transitions are append-only.
type Transition struct {
	ID             uuid.UUID
	Domain         string
	DocumentNumber string
	FromState      State
	ToState        State
	Action         Action
	Actor          string
	Reason         string
	OccurredAt     time.Time
}

// NewTransition stamps a transition with a fresh ID and the current UTC time
func NewTransition(ref DocumentRef, from, to State, action Action, actor, reason string) *Transition {
	return &Transition{
		ID:             uuid.New(),
		Domain:         ref.Domain,
		DocumentNumber: ref.Number,
		FromState:      from,
		ToState:        to,
		Action:         action,
		Actor:          actor,
		Reason:         reason,
		OccurredAt:     time.Now().UTC(),
	}
}

// Ref returns the document the transition belongs to
func (t *Transition) Ref() DocumentRef {
	return DocumentRef{Domain: t.Domain, Number: t.DocumentNumber}
}

// Event returns the broadcast form of the transition
func (t *Transition) Event() Event {
	return Event{
		Domain:         t.Domain,
		DocumentNumber: t.DocumentNumber,
		Action:         t.Action,
		FromState:      t.FromState,
		ToState:        t.ToState,
		Actor:          t.Actor,
		Timestamp:      t.OccurredAt.Unix(),
	}
}

// TopicAll carries every transition of every domain
const TopicAll = "workflow"

// Event is published to subscribers after a transition commits
type Event struct {
	Domain         string `json:"domain"`
	DocumentNumber string `json:"documentNumber"`
	Action         Action `json:"action"`
	FromState      State  `json:"fromState"`
	ToState        State  `json:"toState"`
	Actor          string `json:"actor,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// DomainTopic returns the topic carrying one domain's transitions
func DomainTopic(domain string) string {
	return TopicAll + "." + domain
}

// DomainFromTopic maps a topic to the domain filter it selects. The empty
// string selects every domain. A bare domain name is accepted as well.
func DomainFromTopic(topic string) string {
	if topic == TopicAll {
		return ""
	}
	return strings.TrimPrefix(topic, TopicAll+".")
}
