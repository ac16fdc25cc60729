package approval

import (
	"sort"
	"strings"
	"time"

	"github.com/erp/docflow/internal/domain/workflow"
	"github.com/google/uuid"
)

// Condition compares one document field against a constant
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Matches reports whether fields satisfy the condition. A missing field never matches.
func (c Condition) Matches(fields workflow.Payload) bool {
	actual, ok := fields.Lookup(c.Field)
	if !ok {
		return false
	}
	return c.Operator.Apply(actual, c.Value)
}

func (c Condition) validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return NewInvalidRule("condition field cannot be empty")
	}
	if !c.Operator.IsValid() {
		return NewInvalidOperator(string(c.Operator))
	}
	switch {
	case c.Operator.IsOrdering():
		if _, err := workflow.ToDecimal(c.Value); err != nil {
			return NewInvalidRule("condition on %s: operator %s needs a numeric value", c.Field, c.Operator)
		}
	case c.Operator == OperatorIN:
		list, ok := c.Value.([]any)
		if !ok || len(list) == 0 {
			return NewInvalidRule("condition on %s: operator in needs a non-empty list", c.Field)
		}
	case c.Value == nil:
		return NewInvalidRule("condition on %s: value cannot be empty", c.Field)
	}
	return nil
}

// Rule decides how many approvals a document needs. Rules are evaluated in
// descending priority and the first rule whose conditions all match wins.
type Rule struct {
	ID                uuid.UUID
	Name              string
	// Domain restricts the rule to one document domain; empty applies to all.
	Domain            string
	Conditions        []Condition
	RequiredApprovals int
	ApprovalRoles     []string
	Priority          int
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RuleInput carries the user-supplied rule fields
type RuleInput struct {
	Name              string
	Domain            string
	Conditions        []Condition
	RequiredApprovals int
	ApprovalRoles     []string
	Priority          int
	Active            bool
}

// NewRule validates input and creates an active-or-inactive rule
func NewRule(in RuleInput) (*Rule, error) {
	now := time.Now().UTC()
	r := &Rule{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.apply(in); err != nil {
		return nil, err
	}
	return r, nil
}

// Update replaces the rule's definition after validating it
func (r *Rule) Update(in RuleInput) error {
	if err := r.apply(in); err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Rule) apply(in RuleInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return NewInvalidRule("rule name cannot be empty")
	}
	if in.RequiredApprovals < 1 {
		return NewInvalidRule("requiredApprovals must be at least 1")
	}
	conditions := make([]Condition, 0, len(in.Conditions))
	for _, c := range in.Conditions {
		op, err := ParseOperator(string(c.Operator))
		if err != nil {
			return err
		}
		c.Operator = op
		if err := c.validate(); err != nil {
			return err
		}
		conditions = append(conditions, c)
	}

	r.Name = name
	r.Domain = strings.TrimSpace(in.Domain)
	r.Conditions = conditions
	r.RequiredApprovals = in.RequiredApprovals
	r.ApprovalRoles = in.ApprovalRoles
	r.Priority = in.Priority
	r.Active = in.Active
	return nil
}

// Deactivate takes the rule out of resolution. Requests already created keep
// their snapshot.
func (r *Rule) Deactivate() {
	r.Active = false
	r.UpdatedAt = time.Now().UTC()
}

// AppliesTo reports whether the rule may be used for domain
func (r Rule) AppliesTo(domain string) bool {
	return r.Domain == "" || r.Domain == domain
}

// Matches reports whether every condition holds for fields
func (r Rule) Matches(fields workflow.Payload) bool {
	for _, c := range r.Conditions {
		if !c.Matches(fields) {
			return false
		}
	}
	return true
}

// HasRole reports whether any of roles may vote under this rule. A rule
// without roles accepts everyone.
func (r Rule) HasRole(roles []string) bool {
	if len(r.ApprovalRoles) == 0 {
		return true
	}
	for _, want := range r.ApprovalRoles {
		for _, have := range roles {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

// DefaultRuleName names the rule used when nothing matches
const DefaultRuleName = "default"

// DefaultRule is the single-approval fallback
func DefaultRule() Rule {
	return Rule{
		Name:              DefaultRuleName,
		RequiredApprovals: 1,
		Active:            true,
	}
}

// ResolveRule picks the highest-priority active rule for domain whose
// conditions all match fields. Ties on priority fall back to name, then ID.
func ResolveRule(rules []Rule, domain string, fields workflow.Payload) Rule {
	candidates := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active && r.AppliesTo(domain) {
			candidates = append(candidates, r)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID.String() < b.ID.String()
	})
	for _, r := range candidates {
		if r.Matches(fields) {
			return r
		}
	}
	return DefaultRule()
}
