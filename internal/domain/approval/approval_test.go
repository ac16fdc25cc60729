package approval

import (
	"errors"
	"testing"

	"github.com/erp/docflow/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperator(t *testing.T) {
	for _, raw := range []string{"gt", ">", "GTE", ">=", "lt", "<", "lte", "<=", "eq", "==", "in"} {
		op, err := ParseOperator(raw)
		require.NoError(t, err, raw)
		assert.True(t, op.IsValid())
	}

	_, err := ParseOperator("contains")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidOperator))
}

func TestOperator_Apply(t *testing.T) {
	tests := []struct {
		name     string
		op       Operator
		actual   any
		expected any
		want     bool
	}{
		{"gt true", OperatorGT, 15000.0, 10000, true},
		{"gt equal false", OperatorGT, 10000, 10000.0, false},
		{"gte equal", OperatorGTE, "10000", 10000, true},
		{"lt", OperatorLT, 5, 10, true},
		{"lte", OperatorLTE, 10, 10, true},
		{"eq numbers", OperatorEQ, 10, "10.00", true},
		{"eq strings", OperatorEQ, "SUP-1", "SUP-1", true},
		{"eq mismatch", OperatorEQ, "SUP-1", "SUP-2", false},
		{"in list", OperatorIN, "EUR", []any{"USD", "EUR"}, true},
		{"in missing", OperatorIN, "GBP", []any{"USD", "EUR"}, false},
		{"in not a list", OperatorIN, "EUR", "EUR", false},
		{"gt non numeric", OperatorGT, "abc", 1, false},
		{"nil actual", OperatorEQ, nil, "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.Apply(tt.actual, tt.expected))
		})
	}
}

func TestNewRule_Validation(t *testing.T) {
	valid := RuleInput{
		Name:              "large invoices",
		Conditions:        []Condition{{Field: "amount", Operator: ">", Value: 10000}},
		RequiredApprovals: 3,
		Priority:          10,
		Active:            true,
	}
	rule, err := NewRule(valid)
	require.NoError(t, err)
	assert.Equal(t, OperatorGT, rule.Conditions[0].Operator, "aliases are normalized")

	tests := []struct {
		name    string
		mutate  func(in *RuleInput)
		wantErr error
	}{
		{"empty name", func(in *RuleInput) { in.Name = " " }, ErrInvalidRule},
		{"zero approvals", func(in *RuleInput) { in.RequiredApprovals = 0 }, ErrInvalidRule},
		{"unknown operator", func(in *RuleInput) {
			in.Conditions = []Condition{{Field: "amount", Operator: "between", Value: 1}}
		}, ErrInvalidOperator},
		{"ordering needs number", func(in *RuleInput) {
			in.Conditions = []Condition{{Field: "amount", Operator: OperatorGT, Value: "lots"}}
		}, ErrInvalidRule},
		{"in needs list", func(in *RuleInput) {
			in.Conditions = []Condition{{Field: "currency", Operator: OperatorIN, Value: "EUR"}}
		}, ErrInvalidRule},
		{"empty field", func(in *RuleInput) {
			in.Conditions = []Condition{{Field: "", Operator: OperatorEQ, Value: 1}}
		}, ErrInvalidRule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := NewRule(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), err.Error())
		})
	}
}

func mustRule(t *testing.T, in RuleInput) Rule {
	t.Helper()
	r, err := NewRule(in)
	require.NoError(t, err)
	return *r
}

func TestResolveRule(t *testing.T) {
	large := mustRule(t, RuleInput{
		Name: "large", RequiredApprovals: 3, Priority: 10, Active: true,
		Conditions: []Condition{{Field: "amount", Operator: OperatorGT, Value: 10000}},
	})
	medium := mustRule(t, RuleInput{
		Name: "medium", RequiredApprovals: 2, Priority: 5, Active: true,
		Conditions: []Condition{{Field: "amount", Operator: OperatorGT, Value: 1000}},
	})
	inactive := mustRule(t, RuleInput{
		Name: "inactive", RequiredApprovals: 9, Priority: 100, Active: false,
	})
	salesOnly := mustRule(t, RuleInput{
		Name: "sales", Domain: "sales", RequiredApprovals: 4, Priority: 50, Active: true,
	})
	rules := []Rule{medium, inactive, large, salesOnly}

	assert.Equal(t, "large", ResolveRule(rules, "invoice", workflow.Payload{"amount": 15000}).Name)
	assert.Equal(t, "medium", ResolveRule(rules, "invoice", workflow.Payload{"amount": 5000}).Name)
	assert.Equal(t, "sales", ResolveRule(rules, "sales", workflow.Payload{"amount": 15000}).Name)

	fallback := ResolveRule(rules, "invoice", workflow.Payload{"amount": 10})
	assert.Equal(t, DefaultRuleName, fallback.Name)
	assert.Equal(t, 1, fallback.RequiredApprovals)

	assert.Equal(t, DefaultRuleName, ResolveRule(nil, "invoice", nil).Name)
}

func TestResolveRule_TieBreakIsDeterministic(t *testing.T) {
	b := mustRule(t, RuleInput{Name: "b", RequiredApprovals: 2, Priority: 1, Active: true})
	a := mustRule(t, RuleInput{Name: "a", RequiredApprovals: 3, Priority: 1, Active: true})

	assert.Equal(t, "a", ResolveRule([]Rule{b, a}, "invoice", nil).Name)
	assert.Equal(t, "a", ResolveRule([]Rule{a, b}, "invoice", nil).Name)
}

func TestRequest_QuorumAndVeto(t *testing.T) {
	rule := mustRule(t, RuleInput{Name: "large", RequiredApprovals: 3, Active: true})

	t.Run("approved exactly at quorum", func(t *testing.T) {
		req, err := NewRequest("invoice", "INV-1", "alice", rule)
		require.NoError(t, err)

		_, err = req.Cast("bob", nil, VoteApprove, "")
		require.NoError(t, err)
		assert.Equal(t, StatusPartiallyApproved, req.Status)

		_, err = req.Cast("carol", nil, VoteApprove, "")
		require.NoError(t, err)
		assert.Equal(t, StatusPartiallyApproved, req.Status)
		assert.False(t, req.CanPost())

		_, err = req.Cast("dave", nil, VoteApprove, "")
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, req.Status)
		assert.True(t, req.CanPost())
		assert.True(t, req.CanPay())
		assert.Equal(t, 3, req.ApprovalCount())

		_, err = req.Cast("erin", nil, VoteApprove, "")
		assert.True(t, errors.Is(err, ErrNoActiveRequest))
	})

	t.Run("single reject vetoes", func(t *testing.T) {
		req, err := NewRequest("invoice", "INV-2", "alice", rule)
		require.NoError(t, err)

		_, err = req.Cast("bob", nil, VoteApprove, "")
		require.NoError(t, err)
		_, err = req.Cast("carol", nil, VoteReject, "over budget")
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, req.Status)
		assert.False(t, req.CanPost())
	})

	t.Run("duplicate vote", func(t *testing.T) {
		req, err := NewRequest("invoice", "INV-3", "alice", rule)
		require.NoError(t, err)

		_, err = req.Cast("bob", nil, VoteApprove, "")
		require.NoError(t, err)
		_, err = req.Cast("bob", nil, VoteApprove, "")
		assert.True(t, errors.Is(err, ErrDuplicateVote))
		assert.Len(t, req.Votes, 1)
	})
}

func TestRequest_RoleCheck(t *testing.T) {
	rule := mustRule(t, RuleInput{Name: "finance", RequiredApprovals: 1, ApprovalRoles: []string{"finance_manager"}, Active: true})

	req, err := NewRequest("invoice", "INV-4", "alice", rule)
	require.NoError(t, err)

	_, err = req.Cast("bob", []string{"clerk"}, VoteApprove, "")
	assert.True(t, errors.Is(err, ErrApproverNotAuthorized))

	_, err = req.Cast("carol", nil, VoteApprove, "")
	require.NoError(t, err, "unknown roles skip the check")
	assert.Equal(t, StatusApproved, req.Status)
}

func TestParseVoteAction(t *testing.T) {
	a, err := ParseVoteAction("APPROVE")
	require.NoError(t, err)
	assert.Equal(t, VoteApprove, a)

	_, err = ParseVoteAction("abstain")
	assert.True(t, errors.Is(err, ErrInvalidVoteAction))
}
