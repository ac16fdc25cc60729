package workflow

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Guard is a pure predicate over (action, payload). Check returns nil when the
// document may proceed, or a GUARD_VIOLATION error otherwise.
type Guard interface {
	Name() string
	Check(action Action, payload Payload) error
}

// Built-in guard names
const (
	GuardTotalPositive  = "TotalPositive"
	GuardPriceAboveCost = "PriceAboveCost"
)

// TotalPositive rejects posting a document whose total is not strictly positive.
// A missing total counts as zero.
type TotalPositive struct{}

func (TotalPositive) Name() string { return GuardTotalPositive }

func (g TotalPositive) Check(action Action, payload Payload) error {
	if action != ActionPost {
		return nil
	}
	total, _ := payload.Decimal("total")
	if total.LessThanOrEqual(decimal.Zero) {
		return NewGuardViolation(g.Name(), fmt.Sprintf("total must be positive, got %s", total.String()))
	}
	return nil
}

// PriceAboveCost rejects approving a document with any line sold below cost.
// Lines without both price and cost are skipped.
type PriceAboveCost struct{}

func (PriceAboveCost) Name() string { return GuardPriceAboveCost }

func (g PriceAboveCost) Check(action Action, payload Payload) error {
	if action != ActionApprove {
		return nil
	}
	for i, line := range payload.Lines() {
		price, okPrice := line.Decimal("price")
		cost, okCost := line.Decimal("cost")
		if !okPrice || !okCost {
			continue
		}
		if price.LessThan(cost) {
			return NewGuardViolation(g.Name(),
				fmt.Sprintf("line %d price %s is below cost %s", i+1, price.String(), cost.String()))
		}
	}
	return nil
}

// GuardByName returns a built-in guard
func GuardByName(name string) (Guard, error) {
	switch name {
	case GuardTotalPositive:
		return TotalPositive{}, nil
	case GuardPriceAboveCost:
		return PriceAboveCost{}, nil
	}
	return nil, fmt.Errorf("unknown guard %q", name)
}

// GuardEvaluator runs guards in registration order and stops at the first violation.
type GuardEvaluator struct {
	guards []Guard
}

// NewGuardEvaluator creates an evaluator over guards
func NewGuardEvaluator(guards ...Guard) *GuardEvaluator {
	return &GuardEvaluator{guards: guards}
}

// Evaluate returns nil when every guard passes
func (e *GuardEvaluator) Evaluate(action Action, payload Payload) error {
	if e == nil {
		return nil
	}
	for _, g := range e.guards {
		if err := g.Check(action, payload); err != nil {
			return err
		}
	}
	return nil
}

// Names lists the guard names in evaluation order
func (e *GuardEvaluator) Names() []string {
	if e == nil {
		return nil
	}
	names := make([]string, 0, len(e.guards))
	for _, g := range e.guards {
		names = append(names, g.Name())
	}
	return names
}
