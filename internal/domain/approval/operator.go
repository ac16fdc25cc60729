package approval

import (
	"fmt"
	"strings"

	"github.com/erp/docflow/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

// Operator is the closed set of comparison operators a rule condition may use
type Operator string

const (
	OperatorGT  Operator = "gt"
	OperatorGTE Operator = "gte"
	OperatorLT  Operator = "lt"
	OperatorLTE Operator = "lte"
	OperatorEQ  Operator = "eq"
	OperatorIN  Operator = "in"
)

// AllOperators returns every supported operator
func AllOperators() []Operator {
	return []Operator{OperatorGT, OperatorGTE, OperatorLT, OperatorLTE, OperatorEQ, OperatorIN}
}

// IsValid checks if the operator is supported
func (o Operator) IsValid() bool {
	switch o {
	case OperatorGT, OperatorGTE, OperatorLT, OperatorLTE, OperatorEQ, OperatorIN:
		return true
	}
	return false
}

// IsOrdering reports whether the operator compares magnitudes
func (o Operator) IsOrdering() bool {
	switch o {
	case OperatorGT, OperatorGTE, OperatorLT, OperatorLTE:
		return true
	}
	return false
}

// ParseOperator accepts the canonical names and their symbolic aliases
func ParseOperator(raw string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "gt", ">":
		return OperatorGT, nil
	case "gte", ">=":
		return OperatorGTE, nil
	case "lt", "<":
		return OperatorLT, nil
	case "lte", "<=":
		return OperatorLTE, nil
	case "eq", "=", "==":
		return OperatorEQ, nil
	case "in":
		return OperatorIN, nil
	}
	return "", NewInvalidOperator(raw)
}

// Apply compares actual against expected. Values that cannot be compared
// under the operator never match.
func (o Operator) Apply(actual, expected any) bool {
	if actual == nil {
		return false
	}
	switch o {
	case OperatorGT, OperatorGTE, OperatorLT, OperatorLTE:
		a, errA := workflow.ToDecimal(actual)
		e, errE := workflow.ToDecimal(expected)
		if errA != nil || errE != nil {
			return false
		}
		return compareOrdered(o, a, e)
	case OperatorEQ:
		return valuesEqual(actual, expected)
	case OperatorIN:
		list, ok := expected.([]any)
		if !ok {
			return false
		}
		for _, candidate := range list {
			if valuesEqual(actual, candidate) {
				return true
			}
		}
	}
	return false
}

func compareOrdered(o Operator, a, e decimal.Decimal) bool {
	switch o {
	case OperatorGT:
		return a.GreaterThan(e)
	case OperatorGTE:
		return a.GreaterThanOrEqual(e)
	case OperatorLT:
		return a.LessThan(e)
	case OperatorLTE:
		return a.LessThanOrEqual(e)
	}
	return false
}

// valuesEqual compares numerically when both sides are numeric, else as strings
func valuesEqual(a, b any) bool {
	if b == nil {
		return false
	}
	da, errA := workflow.ToDecimal(a)
	db, errB := workflow.ToDecimal(b)
	if errA == nil && errB == nil {
		return da.Equal(db)
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
