package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Payload is the document body evaluated by guards and approval rules.
// Known keys: total (number) and lines (list of {price, cost}).
type Payload map[string]any

// Lookup resolves a dotted path such as "supplier.id"
func (p Payload) Lookup(path string) (any, bool) {
	if p == nil || path == "" {
		return nil, false
	}
	var cur any = map[string]any(p)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Decimal reads a numeric field. The bool is false when the field is absent
// or not numeric.
func (p Payload) Decimal(path string) (decimal.Decimal, bool) {
	v, ok := p.Lookup(path)
	if !ok {
		return decimal.Zero, false
	}
	d, err := ToDecimal(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Lines returns the document lines, skipping entries that are not objects
func (p Payload) Lines() []Payload {
	raw, ok := p.Lookup("lines")
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		if typed, ok := raw.([]map[string]any); ok {
			out := make([]Payload, 0, len(typed))
			for _, m := range typed {
				out = append(out, Payload(m))
			}
			return out
		}
		return nil
	}
	out := make([]Payload, 0, len(list))
	for _, item := range list {
		if m, ok := asMap(item); ok {
			out = append(out, Payload(m))
		}
	}
	return out
}

// Clone returns a shallow copy of the payload
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	c := make(Payload, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Payload:
		return m, true
	}
	return nil, false
}

// ToDecimal converts JSON-decoded numbers, Go numerics and numeric strings to a decimal
func ToDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case uint:
		return decimal.NewFromInt(int64(n)), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	}
	return decimal.Zero, fmt.Errorf("value of type %T is not numeric", v)
}
