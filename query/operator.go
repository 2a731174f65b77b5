// Package query derives DynamoDB access plans from structured predicates.
//
// A caller describes intent as an ordered list of (property, operator)
// conditions plus positional operand values. Parse turns that into clauses,
// Select picks the cheapest key schema able to serve them, and Compile
// renders the result into DynamoDB key-condition and filter expressions
// with placeholder indirection.
package query

import "errors"

// Operator is a comparison operator on a single property.
type Operator int

const (
	Equal Operator = iota
	LessThan
	LessOrEqual
	GreaterThan
	GreaterOrEqual
	Between
	BeginsWith
)

var opNames = [...]string{"EQ", "LT", "LE", "GT", "GE", "BETWEEN", "BEGINS_WITH"}

func (op Operator) String() string {
	if op < Equal || op > BeginsWith {
		return "UNKNOWN"
	}
	return opNames[op]
}

// Arity returns the number of operand values the operator consumes.
func (op Operator) Arity() int {
	if op == Between {
		return 2
	}
	return 1
}

// symbol returns the DynamoDB comparator for the simple binary operators.
func (op Operator) symbol() string {
	switch op {
	case Equal:
		return "="
	case LessThan:
		return "<"
	case LessOrEqual:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterOrEqual:
		return ">="
	}
	return ""
}

var (
	// ErrMalformedQuery is returned when a descriptor references an unknown
	// property or its operand count does not match the operator arity.
	ErrMalformedQuery = errors.New("strata: malformed query descriptor")

	// ErrUnsupportedOperator is returned when an operator cannot be applied
	// to the attribute it targets (BEGINS_WITH off the sort key, or with a
	// non-string operand).
	ErrUnsupportedOperator = errors.New("strata: operator not supported for attribute")
)
