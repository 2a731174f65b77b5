package query

import (
	"fmt"

	"github.com/jacentio/strata/schema"
)

// Cond is one element of a query descriptor: a property name tagged with an
// operator. Operand values are supplied positionally to Parse.
type Cond struct {
	Property string
	Op       Operator
}

// Clause is a parsed condition with its operand values bound.
type Clause struct {
	Property string
	Op       Operator

	// Operands holds one value, or two for Between (lower then upper,
	// both inclusive).
	Operands []any
}

// Parse binds positional values to a descriptor, producing clauses in
// declaration order. It fails before any I/O when a property is not part of
// the table's declared attribute set, when an operator's arity does not
// match the values available, or when values are left over.
func Parse(tbl *schema.Table, conds []Cond, values []any) ([]Clause, error) {
	clauses := make([]Clause, 0, len(conds))
	pos := 0
	for _, c := range conds {
		if c.Property == "" {
			return nil, fmt.Errorf("%w: empty property name", ErrMalformedQuery)
		}
		if !tbl.HasAttribute(c.Property) {
			return nil, fmt.Errorf("%w: unknown property %q on table %q",
				ErrMalformedQuery, c.Property, tbl.Name)
		}
		n := c.Op.Arity()
		if pos+n > len(values) {
			return nil, fmt.Errorf("%w: %s %s needs %d operand(s), %d left",
				ErrMalformedQuery, c.Property, c.Op, n, len(values)-pos)
		}
		operands := make([]any, n)
		copy(operands, values[pos:pos+n])
		pos += n
		clauses = append(clauses, Clause{Property: c.Property, Op: c.Op, Operands: operands})
	}
	if pos != len(values) {
		return nil, fmt.Errorf("%w: %d unused operand value(s)", ErrMalformedQuery, len(values)-pos)
	}
	return clauses, nil
}
