package query

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/strata/schema"
)

// Expression is a compiled plan: the key-condition and filter strings plus
// the placeholder mappings DynamoDB needs to resolve them. Placeholders are
// always used, so reserved attribute names never collide.
type Expression struct {
	KeyCondition string
	Filter       string
	Names        map[string]string
	Values       map[string]types.AttributeValue
}

// Compile renders the plan's clauses. Each distinct property gets one #pN
// placeholder and each distinct operand value one :vN placeholder; numbering
// is stable within a call. No I/O happens here.
func (p Plan) Compile() (Expression, error) {
	c := &compiler{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}

	var keyParts []string
	for i, cl := range p.KeyClauses {
		onSortKey := i > 0 && cl.Property == p.Key.SortAttr
		part, err := c.render(cl, onSortKey, p.Table)
		if err != nil {
			return Expression{}, err
		}
		keyParts = append(keyParts, part)
	}

	var filterParts []string
	for _, cl := range p.FilterClauses {
		part, err := c.render(cl, false, p.Table)
		if err != nil {
			return Expression{}, err
		}
		filterParts = append(filterParts, part)
	}

	return Expression{
		KeyCondition: strings.Join(keyParts, " AND "),
		Filter:       strings.Join(filterParts, " AND "),
		Names:        c.names,
		Values:       c.values,
	}, nil
}

type compiler struct {
	names    map[string]string
	nameByP  []string
	values   map[string]types.AttributeValue
	operands []any
	tokens   []string
}

func (c *compiler) name(property string) string {
	for i, p := range c.nameByP {
		if p == property {
			return fmt.Sprintf("#p%d", i)
		}
	}
	token := fmt.Sprintf("#p%d", len(c.nameByP))
	c.nameByP = append(c.nameByP, property)
	c.names[token] = property
	return token
}

func (c *compiler) value(v any) (string, error) {
	for i, prev := range c.operands {
		if reflect.DeepEqual(prev, v) {
			return c.tokens[i], nil
		}
	}
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("strata: marshal operand: %w", err)
	}
	token := fmt.Sprintf(":v%d", len(c.operands))
	c.operands = append(c.operands, v)
	c.tokens = append(c.tokens, token)
	c.values[token] = av
	return token, nil
}

func (c *compiler) render(cl Clause, onSortKey bool, tbl *schema.Table) (string, error) {
	name := c.name(cl.Property)

	switch cl.Op {
	case Between:
		lo, err := c.value(cl.Operands[0])
		if err != nil {
			return "", err
		}
		hi, err := c.value(cl.Operands[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", name, lo, hi), nil

	case BeginsWith:
		if !onSortKey && !isSortAttr(tbl, cl.Property) {
			return "", fmt.Errorf("%w: BEGINS_WITH on non-sort attribute %q",
				ErrUnsupportedOperator, cl.Property)
		}
		if _, ok := cl.Operands[0].(string); !ok {
			return "", fmt.Errorf("%w: BEGINS_WITH on %q needs a string operand",
				ErrUnsupportedOperator, cl.Property)
		}
		v, err := c.value(cl.Operands[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("begins_with(%s, %s)", name, v), nil

	default:
		v, err := c.value(cl.Operands[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", name, cl.Op.symbol(), v), nil
	}
}

// isSortAttr reports whether the property is the sort attribute of the
// primary key or any declared index.
func isSortAttr(tbl *schema.Table, property string) bool {
	if property == tbl.Key.SortAttr {
		return true
	}
	for _, idx := range tbl.Indexes {
		if property == idx.Key.SortAttr {
			return true
		}
	}
	return false
}
