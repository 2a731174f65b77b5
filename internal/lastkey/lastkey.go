// Package lastkey round-trips DynamoDB last-evaluated keys through a
// JSON-safe wire form for embedding in pagination tokens.
package lastkey

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attr is the wire form of a single key attribute. Key attributes are
// always scalar S, N, or B in DynamoDB.
type Attr struct {
	S *string `json:"s,omitempty"`
	N *string `json:"n,omitempty"`
	B []byte  `json:"b,omitempty"`
}

// Encode converts a last-evaluated key into its wire form.
func Encode(key map[string]types.AttributeValue) (map[string]Attr, error) {
	out := make(map[string]Attr, len(key))
	for name, av := range key {
		switch v := av.(type) {
		case *types.AttributeValueMemberS:
			s := v.Value
			out[name] = Attr{S: &s}
		case *types.AttributeValueMemberN:
			n := v.Value
			out[name] = Attr{N: &n}
		case *types.AttributeValueMemberB:
			out[name] = Attr{B: v.Value}
		default:
			return nil, fmt.Errorf("lastkey: attribute %q has non-key type %T", name, av)
		}
	}
	return out, nil
}

// Decode converts a wire-form key back into attribute values.
func Decode(wire map[string]Attr) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(wire))
	for name, a := range wire {
		switch {
		case a.S != nil:
			out[name] = &types.AttributeValueMemberS{Value: *a.S}
		case a.N != nil:
			out[name] = &types.AttributeValueMemberN{Value: *a.N}
		case a.B != nil:
			out[name] = &types.AttributeValueMemberB{Value: a.B}
		default:
			return nil, fmt.Errorf("lastkey: attribute %q has no value", name)
		}
	}
	return out, nil
}
