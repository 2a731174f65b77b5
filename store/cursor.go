package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/strata/internal/lastkey"
	"github.com/jacentio/strata/query"
)

// cursorToken is the decoded form of a pagination token: the last-evaluated
// key plus a signature of the plan that produced it. Callers treat the
// encoded token as opaque.
type cursorToken struct {
	Sig uint64                  `json:"sig"`
	Key map[string]lastkey.Attr `json:"key"`
}

// planSignature fingerprints the parts of a plan a cursor depends on: the
// table, operation, index, key schema, and the filter clause set. A cursor
// is only replayable against a plan with the same signature.
func planSignature(plan query.Plan) uint64 {
	h := fnv.New64a()
	write := func(parts ...string) {
		for _, s := range parts {
			h.Write([]byte(s))
			h.Write([]byte{0})
		}
	}
	write(plan.Table.Name, plan.Source.String(), plan.Index)
	write(plan.Key.PartitionAttr, plan.Key.SortAttr)
	for _, cl := range plan.KeyClauses {
		write(cl.Property, cl.Op.String())
	}
	for _, cl := range plan.FilterClauses {
		write(cl.Property, cl.Op.String())
	}
	return h.Sum64()
}

func encodeCursor(sig uint64, key map[string]types.AttributeValue) (string, error) {
	wire, err := lastkey.Encode(key)
	if err != nil {
		return "", fmt.Errorf("strata: encode cursor: %w", err)
	}
	b, err := json.Marshal(cursorToken{Sig: sig, Key: wire})
	if err != nil {
		return "", fmt.Errorf("strata: encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeCursor(token string, wantSig uint64) (map[string]types.AttributeValue, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var tok cursorToken
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if tok.Sig != wantSig {
		return nil, fmt.Errorf("%w: token was issued for a different plan", ErrInvalidCursor)
	}
	key, err := lastkey.Decode(tok.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidCursor)
	}
	return key, nil
}
