package store

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// expired reports whether the item's TTL attribute is set and in the past.
// Tables without a TTL attribute never expire items. DynamoDB removes
// expired items lazily, so reads must treat them as already gone.
func (s *Store) expired(item map[string]types.AttributeValue) bool {
	if s.table.TTLAttr == "" {
		return false
	}
	attr, ok := item[s.table.TTLAttr]
	if !ok {
		return false
	}
	n, ok := attr.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= time.Now().Unix()
}
