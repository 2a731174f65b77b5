package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Write is one conditional put: the full item plus the version the caller
// last read. A nil Expected means first insert.
type Write struct {
	Item     Item
	Expected *int64
}

// Save writes the item under an optimistic-concurrency condition. With no
// expected version the item's key must not exist yet and it is stored at
// version 1; otherwise the stored version must equal the expected one and
// advances by exactly 1. The new version is returned. On a lost race the
// error is a *ConflictError; Save never retries on its own.
func (s *Store) Save(ctx context.Context, item Item, expected *int64) (int64, error) {
	put, next, err := s.buildPut(item, expected)
	if err != nil {
		return 0, err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 put.TableName,
		Item:                      put.Item,
		ConditionExpression:       put.ConditionExpression,
		ExpressionAttributeNames:  put.ExpressionAttributeNames,
		ExpressionAttributeValues: put.ExpressionAttributeValues,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			s.log.Debug().Int64("expected", orZero(expected)).Msg("conditional write lost race")
			return 0, &ConflictError{Key: s.keyOf(item)}
		}
		return 0, fmt.Errorf("strata: conditional write: %w", err)
	}
	return next, nil
}

// SaveAll submits every write as a single all-or-nothing transaction. If
// any item's condition fails, nothing is applied and the returned
// *ConflictError carries the failed positions.
func (s *Store) SaveAll(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}

	items := make([]types.TransactWriteItem, 0, len(writes))
	for _, w := range writes {
		put, _, err := s.buildPut(w.Item, w.Expected)
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var txErr *types.TransactionCanceledException
		if errors.As(err, &txErr) {
			var failed []int
			for i, reason := range txErr.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					failed = append(failed, i)
				}
			}
			if len(failed) > 0 {
				return &ConflictError{Indices: failed}
			}
		}
		return fmt.Errorf("strata: transact write: %w", err)
	}
	return nil
}

// buildPut clones the item with the advanced version and attaches the
// insert-or-compare condition.
func (s *Store) buildPut(item Item, expected *int64) (*types.Put, int64, error) {
	versionAttr := s.table.VersionAttr
	if versionAttr == "" {
		return nil, 0, ErrNoVersionAttr
	}

	next := int64(1)
	if expected != nil {
		next = *expected + 1
	}

	stored := make(map[string]types.AttributeValue, len(item)+1)
	for k, v := range item {
		stored[k] = v
	}
	stored[versionAttr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(next, 10)}

	put := &types.Put{
		TableName: aws.String(s.table.Name),
		Item:      stored,
	}
	if expected == nil {
		put.ConditionExpression = aws.String("attribute_not_exists(#pk)")
		put.ExpressionAttributeNames = map[string]string{"#pk": s.table.Key.PartitionAttr}
	} else {
		put.ConditionExpression = aws.String("#v = :expected")
		put.ExpressionAttributeNames = map[string]string{"#v": versionAttr}
		put.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(*expected, 10)},
		}
	}
	return put, next, nil
}

// keyOf extracts the primary key attributes present on the item.
func (s *Store) keyOf(item Item) PK {
	key := make(PK, 2)
	if v, ok := item[s.table.Key.PartitionAttr]; ok {
		key[s.table.Key.PartitionAttr] = v
	}
	if s.table.Key.SortAttr != "" {
		if v, ok := item[s.table.Key.SortAttr]; ok {
			key[s.table.Key.SortAttr] = v
		}
	}
	return key
}

func orZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
