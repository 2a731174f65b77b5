package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/strata/schema"
	"github.com/jacentio/strata/store"
)

func TestSave_Insert(t *testing.T) {
	fake := &fakeDynamo{}
	s := store.New(fake, ordersTable(t))

	version, err := s.Save(context.Background(), store.Item(orderItem("C1", "T0")), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	require.Len(t, fake.putIn, 1)
	in := fake.putIn[0]
	assert.Equal(t, "orders", aws.ToString(in.TableName))
	assert.Equal(t, "attribute_not_exists(#pk)", aws.ToString(in.ConditionExpression))
	assert.Equal(t, map[string]string{"#pk": "customer_id"}, in.ExpressionAttributeNames)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1"}, in.Item["version"])
}

func TestSave_Replace(t *testing.T) {
	fake := &fakeDynamo{}
	s := store.New(fake, ordersTable(t))

	expected := int64(3)
	version, err := s.Save(context.Background(), store.Item(orderItem("C1", "T0")), &expected)
	require.NoError(t, err)
	assert.Equal(t, int64(4), version)

	require.Len(t, fake.putIn, 1)
	in := fake.putIn[0]
	assert.Equal(t, "#v = :expected", aws.ToString(in.ConditionExpression))
	assert.Equal(t, map[string]string{"#v": "version"}, in.ExpressionAttributeNames)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "3"}, in.ExpressionAttributeValues[":expected"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "4"}, in.Item["version"])
}

func TestSave_DoesNotMutateCallerItem(t *testing.T) {
	fake := &fakeDynamo{}
	s := store.New(fake, ordersTable(t))

	item := store.Item(orderItem("C1", "T0"))
	_, err := s.Save(context.Background(), item, nil)
	require.NoError(t, err)
	_, present := item["version"]
	assert.False(t, present)
}

func TestSave_Conflict(t *testing.T) {
	fake := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{}}
	s := store.New(fake, ordersTable(t))

	_, err := s.Save(context.Background(), store.Item(orderItem("C1", "T0")), nil)
	require.ErrorIs(t, err, store.ErrConflict)

	var conflict *store.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "C1"}, conflict.Key["customer_id"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "T0"}, conflict.Key["order_date"])
}

func TestSave_SecondInsertConflicts(t *testing.T) {
	// First insert wins; replaying the insert with no known version must
	// surface the race, not overwrite.
	fake := &fakeDynamo{}
	s := store.New(fake, ordersTable(t))

	_, err := s.Save(context.Background(), store.Item(orderItem("C1", "T0")), nil)
	require.NoError(t, err)

	fake.putErr = &types.ConditionalCheckFailedException{}
	_, err = s.Save(context.Background(), store.Item(orderItem("C1", "T0")), nil)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestSave_NoVersionAttr(t *testing.T) {
	tbl := schema.MustTable("plain", schema.KeySchema{PartitionAttr: "id"})
	s := store.New(&fakeDynamo{}, tbl)

	_, err := s.Save(context.Background(), store.Item{
		"id": &types.AttributeValueMemberS{Value: "x"},
	}, nil)
	assert.ErrorIs(t, err, store.ErrNoVersionAttr)
}

func TestSave_TransportErrorPropagates(t *testing.T) {
	boom := errors.New("throttled")
	fake := &fakeDynamo{putErr: boom}
	s := store.New(fake, ordersTable(t))

	_, err := s.Save(context.Background(), store.Item(orderItem("C1", "T0")), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, store.ErrConflict)
}

func TestSaveAll(t *testing.T) {
	fake := &fakeDynamo{}
	s := store.New(fake, ordersTable(t))

	expected := int64(7)
	err := s.SaveAll(context.Background(), []store.Write{
		{Item: store.Item(orderItem("C1", "T0"))},
		{Item: store.Item(orderItem("C1", "T1")), Expected: &expected},
	})
	require.NoError(t, err)

	require.Len(t, fake.txIn, 1)
	items := fake.txIn[0].TransactItems
	require.Len(t, items, 2)

	first := items[0].Put
	require.NotNil(t, first)
	assert.Equal(t, "attribute_not_exists(#pk)", aws.ToString(first.ConditionExpression))
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1"}, first.Item["version"])

	second := items[1].Put
	require.NotNil(t, second)
	assert.Equal(t, "#v = :expected", aws.ToString(second.ConditionExpression))
	assert.Equal(t, &types.AttributeValueMemberN{Value: "8"}, second.Item["version"])
}

func TestSaveAll_ConflictCarriesFailedPositions(t *testing.T) {
	fake := &fakeDynamo{
		txErr: &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("None")},
				{Code: aws.String("ConditionalCheckFailed")},
			},
		},
	}
	s := store.New(fake, ordersTable(t))

	err := s.SaveAll(context.Background(), []store.Write{
		{Item: store.Item(orderItem("C1", "T0"))},
		{Item: store.Item(orderItem("C1", "T1"))},
	})
	require.ErrorIs(t, err, store.ErrConflict)

	var conflict *store.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []int{1}, conflict.Indices)
}

func TestSaveAll_Empty(t *testing.T) {
	fake := &fakeDynamo{}
	s := store.New(fake, ordersTable(t))

	require.NoError(t, s.SaveAll(context.Background(), nil))
	assert.Empty(t, fake.txIn)
}
