//go:build e2e

// Package e2e exercises strata against a real DynamoDB table.
// Run with: go test -tags=e2e -v ./e2e/...
package e2e

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/strata/query"
	"github.com/jacentio/strata/schema"
	"github.com/jacentio/strata/store"
)

const statusIndex = "customer-status-index"

var (
	tableName string
	client    *dynamodb.Client
	testStore *store.Store
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		panic(err)
	}
	client = dynamodb.NewFromConfig(cfg)

	tableName = "strata-e2e-" + uuid.NewString()
	if err := createTable(ctx); err != nil {
		panic(err)
	}

	tbl := schema.MustTable(tableName,
		schema.KeySchema{PartitionAttr: "customer_id", SortAttr: "order_date"},
		schema.WithIndex(schema.Index{
			Name: statusIndex,
			Key:  schema.KeySchema{PartitionAttr: "customer_id", SortAttr: "status"},
			Kind: schema.Global,
		}),
		schema.WithVersionAttr("version"),
		schema.WithAttributes("total"),
	)
	testStore = store.New(client, tbl, store.WithPageSize(2))

	code := m.Run()

	_, _ = client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	})
	os.Exit(code)
}

func createTable(ctx context.Context) error {
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: ddbtypes.BillingModePayPerRequest,
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String("customer_id"), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("order_date"), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("status"), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String("customer_id"), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String("order_date"), KeyType: ddbtypes.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []ddbtypes.GlobalSecondaryIndex{
			{
				IndexName: aws.String(statusIndex),
				KeySchema: []ddbtypes.KeySchemaElement{
					{AttributeName: aws.String("customer_id"), KeyType: ddbtypes.KeyTypeHash},
					{AttributeName: aws.String("status"), KeyType: ddbtypes.KeyTypeRange},
				},
				Projection: &ddbtypes.Projection{ProjectionType: ddbtypes.ProjectionTypeAll},
			},
		},
	})
	if err != nil {
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, 2*time.Minute)
}

func order(customer, date, status string) store.Item {
	return store.Item{
		"customer_id": &ddbtypes.AttributeValueMemberS{Value: customer},
		"order_date":  &ddbtypes.AttributeValueMemberS{Value: date},
		"status":      &ddbtypes.AttributeValueMemberS{Value: status},
	}
}

func seed(t *testing.T, items ...store.Item) {
	t.Helper()
	for _, item := range items {
		if _, err := testStore.Save(context.Background(), item, nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestRangeQueryPaginates(t *testing.T) {
	ctx := context.Background()
	customer := uuid.NewString()
	seed(t,
		order(customer, "2024-01-05", "DONE"),
		order(customer, "2024-02-10", "DONE"),
		order(customer, "2024-03-15", "OPEN"),
		order(customer, "2024-08-01", "OPEN"),
	)

	pages, err := testStore.Find(ctx,
		[]query.Cond{
			{Property: "customer_id", Op: query.Equal},
			{Property: "order_date", Op: query.Between},
		},
		[]any{customer, "2024-01-01", "2024-06-30"},
	)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	items, err := pages.All(ctx)
	if err != nil {
		t.Fatalf("pages: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items in range, got %d", len(items))
	}
}

func TestCursorResumes(t *testing.T) {
	ctx := context.Background()
	customer := uuid.NewString()
	seed(t,
		order(customer, "2024-01-01", "DONE"),
		order(customer, "2024-01-02", "DONE"),
		order(customer, "2024-01-03", "DONE"),
	)

	conds := []query.Cond{{Property: "customer_id", Op: query.Equal}}
	values := []any{customer}

	pages, err := testStore.Find(ctx, conds, values)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	first, err := pages.NextPage(ctx)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	token, err := pages.Cursor()
	if err != nil || token == "" {
		t.Fatalf("cursor: %q %v", token, err)
	}

	resumed, err := testStore.Find(ctx, conds, values, store.WithCursor(token))
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	rest, err := resumed.All(ctx)
	if err != nil {
		t.Fatalf("rest: %v", err)
	}
	if len(first)+len(rest) != 3 {
		t.Fatalf("expected 3 items total, got %d + %d", len(first), len(rest))
	}
	for _, it := range rest {
		date := it["order_date"].(*ddbtypes.AttributeValueMemberS).Value
		for _, f := range first {
			if date == f["order_date"].(*ddbtypes.AttributeValueMemberS).Value {
				t.Fatalf("cursor repeated item %s", date)
			}
		}
	}
}

func TestIndexQuery(t *testing.T) {
	ctx := context.Background()
	customer := uuid.NewString()
	seed(t,
		order(customer, "2024-01-01", "DONE"),
		order(customer, "2024-01-02", "OPEN"),
	)

	// GSIs are eventually consistent; give replication a moment.
	time.Sleep(2 * time.Second)

	items, err := testStore.Find(ctx,
		[]query.Cond{
			{Property: "customer_id", Op: query.Equal},
			{Property: "status", Op: query.Equal},
		},
		[]any{customer, "DONE"},
	)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	all, err := items.All(ctx)
	if err != nil {
		t.Fatalf("pages: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 DONE order, got %d", len(all))
	}
}

func TestOptimisticLock(t *testing.T) {
	ctx := context.Background()
	customer := uuid.NewString()
	item := order(customer, "2024-01-01", "OPEN")

	v1, err := testStore.Save(ctx, item, nil)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if v1 != 1 {
		t.Fatalf("expected version 1, got %d", v1)
	}

	// Second blind insert must lose.
	if _, err := testStore.Save(ctx, item, nil); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// Two writers with the same known version: exactly one advances.
	item["status"] = &ddbtypes.AttributeValueMemberS{Value: "DONE"}
	v2, err := testStore.Save(ctx, item, &v1)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if v2 != 2 {
		t.Fatalf("expected version 2, got %d", v2)
	}
	if _, err := testStore.Save(ctx, item, &v1); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected stale writer to conflict, got %v", err)
	}
}
