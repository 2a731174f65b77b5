package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/strata/query"
)

// Pages is a restartable page iterator over one access plan. Each NextPage
// issues at most one store call; abandoning the iterator between pages has
// no side effects. The store evaluates filters after its internal page-size
// cutoff, so a page may legitimately come back empty while more pages
// remain - callers loop on HasMorePages, not on page emptiness.
type Pages struct {
	store *Store
	plan  query.Plan
	expr  query.Expression

	limit   int
	yielded int
	desc    bool
	strong  bool

	sig     uint64
	lastKey map[string]types.AttributeValue
	hasMore bool
}

// HasMorePages reports whether another NextPage call can yield items.
func (p *Pages) HasMorePages() bool {
	return p.hasMore
}

// NextPage issues one store call and returns its (possibly empty) page.
func (p *Pages) NextPage(ctx context.Context) ([]Item, error) {
	if !p.hasMore {
		return nil, nil
	}
	if p.plan.Source == query.SourceGet {
		return p.getPage(ctx)
	}

	var (
		raw  []map[string]types.AttributeValue
		next map[string]types.AttributeValue
		err  error
	)
	if p.plan.Source == query.SourceScan {
		raw, next, err = p.scanPage(ctx)
	} else {
		raw, next, err = p.queryPage(ctx)
	}
	if err != nil {
		return nil, err
	}

	p.lastKey = next
	p.hasMore = len(next) > 0

	items := make([]Item, 0, len(raw))
	for _, it := range raw {
		if p.store.expired(it) {
			continue
		}
		items = append(items, it)
		if p.limit > 0 && p.yielded+len(items) == p.limit {
			p.hasMore = false
			break
		}
	}
	p.yielded += len(items)
	return items, nil
}

// All drains the iterator, honoring the overall limit.
func (p *Pages) All(ctx context.Context) ([]Item, error) {
	var items []Item
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)
	}
	return items, nil
}

// Cursor returns the opaque token to resume after the last page served, or
// an empty string when the result set is exhausted. Tokens are bound to the
// plan they came from; presenting one against a different plan fails with
// ErrInvalidCursor.
func (p *Pages) Cursor() (string, error) {
	if !p.hasMore || len(p.lastKey) == 0 {
		return "", nil
	}
	return encodeCursor(p.sig, p.lastKey)
}

func (p *Pages) getPage(ctx context.Context) ([]Item, error) {
	p.hasMore = false

	key, err := p.keyFromClauses()
	if err != nil {
		return nil, err
	}
	out, err := p.store.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(p.plan.Table.Name),
		Key:            key,
		ConsistentRead: aws.Bool(p.strong),
	})
	if err != nil {
		return nil, fmt.Errorf("strata: get item: %w", err)
	}
	if out.Item == nil || p.store.expired(out.Item) {
		return nil, nil
	}
	return []Item{out.Item}, nil
}

func (p *Pages) queryPage(ctx context.Context) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(p.plan.Table.Name),
		KeyConditionExpression:    aws.String(p.expr.KeyCondition),
		ExpressionAttributeNames:  p.expr.Names,
		ExpressionAttributeValues: p.expr.Values,
		Limit:                     aws.Int32(p.store.pageSize),
		ExclusiveStartKey:         p.lastKey,
	}
	if p.expr.Filter != "" {
		input.FilterExpression = aws.String(p.expr.Filter)
	}
	if p.plan.Index != "" {
		input.IndexName = aws.String(p.plan.Index)
	}
	if p.desc {
		input.ScanIndexForward = aws.Bool(false)
	}
	if p.strong {
		input.ConsistentRead = aws.Bool(true)
	}

	out, err := p.store.client.Query(ctx, input)
	if err != nil {
		return nil, nil, fmt.Errorf("strata: query page: %w", err)
	}
	return out.Items, out.LastEvaluatedKey, nil
}

func (p *Pages) scanPage(ctx context.Context) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, error) {
	input := &dynamodb.ScanInput{
		TableName:         aws.String(p.plan.Table.Name),
		Limit:             aws.Int32(p.store.pageSize),
		ExclusiveStartKey: p.lastKey,
	}
	if p.expr.Filter != "" {
		input.FilterExpression = aws.String(p.expr.Filter)
		input.ExpressionAttributeNames = p.expr.Names
		input.ExpressionAttributeValues = p.expr.Values
	}
	if p.strong {
		input.ConsistentRead = aws.Bool(true)
	}

	out, err := p.store.client.Scan(ctx, input)
	if err != nil {
		return nil, nil, fmt.Errorf("strata: scan page: %w", err)
	}
	return out.Items, out.LastEvaluatedKey, nil
}

// keyFromClauses assembles the full primary key from the plan's equality
// clauses for point reads.
func (p *Pages) keyFromClauses() (PK, error) {
	key := make(PK, len(p.plan.KeyClauses))
	for _, cl := range p.plan.KeyClauses {
		av, err := attributevalue.Marshal(cl.Operands[0])
		if err != nil {
			return nil, fmt.Errorf("strata: marshal key attribute %q: %w", cl.Property, err)
		}
		key[cl.Property] = av
	}
	return key, nil
}
