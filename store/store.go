package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/jacentio/strata/query"
	"github.com/jacentio/strata/schema"
)

// Item is a raw DynamoDB item.
type Item map[string]types.AttributeValue

// PK is a DynamoDB primary key.
type PK map[string]types.AttributeValue

// DynamoAPI is the subset of the DynamoDB client this package issues calls
// through. Narrowing to an interface keeps tests off the network.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store executes derived access plans against one table. A Store holds no
// per-call state: independent queries and writes may run concurrently.
type Store struct {
	client   DynamoAPI
	table    *schema.Table
	log      zerolog.Logger
	pageSize int32
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger attaches a structured logger. Scan fallbacks are reported
// through it at warn level.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithPageSize sets the default per-call page size hint for queries and
// scans.
func WithPageSize(n int32) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// New creates a Store bound to a validated table description.
func New(client DynamoAPI, table *schema.Table, opts ...Option) *Store {
	s := &Store{
		client:   client,
		table:    table,
		log:      zerolog.Nop(),
		pageSize: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("table", table.Name).Logger()
	return s
}

// Table returns the table description the store is bound to.
func (s *Store) Table() *schema.Table { return s.table }

// Find derives an access plan for the descriptor and returns a page
// iterator over the matching items. Validation failures surface here,
// before any network call.
func (s *Store) Find(ctx context.Context, conds []query.Cond, values []any, opts ...FindOption) (*Pages, error) {
	clauses, err := query.Parse(s.table, conds, values)
	if err != nil {
		return nil, err
	}
	plan := query.Select(s.table, clauses)
	if plan.Source == query.SourceScan {
		s.log.Warn().
			Int("filter_clauses", len(plan.FilterClauses)).
			Msg("no eligible key schema, falling back to scan")
	} else {
		s.log.Debug().
			Stringer("source", plan.Source).
			Str("index", plan.Index).
			Msg("access plan selected")
	}
	return s.Execute(plan, opts...)
}

// Execute prepares a page iterator for an already-selected plan.
func (s *Store) Execute(plan query.Plan, opts ...FindOption) (*Pages, error) {
	expr, err := plan.Compile()
	if err != nil {
		return nil, err
	}

	var fo findOptions
	for _, opt := range opts {
		opt(&fo)
	}
	if fo.consistent && plan.Source == query.SourceIndexQuery {
		return nil, fmt.Errorf("strata: consistent reads are not supported on index %q", plan.Index)
	}

	p := &Pages{
		store:   s,
		plan:    plan,
		expr:    expr,
		limit:   fo.limit,
		desc:    fo.descending,
		strong:  fo.consistent,
		sig:     planSignature(plan),
		hasMore: true,
	}
	if fo.cursor != "" {
		start, err := decodeCursor(fo.cursor, p.sig)
		if err != nil {
			return nil, err
		}
		p.lastKey = start
	}
	return p, nil
}

// FindOne runs a point lookup descriptor and returns the single matching
// item, or ErrNotFound.
func (s *Store) FindOne(ctx context.Context, conds []query.Cond, values []any) (Item, error) {
	pages, err := s.Find(ctx, conds, values)
	if err != nil {
		return nil, err
	}
	items, err := pages.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

// Get issues a point read for an explicit primary key. Items whose TTL has
// expired are reported as absent.
func (s *Store) Get(ctx context.Context, key PK) (Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table.Name),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("strata: get item: %w", err)
	}
	if out.Item == nil || s.expired(out.Item) {
		return nil, ErrNotFound
	}
	return out.Item, nil
}

type findOptions struct {
	limit      int
	cursor     string
	descending bool
	consistent bool
}

// FindOption adjusts one Find execution.
type FindOption func(*findOptions)

// WithLimit caps the total number of items yielded across all pages.
func WithLimit(n int) FindOption {
	return func(o *findOptions) { o.limit = n }
}

// WithCursor resumes a previous execution of the identical plan from an
// opaque pagination token.
func WithCursor(token string) FindOption {
	return func(o *findOptions) { o.cursor = token }
}

// WithDescending reverses the sort-key order of query results.
func WithDescending() FindOption {
	return func(o *findOptions) { o.descending = true }
}

// WithConsistentRead requests strongly consistent reads. Not valid for
// secondary-index plans.
func WithConsistentRead() FindOption {
	return func(o *findOptions) { o.consistent = true }
}
