// Package store executes derived access plans against DynamoDB.
//
// Strata is a repository layer for partition/sort-key data: callers declare
// query intent as structured predicates, and the planner in
// [github.com/jacentio/strata/query] picks the cheapest valid access path -
// a point read, a partitioned query, a secondary-index query, or a scan
// fallback. This package owns the execution half: paginated reads with
// opaque resumable cursors, and version-checked conditional writes.
//
// # Reads
//
//	pages, err := s.Find(ctx,
//	    []query.Cond{
//	        {Property: "customer_id", Op: query.Equal},
//	        {Property: "order_date", Op: query.Between},
//	    },
//	    []any{"C1", t0, t1},
//	    store.WithLimit(200),
//	)
//	for pages.HasMorePages() {
//	    page, err := pages.NextPage(ctx)
//	    ...
//	}
//	token, _ := pages.Cursor() // hand to the caller, resume with WithCursor
//
// Pages issued by one plan only resume against the identical plan; a
// mismatched token fails fast with [ErrInvalidCursor]. Query results arrive
// in native key order; scan order is unspecified.
//
// # Writes
//
// [Store.Save] performs a compare-and-swap on the table's version
// attribute: inserts require the key to be absent and store version 1,
// replacements require the stored version to equal the expected one and
// advance it by 1. [Store.SaveAll] applies a batch of such writes as one
// all-or-nothing transaction. Lost races surface as [*ConflictError]; this
// layer never retries them.
//
// # Errors
//
//   - [ErrNotFound] - point read found no live item
//   - [ErrConflict] / [*ConflictError] - conditional write lost a race
//   - [ErrInvalidCursor] - token presented against a different plan
//   - [ErrNoVersionAttr] - versioned write on a table without a version attribute
//
// Transport failures are wrapped with the operation kind and propagated;
// retry and backoff policy stay with the underlying client.
package store
