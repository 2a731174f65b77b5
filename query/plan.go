package query

import "github.com/jacentio/strata/schema"

// Source identifies the low-level read operation a plan compiles to.
type Source int

const (
	// SourceGet is a point read on the primary key.
	SourceGet Source = iota

	// SourceQuery is a partitioned query on the primary key.
	SourceQuery

	// SourceIndexQuery is a partitioned query on a secondary index.
	SourceIndexQuery

	// SourceScan is the full-table fallback with every clause in the filter.
	SourceScan
)

func (s Source) String() string {
	switch s {
	case SourceGet:
		return "get"
	case SourceQuery:
		return "query"
	case SourceIndexQuery:
		return "index-query"
	}
	return "scan"
}

// Plan is the chosen access path for one set of clauses. Plans are built
// fresh per call and never persisted.
type Plan struct {
	Table  *schema.Table
	Source Source

	// Index is the secondary index name when Source is SourceIndexQuery.
	Index string

	// Key is the key schema of the winning candidate (zero for scans).
	Key schema.KeySchema

	// KeyClauses holds the partition clause and, when covered, the sort
	// clause, in that order.
	KeyClauses []Clause

	// FilterClauses holds every remaining clause in declaration order,
	// including duplicates demoted off an already-consumed key attribute.
	FilterClauses []Clause
}

type candidate struct {
	key   schema.KeySchema
	index string
	// rank orders primary(0) < local(1) < global(2).
	rank int
}

// Select chooses the cheapest valid access path for the clauses: the primary
// key or a secondary index whose partition attribute is bound by an equality
// clause, preferring candidates whose sort attribute is also covered, then
// primary over local over global, then declaration order. With no eligible
// candidate it falls back to a scan; callers should treat that as a cost
// signal. Deterministic for a given (clauses, table) input.
func Select(tbl *schema.Table, clauses []Clause) Plan {
	candidates := make([]candidate, 0, len(tbl.Indexes)+1)
	candidates = append(candidates, candidate{key: tbl.Key})
	for _, idx := range tbl.Indexes {
		rank := 2
		if idx.Kind == schema.Local {
			rank = 1
		}
		candidates = append(candidates, candidate{key: idx.Key, index: idx.Name, rank: rank})
	}

	best := -1
	bestPK, bestSK := -1, -1
	for i, c := range candidates {
		pk, sk := coverage(c.key, clauses)
		if pk < 0 {
			continue
		}
		if best < 0 || better(c, sk >= 0, candidates[best], bestSK >= 0) {
			best, bestPK, bestSK = i, pk, sk
		}
	}

	if best < 0 {
		filters := make([]Clause, len(clauses))
		copy(filters, clauses)
		return Plan{Table: tbl, Source: SourceScan, FilterClauses: filters}
	}

	winner := candidates[best]
	plan := Plan{Table: tbl, Key: winner.key, Index: winner.index}
	plan.KeyClauses = append(plan.KeyClauses, clauses[bestPK])
	if bestSK >= 0 {
		plan.KeyClauses = append(plan.KeyClauses, clauses[bestSK])
	}
	for i, cl := range clauses {
		if i != bestPK && i != bestSK {
			plan.FilterClauses = append(plan.FilterClauses, cl)
		}
	}

	switch {
	case winner.index != "":
		plan.Source = SourceIndexQuery
	case pointRead(winner.key, plan):
		plan.Source = SourceGet
	default:
		plan.Source = SourceQuery
	}
	return plan
}

// coverage finds the first clause binding the candidate's partition
// attribute with EQ and the first distinct clause touching its sort
// attribute with any operator. A second clause on the same attribute is
// deliberately left for the filter rather than merged.
func coverage(key schema.KeySchema, clauses []Clause) (pk, sk int) {
	pk, sk = -1, -1
	for i, c := range clauses {
		if pk < 0 && c.Property == key.PartitionAttr && c.Op == Equal {
			pk = i
			continue
		}
		if sk < 0 && key.SortAttr != "" && c.Property == key.SortAttr {
			sk = i
		}
	}
	if pk < 0 {
		return -1, -1
	}
	return pk, sk
}

// better reports whether candidate a beats the current best b. Candidates
// are visited in declaration order, so ties keep b.
func better(a candidate, aSort bool, b candidate, bSort bool) bool {
	if aSort != bSort {
		return aSort
	}
	return a.rank < b.rank
}

// pointRead reports whether the primary-key plan is a strict point lookup:
// every key attribute bound by equality and nothing left to filter.
func pointRead(key schema.KeySchema, plan Plan) bool {
	if len(plan.FilterClauses) > 0 {
		return false
	}
	if key.SortAttr == "" {
		return len(plan.KeyClauses) == 1
	}
	if len(plan.KeyClauses) != 2 {
		return false
	}
	return plan.KeyClauses[1].Op == Equal
}
