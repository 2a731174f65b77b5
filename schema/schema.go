// Package schema describes DynamoDB table layouts consumed by the query planner.
package schema

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// IndexKind distinguishes global from local secondary indexes.
type IndexKind int

const (
	// Global indexes span all partitions and are eventually consistent.
	Global IndexKind = iota

	// Local indexes share the table's partition key and support consistent reads.
	Local
)

func (k IndexKind) String() string {
	if k == Local {
		return "LSI"
	}
	return "GSI"
}

// KeySchema is a partition attribute plus an optional sort attribute.
type KeySchema struct {
	PartitionAttr string `validate:"required"`
	SortAttr      string
}

// Index describes one secondary index on a table.
type Index struct {
	Name string    `validate:"required"`
	Key  KeySchema `validate:"required"`
	Kind IndexKind

	// Projected lists the non-key attributes carried by the index.
	// Empty means ALL.
	Projected []string
}

// Table is the static description of one DynamoDB table: primary key,
// secondary indexes, and the managed version/TTL attributes. Build it once
// with NewTable at startup; it is immutable afterwards and safe for
// concurrent reads.
type Table struct {
	Name        string    `validate:"required"`
	Key         KeySchema `validate:"required"`
	Indexes     []Index   `validate:"dive"`
	VersionAttr string
	TTLAttr     string

	attrs map[string]struct{}
}

// Option customizes a Table under construction.
type Option func(*Table)

// WithIndex declares a secondary index. Declaration order is significant:
// the planner breaks ties in favor of earlier indexes.
func WithIndex(idx Index) Option {
	return func(t *Table) { t.Indexes = append(t.Indexes, idx) }
}

// WithVersionAttr names the optimistic-lock counter attribute.
func WithVersionAttr(name string) Option {
	return func(t *Table) { t.VersionAttr = name }
}

// WithTTLAttr names the expiry attribute used for soft deletes.
func WithTTLAttr(name string) Option {
	return func(t *Table) { t.TTLAttr = name }
}

// WithAttributes declares additional queryable attributes beyond the ones
// already implied by the key schemas.
func WithAttributes(names ...string) Option {
	return func(t *Table) {
		for _, n := range names {
			t.attrs[n] = struct{}{}
		}
	}
}

var validate = validator.New()

// NewTable builds and validates a Table. Conflicting index declarations are
// rejected here rather than surfacing as confusing query-time failures.
func NewTable(name string, key KeySchema, opts ...Option) (*Table, error) {
	t := &Table{
		Name:  name,
		Key:   key,
		attrs: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	if err := validate.Struct(t); err != nil {
		return nil, fmt.Errorf("strata: invalid table %q: %w", name, err)
	}

	seen := make(map[string]KeySchema, len(t.Indexes))
	for _, idx := range t.Indexes {
		if prev, ok := seen[idx.Name]; ok {
			if prev != idx.Key {
				return nil, fmt.Errorf("strata: index %q declared twice with different keys (%v vs %v)",
					idx.Name, prev, idx.Key)
			}
			return nil, fmt.Errorf("strata: index %q declared twice", idx.Name)
		}
		seen[idx.Name] = idx.Key
		if idx.Kind == Local && idx.Key.PartitionAttr != t.Key.PartitionAttr {
			return nil, fmt.Errorf("strata: local index %q must share the table partition attribute %q",
				idx.Name, t.Key.PartitionAttr)
		}
	}

	t.collectAttrs()
	return t, nil
}

// MustTable is NewTable for static declarations; it panics on invalid metadata.
func MustTable(name string, key KeySchema, opts ...Option) *Table {
	t, err := NewTable(name, key, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) collectAttrs() {
	add := func(names ...string) {
		for _, n := range names {
			if n != "" {
				t.attrs[n] = struct{}{}
			}
		}
	}
	add(t.Key.PartitionAttr, t.Key.SortAttr, t.VersionAttr, t.TTLAttr)
	for _, idx := range t.Indexes {
		add(idx.Key.PartitionAttr, idx.Key.SortAttr)
		add(idx.Projected...)
	}
}

// HasAttribute reports whether name is part of the table's declared
// attribute set.
func (t *Table) HasAttribute(name string) bool {
	_, ok := t.attrs[name]
	return ok
}

// IndexByName returns the named index, or nil.
func (t *Table) IndexByName(name string) *Index {
	for i := range t.Indexes {
		if t.Indexes[i].Name == name {
			return &t.Indexes[i]
		}
	}
	return nil
}
