package store

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrNotFound is returned when a point read finds no live item.
	ErrNotFound = errors.New("strata: item not found")

	// ErrConflict is the base error for conditional writes that lost a
	// race. Retry policy belongs to the caller: blind retries without a
	// re-read defeat the lock.
	ErrConflict = errors.New("strata: optimistic lock failed")

	// ErrInvalidCursor is returned when a pagination token does not match
	// the plan it is presented against.
	ErrInvalidCursor = errors.New("strata: cursor does not match plan")

	// ErrNoVersionAttr is returned when a versioned write targets a table
	// declared without a version attribute.
	ErrNoVersionAttr = errors.New("strata: table has no version attribute")
)

// ConflictError reports which write lost its conditional check. It unwraps
// to ErrConflict.
type ConflictError struct {
	// Key identifies the conflicting item.
	Key map[string]types.AttributeValue

	// Indices holds the ordinal positions of the failed writes in a
	// transactional batch; nil for single-item writes.
	Indices []int
}

func (e *ConflictError) Error() string {
	if len(e.Indices) > 0 {
		return fmt.Sprintf("strata: optimistic lock failed for transact item(s) %v", e.Indices)
	}
	return "strata: optimistic lock failed"
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
