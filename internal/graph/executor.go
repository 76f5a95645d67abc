package graph

import (
	"context"
	"fmt"

	"github.com/rohankatakam/ogm/internal/cypher"
)

// Executor runs one statement and returns its rows and update counters
type Executor interface {
	Execute(ctx context.Context, stmt cypher.Statement) (*Result, error)
}

// Transactor runs work inside a write transaction. The transaction commits
// when work returns nil and rolls back otherwise; the error from work is
// returned unchanged.
type Transactor interface {
	WriteTransaction(ctx context.Context, work func(ctx context.Context, tx Executor) error) error
}

// Result is what a statement produced
type Result struct {
	Rows     []map[string]any
	Counters Counters
}

// Counters are the update statistics reported for a statement
type Counters struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	PropertiesSet        int
	LabelsAdded          int
	LabelsRemoved        int
	IndexesAdded         int
	IndexesRemoved       int
	ConstraintsAdded     int
	ConstraintsRemoved   int
}

// ContainsUpdates reports whether the statement changed the graph
func (c Counters) ContainsUpdates() bool {
	return c != Counters{}
}

// Int64 reads a numeric column value. The bolt protocol returns int64 for
// integers; other integer kinds are accepted for fakes and HTTP transports.
func Int64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("non-integral id %v", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected id type %T", v)
	}
}
