package session

import (
	"fmt"
	"strings"

	"github.com/rohankatakam/ogm/internal/cypher"
	"github.com/rohankatakam/ogm/internal/errors"
	"github.com/rohankatakam/ogm/internal/graph"
)

// LockState is the position of a LockGuard in its lifecycle
type LockState int

const (
	Unchecked LockState = iota
	Applying
	Committed
	Rejected
)

func (s LockState) String() string {
	switch s {
	case Unchecked:
		return "unchecked"
	case Applying:
		return "applying"
	case Committed:
		return "committed"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("LockState(%d)", int(s))
}

// Conflict is a version check that did not hold
type Conflict struct {
	Reference cypher.Reference
	Property  string
	Expected  int64
}

// LockOutcome is the result of checking a statement's guards
type LockOutcome struct {
	State     LockState
	Conflicts []Conflict
}

// Err converts a rejected outcome into an ErrConflict error
func (o LockOutcome) Err() error {
	if o.State != Rejected {
		return nil
	}
	refs := make([]string, len(o.Conflicts))
	for i, c := range o.Conflicts {
		refs[i] = fmt.Sprintf("%s.%s=%d", c.Reference, c.Property, c.Expected)
	}
	return errors.ConflictErrorf("optimistic lock failed: stored version changed or element was deleted").
		WithContext("conflicts", strings.Join(refs, ","))
}

// LockGuard decides whether the guards of one compilation held. It moves
// from Unchecked to Applying when the statement is sent and to Committed or
// Rejected once the result has been checked.
type LockGuard struct {
	guards []cypher.Guard
	state  LockState
}

// NewLockGuard creates a guard for the version checks of comp
func NewLockGuard(comp *cypher.Compilation) *LockGuard {
	return &LockGuard{guards: comp.Guards}
}

// State returns the current state
func (g *LockGuard) State() LockState { return g.state }

// Begin marks the statement as being applied
func (g *LockGuard) Begin() error {
	if g.state != Unchecked {
		return errors.InternalErrorf("lock guard cannot begin from state %s", g.state)
	}
	g.state = Applying
	return nil
}

// Check inspects the execution result. Row guards are missed when the
// statement returned no rows. Deletion guards are missed when fewer nodes,
// or fewer relationships, were deleted than were guarded.
func (g *LockGuard) Check(res *graph.Result) (LockOutcome, error) {
	if g.state != Applying {
		return LockOutcome{State: g.state}, errors.InternalErrorf("lock guard cannot check from state %s", g.state)
	}

	var conflicts []Conflict
	var nodeDeletes, relDeletes []cypher.Guard
	for _, guard := range g.guards {
		switch {
		case guard.Delete && guard.Reference.Kind() == cypher.KindExistingRelationship:
			relDeletes = append(relDeletes, guard)
		case guard.Delete:
			nodeDeletes = append(nodeDeletes, guard)
		case len(res.Rows) == 0:
			conflicts = append(conflicts, conflictOf(guard))
		}
	}
	if len(nodeDeletes) > 0 && res.Counters.NodesDeleted < len(nodeDeletes) {
		for _, guard := range nodeDeletes {
			conflicts = append(conflicts, conflictOf(guard))
		}
	}
	if len(relDeletes) > 0 && res.Counters.RelationshipsDeleted < len(relDeletes) {
		for _, guard := range relDeletes {
			conflicts = append(conflicts, conflictOf(guard))
		}
	}

	if len(conflicts) > 0 {
		g.state = Rejected
	} else {
		g.state = Committed
	}
	return LockOutcome{State: g.state, Conflicts: conflicts}, nil
}

func conflictOf(g cypher.Guard) Conflict {
	return Conflict{Reference: g.Reference, Property: g.Property, Expected: g.Expected}
}
