package session

import (
	"context"
	"reflect"
	"sort"

	"github.com/rohankatakam/ogm/internal/cypher"
	"github.com/rohankatakam/ogm/internal/errors"
	"github.com/rohankatakam/ogm/internal/graph"
	"github.com/rohankatakam/ogm/internal/mapping"
	"github.com/rohankatakam/ogm/internal/metadata"
)

const (
	reloadNodeQuery = "MATCH (n) WHERE id(n) = $id " +
		"OPTIONAL MATCH (n)-[r]-(m) " +
		"RETURN labels(n) AS labels, properties(n) AS props, " +
		"collect({type: type(r), start: id(startNode(r)), other: id(m), id: id(r)}) AS edges"
	reloadRelationshipQuery = "MATCH ()-[r]->() WHERE id(r) = $id RETURN properties(r) AS props"
)

type storedState struct {
	labels []string
	props  map[string]any
	edges  []mapping.Edge
}

// Reload reads the stored labels, properties and version of obj into it and
// records the stored relationships in its snapshot. It is the way back to a
// consistent state after ErrConflict.
func (s *Session) Reload(ctx context.Context, obj any) error {
	log := s.operationLogger("reload")
	class, ref, err := s.storedReference(obj)
	if err != nil {
		return err
	}

	var state *storedState
	err = s.read(ctx, func(ctx context.Context, tx graph.Executor) error {
		var err error
		if class.IsRelationshipEntity() {
			state, err = readRelationship(ctx, tx, ref.ID())
		} else {
			state, err = readNode(ctx, tx, ref.ID())
		}
		return err
	})
	if err != nil {
		if errors.Is(err, errors.ErrConflict) {
			s.invalidate(ctx, log, []Conflict{{Reference: ref}})
		}
		return err
	}

	// validate every value before mutating obj
	scratch := cloneObject(obj)
	if err := applyState(class, scratch, state); err != nil {
		return err
	}
	if err := applyState(class, obj, state); err != nil {
		return err
	}

	snap := mapping.NewSnapshot(s.meta, class, obj, nil, false)
	if !class.IsRelationshipEntity() {
		snap.Edges = state.edges
	}
	if err := s.putSnapshot(ctx, ref, snap); err != nil {
		return err
	}
	s.mu.Lock()
	s.identity[ref] = obj
	s.mu.Unlock()

	log.WithField("ref", ref.String()).Info("Reload complete")
	return nil
}

func (s *Session) read(ctx context.Context, work func(ctx context.Context, tx graph.Executor) error) error {
	if r, ok := s.tx.(ReadTransactor); ok {
		return r.ReadTransaction(ctx, work)
	}
	return s.tx.WriteTransaction(ctx, work)
}

func readNode(ctx context.Context, tx graph.Executor, id int64) (*storedState, error) {
	res, err := tx.Execute(ctx, cypher.Statement{Text: reloadNodeQuery, Parameters: map[string]any{"id": id}})
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, errors.ConflictErrorf("node %d no longer exists", id)
	}
	row := res.Rows[0]

	state := &storedState{props: asMap(row["props"])}
	if raw, ok := row["labels"].([]any); ok {
		for _, l := range raw {
			if s, ok := l.(string); ok {
				state.labels = append(state.labels, s)
			}
		}
	}
	raw, _ := row["edges"].([]any)
	for _, item := range raw {
		e := asMap(item)
		if e["id"] == nil {
			// OPTIONAL MATCH without a relationship
			continue
		}
		relID, err := graph.Int64(e["id"])
		if err != nil {
			return nil, errors.CorrelationErrorf("relationship id of node %d: %v", id, err)
		}
		start, err := graph.Int64(e["start"])
		if err != nil {
			return nil, errors.CorrelationErrorf("relationship start of node %d: %v", id, err)
		}
		other, err := graph.Int64(e["other"])
		if err != nil {
			return nil, errors.CorrelationErrorf("relationship end of node %d: %v", id, err)
		}
		typ, _ := e["type"].(string)
		edge := mapping.Edge{Type: typ, Direction: metadata.Outgoing, Other: other, ID: &relID}
		if start != id {
			edge.Direction = metadata.Incoming
		}
		state.edges = append(state.edges, edge)
	}
	sort.SliceStable(state.edges, func(i, j int) bool {
		a, b := state.edges[i], state.edges[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Direction != b.Direction {
			return a.Direction < b.Direction
		}
		return a.Other < b.Other
	})
	return state, nil
}

func readRelationship(ctx context.Context, tx graph.Executor, id int64) (*storedState, error) {
	res, err := tx.Execute(ctx, cypher.Statement{Text: reloadRelationshipQuery, Parameters: map[string]any{"id": id}})
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, errors.ConflictErrorf("relationship %d no longer exists", id)
	}
	return &storedState{props: asMap(res.Rows[0]["props"])}, nil
}

func applyState(class metadata.Class, obj any, state *storedState) error {
	for _, name := range class.PropertyNames() {
		if err := class.SetProperty(obj, name, state.props[name]); err != nil {
			return errors.ValidationErrorf("stored property %s of %s: %v", name, class.Name(), err)
		}
	}
	if v := class.VersionProperty(); v != "" {
		var version int64
		if raw, ok := state.props[v]; ok && raw != nil {
			n, err := graph.Int64(raw)
			if err != nil {
				return errors.ValidationErrorf("stored version of %s: %v", class.Name(), err)
			}
			version = n
		}
		class.SetVersion(obj, version)
	}
	if !class.IsRelationshipEntity() {
		class.SetExtraLabels(obj, state.labels)
	}
	return nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

// cloneObject returns a shallow copy of the struct obj points to
func cloneObject(obj any) any {
	v := reflect.ValueOf(obj)
	c := reflect.New(v.Elem().Type())
	c.Elem().Set(v.Elem())
	return c.Interface()
}
