package session

import (
	"sort"
	"strings"

	"github.com/rohankatakam/ogm/internal/cypher"
	"github.com/rohankatakam/ogm/internal/errors"
	"github.com/rohankatakam/ogm/internal/graph"
	"github.com/rohankatakam/ogm/internal/metadata"
)

// ReturnCorrelator maps the RETURN columns of an executed statement back to
// the references that produced them.
type ReturnCorrelator struct {
	comp *cypher.Compilation
}

// NewReturnCorrelator creates a correlator for comp
func NewReturnCorrelator(comp *cypher.Compilation) *ReturnCorrelator {
	return &ReturnCorrelator{comp: comp}
}

// Correlate validates rows against the expected columns and returns the
// generated id of every new reference. A statement with a RETURN clause
// must yield at least one row; several rows are accepted only when they are
// identical, which happens when a MERGE matched parallel edges.
func (c *ReturnCorrelator) Correlate(rows []map[string]any) (map[cypher.Reference]int64, error) {
	ids := make(map[cypher.Reference]int64, len(c.comp.NewReferences))
	if !c.comp.ExpectsRow() {
		return ids, nil
	}
	if len(rows) == 0 {
		return nil, errors.CorrelationErrorf("statement returned no rows, expected columns %s", c.columns())
	}

	first := rows[0]
	if len(first) != len(c.comp.Returns) {
		return nil, errors.CorrelationErrorf("statement returned %d columns, expected %d", len(first), len(c.comp.Returns)).
			WithContext("expected", c.columns()).
			WithContext("returned", rowColumns(first))
	}

	values := make(map[cypher.Reference]int64, len(c.comp.Returns))
	for _, ref := range c.comp.Returns {
		raw, ok := first[ref.String()]
		if !ok {
			return nil, errors.CorrelationErrorf("column %s missing from result", ref).
				WithContext("returned", rowColumns(first))
		}
		id, err := graph.Int64(raw)
		if err != nil {
			return nil, errors.CorrelationErrorf("column %s: %v", ref, err)
		}
		values[ref] = id
	}

	for i, row := range rows[1:] {
		if len(row) != len(first) {
			return nil, errors.CorrelationErrorf("row %d has %d columns, expected %d", i+1, len(row), len(first))
		}
		for _, ref := range c.comp.Returns {
			id, err := graph.Int64(row[ref.String()])
			if err != nil || id != values[ref] {
				return nil, errors.CorrelationErrorf("row %d disagrees with row 0 on column %s", i+1, ref)
			}
		}
	}

	for _, ref := range c.comp.Returns {
		if ref.IsNew() {
			continue
		}
		if values[ref] != ref.ID() {
			return nil, errors.CorrelationErrorf("column %s returned id %d", ref, values[ref])
		}
	}
	for _, ref := range c.comp.NewReferences {
		ids[ref] = values[ref]
	}
	return ids, nil
}

// Assign sets the generated ids on the new objects registered in ctx. Every
// new reference is resolved before any object is touched.
func (c *ReturnCorrelator) Assign(ids map[cypher.Reference]int64, ctx *cypher.Context, meta metadata.EntityMetadata) error {
	type target struct {
		obj   any
		class metadata.Class
		id    int64
	}
	targets := make([]target, 0, len(c.comp.NewReferences))
	for _, ref := range c.comp.NewReferences {
		id, ok := ids[ref]
		if !ok {
			return errors.CorrelationErrorf("no id returned for %s", ref)
		}
		obj, ok := ctx.NewObject(ref)
		if !ok {
			return errors.CorrelationErrorf("no object registered for %s", ref)
		}
		class, ok := meta.Lookup(obj)
		if !ok {
			return errors.CorrelationErrorf("no metadata for %T behind %s", obj, ref)
		}
		targets = append(targets, target{obj: obj, class: class, id: id})
	}
	for _, t := range targets {
		t.class.SetIdentity(t.obj, t.id)
	}
	return nil
}

func (c *ReturnCorrelator) columns() string {
	names := make([]string, len(c.comp.Returns))
	for i, ref := range c.comp.Returns {
		names[i] = ref.String()
	}
	return strings.Join(names, ",")
}

func rowColumns(row map[string]any) string {
	names := make([]string, 0, len(row))
	for k := range row {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
