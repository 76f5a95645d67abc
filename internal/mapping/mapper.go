// Package mapping translates an object graph into statement builders. It
// walks from a root object, visiting every reachable object at most once,
// and diffs existing objects against their last snapshot so that only
// changes are written.
package mapping

import (
	"github.com/rohankatakam/ogm/internal/cypher"
	"github.com/rohankatakam/ogm/internal/errors"
	"github.com/rohankatakam/ogm/internal/metadata"
)

// Unlimited depth walks the whole reachable graph
const Unlimited = -1

// Entry is one object written by a plan
type Entry struct {
	Object    any
	Class     metadata.Class
	Reference cypher.Reference
	New       bool
	// EdgesSynced is true when the object's relationships were written
	EdgesSynced bool

	// depth is the fewest hops from the root the object was reached in
	depth int
}

// Plan is the compiled form of one save or delete
type Plan struct {
	Compilation *cypher.Compilation
	Context     *cypher.Context
	Entries     []*Entry
	Deleted     []*Entry
}

// Entry returns the entry written under ref
func (p *Plan) Entry(ref cypher.Reference) (*Entry, bool) {
	for _, e := range p.Entries {
		if e.Reference == ref {
			return e, true
		}
	}
	return nil, false
}

// Mapper builds plans. It holds no per-operation state; every call uses a
// fresh compiler.
type Mapper struct {
	meta      metadata.EntityMetadata
	snapshots SnapshotSource
}

// NewMapper creates a mapper. snapshots may be nil, in which case every
// existing object writes all of its properties.
func NewMapper(meta metadata.EntityMetadata, snapshots SnapshotSource) *Mapper {
	return &Mapper{meta: meta, snapshots: snapshots}
}

type edgeCandidate struct {
	typ        string
	start, end cypher.Reference
	id         *int64
}

type walk struct {
	m        *Mapper
	compiler *cypher.Compiler
	maxDepth int
	entries  []*Entry
	byRef    map[cypher.Reference]*Entry
	keptIDs  map[int64]struct{}
	removals []edgeCandidate
}

// Save plans the write of root and everything reachable from it within
// depth hops. Depth 0 writes root's properties only.
func (m *Mapper) Save(root any, depth int) (*Plan, error) {
	w := &walk{
		m:        m,
		compiler: cypher.NewCompiler(),
		maxDepth: depth,
		byRef:    make(map[cypher.Reference]*Entry),
		keptIDs:  make(map[int64]struct{}),
	}

	class, err := m.classOf(root)
	if err != nil {
		return nil, err
	}
	if class.IsRelationshipEntity() {
		err = w.relationshipEntity(root, class, 0)
	} else {
		_, err = w.node(root, 0)
	}
	if err != nil {
		return nil, err
	}
	w.unrelateRemoved()

	comp, err := w.compiler.Compile()
	if err != nil {
		return nil, err
	}
	return &Plan{Compilation: comp, Context: w.compiler.Context(), Entries: w.entries}, nil
}

// Delete plans the removal of a stored node with all its relationships, or
// of a stored relationship entity.
func (m *Mapper) Delete(obj any) (*Plan, error) {
	class, err := m.classOf(obj)
	if err != nil {
		return nil, err
	}
	id, ok := class.Identity(obj)
	if !ok {
		return nil, errors.ValidationErrorf("cannot delete unsaved %s", class.Name())
	}

	compiler := cypher.NewCompiler()
	ids := compiler.IdentifierManager()
	entry := &Entry{Object: obj, Class: class}

	if class.IsRelationshipEntity() {
		start, end, err := m.storedEndpoints(class, obj)
		if err != nil {
			return nil, err
		}
		b := compiler.Unrelate(class.RelationshipType(), ids.ReferenceFor(start), ids.ReferenceFor(end)).WithID(id)
		if v := class.VersionProperty(); v != "" {
			b.Guard(v, class.Version(obj))
		}
		entry.Reference = ids.RelationshipReferenceFor(id)
	} else {
		b := compiler.DeleteNode(id)
		if v := class.VersionProperty(); v != "" {
			b.Guard(v, class.Version(obj))
		}
		entry.Reference = b.Reference()
	}
	compiler.Context().Log(obj)

	comp, err := compiler.Compile()
	if err != nil {
		return nil, err
	}
	return &Plan{Compilation: comp, Context: compiler.Context(), Deleted: []*Entry{entry}}, nil
}

func (m *Mapper) classOf(obj any) (metadata.Class, error) {
	if isNil(obj) {
		return nil, errors.ValidationErrorf("cannot map a nil object")
	}
	class, ok := m.meta.Lookup(obj)
	if !ok {
		return nil, errors.ValidationErrorf("no metadata declared for %T", obj)
	}
	return class, nil
}

func (m *Mapper) snapshot(ref cypher.Reference) *Snapshot {
	if m.snapshots == nil {
		return nil
	}
	s, ok := m.snapshots.Snapshot(ref)
	if !ok {
		return nil
	}
	return s
}

func (m *Mapper) storedEndpoints(class metadata.Class, obj any) (int64, int64, error) {
	start, end := class.Endpoints(obj)
	var ids [2]int64
	for i, ep := range []any{start, end} {
		c, err := m.classOf(ep)
		if err != nil {
			return 0, 0, err
		}
		id, ok := c.Identity(ep)
		if !ok {
			return 0, 0, errors.ValidationErrorf("%s endpoint of %s is not saved", c.Name(), class.Name())
		}
		ids[i] = id
	}
	return ids[0], ids[1], nil
}

func (w *walk) descend(depth int) bool {
	return w.maxDepth == Unlimited || depth < w.maxDepth
}

// node returns the reference of obj, creating its builder on first visit.
// An object reached again by a shorter path has its relationships walked
// from that depth.
func (w *walk) node(obj any, depth int) (cypher.Reference, error) {
	ctx := w.compiler.Context()
	if b, ok := ctx.BuilderFor(obj); ok {
		return b.Reference(), w.revisit(w.byRef[b.Reference()], depth)
	}
	class, err := w.m.classOf(obj)
	if err != nil {
		return cypher.Reference{}, err
	}
	if class.IsRelationshipEntity() {
		return cypher.Reference{}, errors.ValidationErrorf("%s is a relationship entity, not a node", class.Name())
	}

	entry := &Entry{Object: obj, Class: class, depth: depth}
	if id, ok := class.Identity(obj); ok {
		b := w.compiler.ExistingNode(id)
		w.diffNode(b, class, obj)
		entry.Reference = b.Reference()
		ctx.Visit(obj, b)
	} else {
		b := w.compiler.NewNode(class.Labels(obj)...)
		for k, v := range class.Properties(obj) {
			b.SetProperty(k, v)
		}
		if v := class.VersionProperty(); v != "" {
			b.SetProperty(v, class.Version(obj))
		}
		entry.Reference = b.Reference()
		entry.New = true
		ctx.Visit(obj, b)
		ctx.RegisterNewObject(b.Reference(), obj)
	}
	ctx.Log(obj)
	w.entries = append(w.entries, entry)
	w.byRef[entry.Reference] = entry

	if w.descend(depth) {
		if err := w.relationships(entry, depth); err != nil {
			return cypher.Reference{}, err
		}
	}
	return entry.Reference, nil
}

func (w *walk) revisit(entry *Entry, depth int) error {
	if entry == nil || depth >= entry.depth {
		return nil
	}
	entry.depth = depth
	if entry.Class.IsRelationshipEntity() {
		start, end := entry.Class.Endpoints(entry.Object)
		if _, err := w.node(start, depth+1); err != nil {
			return err
		}
		_, err := w.node(end, depth+1)
		return err
	}
	if !w.descend(depth) {
		return nil
	}
	return w.relationships(entry, depth)
}

func (w *walk) diffNode(b *cypher.ExistingNodeBuilder, class metadata.Class, obj any) {
	snap := w.m.snapshot(b.Reference())
	props := class.Properties(obj)
	labels := class.Labels(obj)

	if snap == nil {
		for k, v := range props {
			b.SetProperty(k, v)
		}
		for _, l := range labels {
			b.AddLabel(l)
		}
	} else {
		for k, v := range props {
			if old, ok := snap.Properties[k]; !ok || old != Canonical(v) {
				b.SetProperty(k, v)
			}
		}
		for _, l := range labels {
			if !contains(snap.Labels, l) {
				b.AddLabel(l)
			}
		}
		for _, l := range snap.Labels {
			if !contains(labels, l) {
				b.RemoveLabel(l)
			}
		}
	}
	if v := class.VersionProperty(); v != "" {
		b.Guard(v, class.Version(obj))
	}
}

// relationships merges the relationships of entry. Removed edges are only
// collected the first time an entry is walked.
func (w *walk) relationships(entry *Entry, depth int) error {
	firstPass := !entry.EdgesSynced
	entry.EdgesSynced = true
	var snap *Snapshot
	if !entry.New {
		snap = w.m.snapshot(entry.Reference)
	}
	ctx := w.compiler.Context()

	for _, rel := range entry.Class.Relationships(entry.Object) {
		targetClass, err := w.m.classOf(rel.Target)
		if err != nil {
			return err
		}
		if targetClass.IsRelationshipEntity() {
			if err := w.relationshipEntity(rel.Target, targetClass, depth); err != nil {
				return err
			}
			continue
		}

		targetRef, err := w.node(rel.Target, depth+1)
		if err != nil {
			return err
		}
		start, end := entry.Reference, targetRef
		if rel.Direction == metadata.Incoming {
			start, end = end, start
		}
		if snap != nil && !targetRef.IsNew() && snap.hasEdge(rel.Type, rel.Direction, targetRef.ID()) {
			ctx.RegisterRelationship(cypher.RelationshipKey{Type: rel.Type, Start: start, End: end})
			continue
		}
		w.compiler.Relate(rel.Type, start, end)
	}

	if snap == nil || !firstPass {
		return nil
	}
	ids := w.compiler.IdentifierManager()
	for _, field := range entry.Class.RelationshipFields() {
		for _, e := range snap.Edges {
			if e.Type != field.Type || e.Direction != field.Direction {
				continue
			}
			start, end := entry.Reference, ids.ReferenceFor(e.Other)
			if e.Direction == metadata.Incoming {
				start, end = end, start
			}
			w.removals = append(w.removals, edgeCandidate{typ: e.Type, start: start, end: end, id: e.ID})
		}
	}
	return nil
}

func (w *walk) relationshipEntity(obj any, class metadata.Class, depth int) error {
	ctx := w.compiler.Context()
	if ctx.Visited(obj) {
		if b, ok := ctx.BuilderFor(obj); ok {
			return w.revisit(w.byRef[b.Reference()], depth)
		}
		return nil
	}
	ctx.Visit(obj, nil)
	ctx.Log(obj)

	start, end := class.Endpoints(obj)
	if isNil(start) || isNil(end) {
		return errors.ValidationErrorf("%s has an unset endpoint", class.Name())
	}
	startRef, err := w.node(start, depth+1)
	if err != nil {
		return err
	}
	endRef, err := w.node(end, depth+1)
	if err != nil {
		return err
	}

	entry := &Entry{Object: obj, Class: class, depth: depth}
	if id, ok := class.Identity(obj); ok {
		w.keptIDs[id] = struct{}{}
		b := w.compiler.ExistingRelationship(id, class.RelationshipType(), startRef, endRef)
		snap := w.m.snapshot(b.Reference())
		for k, v := range class.Properties(obj) {
			if snap == nil || snap.Properties[k] != Canonical(v) {
				b.SetProperty(k, v)
			}
		}
		if v := class.VersionProperty(); v != "" {
			b.Guard(v, class.Version(obj))
		}
		entry.Reference = b.Reference()
		ctx.Visit(obj, b)
	} else {
		b, _ := w.compiler.Relate(class.RelationshipType(), startRef, endRef)
		if b == nil {
			return errors.ConstructionErrorf("%s duplicates a stored %s relationship", class.Name(), class.RelationshipType())
		}
		for k, v := range class.Properties(obj) {
			b.SetProperty(k, v)
		}
		if v := class.VersionProperty(); v != "" {
			b.SetProperty(v, class.Version(obj))
		}
		b.Correlate()
		entry.Reference = b.Reference()
		entry.New = true
		ctx.Visit(obj, b)
		ctx.RegisterNewObject(b.Reference(), obj)
	}
	w.entries = append(w.entries, entry)
	w.byRef[entry.Reference] = entry
	return nil
}

// unrelateRemoved deletes snapshot edges that no visited object still
// asserts, from either side.
func (w *walk) unrelateRemoved() {
	ctx := w.compiler.Context()
	for _, c := range w.removals {
		if c.id != nil {
			if _, kept := w.keptIDs[*c.id]; kept {
				continue
			}
		}
		if ctx.ContainsRelationship(cypher.RelationshipKey{Type: c.typ, Start: c.start, End: c.end}) {
			continue
		}
		b := w.compiler.Unrelate(c.typ, c.start, c.end)
		if c.id != nil {
			b.WithID(*c.id)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
