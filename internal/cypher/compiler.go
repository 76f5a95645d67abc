package cypher

import (
	"strings"
)

// Compiler accumulates builders for one operation and renders them into a
// single statement. Phases are fixed: created nodes, updated nodes, created
// relationships, updated relationships, deleted relationships, deleted
// nodes. Within a phase builders render in registration order.
type Compiler struct {
	ids *IdentifierManager
	ctx *Context

	newNodes      []*NewNodeBuilder
	existingNodes []*ExistingNodeBuilder
	newRels       []*NewRelationshipBuilder
	existingRels  []*ExistingRelationshipBuilder
	deletedRels   []*DeletedRelationshipBuilder
	deletedNodes  []*DeletedNodeBuilder

	existingNodeByID map[int64]*ExistingNodeBuilder
	existingRelByID  map[int64]*ExistingRelationshipBuilder
	deletedNodeByID  map[int64]*DeletedNodeBuilder
	newRelByKey      map[RelationshipKey]*NewRelationshipBuilder
	deletedRelByKey  map[RelationshipKey]*DeletedRelationshipBuilder
}

// NewCompiler returns a compiler with a fresh identifier manager and context
func NewCompiler() *Compiler {
	return &Compiler{
		ids:              NewIdentifierManager(),
		ctx:              NewContext(),
		existingNodeByID: make(map[int64]*ExistingNodeBuilder),
		existingRelByID:  make(map[int64]*ExistingRelationshipBuilder),
		deletedNodeByID:  make(map[int64]*DeletedNodeBuilder),
		newRelByKey:      make(map[RelationshipKey]*NewRelationshipBuilder),
		deletedRelByKey:  make(map[RelationshipKey]*DeletedRelationshipBuilder),
	}
}

// Context returns the operation's bookkeeping
func (c *Compiler) Context() *Context { return c.ctx }

// IdentifierManager returns the manager references are allocated from
func (c *Compiler) IdentifierManager() *IdentifierManager { return c.ids }

// NewNode registers a node to create
func (c *Compiler) NewNode(labels ...string) *NewNodeBuilder {
	b := &NewNodeBuilder{ref: c.ids.NextNewReference()}
	for _, l := range labels {
		b.AddLabel(l)
	}
	c.newNodes = append(c.newNodes, b)
	return b
}

// ExistingNode returns the update builder for a stored node. Repeated
// calls with the same id return the same builder.
func (c *Compiler) ExistingNode(id int64) *ExistingNodeBuilder {
	if b, ok := c.existingNodeByID[id]; ok {
		return b
	}
	b := &ExistingNodeBuilder{ref: c.ids.ReferenceFor(id)}
	c.existingNodeByID[id] = b
	c.existingNodes = append(c.existingNodes, b)
	return b
}

// Relate registers a relationship to merge between two references. The
// boolean is false when the same (type, start, end) was already
// registered, in which case the earlier builder is returned, or nil if the
// key belongs to a stored relationship.
func (c *Compiler) Relate(typ string, start, end Reference) (*NewRelationshipBuilder, bool) {
	key := RelationshipKey{Type: typ, Start: start, End: end}
	if !c.ctx.RegisterRelationship(key) {
		return c.newRelByKey[key], false
	}
	b := &NewRelationshipBuilder{ref: c.ids.NextNewReference(), typ: typ, start: start, end: end}
	c.newRelByKey[key] = b
	c.newRels = append(c.newRels, b)
	return b, true
}

// ExistingRelationship returns the update builder for a stored relationship
func (c *Compiler) ExistingRelationship(id int64, typ string, start, end Reference) *ExistingRelationshipBuilder {
	if b, ok := c.existingRelByID[id]; ok {
		return b
	}
	b := &ExistingRelationshipBuilder{
		ref:   c.ids.RelationshipReferenceFor(id),
		typ:   typ,
		start: start,
		end:   end,
	}
	c.existingRelByID[id] = b
	c.existingRels = append(c.existingRels, b)
	c.ctx.RegisterRelationship(RelationshipKey{Type: typ, Start: start, End: end})
	return b
}

// Unrelate registers the deletion of a relationship. Repeated calls for
// the same (type, start, end) return the same builder.
func (c *Compiler) Unrelate(typ string, start, end Reference) *DeletedRelationshipBuilder {
	key := RelationshipKey{Type: typ, Start: start, End: end}
	if b, ok := c.deletedRelByKey[key]; ok {
		return b
	}
	b := &DeletedRelationshipBuilder{ref: c.ids.NextNewReference(), typ: typ, start: start, end: end}
	c.deletedRelByKey[key] = b
	c.deletedRels = append(c.deletedRels, b)
	return b
}

// WithID restricts the deletion to the stored relationship with this id
func (b *DeletedRelationshipBuilder) WithID(id int64) *DeletedRelationshipBuilder {
	b.relationshipID = &id
	return b
}

// DeleteNode registers the deletion of a stored node and its relationships
func (c *Compiler) DeleteNode(id int64) *DeletedNodeBuilder {
	if b, ok := c.deletedNodeByID[id]; ok {
		return b
	}
	b := &DeletedNodeBuilder{ref: c.ids.ReferenceFor(id)}
	c.deletedNodeByID[id] = b
	c.deletedNodes = append(c.deletedNodes, b)
	return b
}

type guarded interface {
	versionGuard() (Guard, bool)
}

// Compile renders every registered builder into one statement. It does
// not modify the builders, so compiling twice yields identical output.
func (c *Compiler) Compile() (*Compilation, error) {
	scope := NewScope()
	params := make(map[string]any)
	comp := &Compilation{}
	var clauses []string

	emit := func(b Builder) (bool, error) {
		var frag strings.Builder
		ok, err := b.Emit(&frag, params, scope)
		if err != nil || !ok {
			return false, err
		}
		clauses = append(clauses, frag.String())
		if g, ok := b.(guarded); ok {
			if guard, has := g.versionGuard(); has {
				comp.Guards = append(comp.Guards, guard)
			}
		}
		return true, nil
	}

	var created []string
	for _, b := range c.newNodes {
		var frag strings.Builder
		ok, err := b.Emit(&frag, params, scope)
		if err != nil {
			return nil, err
		}
		if ok {
			created = append(created, frag.String())
			comp.NewReferences = append(comp.NewReferences, b.ref)
		}
	}
	if len(created) > 0 {
		clauses = append(clauses, "CREATE "+strings.Join(created, ", "))
	}

	for _, b := range c.existingNodes {
		if _, err := emit(b); err != nil {
			return nil, err
		}
	}
	for _, b := range c.newRels {
		ok, err := emit(b)
		if err != nil {
			return nil, err
		}
		if ok && b.correlated {
			comp.NewReferences = append(comp.NewReferences, b.ref)
		}
	}
	for _, b := range c.existingRels {
		if _, err := emit(b); err != nil {
			return nil, err
		}
	}
	for _, b := range c.deletedRels {
		if _, err := emit(b); err != nil {
			return nil, err
		}
	}
	for _, b := range c.deletedNodes {
		if _, err := emit(b); err != nil {
			return nil, err
		}
	}

	comp.Returns = append(comp.Returns, comp.NewReferences...)
	for _, g := range comp.Guards {
		if !g.Delete {
			comp.Returns = append(comp.Returns, g.Reference)
		}
	}
	if len(comp.Returns) > 0 {
		cols := make([]string, len(comp.Returns))
		for i, ref := range comp.Returns {
			cols[i] = "id(" + ref.String() + ") AS " + ref.String()
		}
		clauses = append(clauses, "RETURN "+strings.Join(cols, ", "))
	}

	comp.Statement = Statement{Text: strings.Join(clauses, " "), Parameters: params}
	if err := comp.Statement.Validate(); err != nil {
		return nil, err
	}
	return comp, nil
}
