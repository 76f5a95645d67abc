package cypher

import (
	"fmt"
	"reflect"
)

// RelationshipKey identifies a relationship inside one compilation.
// Direction matters: A->B and B->A are different keys.
type RelationshipKey struct {
	Type  string
	Start Reference
	End   Reference
}

func (k RelationshipKey) String() string {
	return fmt.Sprintf("(%s)-[:%s]->(%s)", k.Start, k.Type, k.End)
}

// Context is the bookkeeping of one save or delete operation. Objects are
// tracked by identity: every object gets a handle the first time it is
// seen, and all lookups go through the handle, so two distinct objects
// that compare equal are still two graph elements.
//
// A Context is owned by a single operation and is not safe for concurrent use.
type Context struct {
	handles  map[any]int
	builders []Builder
	visited  []bool

	relationships map[RelationshipKey]struct{}
	newObjects    map[Reference]any

	logged    []any
	loggedSet map[int]struct{}
}

// NewContext returns an empty compilation context
func NewContext() *Context {
	return &Context{
		handles:       make(map[any]int),
		relationships: make(map[RelationshipKey]struct{}),
		newObjects:    make(map[Reference]any),
		loggedSet:     make(map[int]struct{}),
	}
}

// handle returns the arena index of obj, allocating one on first sight.
// Only pointers have a stable identity; anything else is a programming error.
func (c *Context) handle(obj any) int {
	mustPointer(obj)
	if h, ok := c.handles[obj]; ok {
		return h
	}
	h := len(c.builders)
	c.handles[obj] = h
	c.builders = append(c.builders, nil)
	c.visited = append(c.visited, false)
	return h
}

func mustPointer(obj any) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		panic(fmt.Sprintf("cypher: context objects must be non-nil pointers, got %T", obj))
	}
}

// Visited reports whether obj has been visited in this operation
func (c *Context) Visited(obj any) bool {
	mustPointer(obj)
	h, ok := c.handles[obj]
	return ok && c.visited[h]
}

// Visit marks obj as visited and remembers the builder produced for it.
// b may be nil for objects that contribute no builder.
func (c *Context) Visit(obj any, b Builder) {
	h := c.handle(obj)
	c.visited[h] = true
	if b != nil {
		c.builders[h] = b
	}
}

// BuilderFor returns the builder registered for obj, if any
func (c *Context) BuilderFor(obj any) (Builder, bool) {
	mustPointer(obj)
	h, ok := c.handles[obj]
	if !ok || c.builders[h] == nil {
		return nil, false
	}
	return c.builders[h], true
}

// RegisterRelationship records key and reports whether it was new
func (c *Context) RegisterRelationship(key RelationshipKey) bool {
	if _, ok := c.relationships[key]; ok {
		return false
	}
	c.relationships[key] = struct{}{}
	return true
}

// ContainsRelationship reports whether key has been registered
func (c *Context) ContainsRelationship(key RelationshipKey) bool {
	_, ok := c.relationships[key]
	return ok
}

// RegisterNewObject remembers which object a new reference was created for
func (c *Context) RegisterNewObject(ref Reference, obj any) {
	c.handle(obj)
	c.newObjects[ref] = obj
}

// NewObject returns the object a new reference was created for
func (c *Context) NewObject(ref Reference) (any, bool) {
	obj, ok := c.newObjects[ref]
	return obj, ok
}

// Log records obj as touched by the operation
func (c *Context) Log(obj any) {
	h := c.handle(obj)
	if _, ok := c.loggedSet[h]; ok {
		return
	}
	c.loggedSet[h] = struct{}{}
	c.logged = append(c.logged, obj)
}

// Logged returns the touched objects in the order they were first logged
func (c *Context) Logged() []any {
	out := make([]any, len(c.logged))
	copy(out, c.logged)
	return out
}
