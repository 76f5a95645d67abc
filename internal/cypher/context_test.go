package cypher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hobbit struct {
	Name string
}

func TestContext_IdentityKeyed(t *testing.T) {
	ctx := NewContext()
	a := &hobbit{Name: "Sam"}
	b := &hobbit{Name: "Sam"}
	require.Equal(t, *a, *b)

	builder := &NewNodeBuilder{ref: Reference{kind: KindNew, id: 0}}
	ctx.Visit(a, builder)

	assert.True(t, ctx.Visited(a))
	assert.False(t, ctx.Visited(b), "equal but distinct objects are different nodes")

	got, ok := ctx.BuilderFor(a)
	require.True(t, ok)
	assert.Same(t, builder, got)

	_, ok = ctx.BuilderFor(b)
	assert.False(t, ok)

	ctx.Visit(a, nil)
	got, _ = ctx.BuilderFor(a)
	assert.Same(t, builder, got, "revisiting keeps the first builder")
}

func TestContext_RejectsNonPointers(t *testing.T) {
	ctx := NewContext()
	assert.Panics(t, func() { ctx.Visit(hobbit{}, nil) })
	assert.Panics(t, func() { ctx.Visited((*hobbit)(nil)) })
	assert.Panics(t, func() { ctx.Log(map[string]any{}) })
}

func TestContext_RegisterRelationship(t *testing.T) {
	ctx := NewContext()
	ids := NewIdentifierManager()
	a, b := ids.NextNewReference(), ids.ReferenceFor(1)

	forward := RelationshipKey{Type: "KNOWS", Start: a, End: b}
	backward := RelationshipKey{Type: "KNOWS", Start: b, End: a}

	assert.True(t, ctx.RegisterRelationship(forward))
	assert.False(t, ctx.RegisterRelationship(forward))
	assert.True(t, ctx.ContainsRelationship(forward))
	assert.False(t, ctx.ContainsRelationship(backward))
	assert.True(t, ctx.RegisterRelationship(backward))
	assert.Equal(t, "(_0)-[:KNOWS]->(n1)", forward.String())
}

func TestContext_NewObjectsAndLog(t *testing.T) {
	ctx := NewContext()
	frodo := &hobbit{Name: "Frodo"}
	sam := &hobbit{Name: "Sam"}
	ref := Reference{kind: KindNew, id: 3}

	ctx.RegisterNewObject(ref, frodo)
	got, ok := ctx.NewObject(ref)
	require.True(t, ok)
	assert.Same(t, frodo, got)

	ctx.Log(sam)
	ctx.Log(frodo)
	ctx.Log(sam)
	assert.Equal(t, []any{sam, frodo}, ctx.Logged())
}

func TestScope_WriteWith(t *testing.T) {
	s := NewScope()
	var out strings.Builder
	s.writeWith(&out)
	assert.Empty(t, out.String())

	assert.True(t, s.Add(Reference{kind: KindNew, id: 0}))
	assert.False(t, s.Add(Reference{kind: KindNew, id: 0}))
	s.Add(Reference{kind: KindExistingNode, id: 4})
	s.writeWith(&out)
	assert.Equal(t, "WITH _0, n4 ", out.String())
	assert.Equal(t, 2, s.Len())
}
