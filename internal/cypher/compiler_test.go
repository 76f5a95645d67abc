package cypher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/ogm/internal/errors"
)

func TestIdentifierManager_NamespaceSeparation(t *testing.T) {
	ids := NewIdentifierManager()

	first := ids.NextNewReference()
	second := ids.NextNewReference()
	assert.Equal(t, "_0", first.String())
	assert.Equal(t, "_1", second.String())
	assert.True(t, first.IsNew())

	for n := int64(0); n < 5; n++ {
		newRef := Reference{kind: KindNew, id: n}
		assert.NotEqual(t, newRef, ids.ReferenceFor(n))
		assert.NotEqual(t, newRef.String(), ids.ReferenceFor(n).String())
		assert.NotEqual(t, ids.ReferenceFor(n), ids.RelationshipReferenceFor(n))
	}

	assert.Equal(t, ids.ReferenceFor(42), ids.ReferenceFor(42))
	assert.Equal(t, "n42", ids.ReferenceFor(42).String())
	assert.Equal(t, "r42", ids.RelationshipReferenceFor(42).String())
	assert.False(t, Reference{}.Valid())
}

func TestIdentifierManager_CounterIsPerInstance(t *testing.T) {
	a := NewIdentifierManager()
	b := NewIdentifierManager()
	a.NextNewReference()
	a.NextNewReference()

	assert.Equal(t, "_0", b.NextNewReference().String())
	assert.Equal(t, "_2", a.NextNewReference().String())
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Person", true},
		{"_internal", true},
		{"HAS_PET2", true},
		{"", false},
		{"2fast", false},
		{"Bad Label", false},
		{"x`) DETACH DELETE (y", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidIdentifier(tt.in))
		})
	}
}

func TestCompiler_NewNode(t *testing.T) {
	c := NewCompiler()
	c.NewNode("Person", "Hobbit").SetProperty("name", "Bilbo").SetProperty("nickname", nil)

	comp, err := c.Compile()
	require.NoError(t, err)

	assert.Equal(t, "CREATE (_0:Person:Hobbit $_0_props) RETURN id(_0) AS _0", comp.Statement.Text)
	assert.Equal(t, map[string]any{"_0_props": map[string]any{"name": "Bilbo"}}, comp.Statement.Parameters)
	assert.Equal(t, []Reference{{kind: KindNew, id: 0}}, comp.NewReferences)
}

func TestCompiler_NewNodeWithoutProperties(t *testing.T) {
	c := NewCompiler()
	c.NewNode("Marker")
	c.NewNode("Person")

	comp, err := c.Compile()
	require.NoError(t, err)

	assert.Equal(t, "CREATE (_0:Marker $_0_props), (_1:Person $_1_props) RETURN id(_0) AS _0, id(_1) AS _1", comp.Statement.Text)
	assert.Equal(t, map[string]any{}, comp.Statement.Parameters["_0_props"])
}

func TestCompiler_Ordering(t *testing.T) {
	c := NewCompiler()
	a := c.NewNode("Person").SetProperty("name", "Bilbo")
	b := c.ExistingNode(5).SetProperty("age", 51)
	_, created := c.Relate("KNOWS", a.Reference(), b.Reference())
	require.True(t, created)

	comp, err := c.Compile()
	require.NoError(t, err)

	assert.Equal(t,
		"CREATE (_0:Person $_0_props) "+
			"WITH _0 MATCH (n5) WHERE id(n5) = 5 SET n5 += $n5_props "+
			"MERGE (_0)-[_1:KNOWS]->(n5) "+
			"RETURN id(_0) AS _0",
		comp.Statement.Text)
	assert.Equal(t, map[string]any{
		"_0_props": map[string]any{"name": "Bilbo"},
		"n5_props": map[string]any{"age": 51},
	}, comp.Statement.Parameters)
}

func TestCompiler_NoOpExistingNodeIsSuppressed(t *testing.T) {
	c := NewCompiler()
	c.ExistingNode(5)
	c.NewNode("Person")

	comp, err := c.Compile()
	require.NoError(t, err)

	assert.Equal(t, "CREATE (_0:Person $_0_props) RETURN id(_0) AS _0", comp.Statement.Text)
	assert.NotContains(t, comp.Statement.Parameters, "n5_props")
	assert.NotContains(t, comp.Returns, Reference{kind: KindExistingNode, id: 5})
}

func TestCompiler_EmptyCompilation(t *testing.T) {
	c := NewCompiler()
	c.ExistingNode(5).Guard("version", 2)

	comp, err := c.Compile()
	require.NoError(t, err)
	assert.True(t, comp.Empty())
	assert.Empty(t, comp.Guards)
	assert.False(t, comp.ExpectsRow())
}

func TestCompiler_DeletionFollowsUpdate(t *testing.T) {
	c := NewCompiler()
	owner := c.ExistingNode(5).SetProperty("name", "Frodo")
	c.Unrelate("OWNS", owner.Reference(), c.IdentifierManager().ReferenceFor(6))

	comp, err := c.Compile()
	require.NoError(t, err)

	assert.Equal(t,
		"MATCH (n5) WHERE id(n5) = 5 SET n5 += $n5_props "+
			"CALL { WITH n5 MATCH (n5)-[_0:OWNS]->(n6) WHERE id(n6) = 6 DELETE _0 }",
		comp.Statement.Text)
	assert.Empty(t, comp.Returns)
}

func TestCompiler_DeletionKeepsReturnedRow(t *testing.T) {
	c := NewCompiler()
	pet := c.NewNode("Pet").SetProperty("name", "Rex")
	owner := c.ExistingNode(5).SetProperty("name", "Frodo")
	c.Unrelate("OWNS", owner.Reference(), c.IdentifierManager().ReferenceFor(6)).WithID(77)

	comp, err := c.Compile()
	require.NoError(t, err)

	assert.Equal(t,
		"CREATE (_0:Pet $_0_props) "+
			"WITH _0 MATCH (n5) WHERE id(n5) = 5 SET n5 += $n5_props "+
			"CALL { WITH n5 MATCH (n5)-[_1:OWNS]->(n6) WHERE id(n6) = 6 AND id(_1) = 77 DELETE _1 } "+
			"RETURN id(_0) AS _0",
		comp.Statement.Text)
	assert.Equal(t, []Reference{pet.Reference()}, comp.Returns)
}

func TestCompiler_GuardedRelationshipDeletion(t *testing.T) {
	c := NewCompiler()
	ids := c.IdentifierManager()
	c.Unrelate("RATED", ids.ReferenceFor(1), ids.ReferenceFor(2)).WithID(9).Guard("version", 1)

	comp, err := c.Compile()
	require.NoError(t, err)

	assert.Equal(t,
		"CALL { MATCH (n1)-[_0:RATED]->(n2) WHERE id(n1) = 1 AND id(n2) = 2 AND id(_0) = 9 AND _0.version = $_0_version DELETE _0 }",
		comp.Statement.Text)
	assert.Equal(t, map[string]any{"_0_version": int64(1)}, comp.Statement.Parameters)
	require.Len(t, comp.Guards, 1)
	assert.Equal(t, Guard{
		Reference: Reference{kind: KindExistingRelationship, id: 9},
		Property:  "version",
		Expected:  1,
		Delete:    true,
	}, comp.Guards[0])
	assert.False(t, comp.ExpectsRow())
}

func TestCompiler_GuardedRelationshipDeletionNeedsID(t *testing.T) {
	c := NewCompiler()
	ids := c.IdentifierManager()
	c.Unrelate("RATED", ids.ReferenceFor(1), ids.ReferenceFor(2)).Guard("version", 1)

	_, err := c.Compile()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConstruction))
}

func TestCompiler_UnrelateWithKnownID(t *testing.T) {
	c := NewCompiler()
	ids := c.IdentifierManager()
	c.Unrelate("OWNS", ids.ReferenceFor(1), ids.ReferenceFor(2)).WithID(30)
	c.Unrelate("OWNS", ids.ReferenceFor(1), ids.ReferenceFor(2))

	comp, err := c.Compile()
	require.NoError(t, err)
	assert.Equal(t,
		"CALL { MATCH (n1)-[_0:OWNS]->(n2) WHERE id(n1) = 1 AND id(n2) = 2 AND id(_0) = 30 DELETE _0 }",
		comp.Statement.Text)
}

func TestCompiler_RelationshipDedup(t *testing.T) {
	c := NewCompiler()
	a := c.NewNode("Person")
	b := c.NewNode("Person")

	first, created := c.Relate("KNOWS", a.Reference(), b.Reference())
	require.True(t, created)
	again, created := c.Relate("KNOWS", a.Reference(), b.Reference())
	assert.False(t, created)
	assert.Same(t, first, again)

	_, created = c.Relate("KNOWS", b.Reference(), a.Reference())
	assert.True(t, created, "direction is part of relationship identity")

	comp, err := c.Compile()
	require.NoError(t, err)
	assert.Equal(t,
		"CREATE (_0:Person $_0_props), (_1:Person $_1_props) "+
			"MERGE (_0)-[_2:KNOWS]->(_1) MERGE (_1)-[_3:KNOWS]->(_0) "+
			"RETURN id(_0) AS _0, id(_1) AS _1",
		comp.Statement.Text)
}

func TestCompiler_RelateExistingEndpoints(t *testing.T) {
	c := NewCompiler()
	ids := c.IdentifierManager()
	rel, _ := c.Relate("LIKES", ids.ReferenceFor(1), ids.ReferenceFor(2))
	rel.SetProperty("since", 2020).Correlate()

	comp, err := c.Compile()
	require.NoError(t, err)
	assert.Equal(t,
		"MATCH (n1) WHERE id(n1) = 1 MATCH (n2) WHERE id(n2) = 2 "+
			"MERGE (n1)-[_0:LIKES]->(n2) SET _0 += $_0_props "+
			"RETURN id(_0) AS _0",
		comp.Statement.Text)
	assert.Equal(t, []Reference{rel.Reference()}, comp.NewReferences)
}

func TestCompiler_SelfRelationship(t *testing.T) {
	c := NewCompiler()
	n := c.IdentifierManager().ReferenceFor(3)
	c.Relate("FOLLOWS", n, n)

	comp, err := c.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n3) WHERE id(n3) = 3 MERGE (n3)-[_0:FOLLOWS]->(n3)", comp.Statement.Text)
}

func TestCompiler_UnresolvedEndpointFails(t *testing.T) {
	c := NewCompiler()
	ids := c.IdentifierManager()
	dangling := ids.NextNewReference()
	c.Relate("KNOWS", dangling, ids.ReferenceFor(1))

	comp, err := c.Compile()
	assert.Nil(t, comp)
	assert.True(t, errors.Is(err, errors.ErrConstruction))
}

func TestCompiler_InvalidLabelFails(t *testing.T) {
	c := NewCompiler()
	c.NewNode("Bad Label")

	_, err := c.Compile()
	assert.True(t, errors.Is(err, errors.ErrConstruction))
}

func TestCompiler_ExistingRelationship(t *testing.T) {
	ids := NewIdentifierManager()

	tests := []struct {
		name  string
		build func(c *Compiler)
		want  string
	}{
		{
			name: "changed properties",
			build: func(c *Compiler) {
				c.ExistingRelationship(9, "KNOWS", ids.ReferenceFor(1), ids.ReferenceFor(2)).SetProperty("since", 2020)
			},
			want: "MATCH ()-[r9]->() WHERE id(r9) = 9 SET r9 += $r9_props",
		},
		{
			name: "no changes",
			build: func(c *Compiler) {
				c.ExistingRelationship(9, "KNOWS", ids.ReferenceFor(1), ids.ReferenceFor(2))
			},
			want: "",
		},
		{
			name: "missing endpoint",
			build: func(c *Compiler) {
				c.ExistingRelationship(9, "KNOWS", Reference{}, ids.ReferenceFor(2)).SetProperty("since", 2020)
			},
			want: "",
		},
		{
			name: "guarded",
			build: func(c *Compiler) {
				c.ExistingRelationship(9, "KNOWS", ids.ReferenceFor(1), ids.ReferenceFor(2)).
					SetProperty("since", 2020).
					Guard("version", 4)
			},
			want: "MATCH ()-[r9]->() WHERE id(r9) = 9 AND r9.version = $r9_version SET r9 += $r9_props RETURN id(r9) AS r9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompiler()
			tt.build(c)
			comp, err := c.Compile()
			require.NoError(t, err)
			assert.Equal(t, tt.want, comp.Statement.Text)
		})
	}
}

func TestCompiler_VersionGuard(t *testing.T) {
	c := NewCompiler()
	c.ExistingNode(5).SetProperty("name", "Bilbo").Guard("version", 0)

	comp, err := c.Compile()
	require.NoError(t, err)

	assert.Equal(t,
		"MATCH (n5) WHERE id(n5) = 5 AND n5.version = $n5_version SET n5 += $n5_props RETURN id(n5) AS n5",
		comp.Statement.Text)
	assert.Equal(t, map[string]any{
		"n5_version": int64(0),
		"n5_props":   map[string]any{"name": "Bilbo", "version": int64(1)},
	}, comp.Statement.Parameters)
	require.Len(t, comp.Guards, 1)
	assert.Equal(t, Guard{Reference: Reference{kind: KindExistingNode, id: 5}, Property: "version", Expected: 0}, comp.Guards[0])
	assert.Empty(t, comp.NewReferences)
}

func TestCompiler_DeleteNode(t *testing.T) {
	c := NewCompiler()
	c.DeleteNode(7).Guard("version", 3)
	c.DeleteNode(7)

	comp, err := c.Compile()
	require.NoError(t, err)

	assert.Equal(t, "MATCH (n7) WHERE id(n7) = 7 AND n7.version = $n7_version DETACH DELETE n7", comp.Statement.Text)
	require.Len(t, comp.Guards, 1)
	assert.True(t, comp.Guards[0].Delete)
	assert.False(t, comp.ExpectsRow())
}

func TestCompiler_LabelChanges(t *testing.T) {
	c := NewCompiler()
	c.ExistingNode(5).AddLabel("Retired").RemoveLabel("Active")

	comp, err := c.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n5) WHERE id(n5) = 5 SET n5:Retired REMOVE n5:Active", comp.Statement.Text)
	assert.Empty(t, comp.Statement.Parameters)
}

func TestCompiler_Deterministic(t *testing.T) {
	c := NewCompiler()
	a := c.NewNode("Person").SetProperty("name", "Bilbo").SetProperty("age", 111)
	b := c.ExistingNode(5).SetProperty("name", "Frodo").Guard("version", 2)
	c.Relate("KNOWS", a.Reference(), b.Reference())
	c.Unrelate("OWNS", b.Reference(), c.IdentifierManager().ReferenceFor(8))

	first, err := c.Compile()
	require.NoError(t, err)
	second, err := c.Compile()
	require.NoError(t, err)

	assert.Equal(t, first.Statement.Text, second.Statement.Text)
	assert.Equal(t, first.Statement.Parameters, second.Statement.Parameters)
	assert.Equal(t, first.Returns, second.Returns)
	assert.Equal(t, []Reference{a.Reference(), b.Reference()}, first.Returns)
}

func TestStatement_Validate(t *testing.T) {
	tests := []struct {
		name    string
		stmt    Statement
		wantErr bool
	}{
		{"matching", Statement{Text: "MATCH (n1) SET n1 += $n1_props", Parameters: map[string]any{"n1_props": map[string]any{}}}, false},
		{"missing parameter", Statement{Text: "MATCH (n1) SET n1 += $n1_props", Parameters: map[string]any{}}, true},
		{"unused parameter", Statement{Text: "MATCH (n1) DELETE n1", Parameters: map[string]any{"extra": 1}}, true},
		{"empty", Statement{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.stmt.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.ErrConstruction))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
