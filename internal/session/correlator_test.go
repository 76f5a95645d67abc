package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/ogm/internal/cypher"
	"github.com/rohankatakam/ogm/internal/errors"
	"github.com/rohankatakam/ogm/internal/graph"
	"github.com/rohankatakam/ogm/internal/sample"
)

// compileCreateAndUpdate compiles one new Person and one guarded update of
// node 7, returning columns _0 and n7.
func compileCreateAndUpdate(t *testing.T) (*cypher.Compilation, *cypher.Context, *sample.Person) {
	t.Helper()
	c := cypher.NewCompiler()
	bilbo := &sample.Person{Name: "Bilbo"}
	b := c.NewNode("Person").SetProperty("name", "Bilbo")
	c.Context().RegisterNewObject(b.Reference(), bilbo)
	c.ExistingNode(7).SetProperty("age", 3).Guard("version", 1)
	comp, err := c.Compile()
	require.NoError(t, err)
	require.Len(t, comp.Returns, 2)
	return comp, c.Context(), bilbo
}

func TestReturnCorrelator_Correlate(t *testing.T) {
	comp, _, _ := compileCreateAndUpdate(t)
	newRef := comp.NewReferences[0]

	tests := []struct {
		name    string
		rows    []map[string]any
		want    int64
		wantErr bool
	}{
		{"single row", []map[string]any{{"_0": int64(42), "n7": int64(7)}}, 42, false},
		{"identical duplicates", []map[string]any{
			{"_0": int64(42), "n7": int64(7)},
			{"_0": int64(42), "n7": int64(7)},
		}, 42, false},
		{"no rows", nil, 0, true},
		{"missing column", []map[string]any{{"_0": int64(42), "n8": int64(7)}}, 0, true},
		{"extra column", []map[string]any{{"_0": int64(42), "n7": int64(7), "_1": int64(1)}}, 0, true},
		{"disagreeing rows", []map[string]any{
			{"_0": int64(42), "n7": int64(7)},
			{"_0": int64(43), "n7": int64(7)},
		}, 0, true},
		{"wrong stored id", []map[string]any{{"_0": int64(42), "n7": int64(8)}}, 0, true},
		{"non numeric id", []map[string]any{{"_0": "42", "n7": int64(7)}}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := NewReturnCorrelator(comp).Correlate(tt.rows)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.ErrCorrelation), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, map[cypher.Reference]int64{newRef: tt.want}, ids)
		})
	}
}

func TestReturnCorrelator_NoReturnClause(t *testing.T) {
	c := cypher.NewCompiler()
	c.ExistingNode(3).SetProperty("name", "x")
	comp, err := c.Compile()
	require.NoError(t, err)

	ids, err := NewReturnCorrelator(comp).Correlate(nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestReturnCorrelator_Assign(t *testing.T) {
	comp, ctx, bilbo := compileCreateAndUpdate(t)
	correlator := NewReturnCorrelator(comp)

	err := correlator.Assign(map[cypher.Reference]int64{}, ctx, sample.Registry())
	assert.True(t, errors.Is(err, errors.ErrCorrelation))
	assert.Nil(t, bilbo.ID)

	ids, err := correlator.Correlate([]map[string]any{{"_0": int64(42), "n7": int64(7)}})
	require.NoError(t, err)
	require.NoError(t, correlator.Assign(ids, ctx, sample.Registry()))
	require.NotNil(t, bilbo.ID)
	assert.Equal(t, int64(42), *bilbo.ID)
}

func TestLockGuard_States(t *testing.T) {
	comp, _, _ := compileCreateAndUpdate(t)

	g := NewLockGuard(comp)
	assert.Equal(t, Unchecked, g.State())
	_, err := g.Check(&graph.Result{})
	assert.True(t, errors.Is(err, errors.ErrInternal))

	require.NoError(t, g.Begin())
	assert.Equal(t, Applying, g.State())
	assert.Error(t, g.Begin())

	outcome, err := g.Check(&graph.Result{Rows: []map[string]any{{"_0": int64(1), "n7": int64(7)}}})
	require.NoError(t, err)
	assert.Equal(t, Committed, outcome.State)
	assert.NoError(t, outcome.Err())
	assert.Equal(t, "committed", g.State().String())
}

func TestLockGuard_RejectsOnZeroRows(t *testing.T) {
	comp, _, _ := compileCreateAndUpdate(t)
	g := NewLockGuard(comp)
	require.NoError(t, g.Begin())

	outcome, err := g.Check(&graph.Result{})
	require.NoError(t, err)
	assert.Equal(t, Rejected, outcome.State)
	require.Len(t, outcome.Conflicts, 1)
	assert.Equal(t, "n7", outcome.Conflicts[0].Reference.String())
	assert.Equal(t, int64(1), outcome.Conflicts[0].Expected)
	assert.True(t, errors.Is(outcome.Err(), errors.ErrConflict))
}

func TestLockGuard_DeleteCounters(t *testing.T) {
	c := cypher.NewCompiler()
	c.DeleteNode(4).Guard("version", 2)
	comp, err := c.Compile()
	require.NoError(t, err)

	tests := []struct {
		deleted int
		want    LockState
	}{
		{1, Committed},
		{0, Rejected},
	}
	for _, tt := range tests {
		g := NewLockGuard(comp)
		require.NoError(t, g.Begin())
		outcome, err := g.Check(&graph.Result{Counters: graph.Counters{NodesDeleted: tt.deleted}})
		require.NoError(t, err)
		assert.Equal(t, tt.want, outcome.State, "deleted=%d", tt.deleted)
	}
}

func TestLockGuard_RelationshipDeleteCounters(t *testing.T) {
	c := cypher.NewCompiler()
	ids := c.IdentifierManager()
	c.Unrelate("RATED", ids.ReferenceFor(1), ids.ReferenceFor(2)).WithID(9).Guard("version", 1)
	comp, err := c.Compile()
	require.NoError(t, err)

	tests := []struct {
		name     string
		counters graph.Counters
		want     LockState
	}{
		{"relationship deleted", graph.Counters{RelationshipsDeleted: 1}, Committed},
		{"nothing deleted", graph.Counters{}, Rejected},
		{"only nodes deleted", graph.Counters{NodesDeleted: 1}, Rejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewLockGuard(comp)
			require.NoError(t, g.Begin())
			outcome, err := g.Check(&graph.Result{Counters: tt.counters})
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome.State)
			if tt.want == Rejected {
				require.Len(t, outcome.Conflicts, 1)
				assert.Equal(t, "r9", outcome.Conflicts[0].Reference.String())
			}
		})
	}
}

func TestLockGuard_UnguardedZeroRowsIsNotConflict(t *testing.T) {
	c := cypher.NewCompiler()
	c.NewNode("Person")
	comp, err := c.Compile()
	require.NoError(t, err)

	g := NewLockGuard(comp)
	require.NoError(t, g.Begin())
	outcome, err := g.Check(&graph.Result{})
	require.NoError(t, err)
	assert.Equal(t, Committed, outcome.State)
}
