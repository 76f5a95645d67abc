package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/ogm/internal/cypher"
	"github.com/rohankatakam/ogm/internal/errors"
	"github.com/rohankatakam/ogm/internal/graph"
	"github.com/rohankatakam/ogm/internal/sample"
)

func TestDefinition_CreateStatement(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		want string
	}{
		{"range", Definition{Label: "Person", Properties: []string{"age"}, Kind: KindRange},
			"CREATE INDEX person_age_range IF NOT EXISTS FOR (n:Person) ON (n.age)"},
		{"composite range", Definition{Label: "Person", Properties: []string{"name", "age"}, Kind: KindRange},
			"CREATE INDEX person_name_age_range IF NOT EXISTS FOR (n:Person) ON (n.name, n.age)"},
		{"text", Definition{Label: "Movie", Properties: []string{"title"}, Kind: KindText},
			"CREATE TEXT INDEX movie_title_text IF NOT EXISTS FOR (n:Movie) ON (n.title)"},
		{"point", Definition{Name: "place_loc", Label: "Place", Properties: []string{"location"}, Kind: KindPoint},
			"CREATE POINT INDEX place_loc IF NOT EXISTS FOR (n:Place) ON (n.location)"},
		{"fulltext", Definition{Label: "Movie", Properties: []string{"title", "tagline"}, Kind: KindFulltext},
			"CREATE FULLTEXT INDEX movie_title_tagline_fulltext IF NOT EXISTS FOR (n:Movie) ON EACH [n.title, n.tagline]"},
		{"unique", Definition{Label: "Person", Properties: []string{"name"}, Kind: KindUnique},
			"CREATE CONSTRAINT person_name_unique IF NOT EXISTS FOR (n:Person) REQUIRE n.name IS UNIQUE"},
		{"composite unique", Definition{Label: "File", Properties: []string{"repo_id", "path"}, Kind: KindUnique},
			"CREATE CONSTRAINT file_repo_id_path_unique IF NOT EXISTS FOR (n:File) REQUIRE (n.repo_id, n.path) IS UNIQUE"},
		{"exists", Definition{Label: "Person", Properties: []string{"name"}, Kind: KindExists},
			"CREATE CONSTRAINT person_name_exists IF NOT EXISTS FOR (n:Person) REQUIRE n.name IS NOT NULL"},
		{"node key", Definition{Label: "Person", Properties: []string{"name", "born"}, Kind: KindNodeKey},
			"CREATE CONSTRAINT person_name_born_node_key IF NOT EXISTS FOR (n:Person) REQUIRE (n.name, n.born) IS NODE KEY"},
		{"relationship range", Definition{Label: "RATED", Relationship: true, Properties: []string{"stars"}, Kind: KindRange},
			"CREATE INDEX rated_stars_range IF NOT EXISTS FOR ()-[r:RATED]-() ON (r.stars)"},
		{"relationship key", Definition{Label: "RATED", Relationship: true, Properties: []string{"id"}, Kind: KindNodeKey},
			"CREATE CONSTRAINT rated_id_node_key IF NOT EXISTS FOR ()-[r:RATED]-() REQUIRE r.id IS RELATIONSHIP KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := tt.def.CreateStatement()
			require.NoError(t, err)
			assert.Equal(t, tt.want, stmt.Text)
			assert.Empty(t, stmt.Parameters)
			assert.NoError(t, stmt.Validate())
		})
	}
}

func TestDefinition_DropStatement(t *testing.T) {
	stmt, err := Definition{Label: "Person", Properties: []string{"name"}, Kind: KindUnique}.DropStatement()
	require.NoError(t, err)
	assert.Equal(t, "DROP CONSTRAINT person_name_unique IF EXISTS", stmt.Text)

	stmt, err = Definition{Label: "Person", Properties: []string{"age"}, Kind: KindRange}.DropStatement()
	require.NoError(t, err)
	assert.Equal(t, "DROP INDEX person_age_range IF EXISTS", stmt.Text)
}

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		errType *errors.Error
	}{
		{"unsupported kind", Definition{Label: "Person", Properties: []string{"name"}, Kind: "vector"}, errors.ErrUnsupportedIndexType},
		{"unsupported kind that is no identifier", Definition{Label: "Person", Properties: []string{"name"}, Kind: "b-tree"}, errors.ErrUnsupportedIndexType},
		{"unsupported kind wins over bad label", Definition{Label: "Per son", Kind: "vector"}, errors.ErrUnsupportedIndexType},
		{"bad label", Definition{Label: "Per son", Properties: []string{"name"}, Kind: KindRange}, errors.ErrValidation},
		{"bad property", Definition{Label: "Person", Properties: []string{"na-me"}, Kind: KindRange}, errors.ErrValidation},
		{"no properties", Definition{Label: "Person", Kind: KindRange}, errors.ErrValidation},
		{"text takes one property", Definition{Label: "Person", Properties: []string{"a", "b"}, Kind: KindText}, errors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.def.CreateStatement()
			assert.True(t, errors.Is(err, tt.errType), "got %v", err)
		})
	}
}

func TestFromMetadata(t *testing.T) {
	defs := FromMetadata(sample.Registry().Classes())
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.IndexName()
	}
	assert.Equal(t, []string{"person_name_unique", "person_age_range", "movie_title_text"}, names)
}

func TestParse(t *testing.T) {
	data := []byte(`
indexes:
  - label: Person
    properties: [name]
    kind: unique
  - label: RATED
    relationship: true
    properties: [stars]
`)
	defs, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, KindRange, defs[1].Kind)
	assert.True(t, defs[1].Relationship)

	_, err = Parse([]byte("indexes:\n  - label: Person\n    properties: [name]\n    kind: spatial\n"))
	assert.True(t, errors.Is(err, errors.ErrUnsupportedIndexType))

	_, err = Parse([]byte("indexes: [::"))
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indexes:\n  - label: Movie\n    properties: [released]\n"), 0o600))

	defs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "movie_released_range", defs[0].IndexName())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

func TestMerge(t *testing.T) {
	a := []Definition{{Label: "Person", Properties: []string{"name"}, Kind: KindUnique}}
	b := []Definition{
		{Label: "Person", Properties: []string{"name"}, Kind: KindUnique},
		{Label: "Movie", Properties: []string{"title"}, Kind: KindText},
	}
	merged := Merge(a, b)
	require.Len(t, merged, 2)
	assert.Equal(t, "movie_title_text", merged[0].IndexName())
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeNone, "assert": ModeAssert, " DUMP ": ModeDump, "drop": ModeDrop} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("validate")
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

type recordingExecutor struct {
	operations []string
	statements []cypher.Statement
}

func (r *recordingExecutor) Execute(_ context.Context, operation string, stmt cypher.Statement) (*graph.Result, error) {
	r.operations = append(r.operations, operation)
	r.statements = append(r.statements, stmt)
	return &graph.Result{Counters: graph.Counters{ConstraintsAdded: 1}}, nil
}

func TestManager_Apply(t *testing.T) {
	ctx := context.Background()
	defs := FromMetadata(sample.Registry().Classes())

	exec := &recordingExecutor{}
	report, err := NewManager(exec).Apply(ctx, ModeAssert, defs)
	require.NoError(t, err)
	assert.Len(t, exec.statements, 3)
	assert.Equal(t, []string{graph.OpSchema, graph.OpSchema, graph.OpSchema}, exec.operations)
	assert.Equal(t, 3, report.Counters.ConstraintsAdded)

	dump := &recordingExecutor{}
	report, err = NewManager(dump).Apply(ctx, ModeDump, defs)
	require.NoError(t, err)
	assert.Empty(t, dump.statements)
	assert.Len(t, report.Statements, 3)

	report, err = NewManager(nil).Apply(ctx, ModeNone, defs)
	require.NoError(t, err)
	assert.Empty(t, report.Statements)

	_, err = NewManager(nil).Apply(ctx, ModeDrop, defs)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

func TestManager_UnsupportedFailsBeforeExecuting(t *testing.T) {
	exec := &recordingExecutor{}
	defs := []Definition{
		{Label: "Person", Properties: []string{"name"}, Kind: KindUnique},
		{Label: "Person", Properties: []string{"embedding"}, Kind: "vector"},
	}
	_, err := NewManager(exec).Apply(context.Background(), ModeAssert, defs)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedIndexType))
	assert.Empty(t, exec.statements)
}
