package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/ogm/internal/errors"
)

type account struct {
	ID      *int64
	Email   string
	Nick    *string
	Score   int
	Tags    []string
	Version int64
	Extra   []string
	Follows []*account
}

type follow struct {
	ID       *int64
	From, To *account
	Since    int
}

func accountClass() Class {
	b := Define[account]("Account", "User").
		Identity(func(a *account) *int64 { return a.ID }, func(a *account, id int64) { a.ID = &id }).
		ExtraLabels(func(a *account) []string { return a.Extra }, func(a *account, l []string) { a.Extra = l }).
		Version("version", func(a *account) int64 { return a.Version }, func(a *account, v int64) { a.Version = v }).
		Relationship("FOLLOWS", Outgoing, func(a *account) []any {
			out := make([]any, len(a.Follows))
			for i, f := range a.Follows {
				out[i] = f
			}
			return out
		}).
		Unique("email").
		Index("text", "nick")
	Field(b, "email", func(a *account) *string { return &a.Email })
	Field(b, "nick", func(a *account) **string { return &a.Nick })
	Field(b, "score", func(a *account) *int { return &a.Score })
	Field(b, "tags", func(a *account) *[]string { return &a.Tags })
	return b.Build()
}

func TestClass_Properties(t *testing.T) {
	c := accountClass()
	a := &account{Email: "bilbo@shire.me", Score: 3}

	props := c.Properties(a)
	assert.Equal(t, map[string]any{"email": "bilbo@shire.me", "score": 3}, props,
		"typed-nil pointer and nil slice are omitted")

	nick := "baggins"
	a.Nick = &nick
	assert.Equal(t, "baggins", c.Properties(a)["nick"])
}

func TestClass_IdentityAndVersion(t *testing.T) {
	c := accountClass()
	a := &account{}

	_, ok := c.Identity(a)
	assert.False(t, ok)

	c.SetIdentity(a, 42)
	id, ok := c.Identity(a)
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	assert.Equal(t, "version", c.VersionProperty())
	c.SetVersion(a, 3)
	assert.Equal(t, int64(3), c.Version(a))
}

func TestClass_SetPropertyConverts(t *testing.T) {
	c := accountClass()
	a := &account{}

	tests := []struct {
		name  string
		prop  string
		value any
		check func(t *testing.T)
	}{
		{"int64 to int", "score", int64(9), func(t *testing.T) { assert.Equal(t, 9, a.Score) }},
		{"string to pointer", "nick", "frodo", func(t *testing.T) {
			require.NotNil(t, a.Nick)
			assert.Equal(t, "frodo", *a.Nick)
		}},
		{"nil clears", "nick", nil, func(t *testing.T) { assert.Nil(t, a.Nick) }},
		{"list of any", "tags", []any{"a", "b"}, func(t *testing.T) { assert.Equal(t, []string{"a", "b"}, a.Tags) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, c.SetProperty(a, tt.prop, tt.value))
			tt.check(t)
		})
	}

	assert.Error(t, c.SetProperty(a, "score", "not a number"))
	assert.NoError(t, c.SetProperty(a, "unknown", 1))
}

func TestClass_LabelsAndRelationships(t *testing.T) {
	c := accountClass()
	other := &account{}
	a := &account{Extra: []string{"Admin", "User"}, Follows: []*account{other, nil}}

	assert.Equal(t, []string{"Account", "User", "Admin"}, c.Labels(a))

	c.SetExtraLabels(a, []string{"Account", "User", "Moderator"})
	assert.Equal(t, []string{"Moderator"}, a.Extra)

	rels := c.Relationships(a)
	require.Len(t, rels, 1)
	assert.Equal(t, Relationship{Type: "FOLLOWS", Direction: Outgoing, Target: other}, rels[0])
	assert.Equal(t, []RelationshipField{{Type: "FOLLOWS", Direction: Outgoing}}, c.RelationshipFields())
}

func TestClass_Indexes(t *testing.T) {
	assert.Equal(t, []IndexDecl{
		{Label: "Account", Properties: []string{"email"}, Kind: "unique"},
		{Label: "Account", Properties: []string{"nick"}, Kind: "text"},
	}, accountClass().Indexes())
}

func TestRelationshipEntity(t *testing.T) {
	b := DefineRelationship[follow]("FOLLOWS",
		func(f *follow) any { return f.From },
		func(f *follow) any { return f.To })
	Field(b, "since", func(f *follow) *int { return &f.Since })
	c := b.Build()

	from, to := &account{}, &account{}
	f := &follow{From: from, To: to, Since: 2020}

	assert.True(t, c.IsRelationshipEntity())
	assert.Equal(t, "FOLLOWS", c.RelationshipType())
	start, end := c.Endpoints(f)
	assert.Same(t, from, start)
	assert.Same(t, to, end)
}

func TestRegistry_Lookup(t *testing.T) {
	reg, err := NewRegistry(accountClass())
	require.NoError(t, err)

	c, ok := reg.Lookup(&account{})
	require.True(t, ok)
	assert.Equal(t, "account", c.Name())

	_, ok = reg.Lookup(account{})
	assert.False(t, ok, "values are not registered, only pointers")
	_, ok = reg.Lookup(nil)
	assert.False(t, ok)

	c, ok = reg.ClassForLabels([]string{"User", "Account", "Admin"})
	require.True(t, ok)
	assert.Equal(t, "account", c.Name())
	_, ok = reg.ClassForLabels([]string{"Account"})
	assert.False(t, ok)
}

func TestRegistry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		classes []Class
	}{
		{"no labels", []Class{Define[account]().Build()}},
		{"bad label", []Class{Define[account]("Bad Label").Build()}},
		{"bad property", []Class{Field(Define[account]("Account"), "e-mail", func(a *account) *string { return &a.Email }).Build()}},
		{"duplicate", []Class{accountClass(), accountClass()}},
		{"version clash", []Class{
			Field(Define[account]("Account"), "version", func(a *account) *int64 { return &a.Version }).
				Version("version", func(a *account) int64 { return a.Version }, nil).
				Build(),
		}},
		{"non struct", []Class{Define[int]("Number").Build()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.classes...)
			assert.True(t, errors.Is(err, errors.ErrValidation))
		})
	}

	assert.Panics(t, func() { MustRegistry(Define[account]().Build()) })
}
