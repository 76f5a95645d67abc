// Package sample declares a small domain model used by the demo command
// and by tests of the mapping and session layers.
package sample

import "github.com/rohankatakam/ogm/internal/metadata"

type Person struct {
	ID       *int64
	Name     string
	Age      int
	Nickname *string
	Version  int64
	Roles    []string

	Friends []*Person
	Pets    []*Pet
	Ratings []*Rating
}

type Pet struct {
	ID      *int64
	Name    string
	Species string
	Owner   *Person
}

type Movie struct {
	ID       *int64
	Title    string
	Released int
}

// Rating is a relationship entity: (Person)-[:RATED {stars}]->(Movie)
type Rating struct {
	ID      *int64
	Person  *Person
	Movie   *Movie
	Stars   int
	Comment string
	Version int64
}

func asAny[T any](items []T) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}

func PersonClass() metadata.Class {
	b := metadata.Define[Person]("Person").
		Identity(func(p *Person) *int64 { return p.ID }, func(p *Person, id int64) { p.ID = &id }).
		ExtraLabels(func(p *Person) []string { return p.Roles }, func(p *Person, l []string) { p.Roles = l }).
		Version("version", func(p *Person) int64 { return p.Version }, func(p *Person, v int64) { p.Version = v }).
		Relationship("KNOWS", metadata.Outgoing, func(p *Person) []any { return asAny(p.Friends) }).
		Relationship("OWNS", metadata.Outgoing, func(p *Person) []any { return asAny(p.Pets) }).
		Relationship("RATED", metadata.Outgoing, func(p *Person) []any { return asAny(p.Ratings) }).
		Unique("name").
		Index("range", "age")
	metadata.Field(b, "name", func(p *Person) *string { return &p.Name })
	metadata.Field(b, "age", func(p *Person) *int { return &p.Age })
	metadata.Field(b, "nickname", func(p *Person) **string { return &p.Nickname })
	return b.Build()
}

func PetClass() metadata.Class {
	b := metadata.Define[Pet]("Pet").
		Identity(func(p *Pet) *int64 { return p.ID }, func(p *Pet, id int64) { p.ID = &id }).
		Relationship("OWNS", metadata.Incoming, func(p *Pet) []any {
			if p.Owner == nil {
				return nil
			}
			return []any{p.Owner}
		})
	metadata.Field(b, "name", func(p *Pet) *string { return &p.Name })
	metadata.Field(b, "species", func(p *Pet) *string { return &p.Species })
	return b.Build()
}

func MovieClass() metadata.Class {
	b := metadata.Define[Movie]("Movie").
		Identity(func(m *Movie) *int64 { return m.ID }, func(m *Movie, id int64) { m.ID = &id }).
		Index("text", "title")
	metadata.Field(b, "title", func(m *Movie) *string { return &m.Title })
	metadata.Field(b, "released", func(m *Movie) *int { return &m.Released })
	return b.Build()
}

func RatingClass() metadata.Class {
	b := metadata.DefineRelationship[Rating]("RATED",
		func(r *Rating) any { return r.Person },
		func(r *Rating) any { return r.Movie }).
		Identity(func(r *Rating) *int64 { return r.ID }, func(r *Rating, id int64) { r.ID = &id }).
		Version("version", func(r *Rating) int64 { return r.Version }, func(r *Rating, v int64) { r.Version = v })
	metadata.Field(b, "stars", func(r *Rating) *int { return &r.Stars })
	metadata.Field(b, "comment", func(r *Rating) *string { return &r.Comment })
	return b.Build()
}

// Registry returns the metadata table for the sample model
func Registry() *metadata.Registry {
	return metadata.MustRegistry(PersonClass(), PetClass(), MovieClass(), RatingClass())
}
