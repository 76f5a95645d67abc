package metadata

import (
	"reflect"
	"sort"

	"github.com/rohankatakam/ogm/internal/cypher"
	"github.com/rohankatakam/ogm/internal/errors"
)

// EntityMetadata resolves the declared class of an object
type EntityMetadata interface {
	Lookup(obj any) (Class, bool)
	Classes() []Class
}

// Registry is the metadata table. It is built once and read-only afterwards.
type Registry struct {
	byType map[reflect.Type]Class
	order  []Class
}

// NewRegistry validates the declarations and indexes them by Go type
func NewRegistry(classes ...Class) (*Registry, error) {
	r := &Registry{byType: make(map[reflect.Type]Class, len(classes))}
	for _, c := range classes {
		if err := validate(c); err != nil {
			return nil, err
		}
		if _, dup := r.byType[c.Type()]; dup {
			return nil, errors.ValidationErrorf("class %s declared twice", c.Name())
		}
		r.byType[c.Type()] = c
		r.order = append(r.order, c)
	}
	return r, nil
}

// MustRegistry is NewRegistry for static declarations; it panics on error
func MustRegistry(classes ...Class) *Registry {
	r, err := NewRegistry(classes...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the class declared for obj's type
func (r *Registry) Lookup(obj any) (Class, bool) {
	if obj == nil {
		return nil, false
	}
	c, ok := r.byType[reflect.TypeOf(obj)]
	return c, ok
}

// Classes returns the classes in declaration order
func (r *Registry) Classes() []Class {
	out := make([]Class, len(r.order))
	copy(out, r.order)
	return out
}

// ClassForLabels returns the node class whose static labels are all
// present in labels, preferring the most specific match.
func (r *Registry) ClassForLabels(labels []string) (Class, bool) {
	var candidates []Class
	for _, c := range r.order {
		if c.IsRelationshipEntity() || len(c.StaticLabels()) == 0 {
			continue
		}
		if containsAll(labels, c.StaticLabels()) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].StaticLabels()) > len(candidates[j].StaticLabels())
	})
	return candidates[0], true
}

func validate(c Class) error {
	t := c.Type()
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return errors.ValidationErrorf("class %s must be declared on a struct type", t)
	}

	check := func(what, name string) error {
		if !cypher.IsValidIdentifier(name) {
			return errors.ValidationErrorf("class %s has invalid %s %q", c.Name(), what, name)
		}
		return nil
	}

	if c.IsRelationshipEntity() {
		if err := check("relationship type", c.RelationshipType()); err != nil {
			return err
		}
	} else if len(c.StaticLabels()) == 0 {
		return errors.ValidationErrorf("class %s declares no labels", c.Name())
	}
	for _, l := range c.StaticLabels() {
		if err := check("label", l); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{})
	for _, p := range c.PropertyNames() {
		if err := check("property", p); err != nil {
			return err
		}
		if _, dup := seen[p]; dup {
			return errors.ValidationErrorf("class %s declares property %q twice", c.Name(), p)
		}
		seen[p] = struct{}{}
	}
	if v := c.VersionProperty(); v != "" {
		if err := check("version property", v); err != nil {
			return err
		}
		if _, dup := seen[v]; dup {
			return errors.ValidationErrorf("class %s uses %q as both property and version", c.Name(), v)
		}
	}
	for _, f := range c.RelationshipFields() {
		if err := check("relationship type", f.Type); err != nil {
			return err
		}
	}
	return nil
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		if !contains(have, w) {
			return false
		}
	}
	return true
}
