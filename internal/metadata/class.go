// Package metadata holds the statically declared mapping between Go types
// and graph elements. Classes are declared once at startup with Define or
// DefineRelationship and collected into a Registry.
package metadata

import (
	"fmt"
	"reflect"
)

// Direction of a relationship as seen from the declaring object
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "INCOMING"
	}
	return "OUTGOING"
}

// Relationship is one edge reachable from an object. Target is either a
// node object or a relationship entity object.
type Relationship struct {
	Type      string
	Direction Direction
	Target    any
}

// RelationshipField describes a declared relationship of a class. Edges of
// declared types that disappear from an object are removed on save.
type RelationshipField struct {
	Type      string
	Direction Direction
}

// IndexDecl is an index or constraint declared on a class
type IndexDecl struct {
	Name       string
	Label      string
	Properties []string
	Kind       string
}

// Class is the type-erased view of one declared type. Methods taking an
// object expect a pointer of the declared type.
type Class interface {
	Name() string
	Type() reflect.Type

	// Labels returns static labels followed by any dynamic labels of obj
	Labels(obj any) []string
	StaticLabels() []string
	SetExtraLabels(obj any, labels []string)

	IsRelationshipEntity() bool
	RelationshipType() string
	Endpoints(obj any) (start, end any)

	PropertyNames() []string
	// Properties returns non-nil property values; nil and typed-nil values are omitted
	Properties(obj any) map[string]any
	SetProperty(obj any, name string, value any) error

	Identity(obj any) (int64, bool)
	SetIdentity(obj any, id int64)

	VersionProperty() string
	Version(obj any) int64
	SetVersion(obj any, v int64)

	Relationships(obj any) []Relationship
	RelationshipFields() []RelationshipField

	Indexes() []IndexDecl
}

type property[T any] struct {
	name string
	get  func(*T) any
	set  func(*T, any) error
}

type relationship[T any] struct {
	field   RelationshipField
	targets func(*T) []any
}

type class[T any] struct {
	labels     []string
	extraGet   func(*T) []string
	extraSet   func(*T, []string)
	relType    string
	start, end func(*T) any
	props      []property[T]
	idGet      func(*T) *int64
	idSet      func(*T, int64)
	versionKey string
	versionGet func(*T) int64
	versionSet func(*T, int64)
	rels       []relationship[T]
	indexes    []IndexDecl
}

// ClassBuilder declares a class of type T
type ClassBuilder[T any] struct {
	c *class[T]
}

// Define starts the declaration of a node class with the given labels
func Define[T any](labels ...string) *ClassBuilder[T] {
	return &ClassBuilder[T]{c: &class[T]{labels: labels}}
}

// DefineRelationship starts the declaration of a relationship entity
// class: a relationship with its own properties and identity.
func DefineRelationship[T any](typ string, start, end func(*T) any) *ClassBuilder[T] {
	return &ClassBuilder[T]{c: &class[T]{relType: typ, start: start, end: end}}
}

// Identity declares how the stored id is read and written. get returns nil
// for objects that were never saved.
func (b *ClassBuilder[T]) Identity(get func(*T) *int64, set func(*T, int64)) *ClassBuilder[T] {
	b.c.idGet, b.c.idSet = get, set
	return b
}

// ExtraLabels declares dynamic labels carried by the object itself
func (b *ClassBuilder[T]) ExtraLabels(get func(*T) []string, set func(*T, []string)) *ClassBuilder[T] {
	b.c.extraGet, b.c.extraSet = get, set
	return b
}

// Property declares a property; set may be nil for write-only properties
func (b *ClassBuilder[T]) Property(name string, get func(*T) any, set func(*T, any) error) *ClassBuilder[T] {
	b.c.props = append(b.c.props, property[T]{name: name, get: get, set: set})
	return b
}

// Version declares the optimistic locking property
func (b *ClassBuilder[T]) Version(name string, get func(*T) int64, set func(*T, int64)) *ClassBuilder[T] {
	b.c.versionKey, b.c.versionGet, b.c.versionSet = name, get, set
	return b
}

// Relationship declares edges of one type and direction
func (b *ClassBuilder[T]) Relationship(typ string, dir Direction, targets func(*T) []any) *ClassBuilder[T] {
	b.c.rels = append(b.c.rels, relationship[T]{
		field:   RelationshipField{Type: typ, Direction: dir},
		targets: targets,
	})
	return b
}

// Index declares an index of the given kind on the first static label
func (b *ClassBuilder[T]) Index(kind string, properties ...string) *ClassBuilder[T] {
	b.c.indexes = append(b.c.indexes, IndexDecl{Properties: properties, Kind: kind})
	return b
}

// Unique declares a uniqueness constraint
func (b *ClassBuilder[T]) Unique(properties ...string) *ClassBuilder[T] {
	return b.Index("unique", properties...)
}

// Build finishes the declaration
func (b *ClassBuilder[T]) Build() Class {
	c := b.c
	label := c.relType
	if len(c.labels) > 0 {
		label = c.labels[0]
	}
	for i := range c.indexes {
		c.indexes[i].Label = label
	}
	return c
}

// Field declares a property backed directly by a struct field. Stored
// values are converted to the field type on reload where Go allows it.
func Field[T, V any](b *ClassBuilder[T], name string, ptr func(*T) *V) *ClassBuilder[T] {
	get := func(t *T) any { return *ptr(t) }
	set := func(t *T, value any) error {
		return assign(reflect.ValueOf(ptr(t)).Elem(), value)
	}
	return b.Property(name, get, set)
}

func assign(dst reflect.Value, value any) error {
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	src := reflect.ValueOf(value)
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case dst.Kind() == reflect.Pointer && convertible(src.Type(), dst.Type().Elem()):
		p := reflect.New(dst.Type().Elem())
		p.Elem().Set(src.Convert(dst.Type().Elem()))
		dst.Set(p)
	case convertible(src.Type(), dst.Type()):
		dst.Set(src.Convert(dst.Type()))
	case src.Kind() == reflect.Slice && dst.Kind() == reflect.Slice:
		out := reflect.MakeSlice(dst.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			if err := assign(out.Index(i), src.Index(i).Interface()); err != nil {
				return err
			}
		}
		dst.Set(out)
	default:
		return fmt.Errorf("cannot assign %T to %s", value, dst.Type())
	}
	return nil
}

// convertible allows numeric conversions and same-kind conversions, but
// never number to string.
func convertible(src, dst reflect.Type) bool {
	if !isScalar(src.Kind()) || !isScalar(dst.Kind()) {
		return false
	}
	if (src.Kind() == reflect.String) != (dst.Kind() == reflect.String) {
		return false
	}
	return src.ConvertibleTo(dst)
}

func isScalar(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String, reflect.Bool:
		return true
	}
	return false
}

func (c *class[T]) cast(obj any) *T {
	t, ok := obj.(*T)
	if !ok {
		panic(fmt.Sprintf("metadata: %T is not a %s", obj, c.Name()))
	}
	return t
}

func (c *class[T]) Name() string {
	return reflect.TypeOf((*T)(nil)).Elem().Name()
}

func (c *class[T]) Type() reflect.Type { return reflect.TypeOf((*T)(nil)) }

func (c *class[T]) StaticLabels() []string { return append([]string(nil), c.labels...) }

func (c *class[T]) Labels(obj any) []string {
	out := c.StaticLabels()
	if c.extraGet == nil {
		return out
	}
	for _, l := range c.extraGet(c.cast(obj)) {
		if !contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

func (c *class[T]) SetExtraLabels(obj any, labels []string) {
	if c.extraSet == nil {
		return
	}
	var extra []string
	for _, l := range labels {
		if !contains(c.labels, l) {
			extra = append(extra, l)
		}
	}
	c.extraSet(c.cast(obj), extra)
}

func (c *class[T]) IsRelationshipEntity() bool { return c.relType != "" }

func (c *class[T]) RelationshipType() string { return c.relType }

func (c *class[T]) Endpoints(obj any) (any, any) {
	if !c.IsRelationshipEntity() {
		return nil, nil
	}
	t := c.cast(obj)
	return c.start(t), c.end(t)
}

func (c *class[T]) PropertyNames() []string {
	names := make([]string, len(c.props))
	for i, p := range c.props {
		names[i] = p.name
	}
	return names
}

func (c *class[T]) Properties(obj any) map[string]any {
	t := c.cast(obj)
	out := make(map[string]any, len(c.props))
	for _, p := range c.props {
		v := p.get(t)
		if isNil(v) {
			continue
		}
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
			v = rv.Elem().Interface()
		}
		out[p.name] = v
	}
	return out
}

func (c *class[T]) SetProperty(obj any, name string, value any) error {
	for _, p := range c.props {
		if p.name != name {
			continue
		}
		if p.set == nil {
			return nil
		}
		return p.set(c.cast(obj), value)
	}
	return nil
}

func (c *class[T]) Identity(obj any) (int64, bool) {
	if c.idGet == nil {
		return 0, false
	}
	id := c.idGet(c.cast(obj))
	if id == nil {
		return 0, false
	}
	return *id, true
}

func (c *class[T]) SetIdentity(obj any, id int64) {
	if c.idSet != nil {
		c.idSet(c.cast(obj), id)
	}
}

func (c *class[T]) VersionProperty() string { return c.versionKey }

func (c *class[T]) Version(obj any) int64 {
	if c.versionGet == nil {
		return 0
	}
	return c.versionGet(c.cast(obj))
}

func (c *class[T]) SetVersion(obj any, v int64) {
	if c.versionSet != nil {
		c.versionSet(c.cast(obj), v)
	}
}

func (c *class[T]) Relationships(obj any) []Relationship {
	t := c.cast(obj)
	var out []Relationship
	for _, r := range c.rels {
		for _, target := range r.targets(t) {
			if isNil(target) {
				continue
			}
			out = append(out, Relationship{Type: r.field.Type, Direction: r.field.Direction, Target: target})
		}
	}
	return out
}

func (c *class[T]) RelationshipFields() []RelationshipField {
	out := make([]RelationshipField, len(c.rels))
	for i, r := range c.rels {
		out[i] = r.field
	}
	return out
}

func (c *class[T]) Indexes() []IndexDecl {
	out := make([]IndexDecl, len(c.indexes))
	copy(out, c.indexes)
	return out
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
