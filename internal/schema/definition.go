// Package schema turns index and constraint declarations into schema
// statements. Declarations come from entity metadata or from a YAML file.
package schema

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/ogm/internal/cypher"
	"github.com/rohankatakam/ogm/internal/errors"
	"github.com/rohankatakam/ogm/internal/metadata"
)

// Index and constraint kinds
const (
	KindRange    = "range"
	KindText     = "text"
	KindPoint    = "point"
	KindFulltext = "fulltext"

	KindUnique  = "unique"
	KindExists  = "exists"
	KindNodeKey = "node_key"
)

// Definition is one index or constraint
type Definition struct {
	Name string `yaml:"name,omitempty"`
	// Label is a node label, or a relationship type when Relationship is set
	Label        string   `yaml:"label"`
	Relationship bool     `yaml:"relationship,omitempty"`
	Properties   []string `yaml:"properties"`
	Kind         string   `yaml:"kind,omitempty"`
}

// File is the layout of a YAML schema file:
//
//	indexes:
//	  - label: Person
//	    properties: [name]
//	    kind: unique
type File struct {
	Indexes []Definition `yaml:"indexes"`
}

// LoadFile reads definitions from a YAML schema file
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh,
			fmt.Sprintf("failed to read schema file %s", path))
	}
	return Parse(data)
}

// Parse decodes YAML schema definitions and validates every entry
func Parse(data []byte) ([]Definition, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh, "invalid schema file")
	}
	for i := range f.Indexes {
		if f.Indexes[i].Kind == "" {
			f.Indexes[i].Kind = KindRange
		}
		if err := f.Indexes[i].Validate(); err != nil {
			return nil, err
		}
	}
	return f.Indexes, nil
}

// FromMetadata collects the index declarations of every class, in class
// order.
func FromMetadata(classes []metadata.Class) []Definition {
	var defs []Definition
	for _, c := range classes {
		for _, decl := range c.Indexes() {
			kind := decl.Kind
			if kind == "" {
				kind = KindRange
			}
			defs = append(defs, Definition{
				Name:         decl.Name,
				Label:        decl.Label,
				Relationship: c.IsRelationshipEntity(),
				Properties:   append([]string(nil), decl.Properties...),
				Kind:         kind,
			})
		}
	}
	return defs
}

// Merge combines definition lists, dropping later duplicates of the same
// name. The result is sorted by name.
func Merge(lists ...[]Definition) []Definition {
	seen := make(map[string]struct{})
	var out []Definition
	for _, list := range lists {
		for _, d := range list {
			name := d.IndexName()
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IndexName() < out[j].IndexName() })
	return out
}

// IsConstraint reports whether the kind is a constraint rather than an index
func (d Definition) IsConstraint() bool {
	switch d.Kind {
	case KindUnique, KindExists, KindNodeKey:
		return true
	}
	return false
}

// IndexName returns the explicit name or one derived from label, properties
// and kind, e.g. person_name_unique.
func (d Definition) IndexName() string {
	if d.Name != "" {
		return d.Name
	}
	parts := append([]string{strings.ToLower(d.Label)}, d.Properties...)
	parts = append(parts, d.Kind)
	return strings.Join(parts, "_")
}

// Validate checks the kind, identifiers and the property count the kind
// allows. An unknown kind is reported before anything else.
func (d Definition) Validate() error {
	switch d.Kind {
	case KindRange, KindFulltext, KindUnique, KindNodeKey, KindText, KindPoint, KindExists:
	default:
		return errors.UnsupportedErrorf("unsupported index type %q on %s", d.Kind, d.Label)
	}
	if !cypher.IsValidIdentifier(d.Label) {
		return errors.ValidationErrorf("invalid schema label %q", d.Label)
	}
	if !cypher.IsValidIdentifier(d.IndexName()) {
		return errors.ValidationErrorf("invalid schema name %q", d.IndexName())
	}
	if len(d.Properties) == 0 {
		return errors.ValidationErrorf("%s on %s declares no properties", d.Kind, d.Label)
	}
	for _, p := range d.Properties {
		if !cypher.IsValidIdentifier(p) {
			return errors.ValidationErrorf("invalid schema property %q on %s", p, d.Label)
		}
	}
	switch d.Kind {
	case KindText, KindPoint, KindExists:
		if len(d.Properties) > 1 {
			return errors.ValidationErrorf("%s on %s takes a single property", d.Kind, d.Label)
		}
	}
	return nil
}

// CreateStatement renders the idempotent creation statement
func (d Definition) CreateStatement() (cypher.Statement, error) {
	if err := d.Validate(); err != nil {
		return cypher.Statement{}, err
	}
	v := "n"
	if d.Relationship {
		v = "r"
	}
	qualified := make([]string, len(d.Properties))
	for i, p := range d.Properties {
		qualified[i] = v + "." + p
	}

	var b strings.Builder
	b.WriteString("CREATE ")
	switch d.Kind {
	case KindText:
		b.WriteString("TEXT INDEX ")
	case KindPoint:
		b.WriteString("POINT INDEX ")
	case KindFulltext:
		b.WriteString("FULLTEXT INDEX ")
	case KindRange:
		b.WriteString("INDEX ")
	default:
		b.WriteString("CONSTRAINT ")
	}
	b.WriteString(d.IndexName())
	b.WriteString(" IF NOT EXISTS FOR ")
	if d.Relationship {
		b.WriteString("()-[r:" + d.Label + "]-()")
	} else {
		b.WriteString("(n:" + d.Label + ")")
	}

	switch d.Kind {
	case KindFulltext:
		b.WriteString(" ON EACH [" + strings.Join(qualified, ", ") + "]")
	case KindRange, KindText, KindPoint:
		b.WriteString(" ON (" + strings.Join(qualified, ", ") + ")")
	case KindUnique:
		b.WriteString(" REQUIRE " + tuple(qualified) + " IS UNIQUE")
	case KindExists:
		b.WriteString(" REQUIRE " + qualified[0] + " IS NOT NULL")
	case KindNodeKey:
		if d.Relationship {
			b.WriteString(" REQUIRE " + tuple(qualified) + " IS RELATIONSHIP KEY")
		} else {
			b.WriteString(" REQUIRE " + tuple(qualified) + " IS NODE KEY")
		}
	}
	return cypher.Statement{Text: b.String()}, nil
}

// DropStatement renders the idempotent removal statement
func (d Definition) DropStatement() (cypher.Statement, error) {
	if err := d.Validate(); err != nil {
		return cypher.Statement{}, err
	}
	what := "INDEX"
	if d.IsConstraint() {
		what = "CONSTRAINT"
	}
	return cypher.Statement{Text: "DROP " + what + " " + d.IndexName() + " IF EXISTS"}, nil
}

func tuple(items []string) string {
	if len(items) == 1 {
		return items[0]
	}
	return "(" + strings.Join(items, ", ") + ")"
}
