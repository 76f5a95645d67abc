package cypher

import (
	"fmt"
	"regexp"
	"strconv"
)

// ReferenceKind separates the namespaces a Reference can live in.
type ReferenceKind uint8

const (
	// KindNew is an element created by the statement being compiled.
	KindNew ReferenceKind = iota + 1
	// KindExistingNode is a node that already has a database id.
	KindExistingNode
	// KindExistingRelationship is a relationship that already has a database id.
	KindExistingRelationship
)

// Reference is the textual handle an element is known by inside one
// compiled statement. The zero value is not a valid reference.
type Reference struct {
	kind ReferenceKind
	id   int64
}

// Kind returns the namespace of the reference
func (r Reference) Kind() ReferenceKind { return r.kind }

// ID returns the counter value for new references and the backing
// database id for existing ones.
func (r Reference) ID() int64 { return r.id }

// IsNew reports whether the reference names an element created by this statement
func (r Reference) IsNew() bool { return r.kind == KindNew }

// Valid reports whether the reference was produced by an IdentifierManager
func (r Reference) Valid() bool {
	return r.kind >= KindNew && r.kind <= KindExistingRelationship && r.id >= 0
}

// String renders the variable name used in statement text.
func (r Reference) String() string {
	switch r.kind {
	case KindNew:
		return "_" + strconv.FormatInt(r.id, 10)
	case KindExistingNode:
		return "n" + strconv.FormatInt(r.id, 10)
	case KindExistingRelationship:
		return "r" + strconv.FormatInt(r.id, 10)
	default:
		return fmt.Sprintf("invalid(%d)", r.id)
	}
}

// PropsParam is the parameter key holding the element's property block
func (r Reference) PropsParam() string { return r.String() + "_props" }

// VersionParam is the parameter key holding the expected stored version
func (r Reference) VersionParam() string { return r.String() + "_version" }

// IdentifierManager allocates references for one compilation. New
// references count up from zero; the counter belongs to the manager.
type IdentifierManager struct {
	next int64
}

// NewIdentifierManager creates a manager whose first new reference is _0
func NewIdentifierManager() *IdentifierManager {
	return &IdentifierManager{}
}

// NextNewReference returns the next reference in the new-element namespace
func (m *IdentifierManager) NextNewReference() Reference {
	ref := Reference{kind: KindNew, id: m.next}
	m.next++
	return ref
}

// ReferenceFor returns the reference of an existing node. Equal ids yield
// equal references.
func (m *IdentifierManager) ReferenceFor(existingID int64) Reference {
	return Reference{kind: KindExistingNode, id: existingID}
}

// RelationshipReferenceFor returns the reference of an existing relationship
func (m *IdentifierManager) RelationshipReferenceFor(existingID int64) Reference {
	return Reference{kind: KindExistingRelationship, id: existingID}
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// IsValidIdentifier reports whether s can be written into statement text
// as a label, relationship type or property key without quoting.
// Only letters, digits and underscores are accepted.
func IsValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
