package cypher

import (
	"strconv"
	"strings"

	"github.com/rohankatakam/ogm/internal/errors"
)

// Builder describes one node or relationship and knows how to render
// itself. The variant set is closed: NewNodeBuilder, ExistingNodeBuilder,
// DeletedNodeBuilder, NewRelationshipBuilder, ExistingRelationshipBuilder
// and DeletedRelationshipBuilder.
//
// Emit writes the builder's clause fragment to out, stages its parameters
// and binds what it introduces into scope. It returns false, writing and
// staging nothing, when the builder has nothing to contribute.
type Builder interface {
	Reference() Reference
	Emit(out *strings.Builder, params map[string]any, scope *Scope) (bool, error)

	sealed()
}

// properties is a property block. Nil values are never stored: omission is
// how an unset property is represented.
type properties map[string]any

func (p *properties) set(key string, value any) {
	if value == nil {
		return
	}
	if *p == nil {
		*p = make(properties)
	}
	(*p)[key] = value
}

func (p properties) clone() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Guard is an optimistic locking check attached to an existing element.
type Guard struct {
	Reference Reference
	Property  string
	Expected  int64
	// Delete marks a guarded deletion, verified through deletion counters
	// instead of returned rows.
	Delete bool
}

type versionGuard struct {
	property string
	expected int64
}

func (g *versionGuard) validate(ref Reference) error {
	if !IsValidIdentifier(g.property) {
		return errors.ConstructionErrorf("invalid version property %q on %s", g.property, ref)
	}
	return nil
}

// condition renders the version comparison and stages the expected value.
func (g *versionGuard) condition(params map[string]any, ref Reference) string {
	params[ref.VersionParam()] = g.expected
	return ref.String() + "." + g.property + " = $" + ref.VersionParam()
}

// writeCondition appends the version comparison to an existing WHERE.
func (g *versionGuard) writeCondition(out *strings.Builder, params map[string]any, ref Reference) {
	out.WriteString(" AND ")
	out.WriteString(g.condition(params, ref))
}

func writeLabels(out *strings.Builder, ref Reference, labels []string) error {
	for _, label := range labels {
		if !IsValidIdentifier(label) {
			return errors.ConstructionErrorf("invalid label %q on %s", label, ref)
		}
		out.WriteByte(':')
		out.WriteString(label)
	}
	return nil
}

func writeMatchByID(out *strings.Builder, ref Reference) {
	out.WriteString("MATCH (")
	out.WriteString(ref.String())
	out.WriteString(") WHERE id(")
	out.WriteString(ref.String())
	out.WriteString(") = ")
	out.WriteString(strconv.FormatInt(ref.ID(), 10))
}

func appendLabel(labels []string, label string) []string {
	for _, l := range labels {
		if l == label {
			return labels
		}
	}
	return append(labels, label)
}

// NewNodeBuilder renders a node created by the statement.
type NewNodeBuilder struct {
	ref    Reference
	labels []string
	props  properties
}

func (b *NewNodeBuilder) sealed() {}

// Reference returns the new-namespace reference of the node
func (b *NewNodeBuilder) Reference() Reference { return b.ref }

// AddLabel adds a label; duplicates are ignored
func (b *NewNodeBuilder) AddLabel(label string) *NewNodeBuilder {
	b.labels = appendLabel(b.labels, label)
	return b
}

// SetProperty stages a property; nil values are dropped
func (b *NewNodeBuilder) SetProperty(key string, value any) *NewNodeBuilder {
	b.props.set(key, value)
	return b
}

// Labels returns the labels in insertion order
func (b *NewNodeBuilder) Labels() []string { return append([]string(nil), b.labels...) }

// Properties returns a copy of the staged properties
func (b *NewNodeBuilder) Properties() map[string]any { return b.props.clone() }

// Emit renders (_0:Label $_0_props). The property block is always staged,
// even when empty, so every new node is created by the same shape.
func (b *NewNodeBuilder) Emit(out *strings.Builder, params map[string]any, scope *Scope) (bool, error) {
	var frag strings.Builder
	frag.WriteByte('(')
	frag.WriteString(b.ref.String())
	if err := writeLabels(&frag, b.ref, b.labels); err != nil {
		return false, err
	}
	frag.WriteString(" $")
	frag.WriteString(b.ref.PropsParam())
	frag.WriteByte(')')

	out.WriteString(frag.String())
	params[b.ref.PropsParam()] = b.props.clone()
	scope.Add(b.ref)
	return true, nil
}

// ExistingNodeBuilder patches a node that already has a database id.
type ExistingNodeBuilder struct {
	ref          Reference
	props        properties
	addLabels    []string
	removeLabels []string
	guard        *versionGuard
}

func (b *ExistingNodeBuilder) sealed() {}

// Reference returns the existing-node reference
func (b *ExistingNodeBuilder) Reference() Reference { return b.ref }

// SetProperty stages a changed property; nil values are dropped
func (b *ExistingNodeBuilder) SetProperty(key string, value any) *ExistingNodeBuilder {
	b.props.set(key, value)
	return b
}

// AddLabel stages a label to add
func (b *ExistingNodeBuilder) AddLabel(label string) *ExistingNodeBuilder {
	b.addLabels = appendLabel(b.addLabels, label)
	return b
}

// RemoveLabel stages a label to remove
func (b *ExistingNodeBuilder) RemoveLabel(label string) *ExistingNodeBuilder {
	b.removeLabels = appendLabel(b.removeLabels, label)
	return b
}

// Guard makes the update conditional on the stored version and stages
// the incremented version with the property block.
func (b *ExistingNodeBuilder) Guard(property string, expected int64) *ExistingNodeBuilder {
	b.guard = &versionGuard{property: property, expected: expected}
	return b
}

// Changed reports whether the builder has anything to write
func (b *ExistingNodeBuilder) Changed() bool {
	return len(b.props) > 0 || len(b.addLabels) > 0 || len(b.removeLabels) > 0
}

func (b *ExistingNodeBuilder) versionGuard() (Guard, bool) {
	if b.guard == nil {
		return Guard{}, false
	}
	return Guard{Reference: b.ref, Property: b.guard.property, Expected: b.guard.expected}, true
}

// Emit renders WITH <scope> MATCH (n5) WHERE id(n5) = 5 SET n5 += $n5_props.
// An unchanged node contributes nothing.
func (b *ExistingNodeBuilder) Emit(out *strings.Builder, params map[string]any, scope *Scope) (bool, error) {
	if !b.Changed() {
		return false, nil
	}
	if b.guard != nil {
		if err := b.guard.validate(b.ref); err != nil {
			return false, err
		}
	}

	staged := map[string]any{}
	var frag strings.Builder
	scope.writeWith(&frag)
	writeMatchByID(&frag, b.ref)
	if b.guard != nil {
		b.guard.writeCondition(&frag, staged, b.ref)
	}

	var items []string
	props := b.props.clone()
	if b.guard != nil {
		props[b.guard.property] = b.guard.expected + 1
	}
	if len(props) > 0 {
		items = append(items, b.ref.String()+" += $"+b.ref.PropsParam())
		staged[b.ref.PropsParam()] = props
	}
	if len(b.addLabels) > 0 {
		var labels strings.Builder
		labels.WriteString(b.ref.String())
		if err := writeLabels(&labels, b.ref, b.addLabels); err != nil {
			return false, err
		}
		items = append(items, labels.String())
	}
	if len(items) > 0 {
		frag.WriteString(" SET ")
		frag.WriteString(strings.Join(items, ", "))
	}
	if len(b.removeLabels) > 0 {
		frag.WriteString(" REMOVE ")
		frag.WriteString(b.ref.String())
		if err := writeLabels(&frag, b.ref, b.removeLabels); err != nil {
			return false, err
		}
	}

	out.WriteString(frag.String())
	for k, v := range staged {
		params[k] = v
	}
	scope.Add(b.ref)
	return true, nil
}

// DeletedNodeBuilder removes a node and all of its relationships.
type DeletedNodeBuilder struct {
	ref   Reference
	guard *versionGuard
}

func (b *DeletedNodeBuilder) sealed() {}

// Reference returns the existing-node reference
func (b *DeletedNodeBuilder) Reference() Reference { return b.ref }

// Guard makes the deletion conditional on the stored version
func (b *DeletedNodeBuilder) Guard(property string, expected int64) *DeletedNodeBuilder {
	b.guard = &versionGuard{property: property, expected: expected}
	return b
}

func (b *DeletedNodeBuilder) versionGuard() (Guard, bool) {
	if b.guard == nil {
		return Guard{}, false
	}
	return Guard{Reference: b.ref, Property: b.guard.property, Expected: b.guard.expected, Delete: true}, true
}

// Emit renders MATCH (n5) WHERE id(n5) = 5 DETACH DELETE n5
func (b *DeletedNodeBuilder) Emit(out *strings.Builder, params map[string]any, scope *Scope) (bool, error) {
	if b.guard != nil {
		if err := b.guard.validate(b.ref); err != nil {
			return false, err
		}
	}

	staged := map[string]any{}
	var frag strings.Builder
	scope.writeWith(&frag)
	writeMatchByID(&frag, b.ref)
	if b.guard != nil {
		b.guard.writeCondition(&frag, staged, b.ref)
	}
	frag.WriteString(" DETACH DELETE ")
	frag.WriteString(b.ref.String())

	out.WriteString(frag.String())
	for k, v := range staged {
		params[k] = v
	}
	return true, nil
}

// endpointMatches writes a MATCH for every endpoint that is not bound yet
// and binds it. New endpoints cannot be matched by id and must already be
// in scope.
func endpointMatches(frag *strings.Builder, scope *Scope, owner Reference, endpoints ...Reference) error {
	var missing []Reference
	for _, ep := range endpoints {
		if !ep.Valid() {
			return errors.ConstructionErrorf("relationship %s has an unresolved endpoint", owner)
		}
		if scope.Contains(ep) {
			continue
		}
		if ep.IsNew() {
			return errors.ConstructionErrorf("relationship %s references %s before it is created", owner, ep)
		}
		if len(missing) == 1 && missing[0] == ep {
			continue
		}
		missing = append(missing, ep)
	}
	if len(missing) == 0 {
		return nil
	}

	scope.writeWith(frag)
	for i, ep := range missing {
		if i > 0 {
			frag.WriteByte(' ')
		}
		writeMatchByID(frag, ep)
	}
	frag.WriteByte(' ')
	for _, ep := range missing {
		scope.Add(ep)
	}
	return nil
}

// NewRelationshipBuilder renders a relationship created by the statement.
type NewRelationshipBuilder struct {
	ref        Reference
	typ        string
	start, end Reference
	props      properties
	correlated bool
}

func (b *NewRelationshipBuilder) sealed() {}

// Reference returns the new-namespace reference of the relationship
func (b *NewRelationshipBuilder) Reference() Reference { return b.ref }

// Type returns the relationship type
func (b *NewRelationshipBuilder) Type() string { return b.typ }

// SetProperty stages a property; nil values are dropped
func (b *NewRelationshipBuilder) SetProperty(key string, value any) *NewRelationshipBuilder {
	b.props.set(key, value)
	return b
}

// Correlate asks for the generated relationship id to be returned
func (b *NewRelationshipBuilder) Correlate() *NewRelationshipBuilder {
	b.correlated = true
	return b
}

// Emit renders the endpoint MATCHes it needs followed by
// MERGE (start)-[_2:TYPE]->(end). MERGE keeps a relationship compiled
// twice from becoming two edges.
func (b *NewRelationshipBuilder) Emit(out *strings.Builder, params map[string]any, scope *Scope) (bool, error) {
	if !IsValidIdentifier(b.typ) {
		return false, errors.ConstructionErrorf("invalid relationship type %q on %s", b.typ, b.ref)
	}

	var frag strings.Builder
	if err := endpointMatches(&frag, scope, b.ref, b.start, b.end); err != nil {
		return false, err
	}
	frag.WriteString("MERGE (")
	frag.WriteString(b.start.String())
	frag.WriteString(")-[")
	frag.WriteString(b.ref.String())
	frag.WriteByte(':')
	frag.WriteString(b.typ)
	frag.WriteString("]->(")
	frag.WriteString(b.end.String())
	frag.WriteByte(')')
	if len(b.props) > 0 {
		frag.WriteString(" SET ")
		frag.WriteString(b.ref.String())
		frag.WriteString(" += $")
		frag.WriteString(b.ref.PropsParam())
		params[b.ref.PropsParam()] = b.props.clone()
	}

	out.WriteString(frag.String())
	scope.Add(b.ref)
	return true, nil
}

// ExistingRelationshipBuilder patches the properties of a stored relationship.
type ExistingRelationshipBuilder struct {
	ref        Reference
	typ        string
	start, end Reference
	props      properties
	guard      *versionGuard
}

func (b *ExistingRelationshipBuilder) sealed() {}

// Reference returns the existing-relationship reference
func (b *ExistingRelationshipBuilder) Reference() Reference { return b.ref }

// SetProperty stages a changed property; nil values are dropped
func (b *ExistingRelationshipBuilder) SetProperty(key string, value any) *ExistingRelationshipBuilder {
	b.props.set(key, value)
	return b
}

// Guard makes the update conditional on the stored version
func (b *ExistingRelationshipBuilder) Guard(property string, expected int64) *ExistingRelationshipBuilder {
	b.guard = &versionGuard{property: property, expected: expected}
	return b
}

func (b *ExistingRelationshipBuilder) versionGuard() (Guard, bool) {
	if b.guard == nil {
		return Guard{}, false
	}
	return Guard{Reference: b.ref, Property: b.guard.property, Expected: b.guard.expected}, true
}

// Emit renders MATCH ()-[r7]->() WHERE id(r7) = 7 SET r7 += $r7_props. It
// contributes nothing when no property changed or when either endpoint is
// unknown.
func (b *ExistingRelationshipBuilder) Emit(out *strings.Builder, params map[string]any, scope *Scope) (bool, error) {
	if !b.start.Valid() || !b.end.Valid() || len(b.props) == 0 {
		return false, nil
	}
	if b.guard != nil {
		if err := b.guard.validate(b.ref); err != nil {
			return false, err
		}
	}

	staged := map[string]any{}
	var frag strings.Builder
	scope.writeWith(&frag)
	frag.WriteString("MATCH ()-[")
	frag.WriteString(b.ref.String())
	frag.WriteString("]->() WHERE id(")
	frag.WriteString(b.ref.String())
	frag.WriteString(") = ")
	frag.WriteString(strconv.FormatInt(b.ref.ID(), 10))
	props := b.props.clone()
	if b.guard != nil {
		b.guard.writeCondition(&frag, staged, b.ref)
		props[b.guard.property] = b.guard.expected + 1
	}
	frag.WriteString(" SET ")
	frag.WriteString(b.ref.String())
	frag.WriteString(" += $")
	frag.WriteString(b.ref.PropsParam())
	staged[b.ref.PropsParam()] = props

	out.WriteString(frag.String())
	for k, v := range staged {
		params[k] = v
	}
	scope.Add(b.ref)
	return true, nil
}

// DeletedRelationshipBuilder removes a typed relationship between two nodes.
type DeletedRelationshipBuilder struct {
	ref        Reference
	typ        string
	start, end Reference
	// relationshipID narrows the match when the stored id is known
	relationshipID *int64
	guard          *versionGuard
}

func (b *DeletedRelationshipBuilder) sealed() {}

// Reference returns the variable the relationship is bound to
func (b *DeletedRelationshipBuilder) Reference() Reference { return b.ref }

// Guard makes the deletion conditional on the stored version. It needs the
// stored id, see WithID.
func (b *DeletedRelationshipBuilder) Guard(property string, expected int64) *DeletedRelationshipBuilder {
	b.guard = &versionGuard{property: property, expected: expected}
	return b
}

// versionGuard reports the guard under the stored relationship's reference,
// which is how the session keys its snapshots.
func (b *DeletedRelationshipBuilder) versionGuard() (Guard, bool) {
	if b.guard == nil || b.relationshipID == nil {
		return Guard{}, false
	}
	ref := Reference{kind: KindExistingRelationship, id: *b.relationshipID}
	return Guard{Reference: ref, Property: b.guard.property, Expected: b.guard.expected, Delete: true}, true
}

// Emit renders
//
//	CALL { WITH n5 MATCH (n5)-[_3:TYPE]->(n6) WHERE id(n6) = 6 DELETE _3 }
//
// The unit subquery keeps the outer row when the relationship is already
// gone, so the RETURN clause still reports created elements. Endpoints in
// scope are imported rather than re-checked.
func (b *DeletedRelationshipBuilder) Emit(out *strings.Builder, params map[string]any, scope *Scope) (bool, error) {
	if !IsValidIdentifier(b.typ) {
		return false, errors.ConstructionErrorf("invalid relationship type %q on %s", b.typ, b.ref)
	}
	if b.guard != nil {
		if b.relationshipID == nil {
			return false, errors.ConstructionErrorf("guarded deletion of %s needs the stored relationship id", b.ref)
		}
		if err := b.guard.validate(b.ref); err != nil {
			return false, err
		}
	}

	var imports, conditions []string
	for i, ep := range []Reference{b.start, b.end} {
		if !ep.Valid() {
			return false, errors.ConstructionErrorf("deleted relationship %s has an unresolved endpoint", b.ref)
		}
		if i == 1 && ep == b.start {
			continue
		}
		if scope.Contains(ep) {
			imports = append(imports, ep.String())
			continue
		}
		if ep.IsNew() {
			return false, errors.ConstructionErrorf("deleted relationship %s references %s before it is created", b.ref, ep)
		}
		conditions = append(conditions, "id("+ep.String()+") = "+strconv.FormatInt(ep.ID(), 10))
	}
	staged := map[string]any{}
	if b.relationshipID != nil {
		conditions = append(conditions, "id("+b.ref.String()+") = "+strconv.FormatInt(*b.relationshipID, 10))
	}
	if b.guard != nil {
		conditions = append(conditions, b.guard.condition(staged, b.ref))
	}

	var frag strings.Builder
	frag.WriteString("CALL { ")
	if len(imports) > 0 {
		frag.WriteString("WITH ")
		frag.WriteString(strings.Join(imports, ", "))
		frag.WriteByte(' ')
	}
	frag.WriteString("MATCH (")
	frag.WriteString(b.start.String())
	frag.WriteString(")-[")
	frag.WriteString(b.ref.String())
	frag.WriteByte(':')
	frag.WriteString(b.typ)
	frag.WriteString("]->(")
	frag.WriteString(b.end.String())
	frag.WriteByte(')')
	if len(conditions) > 0 {
		frag.WriteString(" WHERE ")
		frag.WriteString(strings.Join(conditions, " AND "))
	}
	frag.WriteString(" DELETE ")
	frag.WriteString(b.ref.String())
	frag.WriteString(" }")

	out.WriteString(frag.String())
	for k, v := range staged {
		params[k] = v
	}
	return true, nil
}
