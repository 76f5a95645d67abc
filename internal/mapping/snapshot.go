package mapping

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/rohankatakam/ogm/internal/cypher"
	"github.com/rohankatakam/ogm/internal/metadata"
)

// Snapshot is the last known stored state of a node or relationship
// entity. Property values are kept as canonical JSON so that a snapshot
// round-tripped through a remote cache compares the same as a local one.
type Snapshot struct {
	Labels     []string          `json:"labels,omitempty"`
	Properties map[string]string `json:"properties"`
	Version    int64             `json:"version"`
	Edges      []Edge            `json:"edges,omitempty"`
}

// Edge is a stored relationship seen from the snapshot's node
type Edge struct {
	Type      string             `json:"type"`
	Direction metadata.Direction `json:"direction"`
	Other     int64              `json:"other"`
	ID        *int64             `json:"id,omitempty"`
}

// SnapshotSource looks up snapshots by the reference of a stored element
type SnapshotSource interface {
	Snapshot(ref cypher.Reference) (*Snapshot, bool)
}

// Canonical encodes a property value for comparison. Numbers of different
// Go types with the same value encode the same.
func Canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "!" + reflect.TypeOf(v).String()
	}
	return string(b)
}

func canonicalProperties(props map[string]any) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = Canonical(v)
	}
	return out
}

// NewSnapshot records the current state of obj. edgesSynced is false when
// the object's relationships were not written, in which case the edges of
// previous are kept.
func NewSnapshot(meta metadata.EntityMetadata, class metadata.Class, obj any, previous *Snapshot, edgesSynced bool) *Snapshot {
	s := &Snapshot{
		Properties: canonicalProperties(class.Properties(obj)),
		Version:    class.Version(obj),
	}
	if !class.IsRelationshipEntity() {
		s.Labels = class.Labels(obj)
	}
	switch {
	case class.IsRelationshipEntity():
	case edgesSynced:
		s.Edges = currentEdges(meta, class, obj)
	case previous != nil:
		s.Edges = append([]Edge(nil), previous.Edges...)
	}
	return s
}

// currentEdges lists the relationships of obj whose far end is stored
func currentEdges(meta metadata.EntityMetadata, class metadata.Class, obj any) []Edge {
	var edges []Edge
	for _, rel := range class.Relationships(obj) {
		target, ok := meta.Lookup(rel.Target)
		if !ok {
			continue
		}
		edge := Edge{Type: rel.Type, Direction: rel.Direction}
		other := rel.Target
		if target.IsRelationshipEntity() {
			if id, ok := target.Identity(rel.Target); ok {
				edge.ID = &id
			}
			start, end := target.Endpoints(rel.Target)
			other = end
			if rel.Direction == metadata.Incoming {
				other = start
			}
			edge.Type = target.RelationshipType()
		}
		if isNil(other) {
			continue
		}
		oc, ok := meta.Lookup(other)
		if !ok {
			continue
		}
		id, ok := oc.Identity(other)
		if !ok {
			continue
		}
		edge.Other = id
		edges = append(edges, edge)
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Type != edges[j].Type {
			return edges[i].Type < edges[j].Type
		}
		if edges[i].Direction != edges[j].Direction {
			return edges[i].Direction < edges[j].Direction
		}
		return edges[i].Other < edges[j].Other
	})
	return edges
}

func (s *Snapshot) hasEdge(typ string, dir metadata.Direction, other int64) bool {
	for _, e := range s.Edges {
		if e.Type == typ && e.Direction == dir && e.Other == other {
			return true
		}
	}
	return false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
