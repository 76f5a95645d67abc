package cypher

import "strings"

// Scope is the ordered set of references bound at the current point of a
// statement. It is what a WITH continuation has to carry forward.
type Scope struct {
	refs []Reference
	seen map[Reference]struct{}
}

// NewScope returns an empty scope
func NewScope() *Scope {
	return &Scope{seen: make(map[Reference]struct{})}
}

// Add binds ref, returning false if it was already bound
func (s *Scope) Add(ref Reference) bool {
	if _, ok := s.seen[ref]; ok {
		return false
	}
	s.seen[ref] = struct{}{}
	s.refs = append(s.refs, ref)
	return true
}

// Contains reports whether ref is bound
func (s *Scope) Contains(ref Reference) bool {
	_, ok := s.seen[ref]
	return ok
}

// Len returns the number of bound references
func (s *Scope) Len() int { return len(s.refs) }

// References returns the bound references in binding order
func (s *Scope) References() []Reference {
	out := make([]Reference, len(s.refs))
	copy(out, s.refs)
	return out
}

func (s *Scope) String() string {
	names := make([]string, len(s.refs))
	for i, ref := range s.refs {
		names[i] = ref.String()
	}
	return strings.Join(names, ", ")
}

// writeWith writes the WITH continuation needed before a reading clause
// that follows earlier clauses.
func (s *Scope) writeWith(out *strings.Builder) {
	if s.Len() == 0 {
		return
	}
	out.WriteString("WITH ")
	out.WriteString(s.String())
	out.WriteByte(' ')
}
