package cypher

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rohankatakam/ogm/internal/errors"
)

// Statement is a parameterized write statement. Values never appear in
// Text; they are passed through Parameters.
type Statement struct {
	Text       string
	Parameters map[string]any
}

var placeholderPattern = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)`)

// Placeholders returns the distinct parameter names referenced by Text, sorted
func (s Statement) Placeholders() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(s.Text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	sort.Strings(names)
	return names
}

// Validate checks that every placeholder has a parameter and every
// parameter is referenced.
func (s Statement) Validate() error {
	placeholders := s.Placeholders()
	var missing, unused []string
	referenced := make(map[string]struct{}, len(placeholders))
	for _, name := range placeholders {
		referenced[name] = struct{}{}
		if _, ok := s.Parameters[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range s.Parameters {
		if _, ok := referenced[name]; !ok {
			unused = append(unused, name)
		}
	}
	if len(missing) == 0 && len(unused) == 0 {
		return nil
	}
	sort.Strings(unused)
	return errors.ConstructionErrorf("statement parameters do not match placeholders").
		WithContext("missing", strings.Join(missing, ",")).
		WithContext("unused", strings.Join(unused, ","))
}

// Compilation is the result of compiling one operation.
type Compilation struct {
	Statement Statement
	// Returns lists the references in the RETURN clause, in column order.
	Returns []Reference
	// NewReferences lists created elements whose generated id is returned.
	NewReferences []Reference
	// Guards lists the version checks the statement carries.
	Guards []Guard
}

// Empty reports whether there is nothing to execute
func (c *Compilation) Empty() bool {
	return c.Statement.Text == ""
}

// ExpectsRow reports whether a successful execution must return one row
func (c *Compilation) ExpectsRow() bool {
	return len(c.Returns) > 0
}

// GuardFor returns the guard attached to ref, if any
func (c *Compilation) GuardFor(ref Reference) (Guard, bool) {
	for _, g := range c.Guards {
		if g.Reference == ref {
			return g, true
		}
	}
	return Guard{}, false
}
