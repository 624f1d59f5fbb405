package directory

import "strings"

// Filter is the list view's three search controls. Empty clauses
// always pass; non-empty clauses are ANDed.
type Filter struct {
	Search   string // substring of name or category, case-insensitive
	Supplier string // exact name match
	Category string // exact category match
}

// Match reports whether one supplier satisfies every clause.
func (f Filter) Match(s Supplier) bool {
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(s.Name), term) &&
			!strings.Contains(strings.ToLower(s.Category), term) {
			return false
		}
	}
	if f.Supplier != "" && s.Name != f.Supplier {
		return false
	}
	if f.Category != "" && s.Category != f.Category {
		return false
	}
	return true
}

// Apply returns the suppliers that match, preserving input order.
func (f Filter) Apply(list []Supplier) []Supplier {
	out := make([]Supplier, 0, len(list))
	for _, s := range list {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	return out
}

// IsZero reports whether no clause is set.
func (f Filter) IsZero() bool {
	return f.Search == "" && f.Supplier == "" && f.Category == ""
}
