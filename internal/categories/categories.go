// Package categories keeps the in-memory list of category labels that
// feeds the form and search dropdowns. The list is never persisted; a
// restart reseeds the defaults. Suppliers carry a free-text copy of
// the label, so removing a label here does not cascade to records
// already tagged with it.
package categories

import (
	"slices"
	"strings"
	"sync"
)

// Defaults are the labels seeded at startup.
var Defaults = []string{
	"Supplier",
	"Logistic",
	"Electrical & Instrument",
	"Mechanical",
}

// List is an ordered set of unique category labels.
type List struct {
	mu     sync.RWMutex
	labels []string
}

// NewList seeds a list with the default labels.
func NewList() *List {
	return &List{labels: slices.Clone(Defaults)}
}

// Add appends a trimmed label. Empty input and exact duplicates are
// ignored, preserving insertion order for everything else.
func (l *List) Add(label string) {
	label = strings.TrimSpace(label)
	if label == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if slices.Contains(l.labels, label) {
		return
	}
	l.labels = append(l.labels, label)
}

// Remove drops a label when present.
func (l *List) Remove(label string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := slices.Index(l.labels, label); i >= 0 {
		l.labels = slices.Delete(l.labels, i, i+1)
	}
}

// Has reports whether the exact label is in the list.
func (l *List) Has(label string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Contains(l.labels, label)
}

// All returns a copy of the labels in insertion order.
func (l *List) All() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.labels)
}
