package directory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var testSuppliers = []Supplier{
	{ID: "A", Name: "Acme", Category: "Supplier"},
	{ID: "B", Name: "Beta", Category: "Mechanical"},
	{ID: "C", Name: "Gamma Logistics", Category: "Logistic"},
}

func ids(list []Supplier) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}

func TestFilterEmptyMatchesAll(t *testing.T) {
	f := Filter{}
	require.True(t, f.IsZero())
	require.Equal(t, []string{"A", "B", "C"}, ids(f.Apply(testSuppliers)))
}

func TestFilterSearchMatchesNameOrCategory(t *testing.T) {
	require.Equal(t, []string{"A"}, ids(Filter{Search: "ac"}.Apply(testSuppliers)))
	// "mech" hits Beta through its category.
	require.Equal(t, []string{"B"}, ids(Filter{Search: "mech"}.Apply(testSuppliers)))
	require.Equal(t, []string{"C"}, ids(Filter{Search: "LOGIST"}.Apply(testSuppliers)))
	require.Empty(t, ids(Filter{Search: "zzz"}.Apply(testSuppliers)))
}

func TestFilterSupplierSelectorExactMatch(t *testing.T) {
	require.Equal(t, []string{"B"}, ids(Filter{Supplier: "Beta"}.Apply(testSuppliers)))
	// Selector is exact, not substring or case-insensitive.
	require.Empty(t, ids(Filter{Supplier: "beta"}.Apply(testSuppliers)))
}

func TestFilterCategorySelectorExactMatch(t *testing.T) {
	require.Equal(t, []string{"B"}, ids(Filter{Category: "Mechanical"}.Apply(testSuppliers)))
	require.Empty(t, ids(Filter{Category: "mechanical"}.Apply(testSuppliers)))
}

func TestFilterClausesAreConjoined(t *testing.T) {
	// Contradictory clauses yield the empty list.
	require.Empty(t, ids(Filter{Search: "ac", Category: "Mechanical"}.Apply(testSuppliers)))

	require.Equal(t, []string{"B"},
		ids(Filter{Search: "bet", Supplier: "Beta", Category: "Mechanical"}.Apply(testSuppliers)))
}

func TestFilterApplyPreservesOrder(t *testing.T) {
	f := Filter{Search: "a"}
	require.Equal(t, []string{"A", "B", "C"}, ids(f.Apply(testSuppliers)))
}
