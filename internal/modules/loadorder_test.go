package modules

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortByLoadOrder(t *testing.T) {
	t.Parallel()

	t.Run("SimpleLinearDependency", func(t *testing.T) {
		t.Parallel()
		res := SortByLoadOrder(map[string][]string{
			"a":    {"b"},
			"b":    {"c"},
			"c":    {"base"},
			"base": {},
		})
		assert.Equal(t, []string{"base", "c", "b", "a"}, res.Sorted)
		assert.Empty(t, res.Invalid)
	})

	t.Run("BaseLoadsFirst", func(t *testing.T) {
		t.Parallel()
		res := SortByLoadOrder(map[string][]string{
			"base": {},
			"a":    {}, // implicitly depends on base
			"b":    {"base"},
			"c":    {"a", "b"},
		})
		assert.Equal(t, []string{"base", "a", "b", "c"}, res.Sorted)
	})

	t.Run("MultipleIndependentModules", func(t *testing.T) {
		t.Parallel()
		res := SortByLoadOrder(map[string][]string{
			"a":    {},
			"b":    {},
			"c":    {},
			"base": {},
		})
		assert.Equal(t, []string{"base", "a", "b", "c"}, res.Sorted)
	})

	t.Run("BranchingDependencies", func(t *testing.T) {
		t.Parallel()
		res := SortByLoadOrder(map[string][]string{
			"a":    {"b", "c"},
			"b":    {"d"},
			"c":    {"d"},
			"d":    {"base"},
			"base": {},
		})
		assert.Equal(t, []string{"base", "d", "b", "c", "a"}, res.Sorted)
	})

	t.Run("TestModulesLoadAfterLastDependency", func(t *testing.T) {
		t.Parallel()
		res := SortByLoadOrder(map[string][]string{
			"base":   {},
			"a":      {"base"},
			"b":      {"a"},
			"test_b": {"a", "b"},
			"c":      {"a", "b"},
		})
		assert.Equal(t, []string{"base", "a", "b", "test_b", "c"}, res.Sorted)
	})

	t.Run("NestedTestModules", func(t *testing.T) {
		t.Parallel()
		res := SortByLoadOrder(map[string][]string{
			"base":   {},
			"a":      {"base"},
			"b":      {"a"},
			"test_a": {"a"},
			"test_x": {"test_a"},
		})
		assert.Equal(t, []string{"base", "a", "test_a", "test_x", "b"}, res.Sorted)
	})

	t.Run("DependencyCycleExcludesMembers", func(t *testing.T) {
		t.Parallel()
		res := SortByLoadOrder(map[string][]string{
			"base": {},
			"a":    {"b"},
			"b":    {"c"},
			"c":    {"a"},
			"d":    {"base"},
		})
		assert.Equal(t, []string{"base", "d"}, res.Sorted)
		assert.Equal(t, []string{"a", "b", "c"}, res.Invalid)

		require.Len(t, res.Cycles, 1)
		cycle := append([]string(nil), res.Cycles[0]...)
		sort.Strings(cycle)
		assert.Equal(t, []string{"a", "b", "c"}, cycle)
	})

	t.Run("MissingDependencyExcludesDependents", func(t *testing.T) {
		t.Parallel()
		res := SortByLoadOrder(map[string][]string{
			"base": {},
			"a":    {"b"}, // b does not exist
			"c":    {"base"},
		})
		assert.Equal(t, []string{"base", "c"}, res.Sorted)
		assert.Equal(t, []string{"a"}, res.Invalid)
		assert.Equal(t, []string{"b"}, res.Missing)
	})

	t.Run("TransitivelyInvalidModules", func(t *testing.T) {
		t.Parallel()
		res := SortByLoadOrder(map[string][]string{
			"base": {},
			"a":    {"missing"},
			"b":    {"a"},
		})
		assert.Equal(t, []string{"base"}, res.Sorted)
		assert.Equal(t, []string{"a", "b"}, res.Invalid)
		assert.Equal(t, []string{"missing"}, res.Missing)
	})

	t.Run("MissingDependencyIsReportedOnce", func(t *testing.T) {
		t.Parallel()
		res := SortByLoadOrder(map[string][]string{
			"base": {},
			"a":    {"ghost"},
			"b":    {"ghost"},
		})
		assert.Equal(t, []string{"ghost"}, res.Missing)
	})

	t.Run("EmptyInput", func(t *testing.T) {
		t.Parallel()
		res := SortByLoadOrder(nil)
		assert.Empty(t, res.Sorted)
		assert.Empty(t, res.Invalid)
		assert.Empty(t, res.Missing)
		assert.Empty(t, res.Cycles)
	})
}
