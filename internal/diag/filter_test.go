package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterSet_Hidden(t *testing.T) {
	t.Parallel()

	d := Diagnostic{
		Code:     CodeUndefinedName,
		Severity: SeverityError,
		Message:  "undefined name 'foo'",
		Start:    10,
		End:      13,
	}

	t.Run("NilSetHidesNothing", func(t *testing.T) {
		t.Parallel()
		var fs *FilterSet
		assert.False(t, fs.Hidden("mod/models/sale.py", d))
	})

	t.Run("EmptySetHidesNothing", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFilterSet(nil)
		require.NoError(t, err)
		assert.False(t, fs.Hidden("mod/models/sale.py", d))
	})

	t.Run("CodeMatch", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFilterSet([]Filter{{Codes: []string{"undefined-.*"}}})
		require.NoError(t, err)
		assert.True(t, fs.Hidden("mod/models/sale.py", d))
	})

	t.Run("CodeMismatchPassesThrough", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFilterSet([]Filter{{Codes: []string{"unresolved-.*"}}})
		require.NoError(t, err)
		assert.False(t, fs.Hidden("mod/models/sale.py", d))
	})

	t.Run("CodelessDiagnosticNeverMatchesCodeFilter", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFilterSet([]Filter{{Codes: []string{".*"}}})
		require.NoError(t, err)
		uncoded := d
		uncoded.Code = ""
		assert.False(t, fs.Hidden("mod/models/sale.py", uncoded))
	})

	t.Run("SeverityRestriction", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFilterSet([]Filter{{Severities: []Severity{SeverityWarning}}})
		require.NoError(t, err)
		assert.False(t, fs.Hidden("mod/models/sale.py", d))

		warn := d
		warn.Severity = SeverityWarning
		assert.True(t, fs.Hidden("mod/models/sale.py", warn))
	})

	t.Run("IncludeRestrictsPaths", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFilterSet([]Filter{{
			Include: []string{"third_party/"},
			Codes:   []string{"undefined-name"},
		}})
		require.NoError(t, err)
		assert.True(t, fs.Hidden("third_party/lib/util.py", d))
		assert.False(t, fs.Hidden("mod/models/sale.py", d))
	})

	t.Run("ExcludeCarvesOutPaths", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFilterSet([]Filter{{
			Exclude: []string{"mod/models/"},
			Codes:   []string{"undefined-name"},
		}})
		require.NoError(t, err)
		assert.False(t, fs.Hidden("mod/models/sale.py", d))
		assert.True(t, fs.Hidden("mod/wizard/batch.py", d))
	})

	t.Run("AnyMatchingFilterHides", func(t *testing.T) {
		t.Parallel()
		fs, err := NewFilterSet([]Filter{
			{Codes: []string{"unrelated-code"}},
			{Severities: []Severity{SeverityError}},
		})
		require.NoError(t, err)
		assert.True(t, fs.Hidden("mod/models/sale.py", d))
	})

	t.Run("InvalidPatternIsError", func(t *testing.T) {
		t.Parallel()
		_, err := NewFilterSet([]Filter{{Codes: []string{"("}}})
		assert.Error(t, err)
	})
}

func TestStage_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "syntax", StageSyntax.String())
	assert.Equal(t, "arch", StageArch.String())
	assert.Equal(t, "arch_eval", StageArchEval.String())
	assert.Equal(t, "validation", StageValidation.String())
}

func TestSeverity_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "error", SeverityError.String())
	assert.Equal(t, "hint", SeverityHint.String())
}
