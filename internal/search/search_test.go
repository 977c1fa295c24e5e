package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"sale", "order", "line"}, Tokenize("Sale_Order.line"))
	assert.Equal(t, []string{"x"}, Tokenize("x"))
	assert.Equal(t, []string{"v2"}, Tokenize("v2"))
	assert.Empty(t, Tokenize("  .-  "))
}

func TestMatcher_Score(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   string
		symbol  string
		class   int
		matches bool
	}{
		{"Exact", "partner", "Partner", MatchExact, true},
		{"Prefix", "part", "partner_id", MatchPrefix, true},
		{"Substring", "order", "sale_order_line", MatchSubstring, true},
		{"Subsequence", "sol", "sale_order_line", MatchSubsequence, true},
		{"Miss", "invoice", "sale_order", 0, false},
		{"WeakestTermWins", "sale line", "sale_order_line", MatchSubstring, true},
		{"AllTermsMustMatch", "sale ghost", "sale_order_line", 0, false},
		{"CaseInsensitive", "PARTNER", "partner", MatchExact, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			class, ok := NewMatcher(tt.query).Score(tt.symbol)
			require.Equal(t, tt.matches, ok)
			if ok {
				assert.Equal(t, tt.class, class)
			}
		})
	}
}

func TestRank(t *testing.T) {
	t.Parallel()

	candidates := []Result{
		{Name: "sale_order_line", Path: "b.py"},
		{Name: "order", Path: "a.py"},
		{Name: "purchase_order", Path: "a.py"},
		{Name: "ordering", Path: "a.py"},
		{Name: "unrelated", Path: "a.py"},
	}

	ranked := Rank("order", candidates, 0)

	names := make([]string, len(ranked))
	for i, r := range ranked {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"order", "ordering", "purchase_order", "sale_order_line"}, names)
}

func TestRank_TieBreaks(t *testing.T) {
	t.Parallel()

	t.Run("ShorterNameFirst", func(t *testing.T) {
		t.Parallel()
		ranked := Rank("ord", []Result{
			{Name: "ordering", Path: "a.py"},
			{Name: "order", Path: "a.py"},
		}, 0)
		require.Len(t, ranked, 2)
		assert.Equal(t, "order", ranked[0].Name)
	})

	t.Run("PathBreaksEqualNames", func(t *testing.T) {
		t.Parallel()
		ranked := Rank("order", []Result{
			{Name: "order", Path: "z.py"},
			{Name: "order", Path: "a.py"},
		}, 0)
		require.Len(t, ranked, 2)
		assert.Equal(t, "a.py", ranked[0].Path)
	})
}

func TestRank_EmptyQueryListsEverything(t *testing.T) {
	t.Parallel()

	ranked := Rank("", []Result{
		{Name: "beta", Path: "a.py"},
		{Name: "alpha", Path: "a.py"},
	}, 0)

	require.Len(t, ranked, 2)
	assert.Equal(t, "beta", ranked[0].Name, "shorter name ranks first")
	assert.Equal(t, "alpha", ranked[1].Name)
}

func TestRank_Limit(t *testing.T) {
	t.Parallel()

	candidates := []Result{
		{Name: "order_a"}, {Name: "order_b"}, {Name: "order_c"},
	}
	assert.Len(t, Rank("order", candidates, 2), 2)
	assert.Len(t, Rank("order", candidates, 0), 3)
}
