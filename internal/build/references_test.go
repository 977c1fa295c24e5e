package build

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/pyxis-go/internal/symbols"
)

func (f *fixture) references(file *symbols.Symbol, content, needle string) []Reference {
	f.t.Helper()
	return ReferencesAt(context.Background(), f.b, f.doc(file), offsetOf(f.t, content, needle))
}

func TestReferencesAt_CollectsUsesInFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	content := "total = 1\nresult = total + total\n"
	file := f.addFile("mod.py", content)

	refs := f.references(file, content, "total")

	require.Len(t, refs, 3, "declaration plus two uses")
	var starts []int
	for _, ref := range refs {
		assert.Equal(t, file.Path(), ref.Path)
		assert.Equal(t, ref.Span.Start+len("total"), ref.Span.End)
		starts = append(starts, ref.Span.Start)
	}
	assert.Equal(t, []int{0, 19, 27}, starts)
}

func TestReferencesAt_CrossesFileBoundaries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	libContent := "value = 1\n"
	appContent := "from lib import value\nresult = value + 1\n"
	lib := f.addFile("lib.py", libContent)
	app := f.addFile("app.py", appContent)

	refs := f.references(lib, libContent, "value")

	byPath := map[string]int{}
	for _, ref := range refs {
		byPath[ref.Path]++
	}
	assert.Equal(t, 1, byPath[lib.Path()], "declaration in lib")
	assert.Equal(t, 2, byPath[app.Path()], "import binding and use in app")

	// Starting from the aliased use site lands on the same symbol.
	fromUse := f.references(app, appContent, "value + 1")
	assert.ElementsMatch(t, refs, fromUse)
}

func TestReferencesAt_ShadowedNamesExcluded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	libContent := "item = 1\n"
	lib := f.addFile("lib.py", libContent)
	f.addFile("other.py", "item = 2\nuse = item\n")

	refs := f.references(lib, libContent, "item")

	require.Len(t, refs, 1, "other.py declares its own item")
	assert.Equal(t, lib.Path(), refs[0].Path)
	assert.Equal(t, symbols.Span{Start: 0, End: 4}, refs[0].Span)
}

func TestReferencesAt_UnresolvedPosition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	content := "x = 1\n"
	file := f.addFile("mod.py", content)

	assert.Empty(t, f.references(file, content, "= 1"))
}
