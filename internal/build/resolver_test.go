package build

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/pyxis-go/internal/symbols"
)

func resolveAt(f *fixture, file *symbols.Symbol, content, needle string) []*symbols.Symbol {
	f.t.Helper()
	return ResolveAt(context.Background(), f.b, f.doc(file), offsetOf(f.t, content, needle))
}

func TestResolveAt_LocalNames(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	content := `total = 0

def add(amount):
    return total + amount
`
	file := f.addFile("mod.py", content)

	t.Run("ModuleGlobalFromFunctionBody", func(t *testing.T) {
		got := resolveAt(f, file, content, "total + amount")
		require.Len(t, got, 1)
		assert.Same(t, f.only(file, "total"), got[0])
	})

	t.Run("Parameter", func(t *testing.T) {
		got := resolveAt(f, file, content, "amount\n")
		require.Len(t, got, 1)
		assert.True(t, got[0].Variable.IsParameter)
	})

	t.Run("UnknownNameIsEmpty", func(t *testing.T) {
		assert.Empty(t, resolveAt(f, file, content, "0"))
	})
}

func TestResolveAt_CursorSlicesTheDottedPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	other := f.addFile("other.py", `class Box:
    def get(self):
        return 1
`)
	content := "import other\n\nm = other.Box.get\n"
	file := f.addFile("main.py", content)

	box := f.only(other, "Box")

	t.Run("MiddleSegmentStopsBeforeTheNextDot", func(t *testing.T) {
		got := resolveAt(f, file, content, "Box.get")
		require.Len(t, got, 1)
		assert.Same(t, box, got[0], "cursor on Box resolves other.Box, not the full chain")
	})

	t.Run("LastSegmentResolvesTheWholeChain", func(t *testing.T) {
		got := resolveAt(f, file, content, "get\n")
		require.Len(t, got, 1)
		assert.Same(t, f.only(box, "get"), got[0])
	})

	t.Run("FirstSegmentIsTheImportBinding", func(t *testing.T) {
		got := resolveAt(f, file, content, "other.Box")
		require.Len(t, got, 1)
		assert.Same(t, f.only(file, "other"), got[0])
	})
}

func TestResolveAt_ImportResolvesOneLevelFurtherAtItsOwnDeclaration(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	other := f.addFile("other.py", "def helper():\n    return 1\n")
	content := "import other\nfrom other import helper\n"
	file := f.addFile("main.py", content)

	t.Run("ModuleImport", func(t *testing.T) {
		got := resolveAt(f, file, content, "other\nfrom")
		require.Len(t, got, 1)
		assert.Same(t, other, got[0], "the declaration site jumps to the module itself")
	})

	t.Run("MemberImport", func(t *testing.T) {
		got := resolveAt(f, file, content, "helper\n")
		require.Len(t, got, 1)
		assert.Same(t, f.only(other, "helper"), got[0])
	})
}

func TestResolveAt_InheritedMembers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	content := `class Base:
    def shared(self):
        return 1

class Child(Base):
    pass

target = Child.shared
`
	file := f.addFile("mod.py", content)

	got := resolveAt(f, file, content, "shared\n")
	require.Len(t, got, 1)
	assert.Same(t, f.only(f.only(file, "Base"), "shared"), got[0])
}

func TestResolveAt_BranchesKeepAllCandidates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	content := `if flag:
    def run():
        return 1
else:
    def run():
        return 2

entry = run
`
	file := f.addFile("mod.py", content)

	got := resolveAt(f, file, content, "run\n")
	assert.Len(t, got, 2, "one candidate per declaring branch")
}

func TestResolveAt_PositionFilterInsideTheScope(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	content := "x = 1\ny = x\nx = 2\n"
	file := f.addFile("mod.py", content)

	got := resolveAt(f, file, content, "x\nx = 2")
	require.Len(t, got, 1)
	assert.Equal(t, offsetOf(t, content, "x = 1"), got[0].Range.Start,
		"the use site sees the declaration before it, not the one after")
}
