package source

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/pyxis-go/internal/diag"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStore_UpdateFromDisk(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	path := writeFile(t, dir, "mod.py", "a = 1\n")
	store := NewStore(testLogger(), EncodingUTF16)

	t.Run("FirstLoadIsAChange", func(t *testing.T) {
		assert.True(t, store.Update(ctx, path, nil, VersionOnDisk, false))
		doc := store.Get(path)
		require.NotNil(t, doc)
		assert.Equal(t, "a = 1\n", string(doc.Content))
		assert.Equal(t, VersionOnDisk, doc.Version)
		assert.False(t, doc.Open)
		require.NotNil(t, doc.Tree)
		assert.True(t, doc.Valid)
	})

	t.Run("ReloadOfIdenticalContentIsNoChange", func(t *testing.T) {
		assert.False(t, store.Update(ctx, path, nil, VersionOnDisk, false))
	})

	t.Run("DiskEditIsAChange", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("a = 2\n"), 0o644))
		assert.True(t, store.Update(ctx, path, nil, VersionOnDisk, false))
		assert.Equal(t, "a = 2\n", string(store.Get(path).Content))
	})

	t.Run("UnreadableFileIsSilentlyUnchanged", func(t *testing.T) {
		missing := filepath.Join(dir, "gone.py")
		assert.False(t, store.Update(ctx, missing, nil, VersionOnDisk, false))
		assert.Nil(t, store.Get(missing))
	})
}

func TestStore_UpdateFromClient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	path := writeFile(t, dir, "mod.py", "a = 1\n")
	store := NewStore(testLogger(), EncodingUTF16)
	require.True(t, store.Update(ctx, path, nil, VersionOnDisk, false))

	t.Run("ClientVersionBeatsSentinel", func(t *testing.T) {
		changed := store.Update(ctx, path, []ContentChange{{Text: "a = 2\n"}}, 1, false)
		assert.True(t, changed)
		doc := store.Get(path)
		assert.True(t, doc.Open)
		assert.Equal(t, int32(1), doc.Version)
	})

	t.Run("StaleVersionIsDropped", func(t *testing.T) {
		changed := store.Update(ctx, path, []ContentChange{{Text: "stale\n"}}, 1, false)
		assert.False(t, changed)
		assert.Equal(t, "a = 2\n", string(store.Get(path).Content))
	})

	t.Run("ForceBypassesVersionGate", func(t *testing.T) {
		changed := store.Update(ctx, path, []ContentChange{{Text: "a = 3\n"}}, 1, true)
		assert.True(t, changed)
		assert.Equal(t, "a = 3\n", string(store.Get(path).Content))
	})

	t.Run("DiskReloadDoesNotOverwriteOpenDocument", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("disk = True\n"), 0o644))
		assert.False(t, store.Update(ctx, path, nil, VersionOnDisk, false))
		assert.Equal(t, "a = 3\n", string(store.Get(path).Content))
	})

	t.Run("CloseRevertsToDisk", func(t *testing.T) {
		assert.True(t, store.CloseDocument(ctx, path))
		doc := store.Get(path)
		assert.Equal(t, "disk = True\n", string(doc.Content))
		assert.False(t, doc.Open)
		assert.Equal(t, VersionOnDisk, doc.Version)
	})

	t.Run("SameContentEditIsNoChange", func(t *testing.T) {
		changed := store.Update(ctx, path, []ContentChange{{Text: "disk = True\n"}}, 5, false)
		assert.False(t, changed)
		assert.Equal(t, int32(5), store.Get(path).Version)
	})
}

func TestStore_SyntaxErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.py", "def foo(:\n    pass\n")
	store := NewStore(testLogger(), EncodingUTF16)

	require.True(t, store.Update(ctx, path, nil, VersionOnDisk, false))
	doc := store.Get(path)
	require.NotNil(t, doc)

	assert.False(t, doc.Valid)
	require.NotNil(t, doc.Tree, "partial tree is retained")

	diags := doc.StageDiagnostics(diag.StageSyntax)
	require.NotEmpty(t, diags)
	for _, d := range diags {
		assert.Equal(t, diag.CodeSyntaxError, d.Code)
		assert.Equal(t, diag.SeverityError, d.Severity)
	}
}

func TestStore_StageDiagnosticsAreIndependent(t *testing.T) {
	t.Parallel()

	d := docWith("a = 1\n")
	d.SetDiagnostics(diag.StageArch, []diag.Diagnostic{{Code: "x", Start: 0, End: 1}})
	d.SetDiagnostics(diag.StageValidation, []diag.Diagnostic{{Code: "y", Start: 2, End: 3}})

	assert.Len(t, d.Diagnostics(), 2)

	d.SetDiagnostics(diag.StageValidation, nil)
	all := d.Diagnostics()
	require.Len(t, all, 1)
	assert.Equal(t, "x", all[0].Code)
}

func TestStore_Paths(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	b := writeFile(t, dir, "b.py", "x = 1\n")
	a := writeFile(t, dir, "a.py", "y = 2\n")
	store := NewStore(testLogger(), EncodingUTF16)
	require.True(t, store.Update(ctx, b, nil, VersionOnDisk, false))
	require.True(t, store.Update(ctx, a, nil, VersionOnDisk, false))

	assert.Equal(t, []string{a, b}, store.Paths())
	assert.Equal(t, 2, store.Count())

	store.Remove(a)
	assert.Nil(t, store.Get(a))
	assert.Equal(t, 1, store.Count())
}
