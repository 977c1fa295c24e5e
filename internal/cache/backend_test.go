package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestBadgerBackend(t *testing.T) (*BadgerBackend, func()) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "badger")

	backend := NewBadgerBackend()
	err := backend.Initialize(dbPath, false)
	require.NoError(t, err)

	cleanup := func() {
		backend.Close()
	}

	return backend, cleanup
}

func sampleMeta() *Meta {
	return &Meta{
		Version:     CacheVersion,
		ToolVersion: "1.2.0",
		Root:        "/ws",
		Files: map[string]FileMetadata{
			"/ws/sale/order.py": {MtimeNS: 1700000000000000000, Size: 321},
		},
	}
}

func sampleModule(name string) *ModuleRecord {
	return &ModuleRecord{
		Name:  name,
		Dir:   "/ws/" + name,
		Paths: []string{"/ws/" + name},
		Symbols: []SymbolRecord{
			{Kind: "file", Name: "models", Paths: []string{"/ws/" + name + "/models.py"}, Hash: 7},
		},
	}
}

func TestMemoryBackend_MetaRoundTrip(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend()
	require.NoError(t, backend.Initialize("", false))

	meta, err := backend.LoadMeta()
	require.NoError(t, err)
	assert.Nil(t, meta)

	require.NoError(t, backend.SaveMeta(sampleMeta()))

	meta, err = backend.LoadMeta()
	require.NoError(t, err)
	assert.Equal(t, sampleMeta(), meta)
}

func TestMemoryBackend_ModuleRoundTrip(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend()
	require.NoError(t, backend.Initialize("", false))

	rec, err := backend.LoadModule(ModuleKey("/ws", "sale"))
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, backend.SaveModule(ModuleKey("/ws", "sale"), sampleModule("sale")))
	require.NoError(t, backend.SaveModule(ModuleKey("/ws", "purchase"), sampleModule("purchase")))

	rec, err = backend.LoadModule(ModuleKey("/ws", "sale"))
	require.NoError(t, err)
	assert.Equal(t, sampleModule("sale"), rec)

	keys, err := backend.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.IsIncreasing(t, keys)

	require.NoError(t, backend.DeleteModule(ModuleKey("/ws", "sale")))
	rec, err = backend.LoadModule(ModuleKey("/ws", "sale"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryBackend_ReadOnlyRejectsWrites(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend()
	require.NoError(t, backend.Initialize("", true))

	assert.Error(t, backend.SaveMeta(sampleMeta()))
	assert.Error(t, backend.SaveModule("k", sampleModule("sale")))
}

func TestBadgerBackend_MetaRoundTrip(t *testing.T) {
	t.Parallel()

	backend, cleanup := setupTestBadgerBackend(t)
	defer cleanup()

	meta, err := backend.LoadMeta()
	require.NoError(t, err)
	assert.Nil(t, meta)

	require.NoError(t, backend.SaveMeta(sampleMeta()))

	meta, err = backend.LoadMeta()
	require.NoError(t, err)
	assert.Equal(t, sampleMeta(), meta)
}

func TestBadgerBackend_ModuleRoundTrip(t *testing.T) {
	t.Parallel()

	backend, cleanup := setupTestBadgerBackend(t)
	defer cleanup()

	require.NoError(t, backend.SaveModule(ModuleKey("/ws", "sale"), sampleModule("sale")))
	require.NoError(t, backend.SaveModule(ModuleKey("/ws", "purchase"), sampleModule("purchase")))

	rec, err := backend.LoadModule(ModuleKey("/ws", "purchase"))
	require.NoError(t, err)
	assert.Equal(t, sampleModule("purchase"), rec)

	keys, err := backend.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.IsIncreasing(t, keys)

	require.NoError(t, backend.DeleteModule(ModuleKey("/ws", "sale")))
	rec, err = backend.LoadModule(ModuleKey("/ws", "sale"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestBadgerBackend_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "badger")

	first := NewBadgerBackend()
	require.NoError(t, first.Initialize(dbPath, false))
	require.NoError(t, first.SaveMeta(sampleMeta()))
	require.NoError(t, first.SaveModule(ModuleKey("/ws", "sale"), sampleModule("sale")))
	require.NoError(t, first.Close())

	second := NewBadgerBackend()
	require.NoError(t, second.Initialize(dbPath, false))
	defer second.Close()

	meta, err := second.LoadMeta()
	require.NoError(t, err)
	assert.Equal(t, sampleMeta(), meta)

	rec, err := second.LoadModule(ModuleKey("/ws", "sale"))
	require.NoError(t, err)
	assert.Equal(t, sampleModule("sale"), rec)
}
