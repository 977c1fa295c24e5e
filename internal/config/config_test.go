package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/pyxis-go/internal/diag"
	"github.com/Benny93/pyxis-go/internal/source"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("MissingFileYieldsDefaults", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		cfg, err := Load(root)
		require.NoError(t, err)
		assert.Equal(t, []string{root}, cfg.Roots)
		assert.Equal(t, DefaultEncoding, cfg.PositionEncoding)
		assert.Equal(t, int64(DefaultRefreshDelayMS), cfg.RefreshDelayMS)
		assert.Equal(t, DefaultRestartThreshold, cfg.RestartThreshold)
	})

	t.Run("FileOverridesDefaults", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		dir := filepath.Join(root, ".pyxis")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		content := `{
  "position_encoding": "utf-8",
  "refresh_delay_ms": 5000,
  "diagnostic_filters": [{"codes": ["undefined-name"]}]
}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0o644))

		cfg, err := Load(root)
		require.NoError(t, err)
		assert.Equal(t, "utf-8", cfg.PositionEncoding)
		assert.Equal(t, int64(5000), cfg.RefreshDelayMS)
		require.Len(t, cfg.DiagnosticFilters, 1)
		assert.Equal(t, []string{root}, cfg.Roots, "roots default to the load root when unset")
	})

	t.Run("MalformedFileIsAnError", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		dir := filepath.Join(root, ".pyxis")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{nope"), 0o644))

		_, err := Load(root)
		assert.Error(t, err)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg := Default()
	cfg.Roots = []string{root}
	cfg.RefreshDelayMS = 3000
	cfg.DiagnosticFilters = []diag.Filter{{Exclude: []string{"vendor/**"}}}

	require.NoError(t, cfg.Save(root))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, cfg.RefreshDelayMS, loaded.RefreshDelayMS)
	assert.Equal(t, cfg.DiagnosticFilters, loaded.DiagnosticFilters)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func(root string) Config {
		cfg := Default()
		cfg.Roots = []string{root}
		return cfg
	}

	t.Run("DefaultsAreValid", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, valid(t.TempDir()).Validate())
	})

	t.Run("NoRoots", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		assert.Error(t, cfg.Validate())
	})

	t.Run("MissingRoot", func(t *testing.T) {
		t.Parallel()
		cfg := valid(filepath.Join(t.TempDir(), "does-not-exist"))
		assert.Error(t, cfg.Validate())
	})

	t.Run("UnknownEncoding", func(t *testing.T) {
		t.Parallel()
		cfg := valid(t.TempDir())
		cfg.PositionEncoding = "latin-1"
		assert.Error(t, cfg.Validate())
	})

	t.Run("BadFilterPattern", func(t *testing.T) {
		t.Parallel()
		cfg := valid(t.TempDir())
		cfg.DiagnosticFilters = []diag.Filter{{Codes: []string{"("}}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("NegativeRestartThreshold", func(t *testing.T) {
		t.Parallel()
		cfg := valid(t.TempDir())
		cfg.RestartThreshold = -1
		assert.Error(t, cfg.Validate())
	})
}

func TestDerivedSettings(t *testing.T) {
	t.Parallel()

	t.Run("RefreshDelayClamped", func(t *testing.T) {
		t.Parallel()
		cfg := Config{RefreshDelayMS: 50}
		assert.Equal(t, MinRefreshDelay, cfg.RefreshDelay())
		cfg.RefreshDelayMS = 60_000
		assert.Equal(t, MaxRefreshDelay, cfg.RefreshDelay())
		cfg.RefreshDelayMS = 4000
		assert.Equal(t, 4*time.Second, cfg.RefreshDelay())
	})

	t.Run("EncodingFallsBackToUTF16", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, source.EncodingUTF16, Config{}.Encoding())
		assert.Equal(t, source.EncodingUTF8, Config{PositionEncoding: "utf-8"}.Encoding())
	})

	t.Run("CachePathPrefersOverride", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Roots: []string{"/ws"}, CacheDir: "/tmp/elsewhere"}
		assert.Equal(t, "/tmp/elsewhere", cfg.CachePath())
		cfg.CacheDir = ""
		assert.Equal(t, filepath.Join("/ws", ".pyxis", "cache"), cfg.CachePath())
	})
}
