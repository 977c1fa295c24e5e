// Package config holds the workspace settings for a pyxis session:
// which directories to scan, how positions are encoded, how eagerly
// file changes are rebuilt, and which diagnostics to hide. Settings
// come from an optional .pyxis/config.json under the first workspace
// root, layered under CLI flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Benny93/pyxis-go/internal/diag"
	"github.com/Benny93/pyxis-go/internal/source"
)

// FileName is the settings file path relative to a workspace root.
const FileName = ".pyxis/config.json"

// Bounds for the rebuild debounce window. Configured delays outside
// this range are clamped rather than rejected.
const (
	MinRefreshDelay = time.Second
	MaxRefreshDelay = 15 * time.Second
)

// Defaults applied by Default.
const (
	DefaultRefreshDelayMS   = 2000
	DefaultRestartThreshold = 1000
	DefaultEncoding         = "utf-16"
)

// Config is the full set of workspace settings. The zero value is not
// usable; start from Default or Load.
type Config struct {
	// Roots are the workspace directories scanned for modules, in
	// priority order. Later roots shadow earlier ones for duplicate
	// module names.
	Roots []string `json:"roots,omitempty"`

	// PositionEncoding selects the character unit for published
	// positions: "utf-8", "utf-16" or "utf-32".
	PositionEncoding string `json:"position_encoding,omitempty"`

	// RefreshDelayMS is the debounce window for file-change rebuilds,
	// in milliseconds. Values outside [MinRefreshDelay, MaxRefreshDelay]
	// are clamped.
	RefreshDelayMS int64 `json:"refresh_delay_ms,omitempty"`

	// RestartThreshold is the number of distinct changed paths inside
	// one debounce window above which the session signals that a full
	// restart is cheaper than an incremental rebuild.
	RestartThreshold int `json:"restart_threshold,omitempty"`

	// DiagnosticFilters hide matching diagnostics from every published
	// result.
	DiagnosticFilters []diag.Filter `json:"diagnostic_filters,omitempty"`

	// CacheDir overrides the snapshot cache location. Empty means
	// .pyxis/cache under the first root.
	CacheDir string `json:"cache_dir,omitempty"`
}

// Default returns the settings used when no config file exists.
func Default() Config {
	return Config{
		PositionEncoding: DefaultEncoding,
		RefreshDelayMS:   DefaultRefreshDelayMS,
		RestartThreshold: DefaultRestartThreshold,
	}
}

// Load reads root's config file layered over the defaults. A missing
// file yields the defaults with Roots set to root.
func Load(root string) (Config, error) {
	cfg := Default()
	cfg.Roots = []string{root}
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(FileName)))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if len(cfg.Roots) == 0 {
		cfg.Roots = []string{root}
	}
	return cfg, nil
}

// Save writes the config file under root, creating the .pyxis
// directory if needed.
func (c Config) Save(root string) error {
	path := filepath.Join(root, filepath.FromSlash(FileName))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate reports the first problem with the settings. Clampable
// values (the refresh delay) are not errors.
func (c Config) Validate() error {
	if len(c.Roots) == 0 {
		return fmt.Errorf("no workspace roots configured")
	}
	for _, root := range c.Roots {
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("workspace root %s: %w", root, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("workspace root %s is not a directory", root)
		}
	}
	if c.PositionEncoding != "" {
		if _, err := source.ParseEncoding(c.PositionEncoding); err != nil {
			return err
		}
	}
	if c.RestartThreshold < 0 {
		return fmt.Errorf("restart threshold must not be negative, got %d", c.RestartThreshold)
	}
	if _, err := diag.NewFilterSet(c.DiagnosticFilters); err != nil {
		return fmt.Errorf("diagnostic filters: %w", err)
	}
	return nil
}

// Encoding returns the parsed position encoding, defaulting to UTF-16.
func (c Config) Encoding() source.Encoding {
	if c.PositionEncoding == "" {
		return source.EncodingUTF16
	}
	enc, err := source.ParseEncoding(c.PositionEncoding)
	if err != nil {
		return source.EncodingUTF16
	}
	return enc
}

// RefreshDelay returns the debounce window clamped to
// [MinRefreshDelay, MaxRefreshDelay].
func (c Config) RefreshDelay() time.Duration {
	d := time.Duration(c.RefreshDelayMS) * time.Millisecond
	if d < MinRefreshDelay {
		return MinRefreshDelay
	}
	if d > MaxRefreshDelay {
		return MaxRefreshDelay
	}
	return d
}

// FilterSet compiles the diagnostic filters. Call Validate first if
// pattern errors should be surfaced to the user.
func (c Config) FilterSet() (*diag.FilterSet, error) {
	return diag.NewFilterSet(c.DiagnosticFilters)
}

// CachePath returns the effective snapshot cache directory.
func (c Config) CachePath() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	if len(c.Roots) == 0 {
		return filepath.Join(".pyxis", "cache")
	}
	return filepath.Join(c.Roots[0], ".pyxis", "cache")
}
