// Package cache persists per-module symbol snapshots between sessions.
//
// A cache holds one meta record describing the workspace it was written
// for and one blob per module, keyed by a hash of the workspace root
// and module name. Any mismatch in the meta triple (format version,
// tool version, root path) invalidates the whole cache; a stale or
// unreadable blob falls back to building the module from source.
package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// CacheVersion is bumped whenever the record layout changes. Caches
// written under another version are discarded wholesale.
const CacheVersion uint32 = 3

// Meta describes the cache as a whole.
type Meta struct {
	// Version is the record format version, CacheVersion at write time.
	Version uint32

	// ToolVersion is the writing binary's version string.
	ToolVersion string

	// Root is the workspace root the cache was built for.
	Root string

	// Files maps absolute file paths to the stat fingerprint observed
	// when the cache was written.
	Files map[string]FileMetadata
}

// FileMetadata is the stat fingerprint used to short-circuit content
// hashing during staleness checks.
type FileMetadata struct {
	MtimeNS int64
	Size    int64
}

// Valid reports whether the cache was written by this tool version for
// this workspace root in the current format.
func (m *Meta) Valid(toolVersion, root string) bool {
	return m != nil && m.Version == CacheVersion && m.ToolVersion == toolVersion && m.Root == root
}

// ModuleKey derives the blob key for a module of a workspace.
func ModuleKey(root, module string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(root+":"+module))
}

// Backend is the persistence interface of the cache subsystem. A
// backend is owned by the session goroutine and needs no internal
// synchronization beyond surviving Close.
//
// Lookups of absent records return nil with a nil error; a non-nil
// error signals a corrupt or unreadable record and callers fall back
// to rebuilding from source.
type Backend interface {
	// Initialize opens or creates the cache at the given path. With
	// readOnly set, writes fail.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// LoadMeta returns the meta record, or nil when absent.
	LoadMeta() (*Meta, error)

	// SaveMeta replaces the meta record.
	SaveMeta(m *Meta) error

	// LoadModule returns the module blob for key, or nil when absent.
	LoadModule(key string) (*ModuleRecord, error)

	// SaveModule replaces the module blob for key.
	SaveModule(key string, rec *ModuleRecord) error

	// DeleteModule removes the module blob for key.
	DeleteModule(key string) error

	// Keys returns every stored module key, sorted.
	Keys() ([]string, error)
}
