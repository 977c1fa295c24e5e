package cache

import (
	"encoding/json"
	"fmt"
	"sort"
)

// MemoryBackend is an in-memory cache implementation used by tests and
// by sessions that disable persistence. Records are stored as JSON so
// the round-trip behavior matches the durable backends.
type MemoryBackend struct {
	readOnly bool
	meta     []byte
	modules  map[string][]byte
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Initialize prepares the backend. The path is ignored.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	m.readOnly = readOnly
	if m.modules == nil {
		m.modules = make(map[string][]byte)
	}
	return nil
}

// Close releases all resources held by the backend.
func (m *MemoryBackend) Close() error {
	return nil
}

// LoadMeta returns the meta record, or nil when absent.
func (m *MemoryBackend) LoadMeta() (*Meta, error) {
	if m.meta == nil {
		return nil, nil
	}
	meta := &Meta{}
	if err := json.Unmarshal(m.meta, meta); err != nil {
		return nil, fmt.Errorf("loading cache meta: %w", err)
	}
	return meta, nil
}

// SaveMeta replaces the meta record.
func (m *MemoryBackend) SaveMeta(meta *Meta) error {
	data, err := m.marshal(meta)
	if err != nil {
		return err
	}
	m.meta = data
	return nil
}

// LoadModule returns the module blob for key, or nil when absent.
func (m *MemoryBackend) LoadModule(key string) (*ModuleRecord, error) {
	data, ok := m.modules[key]
	if !ok {
		return nil, nil
	}
	rec := &ModuleRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("loading module record: %w", err)
	}
	return rec, nil
}

// SaveModule replaces the module blob for key.
func (m *MemoryBackend) SaveModule(key string, rec *ModuleRecord) error {
	data, err := m.marshal(rec)
	if err != nil {
		return err
	}
	m.modules[key] = data
	return nil
}

// DeleteModule removes the module blob for key.
func (m *MemoryBackend) DeleteModule(key string) error {
	if m.readOnly {
		return fmt.Errorf("cache is read-only")
	}
	delete(m.modules, key)
	return nil
}

// Keys returns every stored module key, sorted.
func (m *MemoryBackend) Keys() ([]string, error) {
	keys := make([]string, 0, len(m.modules))
	for key := range m.modules {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryBackend) marshal(value any) ([]byte, error) {
	if m.readOnly {
		return nil, fmt.Errorf("cache is read-only")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshaling: %w", err)
	}
	return data, nil
}
