package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Key layout inside the store.
const (
	keyMeta      = "meta" // the meta record
	prefixModule = "m:"   // module blobs, m:<key>
)

// BadgerBackend is a BadgerDB-backed cache implementation.
type BadgerBackend struct {
	db *badger.DB
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR) // Suppress INFO/WARNING logs

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	var err error
	b.db, err = badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}
	return nil
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// LoadMeta returns the meta record, or nil when absent.
func (b *BadgerBackend) LoadMeta() (*Meta, error) {
	var meta *Meta
	err := b.get(keyMeta, func(val []byte) error {
		meta = &Meta{}
		return json.Unmarshal(val, meta)
	})
	if err != nil {
		return nil, fmt.Errorf("loading cache meta: %w", err)
	}
	return meta, nil
}

// SaveMeta replaces the meta record.
func (b *BadgerBackend) SaveMeta(m *Meta) error {
	if err := b.set(keyMeta, m); err != nil {
		return fmt.Errorf("saving cache meta: %w", err)
	}
	return nil
}

// LoadModule returns the module blob for key, or nil when absent.
func (b *BadgerBackend) LoadModule(key string) (*ModuleRecord, error) {
	var rec *ModuleRecord
	err := b.get(prefixModule+key, func(val []byte) error {
		rec = &ModuleRecord{}
		return json.Unmarshal(val, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("loading module record: %w", err)
	}
	return rec, nil
}

// SaveModule replaces the module blob for key.
func (b *BadgerBackend) SaveModule(key string, rec *ModuleRecord) error {
	if err := b.set(prefixModule+key, rec); err != nil {
		return fmt.Errorf("saving module record: %w", err)
	}
	return nil
}

// DeleteModule removes the module blob for key.
func (b *BadgerBackend) DeleteModule(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixModule + key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("deleting module record: %w", err)
	}
	return nil
}

// Keys returns every stored module key, sorted.
func (b *BadgerBackend) Keys() ([]string, error) {
	var keys []string

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixModule)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		key := string(it.Item().Key())
		keys = append(keys, strings.TrimPrefix(key, prefixModule))
	}
	sort.Strings(keys)
	return keys, nil
}

// get reads one key, returning a nil error when the key is absent
// without invoking fn.
func (b *BadgerBackend) get(key string, fn func(val []byte) error) error {
	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return item.Value(fn)
}

func (b *BadgerBackend) set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}
