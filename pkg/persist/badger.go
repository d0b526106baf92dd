package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// prefixZone namespaces zone documents inside the database.
const prefixZone = "zone/"

// ErrStoreClosed is returned by a BadgerStore after Close.
var ErrStoreClosed = errors.New("persist: store closed")

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	// DataDir is the database directory. Ignored when InMemory is set.
	DataDir    string
	InMemory   bool
	SyncWrites bool
	// Logger receives badger's internal logging. Nil silences it.
	Logger badger.Logger
}

// BadgerStore keeps documents in a BadgerDB database.
//
// Example:
//
//	store, err := persist.NewBadgerStore(persist.BadgerOptions{DataDir: "/var/lib/thermotune"})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
type BadgerStore struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// NewBadgerStore opens (or creates) the database.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	// Documents are small; keep them in the LSM tree.
	badgerOpts = badgerOpts.
		WithMemTableSize(8 << 20).
		WithValueLogFileSize(32 << 20).
		WithNumMemtables(1).
		WithBlockCacheSize(8 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStoreInMemory opens a throwaway in-memory database.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	return NewBadgerStore(BadgerOptions{InMemory: true})
}

func zoneKey(key string) []byte {
	return []byte(prefixZone + key)
}

func (s *BadgerStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(zoneKey(key))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

func (s *BadgerStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(zoneKey(key), data)
	})
}

func (s *BadgerStore) Delete(_ context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(zoneKey(key))
	})
}

func (s *BadgerStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixZone)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefixZone):]))
		}
		return nil
	})
	return keys, err
}

// Close flushes and closes the database. Further calls are no-ops.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
