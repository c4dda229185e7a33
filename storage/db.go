package storage

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// The ledger runs on either backend (in-memory for tests, LevelDB on disk).
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	// Write applies every operation in the batch atomically.
	Write(batch *Batch) error
	// Iterate visits all keys sharing the prefix in ascending key order.
	Iterate(prefix []byte, fn func(key, value []byte) error) error
	Close() // A way to gracefully shut down the database connection.
}

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// Batch collects writes that must land together.
type Batch struct {
	ops []batchOp
}

// NewBatch returns an empty write batch.
func NewBatch() *Batch { return &Batch{} }

// Put queues a write.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

// Delete queues a removal.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), delete: true})
}

// Len reports the number of queued operations.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

func (db *MemDB) Write(batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, op := range batch.ops {
		if op.delete {
			delete(db.data, string(op.key))
			continue
		}
		db.data[string(op.key)] = append([]byte(nil), op.value...)
	}
	return nil
}

func (db *MemDB) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	db.mu.RLock()
	keys := make([]string, 0)
	for k := range db.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = append([]byte(nil), db.data[k]...)
	}
	db.mu.RUnlock()

	for i, k := range keys {
		if err := fn([]byte(k), values[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Has reports whether the key exists.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// Delete removes the key.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

// Write commits the batch through a single LevelDB write.
func (ldb *LevelDB) Write(batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	lb := new(leveldb.Batch)
	for _, op := range batch.ops {
		if op.delete {
			lb.Delete(op.key)
			continue
		}
		lb.Put(op.key, op.value)
	}
	return ldb.db.Write(lb, nil)
}

// Iterate walks the keys under prefix.
func (ldb *LevelDB) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	iter := ldb.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}
