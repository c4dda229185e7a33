package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"nftstake/native/staking"
	"nftstake/storage"
)

var errBatchDone = errors.New("state: batch already committed")

type kvSource interface {
	get(key []byte) ([]byte, bool, error)
	iterate(prefix []byte, fn func(key, value []byte) error) error
}

// reader decodes ledger records from any key/value source.
type reader struct {
	kv kvSource
}

func (r reader) StakingGovernanceGet() (*staking.Governance, bool, error) {
	data, ok, err := r.kv.get(governanceKey)
	if err != nil || !ok {
		return nil, false, err
	}
	gov, err := decodeGovernance(data)
	if err != nil {
		return nil, false, err
	}
	return gov, true, nil
}

func (r reader) StakingPositionGet(id staking.PositionID) (*staking.Position, bool, error) {
	data, ok, err := r.kv.get(positionKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	pos, err := decodePosition(id, data)
	if err != nil {
		return nil, false, err
	}
	return pos, true, nil
}

func (r reader) StakingAccountGet(owner [20]byte) (*staking.Account, bool, error) {
	data, ok, err := r.kv.get(accountKey(owner))
	if err != nil || !ok {
		return nil, false, err
	}
	acct, err := decodeAccount(owner, data)
	if err != nil {
		return nil, false, err
	}
	return acct, true, nil
}

func (r reader) StakingOwnerPositions(owner [20]byte) ([]staking.PositionID, error) {
	prefix := ownerIndexPrefixFor(owner)
	ids := make([]staking.PositionID, 0)
	err := r.kv.iterate(prefix, func(key, _ []byte) error {
		suffix := key[len(prefix):]
		if len(suffix) != len(staking.PositionID{}) {
			return fmt.Errorf("state: malformed owner index key %x", key)
		}
		var id staking.PositionID
		copy(id[:], suffix)
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r reader) StakingPendingChangeGet(tag staking.ChangeTag) (*staking.PendingChange, bool, error) {
	data, ok, err := r.kv.get(pendingChangeKey(tag))
	if err != nil || !ok {
		return nil, false, err
	}
	change, err := decodePendingChange(tag, data)
	if err != nil {
		return nil, false, err
	}
	return change, true, nil
}

func (r reader) StakingPendingChanges() ([]*staking.PendingChange, error) {
	out := make([]*staking.PendingChange, 0)
	err := r.kv.iterate(pendingChangePrefix, func(key, value []byte) error {
		tag := staking.ChangeTag(key[len(pendingChangePrefix):])
		change, err := decodePendingChange(tag, value)
		if err != nil {
			return err
		}
		out = append(out, change)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r reader) StakingPositionsIterate(fn func(*staking.Position) error) error {
	return r.kv.iterate(positionPrefix, func(key, value []byte) error {
		var id staking.PositionID
		copy(id[:], key[len(positionPrefix):])
		pos, err := decodePosition(id, value)
		if err != nil {
			return err
		}
		return fn(pos)
	})
}

func (r reader) StakingAccountsIterate(fn func(*staking.Account) error) error {
	return r.kv.iterate(accountPrefix, func(key, value []byte) error {
		var owner [20]byte
		copy(owner[:], key[len(accountPrefix):])
		acct, err := decodeAccount(owner, value)
		if err != nil {
			return err
		}
		return fn(acct)
	})
}

func (r reader) CustodyHolderGet(item [32]byte) ([20]byte, bool, error) {
	data, ok, err := r.kv.get(custodyHolderKey(item))
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	if len(data) != 20 {
		return [20]byte{}, false, fmt.Errorf("state: malformed holder for item %x", item)
	}
	var holder [20]byte
	copy(holder[:], data)
	return holder, true, nil
}

func (r reader) CustodyBalanceGet(owner [20]byte) (uint64, error) {
	data, ok, err := r.kv.get(custodyBalanceKey(owner))
	if err != nil || !ok {
		return 0, err
	}
	return decodeBalance(data)
}

type dbSource struct {
	db storage.Database
}

func (s dbSource) get(key []byte) ([]byte, bool, error) {
	value, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s dbSource) iterate(prefix []byte, fn func(key, value []byte) error) error {
	return s.db.Iterate(prefix, fn)
}

// Store exposes the ledger records kept in a storage.Database.
type Store struct {
	reader
	db       storage.Database
	commitMu sync.Mutex
}

// NewStore wraps db.
func NewStore(db storage.Database) *Store {
	return &Store{reader: reader{kv: dbSource{db: db}}, db: db}
}

// Begin opens a write batch for the staking engine.
func (s *Store) Begin() staking.Batch { return s.NewBatch() }

// NewBatch opens a write batch on top of the committed state.
func (s *Store) NewBatch() *Batch {
	b := &Batch{
		store:   s,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
	b.reader = reader{kv: b}
	return b
}

// Batch is a write overlay. Reads see the batch's own writes first; nothing
// reaches the database until Commit.
type Batch struct {
	reader
	store   *Store
	writes  map[string][]byte
	deletes map[string]struct{}
	done    bool
}

func (b *Batch) get(key []byte) ([]byte, bool, error) {
	k := string(key)
	if _, deleted := b.deletes[k]; deleted {
		return nil, false, nil
	}
	if value, ok := b.writes[k]; ok {
		return append([]byte(nil), value...), true, nil
	}
	return dbSource{db: b.store.db}.get(key)
}

func (b *Batch) iterate(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	err := b.store.db.Iterate(prefix, func(key, value []byte) error {
		merged[string(key)] = value
		return nil
	})
	if err != nil {
		return err
	}
	for k := range b.deletes {
		delete(merged, k)
	}
	for k, v := range b.writes {
		if bytes.HasPrefix([]byte(k), prefix) {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), append([]byte(nil), merged[k]...)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Batch) put(key, value []byte) {
	k := string(key)
	delete(b.deletes, k)
	b.writes[k] = value
}

func (b *Batch) del(key []byte) {
	k := string(key)
	delete(b.writes, k)
	b.deletes[k] = struct{}{}
}

// Len reports the number of staged keys.
func (b *Batch) Len() int { return len(b.writes) + len(b.deletes) }

// Commit writes the staged changes atomically.
func (b *Batch) Commit() error {
	if b.done {
		return errBatchDone
	}
	out := storage.NewBatch()
	keys := make([]string, 0, len(b.writes))
	for k := range b.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.Put([]byte(k), b.writes[k])
	}
	deleted := make([]string, 0, len(b.deletes))
	for k := range b.deletes {
		deleted = append(deleted, k)
	}
	sort.Strings(deleted)
	for _, k := range deleted {
		out.Delete([]byte(k))
	}
	b.store.commitMu.Lock()
	defer b.store.commitMu.Unlock()
	if err := b.store.db.Write(out); err != nil {
		return err
	}
	b.done = true
	return nil
}

func (b *Batch) StakingGovernancePut(gov *staking.Governance) error {
	encoded, err := encodeGovernance(gov)
	if err != nil {
		return err
	}
	b.put(governanceKey, encoded)
	return nil
}

func (b *Batch) StakingPositionPut(pos *staking.Position) error {
	if pos == nil {
		return fmt.Errorf("state: nil position")
	}
	encoded, err := encodePosition(pos)
	if err != nil {
		return err
	}
	b.put(positionKey(pos.ID), encoded)
	b.put(ownerIndexKey(pos.Owner, pos.ID), []byte{1})
	return nil
}

func (b *Batch) StakingPositionDelete(pos *staking.Position) error {
	if pos == nil {
		return fmt.Errorf("state: nil position")
	}
	b.del(positionKey(pos.ID))
	b.del(ownerIndexKey(pos.Owner, pos.ID))
	return nil
}

func (b *Batch) StakingAccountPut(acct *staking.Account) error {
	if acct == nil {
		return fmt.Errorf("state: nil account")
	}
	encoded, err := encodeAccount(acct)
	if err != nil {
		return err
	}
	b.put(accountKey(acct.Owner), encoded)
	return nil
}

func (b *Batch) StakingPendingChangePut(change *staking.PendingChange) error {
	if change == nil {
		return fmt.Errorf("state: nil pending change")
	}
	encoded, err := encodePendingChange(change)
	if err != nil {
		return err
	}
	b.put(pendingChangeKey(change.Tag), encoded)
	return nil
}

func (b *Batch) StakingPendingChangeDelete(tag staking.ChangeTag) error {
	b.del(pendingChangeKey(tag))
	return nil
}

func (b *Batch) CustodyHolderPut(item [32]byte, holder [20]byte) error {
	b.put(custodyHolderKey(item), holder[:])
	return nil
}

func (b *Batch) CustodyBalancePut(owner [20]byte, amount uint64) error {
	if amount == 0 {
		b.del(custodyBalanceKey(owner))
		return nil
	}
	encoded, err := encodeBalance(amount)
	if err != nil {
		return err
	}
	b.put(custodyBalanceKey(owner), encoded)
	return nil
}
