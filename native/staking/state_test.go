package staking

import (
	"bytes"
	"sort"
)

// memState is an in-memory Backend. Begin snapshots the maps; Commit swaps
// the snapshot back in.
type memState struct {
	gov       *Governance
	positions map[PositionID]*Position
	accounts  map[[20]byte]*Account
	pending   map[ChangeTag]*PendingChange
	holders   map[[32]byte][20]byte
	balances  map[[20]byte]uint64
	commits   int
}

func newMemState() *memState {
	return &memState{
		positions: make(map[PositionID]*Position),
		accounts:  make(map[[20]byte]*Account),
		pending:   make(map[ChangeTag]*PendingChange),
		holders:   make(map[[32]byte][20]byte),
		balances:  make(map[[20]byte]uint64),
	}
}

func (m *memState) clone() *memState {
	out := newMemState()
	out.gov = m.gov.Clone()
	for k, v := range m.positions {
		out.positions[k] = v.Clone()
	}
	for k, v := range m.accounts {
		out.accounts[k] = v.Clone()
	}
	for k, v := range m.pending {
		c := *v
		out.pending[k] = &c
	}
	for k, v := range m.holders {
		out.holders[k] = v
	}
	for k, v := range m.balances {
		out.balances[k] = v
	}
	return out
}

func (m *memState) StakingGovernanceGet() (*Governance, bool, error) {
	if m.gov == nil {
		return nil, false, nil
	}
	return m.gov.Clone(), true, nil
}

func (m *memState) StakingPositionGet(id PositionID) (*Position, bool, error) {
	pos, ok := m.positions[id]
	return pos.Clone(), ok, nil
}

func (m *memState) StakingAccountGet(owner [20]byte) (*Account, bool, error) {
	acct, ok := m.accounts[owner]
	return acct.Clone(), ok, nil
}

func (m *memState) StakingOwnerPositions(owner [20]byte) ([]PositionID, error) {
	ids := make([]PositionID, 0)
	for id, pos := range m.positions {
		if pos.Owner == owner {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids, nil
}

func (m *memState) StakingPendingChangeGet(tag ChangeTag) (*PendingChange, bool, error) {
	change, ok := m.pending[tag]
	if !ok {
		return nil, false, nil
	}
	c := *change
	return &c, true, nil
}

func (m *memState) StakingPendingChanges() ([]*PendingChange, error) {
	out := make([]*PendingChange, 0, len(m.pending))
	for _, change := range m.pending {
		c := *change
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out, nil
}

func (m *memState) StakingPositionsIterate(fn func(*Position) error) error {
	for _, pos := range m.positions {
		if err := fn(pos.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *memState) StakingAccountsIterate(fn func(*Account) error) error {
	for _, acct := range m.accounts {
		if err := fn(acct.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *memState) CustodyHolderGet(item [32]byte) ([20]byte, bool, error) {
	holder, ok := m.holders[item]
	return holder, ok, nil
}

func (m *memState) CustodyBalanceGet(owner [20]byte) (uint64, error) {
	return m.balances[owner], nil
}

func (m *memState) Begin() Batch {
	return &memBatch{memState: m.clone(), parent: m}
}

type memBatch struct {
	*memState
	parent *memState
}

func (b *memBatch) StakingGovernancePut(gov *Governance) error {
	b.gov = gov.Clone()
	return nil
}

func (b *memBatch) StakingPositionPut(pos *Position) error {
	b.positions[pos.ID] = pos.Clone()
	return nil
}

func (b *memBatch) StakingPositionDelete(pos *Position) error {
	delete(b.positions, pos.ID)
	return nil
}

func (b *memBatch) StakingAccountPut(acct *Account) error {
	b.accounts[acct.Owner] = acct.Clone()
	return nil
}

func (b *memBatch) StakingPendingChangePut(change *PendingChange) error {
	c := *change
	b.pending[change.Tag] = &c
	return nil
}

func (b *memBatch) StakingPendingChangeDelete(tag ChangeTag) error {
	delete(b.pending, tag)
	return nil
}

func (b *memBatch) CustodyHolderPut(item [32]byte, holder [20]byte) error {
	b.holders[item] = holder
	return nil
}

func (b *memBatch) CustodyBalancePut(owner [20]byte, amount uint64) error {
	b.balances[owner] = amount
	return nil
}

func (b *memBatch) Commit() error {
	commits := b.parent.commits + 1
	*b.parent = *b.memState
	b.parent.commits = commits
	return nil
}
