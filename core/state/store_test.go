package state

import (
	"errors"
	"path/filepath"
	"testing"

	"nftstake/native/staking"
	"nftstake/storage"
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func pid(b byte) staking.PositionID {
	var out staking.PositionID
	out[31] = b
	return out
}

func TestBatchIsInvisibleUntilCommit(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	batch := store.NewBatch()
	pos := &staking.Position{ID: pid(1), Owner: addr(1), StakedAt: 100}
	if err := batch.StakingPositionPut(pos); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, err := batch.StakingPositionGet(pid(1)); err != nil || !ok {
		t.Fatalf("batch should read its own write, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := store.StakingPositionGet(pid(1)); ok {
		t.Fatalf("uncommitted write leaked into store")
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, ok, err := store.StakingPositionGet(pid(1))
	if err != nil || !ok {
		t.Fatalf("expected committed position, ok=%v err=%v", ok, err)
	}
	if got.Owner != addr(1) || got.StakedAt != 100 {
		t.Fatalf("unexpected position %+v", got)
	}
	if err := batch.Commit(); err == nil {
		t.Fatalf("expected second commit to fail")
	}
}

func TestDiscardedBatchLeavesNoTrace(t *testing.T) {
	db := storage.NewMemDB()
	store := NewStore(db)
	batch := store.NewBatch()
	_ = batch.StakingAccountPut(&staking.Account{Owner: addr(1), PositionCount: 3})
	_ = batch.CustodyBalancePut(addr(1), 50)
	// dropped without Commit
	if _, ok, _ := store.StakingAccountGet(addr(1)); ok {
		t.Fatalf("discarded batch left an account behind")
	}
	if bal, _ := store.CustodyBalanceGet(addr(1)); bal != 0 {
		t.Fatalf("discarded batch left a balance behind: %d", bal)
	}
}

func TestOwnerIndexFollowsPositions(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	seed := store.NewBatch()
	for _, b := range []byte{3, 1, 2} {
		if err := seed.StakingPositionPut(&staking.Position{ID: pid(b), Owner: addr(7), StakedAt: 1}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	_ = seed.StakingPositionPut(&staking.Position{ID: pid(9), Owner: addr(8), StakedAt: 1})
	if err := seed.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	batch := store.NewBatch()
	if err := batch.StakingPositionDelete(&staking.Position{ID: pid(2), Owner: addr(7)}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_ = batch.StakingPositionPut(&staking.Position{ID: pid(4), Owner: addr(7), StakedAt: 2})

	ids, err := batch.StakingOwnerPositions(addr(7))
	if err != nil {
		t.Fatalf("owner positions: %v", err)
	}
	want := []staking.PositionID{pid(1), pid(3), pid(4)}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("id %d: got %s want %s", i, ids[i], want[i])
		}
	}

	committed, _ := store.StakingOwnerPositions(addr(7))
	if len(committed) != 3 {
		t.Fatalf("store should still see the committed index, got %d", len(committed))
	}

	var live int
	if err := batch.StakingPositionsIterate(func(*staking.Position) error { live++; return nil }); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if live != 4 {
		t.Fatalf("expected 4 live positions in batch view, got %d", live)
	}
}

func TestGovernanceRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	if _, ok, _ := store.StakingGovernanceGet(); ok {
		t.Fatalf("expected no governance record")
	}
	batch := store.NewBatch()
	gov := &staking.Governance{
		Owner:                  staking.Initialized{Owner: addr(5)},
		Paused:                 true,
		RewardRate:             10,
		MinLockPeriod:          7 * staking.SecondsPerDay,
		WithdrawalCooldown:     staking.SecondsPerDay,
		AllowEarlyUnstake:      true,
		EarlyUnstakePenaltyBps: 5000,
		Distribution:           staking.Distribution{TotalDistributed: 40, LastDistributionTime: 1234},
		TotalStaked:            2,
	}
	if err := batch.StakingGovernancePut(gov); err != nil {
		t.Fatalf("put governance: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, ok, err := store.StakingGovernanceGet()
	if err != nil || !ok {
		t.Fatalf("load governance: ok=%v err=%v", ok, err)
	}
	owner, initialized := staking.OwnerOf(got.Owner)
	if !initialized || owner != addr(5) {
		t.Fatalf("owner not preserved: %#v", got.Owner)
	}
	got.Owner = gov.Owner
	if *got != *gov {
		t.Fatalf("governance mismatch:\n got %+v\nwant %+v", got, gov)
	}
}

func TestPendingChangesAndCustodyRecords(t *testing.T) {
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	batch := store.NewBatch()
	_ = batch.StakingPendingChangePut(&staking.PendingChange{Tag: staking.ChangeRewardRate, ProposedAt: 10, Value: 500})
	_ = batch.StakingPendingChangePut(&staking.PendingChange{Tag: staking.ChangeMinLockPeriod, ProposedAt: 11, Value: 60})
	_ = batch.CustodyHolderPut([32]byte(pid(1)), addr(3))
	_ = batch.CustodyBalancePut(addr(3), 99)
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	changes, err := store.StakingPendingChanges()
	if err != nil {
		t.Fatalf("pending changes: %v", err)
	}
	if len(changes) != 2 || changes[0].Tag != staking.ChangeMinLockPeriod || changes[1].Value != 500 {
		t.Fatalf("unexpected pending changes %+v", changes)
	}
	holder, ok, err := store.CustodyHolderGet([32]byte(pid(1)))
	if err != nil || !ok || holder != addr(3) {
		t.Fatalf("unexpected holder %x ok=%v err=%v", holder, ok, err)
	}

	clear := store.NewBatch()
	_ = clear.StakingPendingChangeDelete(staking.ChangeRewardRate)
	_ = clear.CustodyBalancePut(addr(3), 0)
	if err := clear.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, ok, _ := store.StakingPendingChangeGet(staking.ChangeRewardRate); ok {
		t.Fatalf("expected reward_rate proposal to be removed")
	}
	if bal, err := store.CustodyBalanceGet(addr(3)); err != nil || bal != 0 {
		t.Fatalf("expected zero balance, got %d err=%v", bal, err)
	}
}

func TestCorruptRecordSurfacesError(t *testing.T) {
	db := storage.NewMemDB()
	if err := db.Put(positionKey(pid(1)), []byte{0xff, 0x00}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := NewStore(db)
	_, _, err := store.StakingPositionGet(pid(1))
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("decode failure must not look like a missing record: %v", err)
	}
}

func TestStateRootTracksLedgerRecords(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	empty, err := store.StateRoot()
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	batch := store.NewBatch()
	batch.MarkGenesis([]byte{0x01})
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if root, _ := store.StateRoot(); root != empty {
		t.Fatalf("genesis marker must not change the root")
	}

	batch = store.NewBatch()
	if err := batch.StakingPositionPut(&staking.Position{ID: pid(1), Owner: addr(1), StakedAt: 5}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	withPosition, err := store.StateRoot()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if withPosition == empty {
		t.Fatalf("root did not change after staking write")
	}

	batch = store.NewBatch()
	if err := batch.StakingPositionDelete(&staking.Position{ID: pid(1), Owner: addr(1), StakedAt: 5}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if root, _ := store.StateRoot(); root != empty {
		t.Fatalf("root must return to empty after delete, got %s", root.Hex())
	}
}
