package staking

import (
	"testing"

	"nftstake/core/events"
	"nftstake/native/custody"
)

const (
	day int64 = SecondsPerDay
	t0  int64 = 1_700_000_000
)

var (
	vaultAccount = addr(0xee)
	admin        = addr(0xaa)
	alice        = addr(0x01)
	bob          = addr(0x02)
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func pid(b byte) PositionID {
	var out PositionID
	out[31] = b
	return out
}

type harness struct {
	t      *testing.T
	state  *memState
	vault  *custody.Vault
	engine *Engine
	events *events.Recorder
}

// newHarness builds an engine with rate 10/day, a 7 day lock and a 1 day
// claim cooldown. Items 1-20 belong to alice, 21-40 to bob and the reserve
// holds 1,000,000 reward units.
func newHarness(t *testing.T, tweak func(*Params)) *harness {
	t.Helper()
	params := DefaultParams()
	params.RewardRate = 10
	params.MinLockPeriod = uint64(7 * day)
	params.WithdrawalCooldown = uint64(day)
	if tweak != nil {
		tweak(&params)
	}
	if err := params.Validate(); err != nil {
		t.Fatalf("params: %v", err)
	}
	h := &harness{
		t:      t,
		state:  newMemState(),
		vault:  custody.NewVault(vaultAccount),
		events: &events.Recorder{},
	}
	h.engine = NewEngine(params)
	h.engine.SetState(h.state)
	h.engine.SetCustody(h.vault)
	h.engine.SetEmitter(h.events)

	for i := byte(1); i <= 20; i++ {
		h.state.holders[[32]byte(pid(i))] = alice
		h.state.holders[[32]byte(pid(i+20))] = bob
	}
	h.state.balances[vaultAccount] = 1_000_000
	if err := h.engine.Initialize(Call{Caller: admin, Now: t0}, admin); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	h.events.Reset()
	return h
}

func stakeCall(caller [20]byte, now int64, count int) Call {
	return Call{Caller: caller, Now: now, AttachedAsset: "nft", AttachedAmount: uint64(count)}
}

func plainCall(caller [20]byte, now int64) Call {
	return Call{Caller: caller, Now: now}
}

func (h *harness) stake(caller [20]byte, now int64, id PositionID) *Position {
	h.t.Helper()
	pos, err := h.engine.Stake(stakeCall(caller, now, 1), id)
	if err != nil {
		h.t.Fatalf("stake %s: %v", id, err)
	}
	return pos
}

func (h *harness) adminCall(now int64) Call { return plainCall(admin, now) }

func (h *harness) holder(id PositionID) [20]byte {
	h.t.Helper()
	holder, err := h.vault.HolderOf(h.state, [32]byte(id))
	if err != nil {
		h.t.Fatalf("holder of %s: %v", id, err)
	}
	return holder
}

func (h *harness) account(owner [20]byte) *AccountInfo {
	h.t.Helper()
	info, err := h.engine.AccountInfo(owner)
	if err != nil {
		h.t.Fatalf("account info: %v", err)
	}
	return info
}

func (h *harness) totalStaked() uint64 {
	h.t.Helper()
	total, err := h.engine.TotalStaked()
	if err != nil {
		h.t.Fatalf("total staked: %v", err)
	}
	return total
}

func (h *harness) checkInvariants() {
	h.t.Helper()
	if err := h.engine.CheckInvariants(); err != nil {
		h.t.Fatalf("invariants: %v", err)
	}
}
