package staking

import (
	"errors"
	"testing"

	"nftstake/native/common"
	"nftstake/native/custody"
)

func TestStakeCreatesPositionAndMovesItem(t *testing.T) {
	h := newHarness(t, nil)
	pos := h.stake(alice, t0, pid(1))
	if pos.Owner != alice || pos.StakedAt != t0 {
		t.Fatalf("unexpected position %+v", pos)
	}
	if h.holder(pid(1)) != vaultAccount {
		t.Fatalf("expected vault to hold the staked item")
	}
	info := h.account(alice)
	if info.PositionCount != 1 || len(info.Positions) != 1 || info.Positions[0] != pid(1) {
		t.Fatalf("unexpected account %+v", info)
	}
	if h.totalStaked() != 1 {
		t.Fatalf("expected total staked 1")
	}
	staked := h.events.OfType(EventTypeStaked)
	if len(staked) != 1 || staked[0].Attr("id") != pid(1).Hex() {
		t.Fatalf("expected one staked event, got %+v", staked)
	}
	h.checkInvariants()
}

func TestStakeRejections(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(alice, t0, pid(1))

	if _, err := h.engine.Stake(stakeCall(alice, t0, 1), pid(1)); !errors.Is(err, ErrPositionExists) {
		t.Fatalf("expected ErrPositionExists, got %v", err)
	}
	if _, err := h.engine.Stake(stakeCall(alice, t0, 1), pid(21)); !errors.Is(err, custody.ErrItemNotHeld) {
		t.Fatalf("expected ErrItemNotHeld for bob's item, got %v", err)
	}
	if _, err := h.engine.Stake(stakeCall(alice, t0, 1), pid(99)); !errors.Is(err, custody.ErrUnknownItem) {
		t.Fatalf("expected ErrUnknownItem, got %v", err)
	}
	if _, err := h.engine.Stake(stakeCall(alice, t0, 2), pid(2)); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch for quantity, got %v", err)
	}
	wrongAsset := stakeCall(alice, t0, 1)
	wrongAsset.AttachedAsset = "reward"
	if _, err := h.engine.Stake(wrongAsset, pid(2)); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch for asset, got %v", err)
	}
	if _, err := h.engine.Stake(stakeCall([20]byte{}, t0, 1), pid(2)); !errors.Is(err, ErrInvalidStaker) {
		t.Fatalf("expected ErrInvalidStaker for zero caller, got %v", err)
	}
	if h.totalStaked() != 1 || len(h.events.OfType(EventTypeStaked)) != 1 {
		t.Fatalf("failed stakes must not change state or emit events")
	}
	h.checkInvariants()
}

func TestStakeWithoutValueVerification(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.VerifyAttachedValue = false })
	if _, err := h.engine.Stake(plainCall(alice, t0), pid(1)); err != nil {
		t.Fatalf("stake without attached value: %v", err)
	}
}

func TestUnstakeAfterLockScenario(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(alice, t0, pid(1))

	res, err := h.engine.Unstake(plainCall(alice, t0+8*day), pid(1))
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if res.Early || res.Penalty != 0 {
		t.Fatalf("expected on-time unstake, got %+v", res)
	}
	if res.Reward != 80 {
		t.Fatalf("expected 8 days at 10/day, got %d", res.Reward)
	}
	if h.holder(pid(1)) != alice {
		t.Fatalf("item not returned to owner")
	}
	info := h.account(alice)
	if info.PositionCount != 0 || info.RewardBalance != 80 || len(info.Positions) != 0 {
		t.Fatalf("unexpected account after unstake %+v", info)
	}
	if _, err := h.engine.Position(pid(1)); !errors.Is(err, ErrNFTNotFound) {
		t.Fatalf("expected position to be gone, got %v", err)
	}
	unstaked := h.events.OfType(EventTypeUnstaked)
	if len(unstaked) != 1 || unstaked[0].Attr("reward") != "80" || unstaked[0].Attr("early") != "false" {
		t.Fatalf("unexpected unstake events %+v", unstaked)
	}
	h.checkInvariants()
}

func TestUnstakeAfterLockBasisScenario(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.RewardBasis = RewardBasisAfterLock })
	h.stake(alice, 0, pid(1))
	res, err := h.engine.Unstake(plainCall(alice, 8*day), pid(1))
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if res.Reward != 10 || res.Early {
		t.Fatalf("expected 1 day x 10 with no penalty, got %+v", res)
	}
}

func TestEarlyExitNeverBeatsWaitingUnderAfterLock(t *testing.T) {
	h := newHarness(t, func(p *Params) {
		p.RewardBasis = RewardBasisAfterLock
		p.AllowEarlyUnstake = true
		p.EarlyUnstakePenaltyBps = 5000
	})
	h.stake(alice, t0, pid(1))
	h.stake(alice, t0, pid(2))
	early, err := h.engine.Unstake(plainCall(alice, t0+6*day), pid(1))
	if err != nil {
		t.Fatalf("early unstake: %v", err)
	}
	onTime, err := h.engine.Unstake(plainCall(alice, t0+7*day), pid(2))
	if err != nil {
		t.Fatalf("on-time unstake: %v", err)
	}
	if !early.Early || early.Reward != 0 || early.Penalty != 0 {
		t.Fatalf("expected nothing for an exit inside the lock, got %+v", early)
	}
	if onTime.Early || onTime.Reward != 0 {
		t.Fatalf("expected zero post-lock days at the lock boundary, got %+v", onTime)
	}
	if early.Reward > onTime.Reward {
		t.Fatalf("early exit paid %d, more than waiting (%d)", early.Reward, onTime.Reward)
	}
	h.checkInvariants()
}

func TestPendingMatchesSettlementForBothBases(t *testing.T) {
	for _, basis := range []RewardBasis{RewardBasisSinceStake, RewardBasisAfterLock} {
		h := newHarness(t, func(p *Params) { p.RewardBasis = basis })
		h.stake(alice, t0, pid(1))
		at := t0 + 8*day
		pending, err := h.engine.PendingRewards(alice, at)
		if err != nil {
			t.Fatalf("%s: pending: %v", basis, err)
		}
		res, err := h.engine.Unstake(plainCall(alice, at), pid(1))
		if err != nil {
			t.Fatalf("%s: unstake: %v", basis, err)
		}
		if pending != res.Reward {
			t.Fatalf("%s: pending %d, settled %d", basis, pending, res.Reward)
		}
		if after, _ := h.engine.PendingRewards(alice, at); after != res.Reward {
			t.Fatalf("%s: pending after unstake %d, want credited %d", basis, after, res.Reward)
		}
	}
}

func TestEarlyUnstakeRejectedWhenDisallowed(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(alice, t0, pid(1))
	if _, err := h.engine.Unstake(plainCall(alice, t0+3*day), pid(1)); !errors.Is(err, ErrLockPeriodActive) {
		t.Fatalf("expected ErrLockPeriodActive, got %v", err)
	}
	if h.holder(pid(1)) != vaultAccount || h.totalStaked() != 1 {
		t.Fatalf("rejected unstake must leave the position in place")
	}
}

func TestEarlyUnstakeWithPenaltyScenario(t *testing.T) {
	h := newHarness(t, func(p *Params) {
		p.AllowEarlyUnstake = true
		p.EarlyUnstakePenaltyBps = 5000
	})
	h.stake(alice, t0, pid(1))
	res, err := h.engine.Unstake(plainCall(alice, t0+3*day), pid(1))
	if err != nil {
		t.Fatalf("early unstake: %v", err)
	}
	if !res.Early || res.Reward != 15 || res.Penalty != 15 {
		t.Fatalf("expected 30 gross halved to 15, got %+v", res)
	}
	if h.account(alice).RewardBalance != 15 {
		t.Fatalf("expected 15 credited")
	}
	h.checkInvariants()
}

func TestUnstakeLockBoundary(t *testing.T) {
	h := newHarness(t, func(p *Params) {
		p.AllowEarlyUnstake = true
		p.EarlyUnstakePenaltyBps = 5000
	})
	h.stake(alice, t0, pid(1))
	h.stake(alice, t0, pid(2))

	atBoundary, err := h.engine.Unstake(plainCall(alice, t0+7*day), pid(1))
	if err != nil {
		t.Fatalf("unstake at boundary: %v", err)
	}
	if atBoundary.Early || atBoundary.Reward != 70 || atBoundary.Penalty != 0 {
		t.Fatalf("boundary unstake must not be early, got %+v", atBoundary)
	}

	oneEarlier, err := h.engine.Unstake(plainCall(alice, t0+7*day-1), pid(2))
	if err != nil {
		t.Fatalf("unstake one second early: %v", err)
	}
	if !oneEarlier.Early || oneEarlier.Reward != 30 || oneEarlier.Penalty != 30 {
		t.Fatalf("one second before the lock ends must be early, got %+v", oneEarlier)
	}
}

func TestStakeUnstakeRoundTrip(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.AllowEarlyUnstake = true })
	before := h.account(alice).PositionCount
	h.stake(alice, t0, pid(3))
	res, err := h.engine.Unstake(plainCall(alice, t0), pid(3))
	if err != nil {
		t.Fatalf("immediate unstake: %v", err)
	}
	if res.Reward != 0 {
		t.Fatalf("expected no reward for zero elapsed time, got %d", res.Reward)
	}
	if h.holder(pid(3)) != alice {
		t.Fatalf("item not returned to original owner")
	}
	if h.account(alice).PositionCount != before || h.totalStaked() != 0 {
		t.Fatalf("counters not restored")
	}
	h.checkInvariants()
}

func TestUnstakeZeroLockAtStakeInstant(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.MinLockPeriod = 0 })
	h.stake(alice, t0, pid(1))
	if _, err := h.engine.Unstake(plainCall(alice, t0), pid(1)); !errors.Is(err, ErrInvalidTimeRange) {
		t.Fatalf("expected ErrInvalidTimeRange, got %v", err)
	}
	if _, err := h.engine.Unstake(plainCall(alice, t0+1), pid(1)); err != nil {
		t.Fatalf("unstake one second later: %v", err)
	}
}

func TestUnstakeByOtherIdentity(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(alice, t0, pid(1))
	if _, err := h.engine.Unstake(plainCall(bob, t0+8*day), pid(1)); !errors.Is(err, ErrNotStaker) {
		t.Fatalf("expected ErrNotStaker, got %v", err)
	}
	if h.totalStaked() != 1 || h.account(alice).PositionCount != 1 || h.account(bob).PositionCount != 0 {
		t.Fatalf("counters changed after rejected unstake")
	}
	if _, err := h.engine.Unstake(plainCall(alice, t0+8*day), pid(9)); !errors.Is(err, ErrNFTNotFound) {
		t.Fatalf("expected ErrNFTNotFound, got %v", err)
	}
	h.checkInvariants()
}

func TestClaimRewards(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(alice, t0, pid(1))
	h.stake(alice, t0, pid(2))
	now := t0 + 10*day
	if _, err := h.engine.BatchUnstake(plainCall(alice, now), []PositionID{pid(1), pid(2)}); err != nil {
		t.Fatalf("batch unstake: %v", err)
	}

	amount, err := h.engine.ClaimRewards(plainCall(alice, now))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if amount != 200 {
		t.Fatalf("expected 200, got %d", amount)
	}
	if h.state.balances[alice] != 200 || h.state.balances[vaultAccount] != 1_000_000-200 {
		t.Fatalf("unexpected balances %+v", h.state.balances)
	}
	distributed, _ := h.engine.TotalDistributed()
	last, _ := h.engine.LastDistributionTime()
	if distributed != 200 || last != now {
		t.Fatalf("distribution totals not updated: %d @ %d", distributed, last)
	}
	if _, err := h.engine.ClaimRewards(plainCall(alice, now)); !errors.Is(err, ErrNoRewards) {
		t.Fatalf("second claim must fail with ErrNoRewards, got %v", err)
	}

	h.stake(alice, now, pid(3))
	if _, err := h.engine.Unstake(plainCall(alice, now+8*day), pid(3)); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if _, err := h.engine.ProposeAdminChange(h.adminCall(now), ChangeWithdrawalCooldown, uint64(30*day)); err != nil {
		t.Fatalf("propose cooldown: %v", err)
	}
	if _, err := h.engine.ExecuteAdminChange(h.adminCall(now), ChangeWithdrawalCooldown); err != nil {
		t.Fatalf("execute cooldown: %v", err)
	}
	if _, err := h.engine.ClaimRewards(plainCall(alice, now+8*day)); !errors.Is(err, ErrWithdrawalTooFrequent) {
		t.Fatalf("expected ErrWithdrawalTooFrequent, got %v", err)
	}
	if amount, err := h.engine.ClaimRewards(plainCall(alice, now+30*day)); err != nil || amount != 80 {
		t.Fatalf("claim after cooldown: %d %v", amount, err)
	}
}

func TestClaimRequiresReserve(t *testing.T) {
	h := newHarness(t, nil)
	h.state.balances[vaultAccount] = 5
	h.stake(alice, t0, pid(1))
	if _, err := h.engine.Unstake(plainCall(alice, t0+8*day), pid(1)); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if _, err := h.engine.ClaimRewards(plainCall(alice, t0+8*day)); !errors.Is(err, ErrInsufficientReserve) {
		t.Fatalf("expected ErrInsufficientReserve, got %v", err)
	}
	if h.account(alice).RewardBalance != 80 {
		t.Fatalf("failed claim must keep the balance")
	}
}

func TestImmediatePayoutMode(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.PayoutMode = PayoutImmediate })
	h.stake(alice, t0, pid(1))
	h.stake(alice, t0, pid(2))
	res, err := h.engine.Unstake(plainCall(alice, t0+8*day), pid(1))
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if !res.PaidOut || h.state.balances[alice] != 80 || h.account(alice).RewardBalance != 0 {
		t.Fatalf("expected immediate payout, got %+v balances=%+v", res, h.state.balances)
	}

	h.state.balances[vaultAccount] = 10
	if _, err := h.engine.Unstake(plainCall(alice, t0+8*day), pid(2)); !errors.Is(err, ErrInsufficientReserve) {
		t.Fatalf("expected ErrInsufficientReserve, got %v", err)
	}
	if h.holder(pid(2)) != vaultAccount {
		t.Fatalf("failed payout must keep the item in custody")
	}
	h.checkInvariants()
}

func TestBatchStakeIsAllOrNothing(t *testing.T) {
	h := newHarness(t, nil)
	ids := []PositionID{pid(1), pid(2), pid(21)}
	if _, err := h.engine.BatchStake(stakeCall(alice, t0, 3), ids); !errors.Is(err, custody.ErrItemNotHeld) {
		t.Fatalf("expected ErrItemNotHeld, got %v", err)
	}
	if h.totalStaked() != 0 || h.holder(pid(1)) != alice || len(h.events.Events()) != 0 {
		t.Fatalf("partial batch leaked state")
	}

	positions, err := h.engine.BatchStake(stakeCall(alice, t0, 3), []PositionID{pid(3), pid(1), pid(2)})
	if err != nil {
		t.Fatalf("batch stake: %v", err)
	}
	if len(positions) != 3 || positions[0].ID != pid(3) {
		t.Fatalf("positions must follow request order, got %+v", positions)
	}
	if h.totalStaked() != 3 || len(h.events.OfType(EventTypeStaked)) != 3 {
		t.Fatalf("expected three staked positions")
	}
	h.checkInvariants()
}

func TestBatchValidation(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.engine.BatchStake(stakeCall(alice, t0, 0), nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	large := make([]PositionID, DefaultMaxBatchSize+1)
	for i := range large {
		large[i][0] = byte(i)
		large[i][1] = byte(i >> 8)
	}
	if _, err := h.engine.BatchStake(stakeCall(alice, t0, len(large)), large); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	if _, err := h.engine.BatchStake(stakeCall(alice, t0, 2), []PositionID{pid(1), pid(1)}); !errors.Is(err, ErrDuplicatePosition) {
		t.Fatalf("expected ErrDuplicatePosition, got %v", err)
	}
	if _, err := h.engine.BatchStake(stakeCall(alice, t0, 1), []PositionID{pid(1), pid(2)}); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	if _, err := h.engine.BatchUnstake(plainCall(alice, t0), nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch for unstake, got %v", err)
	}
}

func TestBatchUnstakeIsAllOrNothing(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.engine.BatchStake(stakeCall(alice, t0, 2), []PositionID{pid(1), pid(2)}); err != nil {
		t.Fatalf("batch stake: %v", err)
	}
	h.stake(bob, t0, pid(21))
	_, err := h.engine.BatchUnstake(plainCall(alice, t0+8*day), []PositionID{pid(1), pid(21), pid(2)})
	if !errors.Is(err, ErrNotStaker) {
		t.Fatalf("expected ErrNotStaker, got %v", err)
	}
	if h.totalStaked() != 3 || h.account(alice).RewardBalance != 0 || h.holder(pid(1)) != vaultAccount {
		t.Fatalf("failed batch unstake leaked state")
	}
	results, err := h.engine.BatchUnstake(plainCall(alice, t0+8*day), []PositionID{pid(2), pid(1)})
	if err != nil {
		t.Fatalf("batch unstake: %v", err)
	}
	if len(results) != 2 || results[0].Position.ID != pid(2) || h.account(alice).RewardBalance != 160 {
		t.Fatalf("unexpected batch unstake result %+v", results)
	}
	h.checkInvariants()
}

func TestPauseBlocksStakeFamily(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(alice, t0, pid(1))
	if err := h.engine.EmergencyPause(h.adminCall(t0)); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused, _ := h.engine.IsPaused(); !paused {
		t.Fatalf("expected paused")
	}
	if _, err := h.engine.Stake(stakeCall(alice, t0, 1), pid(2)); !errors.Is(err, ErrContractPaused) {
		t.Fatalf("expected ErrContractPaused on stake, got %v", err)
	}
	if _, err := h.engine.Unstake(plainCall(alice, t0+8*day), pid(1)); !errors.Is(err, ErrContractPaused) {
		t.Fatalf("expected ErrContractPaused on unstake, got %v", err)
	}
	if _, err := h.engine.ClaimRewards(plainCall(alice, t0+8*day)); !errors.Is(err, ErrContractPaused) {
		t.Fatalf("expected ErrContractPaused on claim, got %v", err)
	}
	if _, err := h.engine.BatchStake(stakeCall(alice, t0, 1), []PositionID{pid(2)}); !errors.Is(err, ErrContractPaused) {
		t.Fatalf("expected ErrContractPaused on batch stake, got %v", err)
	}

	pos, err := h.engine.EmergencyWithdraw(h.adminCall(t0+day), pid(1))
	if err != nil {
		t.Fatalf("emergency withdraw while paused: %v", err)
	}
	if pos.Owner != alice || h.holder(pid(1)) != alice {
		t.Fatalf("emergency withdraw must return the item to its owner")
	}
	if err := h.engine.EmergencyUnpause(h.adminCall(t0 + day)); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	h.stake(alice, t0+day, pid(2))
	security := h.events.OfType(EventTypeSecurity)
	if len(security) != 3 || security[1].Attr("action") != SecurityActionEmergencyWithdraw {
		t.Fatalf("unexpected security events %+v", security)
	}
	h.checkInvariants()
}

func TestOperatorPauseGuard(t *testing.T) {
	h := newHarness(t, nil)
	pauses := common.NewPauseSet(ModuleName)
	h.engine.SetPauses(pauses)
	if _, err := h.engine.Stake(stakeCall(alice, t0, 1), pid(1)); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := h.engine.SetRewardRate(h.adminCall(t0), 20); err != nil {
		t.Fatalf("admin calls are not gated by the operator switch: %v", err)
	}
	pauses.Set(ModuleName, false)
	h.stake(alice, t0, pid(1))
}

func TestEmergencyWithdrawAuthorization(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(alice, t0, pid(1))
	if _, err := h.engine.EmergencyWithdraw(plainCall(alice, t0), pid(1)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := h.engine.EmergencyWithdraw(h.adminCall(t0), pid(7)); !errors.Is(err, ErrNFTNotFound) {
		t.Fatalf("expected ErrNFTNotFound, got %v", err)
	}
	if _, err := h.engine.EmergencyWithdraw(h.adminCall(t0), pid(1)); err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	if h.account(alice).RewardBalance != 0 {
		t.Fatalf("emergency withdraw must not credit rewards")
	}
	h.checkInvariants()
}

// reentrantCustody calls back into the engine while releasing an item, the
// way a hostile receiver hook would.
type reentrantCustody struct {
	*custody.Vault
	engine    *Engine
	nestedErr error
	propagate bool
}

func (r *reentrantCustody) Release(ledger custody.Ledger, to [20]byte, item [32]byte) error {
	_, r.nestedErr = r.engine.Stake(stakeCall(to, t0, 1), pid(5))
	if r.propagate && r.nestedErr != nil {
		return r.nestedErr
	}
	return r.Vault.Release(ledger, to, item)
}

func TestReentrantCallIsRejected(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.AllowEarlyUnstake = true })
	h.stake(alice, t0, pid(1))
	hostile := &reentrantCustody{Vault: h.vault, engine: h.engine}
	h.engine.SetCustody(hostile)

	if _, err := h.engine.Unstake(plainCall(alice, t0+8*day), pid(1)); err != nil {
		t.Fatalf("outer unstake: %v", err)
	}
	if !errors.Is(hostile.nestedErr, ErrReentrancyDetected) {
		t.Fatalf("expected nested call to fail with ErrReentrancyDetected, got %v", hostile.nestedErr)
	}
	if _, err := h.engine.Position(pid(5)); !errors.Is(err, ErrNFTNotFound) {
		t.Fatalf("nested stake must not have landed")
	}
	if h.engine.Busy() {
		t.Fatalf("guard must be released after the call")
	}

	h.stake(alice, t0, pid(2))
	hostile.propagate = true
	if _, err := h.engine.Unstake(plainCall(alice, t0+8*day), pid(2)); !errors.Is(err, ErrReentrancyDetected) {
		t.Fatalf("expected propagated ErrReentrancyDetected, got %v", err)
	}
	if h.holder(pid(2)) != vaultAccount || h.totalStaked() != 1 {
		t.Fatalf("aborted call leaked state")
	}
	h.checkInvariants()
}

func TestDepositRewards(t *testing.T) {
	h := newHarness(t, nil)
	h.state.balances[bob] = 500
	deposit := Call{Caller: bob, Now: t0, AttachedAsset: "reward", AttachedAmount: 300}
	reserve, err := h.engine.DepositRewards(deposit)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if reserve != 1_000_300 || h.state.balances[bob] != 200 {
		t.Fatalf("unexpected reserve %d / bob %d", reserve, h.state.balances[bob])
	}
	if _, err := h.engine.DepositRewards(Call{Caller: bob, Now: t0, AttachedAsset: "nft", AttachedAmount: 1}); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch for wrong asset, got %v", err)
	}
	if _, err := h.engine.DepositRewards(Call{Caller: bob, Now: t0, AttachedAsset: "reward"}); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch for zero amount, got %v", err)
	}
	if _, err := h.engine.DepositRewards(Call{Caller: bob, Now: t0, AttachedAsset: "reward", AttachedAmount: 201}); !errors.Is(err, custody.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got, _ := h.engine.RewardReserve(); got != 1_000_300 {
		t.Fatalf("reserve changed by failed deposits: %d", got)
	}
}

func TestPendingRewards(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(alice, t0, pid(1))
	h.stake(alice, t0+day, pid(2))
	pending, err := h.engine.PendingRewards(alice, t0+3*day)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending != 30+20 {
		t.Fatalf("expected 50 pending while locked, got %d", pending)
	}
	if _, err := h.engine.Unstake(plainCall(alice, t0+8*day), pid(1)); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	pending, _ = h.engine.PendingRewards(alice, t0+8*day)
	if pending != 80+70 {
		t.Fatalf("expected balance plus projection, got %d", pending)
	}
	if pending, _ := h.engine.PendingRewards(bob, t0+8*day); pending != 0 {
		t.Fatalf("expected zero for bob, got %d", pending)
	}
}

func TestFailedCallsEmitNothingAndCommitNothing(t *testing.T) {
	h := newHarness(t, nil)
	commits := h.state.commits
	_, _ = h.engine.Unstake(plainCall(alice, t0), pid(1))
	_, _ = h.engine.ClaimRewards(plainCall(alice, t0))
	_ = h.engine.SetRewardRate(plainCall(bob, t0), 5)
	if h.state.commits != commits {
		t.Fatalf("failed calls committed state")
	}
	if len(h.events.Events()) != 0 {
		t.Fatalf("failed calls emitted events: %+v", h.events.Events())
	}
}

func TestEngineWithoutState(t *testing.T) {
	e := NewEngine(DefaultParams())
	if _, err := e.Stake(stakeCall(alice, t0, 1), pid(1)); err == nil {
		t.Fatalf("expected error without state")
	}
	if e.Busy() {
		t.Fatalf("guard leaked on early return")
	}
	if _, err := e.TotalStaked(); err == nil {
		t.Fatalf("expected query error without state")
	}
}
