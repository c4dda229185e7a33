package staking

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// SecondsPerDay is the accrual granularity.
	SecondsPerDay = 86400
	// MaxRewardRate bounds the reward units accrued per position per day.
	MaxRewardRate uint64 = 1000
	// BasisPoints is the penalty denominator.
	BasisPoints uint64 = 10_000
)

// RewardBasis selects where the accrual window starts.
type RewardBasis string

const (
	// RewardBasisSinceStake counts whole days from the stake timestamp.
	RewardBasisSinceStake RewardBasis = "since_stake"
	// RewardBasisAfterLock counts whole days after the lock period ends.
	RewardBasisAfterLock RewardBasis = "after_lock"
)

// Valid reports whether the basis is supported.
func (b RewardBasis) Valid() bool {
	return b == RewardBasisSinceStake || b == RewardBasisAfterLock
}

// Accrue computes the reward for a position staked at stakedAt and settled at
// now. It fails when the range is empty or the lock period has not elapsed.
func Accrue(stakedAt, now int64, rate, minLock uint64) (uint64, error) {
	return accrue(RewardBasisSinceStake, stakedAt, now, rate, minLock)
}

func accrue(basis RewardBasis, stakedAt, now int64, rate, minLock uint64) (uint64, error) {
	if now <= stakedAt {
		return 0, fmt.Errorf("%w: now %d <= staked_at %d", ErrInvalidTimeRange, now, stakedAt)
	}
	elapsed := uint64(now - stakedAt)
	if elapsed < minLock {
		return 0, fmt.Errorf("%w: %ds of %ds elapsed", ErrLockPeriodNotMet, elapsed, minLock)
	}
	if basis == RewardBasisAfterLock {
		elapsed -= minLock
	}
	return rewardForDays(elapsed/SecondsPerDay, rate)
}

// accrueEarly is the early-unstake path: the lock check is skipped and a zero
// length window yields no reward instead of an error. Under the after_lock
// basis an exit before the lock ends has no post-lock days and earns nothing.
func accrueEarly(basis RewardBasis, stakedAt, now int64, rate uint64) (uint64, error) {
	if now < stakedAt {
		return 0, fmt.Errorf("%w: now %d < staked_at %d", ErrInvalidTimeRange, now, stakedAt)
	}
	if basis == RewardBasisAfterLock {
		return 0, nil
	}
	return rewardForDays(uint64(now-stakedAt)/SecondsPerDay, rate)
}

func rewardForDays(days, rate uint64) (uint64, error) {
	reward, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(days), uint256.NewInt(rate))
	if overflow || !reward.IsUint64() {
		return 0, fmt.Errorf("%w: %d days at rate %d", ErrRewardOverflow, days, rate)
	}
	bound, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(days), uint256.NewInt(MaxRewardRate))
	if !overflow && reward.Gt(bound) {
		return 0, fmt.Errorf("%w: %s > %s", ErrRewardExceedsMaxRate, reward.Dec(), bound.Dec())
	}
	return reward.Uint64(), nil
}

// ApplyPenalty removes bps/10000 of the reward, rounding the deduction down.
// It returns the reduced reward and the deducted amount.
func ApplyPenalty(reward, bps uint64) (uint64, uint64, error) {
	if bps > BasisPoints {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidPenalty, bps)
	}
	deduction := new(uint256.Int).Mul(uint256.NewInt(reward), uint256.NewInt(bps))
	deduction.Div(deduction, uint256.NewInt(BasisPoints))
	penalty := deduction.Uint64()
	return reward - penalty, penalty, nil
}

// Project estimates the reward a position has accrued so far without
// enforcing the lock period. Under the after_lock basis the lock window is
// excluded, matching what settlement credits. It never fails; overflow
// saturates.
func Project(basis RewardBasis, stakedAt, now int64, rate, minLock uint64) uint64 {
	if now <= stakedAt {
		return 0
	}
	elapsed := uint64(now - stakedAt)
	if basis == RewardBasisAfterLock {
		if elapsed < minLock {
			return 0
		}
		elapsed -= minLock
	}
	days := elapsed / SecondsPerDay
	reward, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(days), uint256.NewInt(rate))
	if overflow || !reward.IsUint64() {
		return ^uint64(0)
	}
	return reward.Uint64()
}
