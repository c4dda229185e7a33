package staking

import (
	"errors"
	"math"
	"testing"
)

func TestAccrue(t *testing.T) {
	cases := []struct {
		name     string
		stakedAt int64
		now      int64
		rate     uint64
		minLock  uint64
		want     uint64
		err      error
	}{
		{name: "same instant", stakedAt: 100, now: 100, rate: 10, err: ErrInvalidTimeRange},
		{name: "clock behind", stakedAt: 100, now: 50, rate: 10, err: ErrInvalidTimeRange},
		{name: "lock not met", stakedAt: 0, now: 6 * day, rate: 10, minLock: uint64(7 * day), err: ErrLockPeriodNotMet},
		{name: "partial day floors", stakedAt: 0, now: day - 1, rate: 10, want: 0},
		{name: "whole days", stakedAt: 0, now: 8*day + 3600, rate: 10, minLock: uint64(7 * day), want: 80},
		{name: "lock boundary", stakedAt: 0, now: 7 * day, rate: 10, minLock: uint64(7 * day), want: 70},
		{name: "rate above bound", stakedAt: 0, now: 2 * day, rate: MaxRewardRate + 1, err: ErrRewardExceedsMaxRate},
		{name: "overflow", stakedAt: 0, now: math.MaxInt64, rate: math.MaxUint64, err: ErrRewardOverflow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Accrue(tc.stakedAt, tc.now, tc.rate, tc.minLock)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("reward = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestAccrueAfterLockBasis(t *testing.T) {
	reward, err := accrue(RewardBasisAfterLock, 0, 8*day, 10, uint64(7*day))
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if reward != 10 {
		t.Fatalf("expected one post-lock day of reward, got %d", reward)
	}
}

func TestAccrueEarlySkipsLock(t *testing.T) {
	reward, err := accrueEarly(RewardBasisSinceStake, 0, 3*day, 10)
	if err != nil || reward != 30 {
		t.Fatalf("expected 30, got %d err=%v", reward, err)
	}
	reward, err = accrueEarly(RewardBasisSinceStake, 5, 5, 10)
	if err != nil || reward != 0 {
		t.Fatalf("expected zero reward for zero elapsed time, got %d err=%v", reward, err)
	}
	if _, err := accrueEarly(RewardBasisSinceStake, 5, 4, 10); !errors.Is(err, ErrInvalidTimeRange) {
		t.Fatalf("expected ErrInvalidTimeRange, got %v", err)
	}
	reward, err = accrueEarly(RewardBasisAfterLock, 0, 6*day, 10)
	if err != nil || reward != 0 {
		t.Fatalf("expected no reward before the lock ends under after_lock, got %d err=%v", reward, err)
	}
}

func TestApplyPenalty(t *testing.T) {
	net, penalty, err := ApplyPenalty(30, 5000)
	if err != nil || net != 15 || penalty != 15 {
		t.Fatalf("expected 15/15, got %d/%d err=%v", net, penalty, err)
	}
	net, penalty, err = ApplyPenalty(7, 1000)
	if err != nil || net != 7 || penalty != 0 {
		t.Fatalf("expected floor division to deduct nothing, got %d/%d err=%v", net, penalty, err)
	}
	net, _, err = ApplyPenalty(math.MaxUint64, BasisPoints)
	if err != nil || net != 0 {
		t.Fatalf("expected full penalty to zero the reward, got %d err=%v", net, err)
	}
	if _, _, err := ApplyPenalty(10, BasisPoints+1); !errors.Is(err, ErrInvalidPenalty) {
		t.Fatalf("expected ErrInvalidPenalty, got %v", err)
	}
}

func TestProjectIgnoresLockAndSaturates(t *testing.T) {
	if got := Project(RewardBasisSinceStake, 0, 2*day, 10, uint64(7*day)); got != 20 {
		t.Fatalf("expected 20, got %d", got)
	}
	if got := Project(RewardBasisSinceStake, 10, 5, 10, 0); got != 0 {
		t.Fatalf("expected 0 for inverted range, got %d", got)
	}
	if got := Project(RewardBasisSinceStake, 0, math.MaxInt64, math.MaxUint64, 0); got != math.MaxUint64 {
		t.Fatalf("expected saturation, got %d", got)
	}
}

func TestProjectAfterLockExcludesLockWindow(t *testing.T) {
	lock := uint64(7 * day)
	if got := Project(RewardBasisAfterLock, 0, 6*day, 10, lock); got != 0 {
		t.Fatalf("expected 0 inside the lock, got %d", got)
	}
	if got := Project(RewardBasisAfterLock, 0, 8*day, 10, lock); got != 10 {
		t.Fatalf("expected one post-lock day, got %d", got)
	}
}
