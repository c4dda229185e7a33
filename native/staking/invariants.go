package staking

import "fmt"

// CheckInvariants verifies the ledger's bookkeeping against its stored
// positions:
//   - every account's position count matches the positions it owns
//   - the total staked counter matches the number of positions
//   - every position belongs to a non-zero owner with an account
//   - the reward rate is within bounds
//   - no mutating call is in flight
func (e *Engine) CheckInvariants() error {
	view, err := e.view()
	if err != nil {
		return err
	}
	if e.guard.Held() {
		return fmt.Errorf("%w: reentrancy guard held at rest", ErrInvariantViolated)
	}
	gov, err := loadGovernance(view, e.params)
	if err != nil {
		return err
	}
	owned := make(map[[20]byte]uint64)
	var live uint64
	err = view.StakingPositionsIterate(func(pos *Position) error {
		if pos.Owner == ([20]byte{}) {
			return fmt.Errorf("%w: position %s has zero owner", ErrInvariantViolated, pos.ID)
		}
		owned[pos.Owner]++
		live++
		return nil
	})
	if err != nil {
		return err
	}
	var counted uint64
	err = view.StakingAccountsIterate(func(acct *Account) error {
		if acct.PositionCount != owned[acct.Owner] {
			return fmt.Errorf("%w: account %x counts %d positions, owns %d",
				ErrInvariantViolated, acct.Owner, acct.PositionCount, owned[acct.Owner])
		}
		delete(owned, acct.Owner)
		counted += acct.PositionCount
		return nil
	})
	if err != nil {
		return err
	}
	if len(owned) > 0 {
		return fmt.Errorf("%w: %d owners hold positions without an account", ErrInvariantViolated, len(owned))
	}
	if counted != live {
		return fmt.Errorf("%w: account counts sum to %d, %d positions live", ErrInvariantViolated, counted, live)
	}
	if gov.TotalStaked != live {
		return fmt.Errorf("%w: total staked %d, %d positions live", ErrInvariantViolated, gov.TotalStaked, live)
	}
	if gov.RewardRate > MaxRewardRate {
		return fmt.Errorf("%w: reward rate %d above %d", ErrInvariantViolated, gov.RewardRate, MaxRewardRate)
	}
	return nil
}
