package staking

import (
	"fmt"
	"math"
)

// Queries read committed state only and never take the reentrancy guard.

func (e *Engine) view() (View, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state, nil
}

// Governance returns a copy of the admin state.
func (e *Engine) Governance() (*Governance, error) {
	view, err := e.view()
	if err != nil {
		return nil, err
	}
	return loadGovernance(view, e.params)
}

// Position returns the live position for id.
func (e *Engine) Position(id PositionID) (*Position, error) {
	view, err := e.view()
	if err != nil {
		return nil, err
	}
	pos, ok, err := view.StakingPositionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNFTNotFound, id)
	}
	return pos, nil
}

// AccountInfo returns the account of owner together with its live position
// ids. Unknown identities yield an empty account.
func (e *Engine) AccountInfo(owner [20]byte) (*AccountInfo, error) {
	view, err := e.view()
	if err != nil {
		return nil, err
	}
	acct, err := loadAccount(view, owner)
	if err != nil {
		return nil, err
	}
	ids, err := view.StakingOwnerPositions(owner)
	if err != nil {
		return nil, err
	}
	return &AccountInfo{Account: *acct, Positions: ids}, nil
}

// PendingRewards returns the claimable balance of owner plus the reward its
// live positions would have accrued by now under the configured reward basis,
// without enforcing lock periods.
func (e *Engine) PendingRewards(owner [20]byte, now int64) (uint64, error) {
	view, err := e.view()
	if err != nil {
		return 0, err
	}
	gov, err := loadGovernance(view, e.params)
	if err != nil {
		return 0, err
	}
	acct, err := loadAccount(view, owner)
	if err != nil {
		return 0, err
	}
	ids, err := view.StakingOwnerPositions(owner)
	if err != nil {
		return 0, err
	}
	total := acct.RewardBalance
	for _, id := range ids {
		pos, ok, err := view.StakingPositionGet(id)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		projected := Project(e.params.RewardBasis, pos.StakedAt, now, gov.RewardRate, gov.MinLockPeriod)
		if total > math.MaxUint64-projected {
			return math.MaxUint64, nil
		}
		total += projected
	}
	return total, nil
}

// TotalStaked returns the number of live positions.
func (e *Engine) TotalStaked() (uint64, error) {
	gov, err := e.Governance()
	if err != nil {
		return 0, err
	}
	return gov.TotalStaked, nil
}

// RewardRate returns the current reward units per position per day.
func (e *Engine) RewardRate() (uint64, error) {
	gov, err := e.Governance()
	if err != nil {
		return 0, err
	}
	return gov.RewardRate, nil
}

// IsPaused reports the governance pause flag.
func (e *Engine) IsPaused() (bool, error) {
	gov, err := e.Governance()
	if err != nil {
		return false, err
	}
	return gov.Paused, nil
}

// TotalDistributed returns the reward paid out over the ledger's lifetime.
func (e *Engine) TotalDistributed() (uint64, error) {
	gov, err := e.Governance()
	if err != nil {
		return 0, err
	}
	return gov.Distribution.TotalDistributed, nil
}

// LastDistributionTime returns the time of the most recent payout.
func (e *Engine) LastDistributionTime() (int64, error) {
	gov, err := e.Governance()
	if err != nil {
		return 0, err
	}
	return gov.Distribution.LastDistributionTime, nil
}

// PendingChange returns the queued proposal for tag.
func (e *Engine) PendingChange(tag ChangeTag) (*PendingChange, error) {
	view, err := e.view()
	if err != nil {
		return nil, err
	}
	parsed, err := ParseChangeTag(string(tag))
	if err != nil {
		return nil, err
	}
	change, ok, err := view.StakingPendingChangeGet(parsed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPendingChange, parsed)
	}
	return change, nil
}

// PendingChanges lists every queued proposal.
func (e *Engine) PendingChanges() ([]*PendingChange, error) {
	view, err := e.view()
	if err != nil {
		return nil, err
	}
	return view.StakingPendingChanges()
}

// RewardReserve returns the reward asset available for payouts.
func (e *Engine) RewardReserve() (uint64, error) {
	view, err := e.view()
	if err != nil {
		return 0, err
	}
	if e.custody == nil {
		return 0, errNilCustody
	}
	return e.custody.Reserve(view)
}
