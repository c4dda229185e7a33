package staking

import "fmt"

// Initialize installs the first governance owner. Any caller may do it, but
// only once.
func (e *Engine) Initialize(call Call, owner [20]byte) error {
	return e.mutate(call, false, func(tx *txn) error {
		if _, ok := OwnerOf(tx.gov.Owner); ok {
			return ErrAlreadyInitialized
		}
		if owner == ([20]byte{}) {
			return fmt.Errorf("%w: zero owner", ErrInvalidOwner)
		}
		tx.gov.Owner = Initialized{Owner: owner}
		tx.touchGovernance()
		tx.record(OwnershipTransferredEvent(call.Now, [20]byte{}, owner))
		return nil
	})
}

// TransferOwnership hands governance to newOwner.
func (e *Engine) TransferOwnership(call Call, newOwner [20]byte) error {
	return e.mutate(call, false, func(tx *txn) error {
		if err := e.requireOwner(tx, "transfer_ownership"); err != nil {
			return err
		}
		if newOwner == ([20]byte{}) {
			return fmt.Errorf("%w: zero owner", ErrInvalidOwner)
		}
		previous, _ := OwnerOf(tx.gov.Owner)
		tx.gov.Owner = Initialized{Owner: newOwner}
		tx.touchGovernance()
		tx.record(OwnershipTransferredEvent(call.Now, previous, newOwner))
		return nil
	})
}

// SetRewardRate updates the per-day reward rate immediately.
func (e *Engine) SetRewardRate(call Call, rate uint64) error {
	return e.mutate(call, false, func(tx *txn) error {
		if err := e.requireOwner(tx, "set_reward_rate"); err != nil {
			return err
		}
		if rate > MaxRewardRate {
			return fmt.Errorf("%w: %d > %d", ErrRewardRateTooHigh, rate, MaxRewardRate)
		}
		previous := tx.gov.RewardRate
		tx.gov.RewardRate = rate
		tx.touchGovernance()
		tx.record(RewardRateUpdatedEvent(call.Now, previous, rate))
		return nil
	})
}

// EmergencyPause blocks staking, unstaking and claiming.
func (e *Engine) EmergencyPause(call Call) error {
	return e.setPaused(call, true)
}

// EmergencyUnpause lifts a pause.
func (e *Engine) EmergencyUnpause(call Call) error {
	return e.setPaused(call, false)
}

func (e *Engine) setPaused(call Call, paused bool) error {
	action := SecurityActionUnpaused
	if paused {
		action = SecurityActionPaused
	}
	return e.mutate(call, false, func(tx *txn) error {
		if err := e.requireOwner(tx, action); err != nil {
			return err
		}
		tx.gov.Paused = paused
		tx.touchGovernance()
		tx.record(SecurityEvent(call.Now, action, call.Caller))
		return nil
	})
}

// ProposeAdminChange queues value for tag, replacing any earlier proposal for
// the same tag.
func (e *Engine) ProposeAdminChange(call Call, tag ChangeTag, value uint64) (*PendingChange, error) {
	var change *PendingChange
	err := e.mutate(call, false, func(tx *txn) error {
		if err := e.requireOwner(tx, "propose_admin_change"); err != nil {
			return err
		}
		parsed, err := ParseChangeTag(string(tag))
		if err != nil {
			return err
		}
		if err := validateChange(parsed, value); err != nil {
			return err
		}
		change = &PendingChange{Tag: parsed, ProposedAt: call.Now, Value: value}
		if err := tx.StakingPendingChangePut(change); err != nil {
			return err
		}
		tx.record(AdminChangeProposedEvent(change))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// ExecuteAdminChange applies and removes the pending proposal for tag.
func (e *Engine) ExecuteAdminChange(call Call, tag ChangeTag) (*PendingChange, error) {
	var change *PendingChange
	err := e.mutate(call, false, func(tx *txn) error {
		if err := e.requireOwner(tx, "execute_admin_change"); err != nil {
			return err
		}
		parsed, err := ParseChangeTag(string(tag))
		if err != nil {
			return err
		}
		var ok bool
		change, ok, err = tx.StakingPendingChangeGet(parsed)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoPendingChange, parsed)
		}
		if timelock := e.params.AdminTimelock; timelock > 0 {
			if ready := lockEnd(change.ProposedAt, timelock); call.Now < ready {
				return fmt.Errorf("%w: executable at %d", ErrTimelockActive, ready)
			}
		}
		if err := validateChange(change.Tag, change.Value); err != nil {
			return err
		}
		previousRate := tx.gov.RewardRate
		applyChange(tx.gov, change)
		tx.touchGovernance()
		if err := tx.StakingPendingChangeDelete(change.Tag); err != nil {
			return err
		}
		tx.record(AdminChangeExecutedEvent(call.Now, change))
		if change.Tag == ChangeRewardRate {
			tx.record(RewardRateUpdatedEvent(call.Now, previousRate, change.Value))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

func validateChange(tag ChangeTag, value uint64) error {
	switch tag {
	case ChangeRewardRate:
		if value > MaxRewardRate {
			return fmt.Errorf("%w: %d > %d", ErrRewardRateTooHigh, value, MaxRewardRate)
		}
	case ChangeEarlyPenaltyBps:
		if value > BasisPoints {
			return fmt.Errorf("%w: %d", ErrInvalidPenalty, value)
		}
	case ChangeAllowEarlyUnstake:
		if value > 1 {
			return fmt.Errorf("%w: %s expects 0 or 1", ErrInvalidChangeValue, tag)
		}
	case ChangeMinLockPeriod, ChangeWithdrawalCooldown:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChangeTag, tag)
	}
	return nil
}

func applyChange(gov *Governance, change *PendingChange) {
	switch change.Tag {
	case ChangeRewardRate:
		gov.RewardRate = change.Value
	case ChangeMinLockPeriod:
		gov.MinLockPeriod = change.Value
	case ChangeWithdrawalCooldown:
		gov.WithdrawalCooldown = change.Value
	case ChangeEarlyPenaltyBps:
		gov.EarlyUnstakePenaltyBps = change.Value
	case ChangeAllowEarlyUnstake:
		gov.AllowEarlyUnstake = change.Value == 1
	}
}
