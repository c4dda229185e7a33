package staking

import (
	"strconv"

	"nftstake/core/events"
	"nftstake/crypto"
)

const (
	// EventTypeStaked is emitted when an item enters custody.
	EventTypeStaked = "staking.staked"
	// EventTypeUnstaked is emitted when a position is settled by its owner.
	EventTypeUnstaked = "staking.unstaked"
	// EventTypeRewardClaimed is emitted when an account withdraws its balance.
	EventTypeRewardClaimed = "staking.reward.claimed"
	// EventTypeRewardsDeposited is emitted when the reward reserve is funded.
	EventTypeRewardsDeposited = "staking.rewards.deposited"
	// EventTypeOwnershipTransferred is emitted when governance ownership changes.
	EventTypeOwnershipTransferred = "staking.ownership.transferred"
	// EventTypeRewardRateUpdated is emitted when the reward rate changes.
	EventTypeRewardRateUpdated = "staking.reward_rate.updated"
	// EventTypeAdminChangeProposed is emitted when a parameter change is queued.
	EventTypeAdminChangeProposed = "staking.admin.proposed"
	// EventTypeAdminChangeExecuted is emitted when a queued change is applied.
	EventTypeAdminChangeExecuted = "staking.admin.executed"
	// EventTypeSecurity covers pause toggles and emergency withdrawals.
	EventTypeSecurity = "staking.security"
)

const (
	SecurityActionPaused            = "paused"
	SecurityActionUnpaused          = "unpaused"
	SecurityActionEmergencyWithdraw = "emergency_withdraw"
)

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func newRecord(eventType string, now int64, attrs map[string]string) *events.Record {
	return &events.Record{Type: eventType, Time: now, Attributes: attrs}
}

// StakedEvent describes a new position.
func StakedEvent(pos *Position) *events.Record {
	return newRecord(EventTypeStaked, pos.StakedAt, map[string]string{
		"id":       pos.ID.Hex(),
		"owner":    crypto.FormatAddress(pos.Owner),
		"stakedAt": strconv.FormatInt(pos.StakedAt, 10),
	})
}

// UnstakedEvent describes a settled position.
func UnstakedEvent(now int64, res *UnstakeResult) *events.Record {
	return newRecord(EventTypeUnstaked, now, map[string]string{
		"id":      res.Position.ID.Hex(),
		"owner":   crypto.FormatAddress(res.Position.Owner),
		"reward":  u64(res.Reward),
		"penalty": u64(res.Penalty),
		"early":   strconv.FormatBool(res.Early),
		"paidOut": strconv.FormatBool(res.PaidOut),
	})
}

// RewardClaimedEvent describes a reward withdrawal.
func RewardClaimedEvent(now int64, owner [20]byte, amount uint64) *events.Record {
	return newRecord(EventTypeRewardClaimed, now, map[string]string{
		"owner":  crypto.FormatAddress(owner),
		"amount": u64(amount),
	})
}

// RewardsDepositedEvent describes a reserve top-up.
func RewardsDepositedEvent(now int64, from [20]byte, amount, reserve uint64) *events.Record {
	return newRecord(EventTypeRewardsDeposited, now, map[string]string{
		"from":    crypto.FormatAddress(from),
		"amount":  u64(amount),
		"reserve": u64(reserve),
	})
}

// OwnershipTransferredEvent records an ownership change. The first transfer
// comes from the zero identity.
func OwnershipTransferredEvent(now int64, previous, next [20]byte) *events.Record {
	return newRecord(EventTypeOwnershipTransferred, now, map[string]string{
		"previousOwner": crypto.FormatAddress(previous),
		"newOwner":      crypto.FormatAddress(next),
	})
}

// RewardRateUpdatedEvent records a rate change.
func RewardRateUpdatedEvent(now int64, previous, rate uint64) *events.Record {
	return newRecord(EventTypeRewardRateUpdated, now, map[string]string{
		"previousRate": u64(previous),
		"rate":         u64(rate),
	})
}

// AdminChangeProposedEvent records a queued change.
func AdminChangeProposedEvent(change *PendingChange) *events.Record {
	return newRecord(EventTypeAdminChangeProposed, change.ProposedAt, map[string]string{
		"tag":        string(change.Tag),
		"value":      u64(change.Value),
		"proposedAt": strconv.FormatInt(change.ProposedAt, 10),
	})
}

// AdminChangeExecutedEvent records an applied change.
func AdminChangeExecutedEvent(now int64, change *PendingChange) *events.Record {
	return newRecord(EventTypeAdminChangeExecuted, now, map[string]string{
		"tag":        string(change.Tag),
		"value":      u64(change.Value),
		"proposedAt": strconv.FormatInt(change.ProposedAt, 10),
	})
}

// SecurityEvent records a pause toggle.
func SecurityEvent(now int64, action string, actor [20]byte) *events.Record {
	return newRecord(EventTypeSecurity, now, map[string]string{
		"action": action,
		"actor":  crypto.FormatAddress(actor),
	})
}

// EmergencyWithdrawEvent records an admin recovery of a position.
func EmergencyWithdrawEvent(now int64, actor [20]byte, pos *Position) *events.Record {
	return newRecord(EventTypeSecurity, now, map[string]string{
		"action": SecurityActionEmergencyWithdraw,
		"actor":  crypto.FormatAddress(actor),
		"id":     pos.ID.Hex(),
		"owner":  crypto.FormatAddress(pos.Owner),
	})
}
