package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"nftstake/native/staking"
)

// Stored representations keep RLP-friendly unsigned fields; negative
// timestamps are clamped to zero.

func toUnix(ts int64) uint64 {
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

type storedGovernance struct {
	Initialized            bool
	Owner                  [20]byte
	Paused                 bool
	RewardRate             uint64
	MinLockPeriod          uint64
	WithdrawalCooldown     uint64
	AllowEarlyUnstake      bool
	EarlyUnstakePenaltyBps uint64
	TotalDistributed       uint64
	LastDistributionTime   uint64
	TotalStaked            uint64
}

func encodeGovernance(gov *staking.Governance) ([]byte, error) {
	if gov == nil {
		return nil, fmt.Errorf("state: nil governance")
	}
	stored := storedGovernance{
		Paused:                 gov.Paused,
		RewardRate:             gov.RewardRate,
		MinLockPeriod:          gov.MinLockPeriod,
		WithdrawalCooldown:     gov.WithdrawalCooldown,
		AllowEarlyUnstake:      gov.AllowEarlyUnstake,
		EarlyUnstakePenaltyBps: gov.EarlyUnstakePenaltyBps,
		TotalDistributed:       gov.Distribution.TotalDistributed,
		LastDistributionTime:   toUnix(gov.Distribution.LastDistributionTime),
		TotalStaked:            gov.TotalStaked,
	}
	stored.Owner, stored.Initialized = staking.OwnerOf(gov.Owner)
	return rlp.EncodeToBytes(&stored)
}

func decodeGovernance(data []byte) (*staking.Governance, error) {
	var stored storedGovernance
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode governance: %w", err)
	}
	gov := &staking.Governance{
		Owner:                  staking.Uninitialized{},
		Paused:                 stored.Paused,
		RewardRate:             stored.RewardRate,
		MinLockPeriod:          stored.MinLockPeriod,
		WithdrawalCooldown:     stored.WithdrawalCooldown,
		AllowEarlyUnstake:      stored.AllowEarlyUnstake,
		EarlyUnstakePenaltyBps: stored.EarlyUnstakePenaltyBps,
		Distribution: staking.Distribution{
			TotalDistributed:     stored.TotalDistributed,
			LastDistributionTime: int64(stored.LastDistributionTime),
		},
		TotalStaked: stored.TotalStaked,
	}
	if stored.Initialized {
		gov.Owner = staking.Initialized{Owner: stored.Owner}
	}
	return gov, nil
}

type storedPosition struct {
	Owner    [20]byte
	StakedAt uint64
}

func encodePosition(pos *staking.Position) ([]byte, error) {
	return rlp.EncodeToBytes(&storedPosition{Owner: pos.Owner, StakedAt: toUnix(pos.StakedAt)})
}

func decodePosition(id staking.PositionID, data []byte) (*staking.Position, error) {
	var stored storedPosition
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode position %s: %w", id, err)
	}
	return &staking.Position{ID: id, Owner: stored.Owner, StakedAt: int64(stored.StakedAt)}, nil
}

type storedAccount struct {
	PositionCount  uint64
	RewardBalance  uint64
	LastWithdrawal uint64
}

func encodeAccount(acct *staking.Account) ([]byte, error) {
	return rlp.EncodeToBytes(&storedAccount{
		PositionCount:  acct.PositionCount,
		RewardBalance:  acct.RewardBalance,
		LastWithdrawal: toUnix(acct.LastWithdrawal),
	})
}

func decodeAccount(owner [20]byte, data []byte) (*staking.Account, error) {
	var stored storedAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account %x: %w", owner, err)
	}
	return &staking.Account{
		Owner:          owner,
		PositionCount:  stored.PositionCount,
		RewardBalance:  stored.RewardBalance,
		LastWithdrawal: int64(stored.LastWithdrawal),
	}, nil
}

type storedPendingChange struct {
	ProposedAt uint64
	Value      uint64
}

func encodePendingChange(change *staking.PendingChange) ([]byte, error) {
	return rlp.EncodeToBytes(&storedPendingChange{ProposedAt: toUnix(change.ProposedAt), Value: change.Value})
}

func decodePendingChange(tag staking.ChangeTag, data []byte) (*staking.PendingChange, error) {
	var stored storedPendingChange
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode pending change %s: %w", tag, err)
	}
	return &staking.PendingChange{Tag: tag, ProposedAt: int64(stored.ProposedAt), Value: stored.Value}, nil
}

func encodeBalance(amount uint64) ([]byte, error) { return rlp.EncodeToBytes(amount) }

func decodeBalance(data []byte) (uint64, error) {
	var amount uint64
	if err := rlp.DecodeBytes(data, &amount); err != nil {
		return 0, fmt.Errorf("state: decode balance: %w", err)
	}
	return amount, nil
}
