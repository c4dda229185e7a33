package staking

import "fmt"

// PayoutMode selects what happens to the reward settled by an unstake.
type PayoutMode string

const (
	// PayoutCredit adds the reward to the account balance for a later claim.
	PayoutCredit PayoutMode = "credit"
	// PayoutImmediate pays the reward from the reserve during the unstake.
	PayoutImmediate PayoutMode = "immediate"
)

// DefaultMaxBatchSize bounds batch stake and unstake requests.
const DefaultMaxBatchSize = 100

// Params are the static engine settings. The governance fields seed the
// admin state until the first governance write persists it.
type Params struct {
	StakeAsset          string
	RewardAsset         string
	VerifyAttachedValue bool
	MaxBatchSize        int
	PayoutMode          PayoutMode
	RewardBasis         RewardBasis
	// AdminTimelock is the minimum delay in seconds between proposing and
	// executing an admin change. Zero disables it.
	AdminTimelock uint64

	RewardRate             uint64
	MinLockPeriod          uint64
	WithdrawalCooldown     uint64
	AllowEarlyUnstake      bool
	EarlyUnstakePenaltyBps uint64
}

// DefaultParams returns the stock configuration.
func DefaultParams() Params {
	return Params{
		StakeAsset:             "nft",
		RewardAsset:            "reward",
		VerifyAttachedValue:    true,
		MaxBatchSize:           DefaultMaxBatchSize,
		PayoutMode:             PayoutCredit,
		RewardBasis:            RewardBasisSinceStake,
		RewardRate:             0,
		MinLockPeriod:          SecondsPerDay,
		WithdrawalCooldown:     SecondsPerDay,
		AllowEarlyUnstake:      false,
		EarlyUnstakePenaltyBps: 1000,
	}
}

// Validate checks the parameters for consistency.
func (p Params) Validate() error {
	if p.StakeAsset == "" || p.RewardAsset == "" {
		return fmt.Errorf("staking: stake and reward assets must be set")
	}
	if p.StakeAsset == p.RewardAsset {
		return fmt.Errorf("staking: stake asset and reward asset must differ")
	}
	if p.MaxBatchSize <= 0 {
		return fmt.Errorf("staking: max batch size must be positive")
	}
	switch p.PayoutMode {
	case PayoutCredit, PayoutImmediate:
	default:
		return fmt.Errorf("staking: unknown payout mode %q", p.PayoutMode)
	}
	if !p.RewardBasis.Valid() {
		return fmt.Errorf("staking: unknown reward basis %q", p.RewardBasis)
	}
	if p.RewardRate > MaxRewardRate {
		return fmt.Errorf("%w: %d > %d", ErrRewardRateTooHigh, p.RewardRate, MaxRewardRate)
	}
	if p.EarlyUnstakePenaltyBps > BasisPoints {
		return fmt.Errorf("%w: %d", ErrInvalidPenalty, p.EarlyUnstakePenaltyBps)
	}
	return nil
}

func (p Params) initialGovernance() *Governance {
	return &Governance{
		Owner:                  Uninitialized{},
		RewardRate:             p.RewardRate,
		MinLockPeriod:          p.MinLockPeriod,
		WithdrawalCooldown:     p.WithdrawalCooldown,
		AllowEarlyUnstake:      p.AllowEarlyUnstake,
		EarlyUnstakePenaltyBps: p.EarlyUnstakePenaltyBps,
	}
}
