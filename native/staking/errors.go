package staking

import (
	"errors"

	"nftstake/native/common"
	"nftstake/native/custody"
)

var (
	ErrNotOwner              = errors.New("staking: caller is not the governance owner")
	ErrNotStaker             = errors.New("staking: caller is not the position owner")
	ErrContractPaused        = errors.New("staking: ledger paused")
	ErrAmountMismatch        = errors.New("staking: attached value does not match request")
	ErrInvalidTimeRange      = errors.New("staking: invalid time range")
	ErrLockPeriodNotMet      = errors.New("staking: lock period not met")
	ErrLockPeriodActive      = errors.New("staking: lock period active")
	ErrRewardExceedsMaxRate  = errors.New("staking: reward exceeds max rate")
	ErrRewardRateTooHigh     = errors.New("staking: reward rate too high")
	ErrNoRewards             = errors.New("staking: no rewards")
	ErrWithdrawalTooFrequent = errors.New("staking: withdrawal too frequent")
	ErrAlreadyInitialized    = errors.New("staking: already initialized")
	ErrNotInitialized        = errors.New("staking: not initialized")
	ErrNFTNotFound           = errors.New("staking: position not found")
	ErrInvalidStaker         = errors.New("staking: invalid staker")
	ErrInvalidOwner          = errors.New("staking: invalid owner")
	ErrNoPendingChange       = errors.New("staking: no pending change")
	ErrUnknownChangeTag      = errors.New("staking: unknown change tag")
	ErrInvalidChangeValue    = errors.New("staking: invalid change value")
	ErrTimelockActive        = errors.New("staking: admin timelock active")
	ErrInvalidPenalty        = errors.New("staking: penalty exceeds 10000 bps")
	ErrEmptyBatch            = errors.New("staking: empty batch")
	ErrBatchTooLarge         = errors.New("staking: batch too large")
	ErrDuplicatePosition     = errors.New("staking: duplicate position in batch")
	ErrPositionExists        = errors.New("staking: position already staked")
	ErrInsufficientReserve   = errors.New("staking: reward reserve insufficient")
	ErrRewardOverflow        = errors.New("staking: reward overflow")
	ErrCounterUnderflow      = errors.New("staking: counter underflow")
	ErrInvariantViolated     = errors.New("staking: invariant violated")

	// ErrReentrancyDetected is returned when a mutating call arrives while
	// another one is still in flight.
	ErrReentrancyDetected = common.ErrReentrancyDetected

	errNilState   = errors.New("staking: state not configured")
	errNilCustody = errors.New("staking: custody not configured")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotOwner, "NotOwner"},
	{ErrNotStaker, "NotStaker"},
	{ErrContractPaused, "ContractPaused"},
	{common.ErrModulePaused, "ModulePaused"},
	{ErrAmountMismatch, "AmountMismatch"},
	{ErrInvalidTimeRange, "InvalidTimeRange"},
	{ErrLockPeriodNotMet, "LockPeriodNotMet"},
	{ErrLockPeriodActive, "LockPeriodActive"},
	{ErrRewardExceedsMaxRate, "RewardExceedsMaxRate"},
	{ErrRewardRateTooHigh, "RewardRateTooHigh"},
	{ErrReentrancyDetected, "ReentrancyDetected"},
	{ErrNoRewards, "NoRewards"},
	{ErrWithdrawalTooFrequent, "WithdrawalTooFrequent"},
	{ErrAlreadyInitialized, "AlreadyInitialized"},
	{ErrNotInitialized, "NotInitialized"},
	{ErrNFTNotFound, "NFTNotFound"},
	{ErrInvalidStaker, "InvalidStaker"},
	{ErrInvalidOwner, "InvalidOwner"},
	{ErrNoPendingChange, "NoPendingChange"},
	{ErrUnknownChangeTag, "UnknownChangeTag"},
	{ErrInvalidChangeValue, "InvalidChangeValue"},
	{ErrTimelockActive, "TimelockActive"},
	{ErrInvalidPenalty, "InvalidPenalty"},
	{ErrEmptyBatch, "EmptyBatch"},
	{ErrBatchTooLarge, "BatchTooLarge"},
	{ErrDuplicatePosition, "DuplicatePosition"},
	{ErrPositionExists, "PositionExists"},
	{ErrInsufficientReserve, "InsufficientReserve"},
	{ErrRewardOverflow, "RewardOverflow"},
	{ErrCounterUnderflow, "CounterUnderflow"},
	{ErrInvariantViolated, "InvariantViolated"},
	{custody.ErrUnknownItem, "InvalidItem"},
	{custody.ErrItemNotHeld, "ItemNotHeld"},
	{custody.ErrItemNotInCustody, "ItemNotInCustody"},
	{custody.ErrInsufficientBalance, "InsufficientBalance"},
	{custody.ErrBalanceOverflow, "BalanceOverflow"},
}

// ErrorCode maps an engine error to its stable kind name. Unknown errors map
// to "Internal".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "Internal"
}
