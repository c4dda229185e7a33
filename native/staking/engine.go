package staking

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"nftstake/core/events"
	"nftstake/crypto"
	"nftstake/native/common"
)

// Engine implements the staking ledger: positions, accounts, reward
// settlement and governance. Every mutating call holds the reentrancy guard
// for its whole duration and applies its writes through one batch, so a
// failed call leaves no trace and emits nothing.
type Engine struct {
	state   Backend
	custody Custody
	emitter events.Emitter
	pauses  common.PauseView
	logger  *slog.Logger
	params  Params
	guard   common.ReentrancyGuard
}

// NewEngine constructs an engine with the supplied parameters.
func NewEngine(params Params) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		params:  params,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state Backend) { e.state = state }

// SetCustody configures the custody collaborator.
func (e *Engine) SetCustody(c Custody) { e.custody = c }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the operator module pause switches.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetLogger configures the logger used for rejected admin calls.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	e.logger = logger.With("module", ModuleName)
}

// Params returns the static engine settings.
func (e *Engine) Params() Params { return e.params }

// Busy reports whether a mutating call is in flight.
func (e *Engine) Busy() bool { return e.guard.Held() }

// txn is the working set of one mutating call.
type txn struct {
	Batch
	call     Call
	gov      *Governance
	govDirty bool
	records  []*events.Record
}

func (t *txn) touchGovernance() { t.govDirty = true }

func (t *txn) record(rec *events.Record) { t.records = append(t.records, rec) }

func loadGovernance(view View, params Params) (*Governance, error) {
	gov, ok, err := view.StakingGovernanceGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return params.initialGovernance(), nil
	}
	if gov.Owner == nil {
		gov.Owner = Uninitialized{}
	}
	return gov, nil
}

// mutate runs fn inside the guard with a fresh batch. pauseGated calls are
// additionally subject to the operator pause switch.
func (e *Engine) mutate(call Call, pauseGated bool, fn func(tx *txn) error) error {
	release, err := e.guard.Acquire()
	if err != nil {
		return err
	}
	defer release()

	if e.state == nil {
		return errNilState
	}
	if e.custody == nil {
		return errNilCustody
	}
	if pauseGated {
		if err := common.Guard(e.pauses, ModuleName); err != nil {
			return err
		}
	}
	tx := &txn{Batch: e.state.Begin(), call: call}
	tx.gov, err = loadGovernance(tx.Batch, e.params)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.govDirty {
		if err := tx.StakingGovernancePut(tx.gov); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("staking: commit: %w", err)
	}
	for _, rec := range tx.records {
		e.emitter.Emit(rec)
	}
	return nil
}

func requireActive(gov *Governance) error {
	if gov.Paused {
		return ErrContractPaused
	}
	return nil
}

func (e *Engine) verifyAttached(call Call, count int) error {
	if !e.params.VerifyAttachedValue {
		return nil
	}
	if call.AttachedAsset != e.params.StakeAsset {
		return fmt.Errorf("%w: asset %q, want %q", ErrAmountMismatch, call.AttachedAsset, e.params.StakeAsset)
	}
	if call.AttachedAmount != uint64(count) {
		return fmt.Errorf("%w: attached %d, want %d", ErrAmountMismatch, call.AttachedAmount, count)
	}
	return nil
}

func (e *Engine) checkBatch(ids []PositionID) error {
	if len(ids) == 0 {
		return ErrEmptyBatch
	}
	if len(ids) > e.params.MaxBatchSize {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(ids), e.params.MaxBatchSize)
	}
	seen := make(map[PositionID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicatePosition, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Stake deposits one item into custody and opens a position for the caller.
func (e *Engine) Stake(call Call, id PositionID) (*Position, error) {
	var pos *Position
	err := e.mutate(call, true, func(tx *txn) error {
		if err := requireActive(tx.gov); err != nil {
			return err
		}
		if err := e.verifyAttached(call, 1); err != nil {
			return err
		}
		var err error
		pos, err = e.stakeOne(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// BatchStake stakes every id in order. Any failure aborts the whole batch.
func (e *Engine) BatchStake(call Call, ids []PositionID) ([]*Position, error) {
	var out []*Position
	err := e.mutate(call, true, func(tx *txn) error {
		if err := requireActive(tx.gov); err != nil {
			return err
		}
		if err := e.checkBatch(ids); err != nil {
			return err
		}
		if err := e.verifyAttached(call, len(ids)); err != nil {
			return err
		}
		out = make([]*Position, 0, len(ids))
		for _, id := range ids {
			pos, err := e.stakeOne(tx, id)
			if err != nil {
				return fmt.Errorf("stake %s: %w", id, err)
			}
			out = append(out, pos)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) stakeOne(tx *txn, id PositionID) (*Position, error) {
	caller := tx.call.Caller
	if caller == ([20]byte{}) {
		return nil, fmt.Errorf("%w: zero caller", ErrInvalidStaker)
	}
	_, exists, err := tx.StakingPositionGet(id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrPositionExists, id)
	}
	if err := e.custody.Receive(tx, caller, [32]byte(id)); err != nil {
		return nil, err
	}
	acct, err := loadAccount(tx, caller)
	if err != nil {
		return nil, err
	}
	if acct.PositionCount == math.MaxUint64 || tx.gov.TotalStaked == math.MaxUint64 {
		return nil, fmt.Errorf("staking: position counter overflow")
	}
	pos := &Position{ID: id, Owner: caller, StakedAt: tx.call.Now}
	if err := tx.StakingPositionPut(pos); err != nil {
		return nil, err
	}
	acct.PositionCount++
	if err := tx.StakingAccountPut(acct); err != nil {
		return nil, err
	}
	tx.gov.TotalStaked++
	tx.touchGovernance()
	tx.record(StakedEvent(pos))
	return pos.Clone(), nil
}

func loadAccount(view View, owner [20]byte) (*Account, error) {
	acct, ok, err := view.StakingAccountGet(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Account{Owner: owner}, nil
	}
	return acct, nil
}

// Unstake settles the caller's position, returns the item and books the
// reward.
func (e *Engine) Unstake(call Call, id PositionID) (*UnstakeResult, error) {
	var res *UnstakeResult
	err := e.mutate(call, true, func(tx *txn) error {
		if err := requireActive(tx.gov); err != nil {
			return err
		}
		var err error
		res, err = e.unstakeOne(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// BatchUnstake unstakes every id in order. Any failure aborts the whole batch.
func (e *Engine) BatchUnstake(call Call, ids []PositionID) ([]*UnstakeResult, error) {
	var out []*UnstakeResult
	err := e.mutate(call, true, func(tx *txn) error {
		if err := requireActive(tx.gov); err != nil {
			return err
		}
		if err := e.checkBatch(ids); err != nil {
			return err
		}
		out = make([]*UnstakeResult, 0, len(ids))
		for _, id := range ids {
			res, err := e.unstakeOne(tx, id)
			if err != nil {
				return fmt.Errorf("unstake %s: %w", id, err)
			}
			out = append(out, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) unstakeOne(tx *txn, id PositionID) (*UnstakeResult, error) {
	pos, ok, err := tx.StakingPositionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNFTNotFound, id)
	}
	if pos.Owner != tx.call.Caller {
		return nil, ErrNotStaker
	}
	res, err := e.settle(tx.gov, pos, tx.call.Now)
	if err != nil {
		return nil, err
	}
	if err := e.custody.Release(tx, pos.Owner, [32]byte(id)); err != nil {
		return nil, err
	}
	acct, err := loadAccount(tx, pos.Owner)
	if err != nil {
		return nil, err
	}
	if res.Reward > 0 {
		switch e.params.PayoutMode {
		case PayoutImmediate:
			if err := e.payFromReserve(tx, pos.Owner, res.Reward); err != nil {
				return nil, err
			}
			res.PaidOut = true
		default:
			if acct.RewardBalance > math.MaxUint64-res.Reward {
				return nil, fmt.Errorf("%w: account balance", ErrRewardOverflow)
			}
			acct.RewardBalance += res.Reward
		}
	}
	if err := e.removePosition(tx, pos, acct); err != nil {
		return nil, err
	}
	tx.record(UnstakedEvent(tx.call.Now, res))
	return res, nil
}

// settle computes the reward for closing pos at now under gov.
func (e *Engine) settle(gov *Governance, pos *Position, now int64) (*UnstakeResult, error) {
	res := &UnstakeResult{Position: pos.Clone()}
	res.Early = isEarly(pos.StakedAt, now, gov.MinLockPeriod)
	if !res.Early {
		reward, err := accrue(e.params.RewardBasis, pos.StakedAt, now, gov.RewardRate, gov.MinLockPeriod)
		if err != nil {
			return nil, err
		}
		res.Reward = reward
		return res, nil
	}
	if !gov.AllowEarlyUnstake {
		return nil, fmt.Errorf("%w: unlocks at %d", ErrLockPeriodActive, lockEnd(pos.StakedAt, gov.MinLockPeriod))
	}
	gross, err := accrueEarly(e.params.RewardBasis, pos.StakedAt, now, gov.RewardRate)
	if err != nil {
		return nil, err
	}
	res.Reward, res.Penalty, err = ApplyPenalty(gross, gov.EarlyUnstakePenaltyBps)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func lockEnd(stakedAt int64, minLock uint64) int64 {
	if stakedAt >= 0 && minLock > uint64(math.MaxInt64-stakedAt) {
		return math.MaxInt64
	}
	return stakedAt + int64(minLock)
}

func isEarly(stakedAt, now int64, minLock uint64) bool {
	return now < lockEnd(stakedAt, minLock)
}

func (e *Engine) removePosition(tx *txn, pos *Position, acct *Account) error {
	if acct.PositionCount == 0 || tx.gov.TotalStaked == 0 {
		return fmt.Errorf("%w: removing %s", ErrCounterUnderflow, pos.ID)
	}
	if err := tx.StakingPositionDelete(pos); err != nil {
		return err
	}
	acct.PositionCount--
	if err := tx.StakingAccountPut(acct); err != nil {
		return err
	}
	tx.gov.TotalStaked--
	tx.touchGovernance()
	return nil
}

func (e *Engine) payFromReserve(tx *txn, to [20]byte, amount uint64) error {
	reserve, err := e.custody.Reserve(tx)
	if err != nil {
		return err
	}
	if reserve < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientReserve, reserve, amount)
	}
	if err := e.custody.Pay(tx, to, amount); err != nil {
		return err
	}
	dist := &tx.gov.Distribution
	if dist.TotalDistributed > math.MaxUint64-amount {
		return fmt.Errorf("%w: total distributed", ErrRewardOverflow)
	}
	dist.TotalDistributed += amount
	dist.LastDistributionTime = tx.call.Now
	tx.touchGovernance()
	return nil
}

// ClaimRewards pays out the caller's full reward balance.
func (e *Engine) ClaimRewards(call Call) (uint64, error) {
	var amount uint64
	err := e.mutate(call, true, func(tx *txn) error {
		if err := requireActive(tx.gov); err != nil {
			return err
		}
		acct, err := loadAccount(tx, call.Caller)
		if err != nil {
			return err
		}
		if acct.RewardBalance == 0 {
			return ErrNoRewards
		}
		if acct.LastWithdrawal != 0 && call.Now < lockEnd(acct.LastWithdrawal, tx.gov.WithdrawalCooldown) {
			return fmt.Errorf("%w: next claim at %d", ErrWithdrawalTooFrequent, lockEnd(acct.LastWithdrawal, tx.gov.WithdrawalCooldown))
		}
		amount = acct.RewardBalance
		if err := e.payFromReserve(tx, call.Caller, amount); err != nil {
			return err
		}
		acct.RewardBalance = 0
		acct.LastWithdrawal = call.Now
		if err := tx.StakingAccountPut(acct); err != nil {
			return err
		}
		tx.record(RewardClaimedEvent(call.Now, call.Caller, amount))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// DepositRewards moves the attached reward asset into the reserve and returns
// the new reserve balance.
func (e *Engine) DepositRewards(call Call) (uint64, error) {
	var reserve uint64
	err := e.mutate(call, true, func(tx *txn) error {
		if call.AttachedAsset != e.params.RewardAsset {
			return fmt.Errorf("%w: asset %q, want %q", ErrAmountMismatch, call.AttachedAsset, e.params.RewardAsset)
		}
		if call.AttachedAmount == 0 {
			return fmt.Errorf("%w: zero deposit", ErrAmountMismatch)
		}
		if err := e.custody.Fund(tx, call.Caller, call.AttachedAmount); err != nil {
			return err
		}
		var err error
		reserve, err = e.custody.Reserve(tx)
		if err != nil {
			return err
		}
		tx.record(RewardsDepositedEvent(call.Now, call.Caller, call.AttachedAmount, reserve))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reserve, nil
}

// EmergencyWithdraw lets the governance owner return a position's item to
// its recorded owner. Accrued reward for the position is forfeited.
func (e *Engine) EmergencyWithdraw(call Call, id PositionID) (*Position, error) {
	var pos *Position
	err := e.mutate(call, false, func(tx *txn) error {
		if err := e.requireOwner(tx, "emergency_withdraw"); err != nil {
			return err
		}
		var ok bool
		var err error
		pos, ok, err = tx.StakingPositionGet(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrNFTNotFound, id)
		}
		acct, ok, err := tx.StakingAccountGet(pos.Owner)
		if err != nil {
			return err
		}
		if !ok || pos.Owner == ([20]byte{}) {
			return fmt.Errorf("%w: position %s has no account", ErrInvalidStaker, id)
		}
		if err := e.custody.Release(tx, pos.Owner, [32]byte(id)); err != nil {
			return err
		}
		if err := e.removePosition(tx, pos, acct); err != nil {
			return err
		}
		tx.record(EmergencyWithdrawEvent(call.Now, call.Caller, pos))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

func (e *Engine) requireOwner(tx *txn, action string) error {
	owner, ok := OwnerOf(tx.gov.Owner)
	var err error
	switch {
	case !ok:
		err = ErrNotInitialized
	case owner != tx.call.Caller:
		err = ErrNotOwner
	}
	if err != nil {
		e.logger.Warn("rejected admin call",
			slog.String("action", action),
			slog.String("caller", crypto.FormatAddress(tx.call.Caller)),
			slog.String("reason", ErrorCode(err)))
	}
	return err
}
