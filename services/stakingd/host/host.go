package host

import (
	"log/slog"
	"sync"
	"time"

	"nftstake/crypto"
	"nftstake/native/staking"
)

// Attached is the value a request carries into the ledger.
type Attached struct {
	Asset  string
	Amount uint64
}

// Host is the execution environment of the ledger engine. Mutating calls are
// serialised behind the write lock; queries share the read lock.
type Host struct {
	mu     sync.RWMutex
	engine *staking.Engine
	clock  func() time.Time
	logger *slog.Logger
}

type Option func(*Host)

// WithClock overrides the wall clock. Tests pin it.
func WithClock(clock func() time.Time) Option {
	return func(h *Host) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func New(engine *staking.Engine, opts ...Option) *Host {
	h := &Host{engine: engine, clock: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Now returns the host clock in unix seconds.
func (h *Host) Now() int64 { return h.clock().Unix() }

func (h *Host) call(caller crypto.Address, att Attached) staking.Call {
	return staking.Call{
		Caller:         caller,
		Now:            h.Now(),
		AttachedAsset:  att.Asset,
		AttachedAmount: att.Amount,
	}
}

// exec runs one mutating call under the write lock.
func (h *Host) exec(op string, caller crypto.Address, fn func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := fn(); err != nil {
		h.logger.Debug("call rejected", "method", op, "caller", caller.String(), "code", staking.ErrorCode(err))
		return err
	}
	return nil
}

// Read runs fn under the read lock with the current host time.
func (h *Host) Read(fn func(e *staking.Engine, now int64) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fn(h.engine, h.Now())
}

func (h *Host) Stake(caller crypto.Address, att Attached, id staking.PositionID) (pos *staking.Position, err error) {
	err = h.exec("stake", caller, func() error {
		pos, err = h.engine.Stake(h.call(caller, att), id)
		return err
	})
	return pos, err
}

func (h *Host) BatchStake(caller crypto.Address, att Attached, ids []staking.PositionID) (out []*staking.Position, err error) {
	err = h.exec("batch_stake", caller, func() error {
		out, err = h.engine.BatchStake(h.call(caller, att), ids)
		return err
	})
	return out, err
}

func (h *Host) Unstake(caller crypto.Address, id staking.PositionID) (res *staking.UnstakeResult, err error) {
	err = h.exec("unstake", caller, func() error {
		res, err = h.engine.Unstake(h.call(caller, Attached{}), id)
		return err
	})
	return res, err
}

func (h *Host) BatchUnstake(caller crypto.Address, ids []staking.PositionID) (out []*staking.UnstakeResult, err error) {
	err = h.exec("batch_unstake", caller, func() error {
		out, err = h.engine.BatchUnstake(h.call(caller, Attached{}), ids)
		return err
	})
	return out, err
}

func (h *Host) ClaimRewards(caller crypto.Address) (amount uint64, err error) {
	err = h.exec("claim", caller, func() error {
		amount, err = h.engine.ClaimRewards(h.call(caller, Attached{}))
		return err
	})
	return amount, err
}

func (h *Host) DepositRewards(caller crypto.Address, att Attached) (reserve uint64, err error) {
	err = h.exec("deposit", caller, func() error {
		reserve, err = h.engine.DepositRewards(h.call(caller, att))
		return err
	})
	return reserve, err
}

func (h *Host) EmergencyWithdraw(caller crypto.Address, id staking.PositionID) (pos *staking.Position, err error) {
	err = h.exec("emergency_withdraw", caller, func() error {
		pos, err = h.engine.EmergencyWithdraw(h.call(caller, Attached{}), id)
		return err
	})
	return pos, err
}

func (h *Host) Initialize(caller, owner crypto.Address) error {
	return h.exec("initialize", caller, func() error {
		return h.engine.Initialize(h.call(caller, Attached{}), owner)
	})
}

func (h *Host) TransferOwnership(caller, newOwner crypto.Address) error {
	return h.exec("transfer_ownership", caller, func() error {
		return h.engine.TransferOwnership(h.call(caller, Attached{}), newOwner)
	})
}

func (h *Host) SetRewardRate(caller crypto.Address, rate uint64) error {
	return h.exec("set_reward_rate", caller, func() error {
		return h.engine.SetRewardRate(h.call(caller, Attached{}), rate)
	})
}

func (h *Host) EmergencyPause(caller crypto.Address) error {
	return h.exec("pause", caller, func() error {
		return h.engine.EmergencyPause(h.call(caller, Attached{}))
	})
}

func (h *Host) EmergencyUnpause(caller crypto.Address) error {
	return h.exec("unpause", caller, func() error {
		return h.engine.EmergencyUnpause(h.call(caller, Attached{}))
	})
}

func (h *Host) ProposeAdminChange(caller crypto.Address, tag staking.ChangeTag, value uint64) (change *staking.PendingChange, err error) {
	err = h.exec("propose", caller, func() error {
		change, err = h.engine.ProposeAdminChange(h.call(caller, Attached{}), tag, value)
		return err
	})
	return change, err
}

func (h *Host) ExecuteAdminChange(caller crypto.Address, tag staking.ChangeTag) (change *staking.PendingChange, err error) {
	err = h.exec("execute", caller, func() error {
		change, err = h.engine.ExecuteAdminChange(h.call(caller, Attached{}), tag)
		return err
	})
	return change, err
}

// CheckInvariants verifies the stored ledger under the write lock so no call
// is in flight.
func (h *Host) CheckInvariants() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.CheckInvariants()
}
