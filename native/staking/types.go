package staking

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"nftstake/native/custody"
)

// ModuleName identifies the staking module for operator pause switches and
// logs.
const ModuleName = "staking"

// PositionID is the unique identifier of a staked item.
type PositionID [32]byte

// Hex returns the 0x-prefixed encoding of the id.
func (id PositionID) Hex() string { return hexutil.Encode(id[:]) }

func (id PositionID) String() string { return id.Hex() }

// MarshalText implements encoding.TextMarshaler.
func (id PositionID) MarshalText() ([]byte, error) { return []byte(id.Hex()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *PositionID) UnmarshalText(text []byte) error {
	parsed, err := ParsePositionID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParsePositionID decodes a hex id of at most 32 bytes. Shorter ids are left
// padded so "0x01" and the full 32-byte form name the same item.
func ParsePositionID(value string) (PositionID, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		trimmed = "0x" + trimmed
	}
	if len(trimmed)%2 == 1 {
		trimmed = "0x0" + trimmed[2:]
	}
	raw, err := hexutil.Decode(trimmed)
	if err != nil {
		return PositionID{}, fmt.Errorf("staking: invalid position id %q: %w", value, err)
	}
	if len(raw) == 0 || len(raw) > 32 {
		return PositionID{}, fmt.Errorf("staking: invalid position id %q: expected 1-32 bytes", value)
	}
	var id PositionID
	copy(id[32-len(raw):], raw)
	return id, nil
}

// Position records one staked item in custody.
type Position struct {
	ID       PositionID `json:"id"`
	Owner    [20]byte   `json:"owner"`
	StakedAt int64      `json:"stakedAt"`
}

// Clone returns a copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Account aggregates the positions and rewards of one identity.
type Account struct {
	Owner          [20]byte `json:"owner"`
	PositionCount  uint64   `json:"positionCount"`
	RewardBalance  uint64   `json:"rewardBalance"`
	LastWithdrawal int64    `json:"lastWithdrawal"`
}

// Clone returns a copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// AccountInfo is the query view of an account together with its live
// positions.
type AccountInfo struct {
	Account
	Positions []PositionID `json:"positions"`
}

// Ownership is the governance owner slot: either Uninitialized or
// Initialized. Switches over it must handle both.
type Ownership interface {
	isOwnership()
}

// Uninitialized is the ownership state before Initialize succeeds.
type Uninitialized struct{}

// Initialized carries the current governance owner.
type Initialized struct {
	Owner [20]byte
}

func (Uninitialized) isOwnership() {}
func (Initialized) isOwnership()   {}

// OwnerOf returns the owner and whether governance has been initialised.
func OwnerOf(o Ownership) ([20]byte, bool) {
	switch v := o.(type) {
	case Initialized:
		return v.Owner, true
	case Uninitialized, nil:
		return [20]byte{}, false
	default:
		panic(fmt.Sprintf("staking: unexpected ownership %T", o))
	}
}

// Distribution tracks paid-out rewards.
type Distribution struct {
	TotalDistributed     uint64 `json:"totalDistributed"`
	LastDistributionTime int64  `json:"lastDistributionTime"`
}

// Governance is the singleton admin state of the ledger.
type Governance struct {
	Owner                  Ownership    `json:"-"`
	Paused                 bool         `json:"paused"`
	RewardRate             uint64       `json:"rewardRate"`
	MinLockPeriod          uint64       `json:"minLockPeriod"`
	WithdrawalCooldown     uint64       `json:"withdrawalCooldown"`
	AllowEarlyUnstake      bool         `json:"allowEarlyUnstake"`
	EarlyUnstakePenaltyBps uint64       `json:"earlyUnstakePenaltyBps"`
	Distribution           Distribution `json:"distribution"`
	TotalStaked            uint64       `json:"totalStaked"`
}

// Clone returns a copy of the governance state.
func (g *Governance) Clone() *Governance {
	if g == nil {
		return nil
	}
	clone := *g
	if clone.Owner == nil {
		clone.Owner = Uninitialized{}
	}
	return &clone
}

// ChangeTag names a parameter adjustable through the two-phase admin flow.
type ChangeTag string

const (
	ChangeRewardRate         ChangeTag = "reward_rate"
	ChangeMinLockPeriod      ChangeTag = "min_lock_period"
	ChangeWithdrawalCooldown ChangeTag = "withdrawal_cooldown"
	ChangeEarlyPenaltyBps    ChangeTag = "early_unstake_penalty_bps"
	ChangeAllowEarlyUnstake  ChangeTag = "allow_early_unstake"
)

// ChangeTags lists every supported tag.
func ChangeTags() []ChangeTag {
	return []ChangeTag{
		ChangeRewardRate,
		ChangeMinLockPeriod,
		ChangeWithdrawalCooldown,
		ChangeEarlyPenaltyBps,
		ChangeAllowEarlyUnstake,
	}
}

// ParseChangeTag normalises a tag and rejects unknown values.
func ParseChangeTag(value string) (ChangeTag, error) {
	tag := ChangeTag(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range ChangeTags() {
		if tag == known {
			return tag, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChangeTag, value)
}

// PendingChange is a proposed parameter value awaiting execution.
type PendingChange struct {
	Tag        ChangeTag `json:"tag"`
	ProposedAt int64     `json:"proposedAt"`
	Value      uint64    `json:"value"`
}

// Call carries the host-supplied capabilities of one request: the
// authenticated caller, the current time and the value attached to it.
type Call struct {
	Caller         [20]byte
	Now            int64
	AttachedAsset  string
	AttachedAmount uint64
}

// UnstakeResult describes a settled position.
type UnstakeResult struct {
	Position *Position `json:"position"`
	Reward   uint64    `json:"reward"`
	Penalty  uint64    `json:"penalty"`
	Early    bool      `json:"early"`
	PaidOut  bool      `json:"paidOut"`
}

// View is the read-only ledger state.
type View interface {
	custody.View
	StakingGovernanceGet() (*Governance, bool, error)
	StakingPositionGet(id PositionID) (*Position, bool, error)
	StakingAccountGet(owner [20]byte) (*Account, bool, error)
	StakingOwnerPositions(owner [20]byte) ([]PositionID, error)
	StakingPendingChangeGet(tag ChangeTag) (*PendingChange, bool, error)
	StakingPendingChanges() ([]*PendingChange, error)
	StakingPositionsIterate(fn func(*Position) error) error
	StakingAccountsIterate(fn func(*Account) error) error
}

// Batch stages the writes of one operation. Nothing is visible to other
// readers until Commit succeeds; dropping a batch discards it.
type Batch interface {
	View
	custody.Ledger
	StakingGovernancePut(gov *Governance) error
	StakingPositionPut(pos *Position) error
	StakingPositionDelete(pos *Position) error
	StakingAccountPut(acct *Account) error
	StakingPendingChangePut(change *PendingChange) error
	StakingPendingChangeDelete(tag ChangeTag) error
	Commit() error
}

// Backend is the state store the engine runs on.
type Backend interface {
	View
	Begin() Batch
}

// Custody moves staked items and reward asset. Every method stages its
// effect on the supplied ledger, which is the operation's batch.
type Custody interface {
	Receive(ledger custody.Ledger, from [20]byte, item [32]byte) error
	Release(ledger custody.Ledger, to [20]byte, item [32]byte) error
	Pay(ledger custody.Ledger, to [20]byte, amount uint64) error
	Fund(ledger custody.Ledger, from [20]byte, amount uint64) error
	Reserve(view custody.View) (uint64, error)
}
