package custody

import (
	"errors"
	"fmt"
	"math"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrUnknownItem         = errors.New("custody: unknown item")
	ErrItemNotHeld         = errors.New("custody: item not held by sender")
	ErrItemNotInCustody    = errors.New("custody: item not in custody")
	ErrItemExists          = errors.New("custody: item already minted")
	ErrInsufficientBalance = errors.New("custody: insufficient balance")
	ErrBalanceOverflow     = errors.New("custody: balance overflow")
	errNilLedger           = errors.New("custody: ledger not configured")
)

// View is the read side of the custody ledger.
type View interface {
	CustodyHolderGet(item [32]byte) ([20]byte, bool, error)
	CustodyBalanceGet(owner [20]byte) (uint64, error)
}

// Ledger is the mutable custody ledger. Callers hand in the write batch of the
// surrounding operation so custody moves commit or vanish together with it.
type Ledger interface {
	View
	CustodyHolderPut(item [32]byte, holder [20]byte) error
	CustodyBalancePut(owner [20]byte, amount uint64) error
}

// ModuleAccount derives the deterministic account of a named module. No key
// controls it.
func ModuleAccount(name string) [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte("module:"+name))[12:])
	return out
}

// Vault moves staked items and the reward asset in and out of a module
// account.
type Vault struct {
	account [20]byte
}

// NewVault binds a vault to the module account that holds custodied value.
func NewVault(account [20]byte) *Vault {
	return &Vault{account: account}
}

// Account returns the module account.
func (v *Vault) Account() [20]byte { return v.account }

// Mint registers a new item held by holder.
func (v *Vault) Mint(ledger Ledger, holder [20]byte, item [32]byte) error {
	if ledger == nil {
		return errNilLedger
	}
	_, ok, err := ledger.CustodyHolderGet(item)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %x", ErrItemExists, item)
	}
	return ledger.CustodyHolderPut(item, holder)
}

// Receive moves an item from its holder into the vault.
func (v *Vault) Receive(ledger Ledger, from [20]byte, item [32]byte) error {
	if ledger == nil {
		return errNilLedger
	}
	holder, ok, err := ledger.CustodyHolderGet(item)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %x", ErrUnknownItem, item)
	}
	if holder != from {
		return fmt.Errorf("%w: %x", ErrItemNotHeld, item)
	}
	return ledger.CustodyHolderPut(item, v.account)
}

// Release hands a custodied item to the recipient.
func (v *Vault) Release(ledger Ledger, to [20]byte, item [32]byte) error {
	if ledger == nil {
		return errNilLedger
	}
	holder, ok, err := ledger.CustodyHolderGet(item)
	if err != nil {
		return err
	}
	if !ok || holder != v.account {
		return fmt.Errorf("%w: %x", ErrItemNotInCustody, item)
	}
	return ledger.CustodyHolderPut(item, to)
}

// Credit adds reward asset to an account without a counterparty. Genesis and
// operator faucets use it.
func (v *Vault) Credit(ledger Ledger, owner [20]byte, amount uint64) error {
	if ledger == nil {
		return errNilLedger
	}
	balance, err := ledger.CustodyBalanceGet(owner)
	if err != nil {
		return err
	}
	if balance > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	return ledger.CustodyBalancePut(owner, balance+amount)
}

// Fund moves reward asset from a depositor into the vault reserve.
func (v *Vault) Fund(ledger Ledger, from [20]byte, amount uint64) error {
	return v.transfer(ledger, from, v.account, amount)
}

// Pay moves reward asset from the reserve to a recipient.
func (v *Vault) Pay(ledger Ledger, to [20]byte, amount uint64) error {
	return v.transfer(ledger, v.account, to, amount)
}

// Reserve returns the reward asset held by the vault.
func (v *Vault) Reserve(view View) (uint64, error) {
	if view == nil {
		return 0, errNilLedger
	}
	return view.CustodyBalanceGet(v.account)
}

// HolderOf returns the current holder of an item.
func (v *Vault) HolderOf(view View, item [32]byte) ([20]byte, error) {
	if view == nil {
		return [20]byte{}, errNilLedger
	}
	holder, ok, err := view.CustodyHolderGet(item)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, fmt.Errorf("%w: %x", ErrUnknownItem, item)
	}
	return holder, nil
}

func (v *Vault) transfer(ledger Ledger, from, to [20]byte, amount uint64) error {
	if ledger == nil {
		return errNilLedger
	}
	if amount == 0 || from == to {
		return nil
	}
	fromBalance, err := ledger.CustodyBalanceGet(from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, fromBalance, amount)
	}
	toBalance, err := ledger.CustodyBalanceGet(to)
	if err != nil {
		return err
	}
	if toBalance > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	if err := ledger.CustodyBalancePut(from, fromBalance-amount); err != nil {
		return err
	}
	return ledger.CustodyBalancePut(to, toBalance+amount)
}
