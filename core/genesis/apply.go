package genesis

import (
	"bytes"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nftstake/core/state"
	"nftstake/native/custody"
	"nftstake/native/staking"
)

// ErrGenesisMismatch is returned when the store was seeded from a different
// genesis document.
var ErrGenesisMismatch = errors.New("genesis: store seeded from a different genesis")

// Apply seeds an empty store from spec. Re-applying the same document only
// completes a governance initialisation that did not commit the first time;
// a different document fails with ErrGenesisMismatch.
func Apply(spec *Spec, raw []byte, store *state.Store, vault *custody.Vault, engine *staking.Engine) (bool, error) {
	if spec == nil || store == nil || vault == nil || engine == nil {
		return false, fmt.Errorf("genesis: spec, store, vault and engine are required")
	}
	hash := ethcrypto.Keccak256(raw)
	existing, err := store.GenesisHash()
	if err != nil {
		return false, err
	}
	if existing != nil {
		if !bytes.Equal(existing, hash) {
			return false, fmt.Errorf("%w: have %x, want %x", ErrGenesisMismatch, existing, hash)
		}
		return false, initializeOwner(spec, engine)
	}

	batch := store.NewBatch()
	for _, h := range spec.holdings {
		for _, id := range h.items {
			if err := vault.Mint(batch, h.holder, [32]byte(id)); err != nil {
				return false, fmt.Errorf("genesis: mint %s: %w", id, err)
			}
		}
	}
	for _, b := range spec.balances {
		if err := vault.Credit(batch, b.owner, b.amount); err != nil {
			return false, fmt.Errorf("genesis: credit %s: %w", b.owner, err)
		}
	}
	if spec.Reserve > 0 {
		if err := vault.Credit(batch, vault.Account(), spec.Reserve); err != nil {
			return false, fmt.Errorf("genesis: reserve: %w", err)
		}
	}
	batch.MarkGenesis(hash)
	if err := batch.Commit(); err != nil {
		return false, fmt.Errorf("genesis: commit: %w", err)
	}

	if err := initializeOwner(spec, engine); err != nil {
		return true, err
	}
	return true, nil
}

// initializeOwner hands governance to the genesis owner unless it already has
// one. The item and balance batch commits separately, so a crash between the
// two is repaired on the next start.
func initializeOwner(spec *Spec, engine *staking.Engine) error {
	owner, ok := spec.OwnerAddress()
	if !ok {
		return nil
	}
	gov, err := engine.Governance()
	if err != nil {
		return fmt.Errorf("genesis: load governance: %w", err)
	}
	if _, initialized := staking.OwnerOf(gov.Owner); initialized {
		return nil
	}
	call := staking.Call{Caller: owner, Now: spec.GenesisTimestamp().Unix()}
	if err := engine.Initialize(call, owner); err != nil {
		return fmt.Errorf("genesis: initialize governance: %w", err)
	}
	return nil
}
