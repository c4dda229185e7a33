package genesis

import (
	"errors"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nftstake/core/state"
	"nftstake/crypto"
	"nftstake/native/custody"
	"nftstake/native/staking"
	"nftstake/storage"
)

func testAddr(b byte) crypto.Address {
	var out crypto.Address
	out[19] = b
	return out
}

func fixture() []byte {
	return []byte(`
genesisTime: "2024-01-01T00:00:00Z"
owner: ` + testAddr(0xaa).String() + `
items:
  ` + testAddr(1).String() + `: ["0x01", "0x02"]
  ` + testAddr(2).String() + `: ["0x03"]
balances:
  ` + testAddr(2).String() + `: 500
reserve: 10000
`)
}

func TestApplySeedsStore(t *testing.T) {
	spec, err := Parse(fixture())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	store := state.NewStore(storage.NewMemDB())
	vault := custody.NewVault(testAddr(0xee))
	engine := staking.NewEngine(staking.DefaultParams())
	engine.SetState(store)
	engine.SetCustody(vault)

	applied, err := Apply(spec, fixture(), store, vault, engine)
	if err != nil || !applied {
		t.Fatalf("apply: applied=%v err=%v", applied, err)
	}
	id, _ := staking.ParsePositionID("0x02")
	holder, err := vault.HolderOf(store, [32]byte(id))
	if err != nil || holder != testAddr(1) {
		t.Fatalf("unexpected holder %x err=%v", holder, err)
	}
	if reserve, _ := vault.Reserve(store); reserve != 10000 {
		t.Fatalf("expected reserve 10000, got %d", reserve)
	}
	if bal, _ := store.CustodyBalanceGet(testAddr(2)); bal != 500 {
		t.Fatalf("expected balance 500, got %d", bal)
	}
	gov, err := engine.Governance()
	if err != nil {
		t.Fatalf("governance: %v", err)
	}
	if owner, ok := staking.OwnerOf(gov.Owner); !ok || owner != testAddr(0xaa) {
		t.Fatalf("governance owner not installed: %#v", gov.Owner)
	}

	applied, err = Apply(spec, fixture(), store, vault, engine)
	if err != nil || applied {
		t.Fatalf("re-apply must be a no-op, applied=%v err=%v", applied, err)
	}
	other := append(fixture(), []byte("# changed\n")...)
	if _, err := Apply(spec, other, store, vault, engine); !errors.Is(err, ErrGenesisMismatch) {
		t.Fatalf("expected ErrGenesisMismatch, got %v", err)
	}
}

func TestReapplyInitializesMissingOwner(t *testing.T) {
	spec, err := Parse(fixture())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	store := state.NewStore(storage.NewMemDB())
	vault := custody.NewVault(testAddr(0xee))
	engine := staking.NewEngine(staking.DefaultParams())
	engine.SetState(store)
	engine.SetCustody(vault)

	batch := store.NewBatch()
	batch.MarkGenesis(ethcrypto.Keccak256(fixture()))
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit marker: %v", err)
	}
	if _, err := Apply(spec, fixture(), store, vault, engine); err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	gov, err := engine.Governance()
	if err != nil {
		t.Fatalf("governance: %v", err)
	}
	if owner, ok := staking.OwnerOf(gov.Owner); !ok || owner != testAddr(0xaa) {
		t.Fatalf("owner not installed on re-apply: %#v", gov.Owner)
	}
}

func TestParseRejectsDuplicateItems(t *testing.T) {
	raw := []byte(`
genesisTime: "2024-01-01T00:00:00Z"
items:
  ` + testAddr(1).String() + `: ["0x01"]
  ` + testAddr(2).String() + `: ["0x0001"]
`)
	if _, err := Parse(raw); err == nil {
		t.Fatalf("expected duplicate item to be rejected")
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing time": "items: {}\n",
		"bad time":     "genesisTime: yesterday\n",
		"bad owner":    "genesisTime: 2024-01-01T00:00:00Z\nowner: nope\n",
		"bad item":     "genesisTime: 2024-01-01T00:00:00Z\nitems:\n  " + testAddr(1).String() + ": [\"0xzz\"]\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(raw)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
