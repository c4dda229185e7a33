package genesis

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"nftstake/crypto"
	"nftstake/native/staking"
)

// Spec is the YAML genesis document: the initial owner, the items each
// identity holds and the reward asset balances.
type Spec struct {
	GenesisTime string              `yaml:"genesisTime"`
	Owner       string              `yaml:"owner,omitempty"`
	Items       map[string][]string `yaml:"items"`
	Balances    map[string]uint64   `yaml:"balances"`
	Reserve     uint64              `yaml:"reserve"`

	genesisTimestamp time.Time
	owner            crypto.Address
	hasOwner         bool
	holdings         []holding
	balances         []balance
}

type holding struct {
	holder crypto.Address
	items  []staking.PositionID
}

type balance struct {
	owner  crypto.Address
	amount uint64
}

// Load reads and validates a genesis document.
func Load(path string) (*Spec, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read genesis: %w", err)
	}
	spec, err := Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	return spec, raw, nil
}

// Parse decodes and validates a genesis document.
func Parse(raw []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// GenesisTimestamp returns the parsed genesis time.
func (s *Spec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// OwnerAddress returns the initial governance owner, if any.
func (s *Spec) OwnerAddress() (crypto.Address, bool) { return s.owner, s.hasOwner }

func (s *Spec) validate() error {
	if strings.TrimSpace(s.GenesisTime) == "" {
		return fmt.Errorf("genesis: genesisTime required")
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(s.GenesisTime))
	if err != nil {
		return fmt.Errorf("genesis: invalid genesisTime: %w", err)
	}
	s.genesisTimestamp = ts.UTC()

	if owner := strings.TrimSpace(s.Owner); owner != "" {
		addr, err := crypto.ParseAddress(owner)
		if err != nil {
			return fmt.Errorf("genesis: owner: %w", err)
		}
		if addr.IsZero() {
			return fmt.Errorf("genesis: owner must not be the zero address")
		}
		s.owner, s.hasOwner = addr, true
	}

	seen := make(map[staking.PositionID]string)
	s.holdings = s.holdings[:0]
	for holderStr, ids := range s.Items {
		holder, err := crypto.ParseAddress(holderStr)
		if err != nil {
			return fmt.Errorf("genesis: items holder %q: %w", holderStr, err)
		}
		h := holding{holder: holder}
		for _, raw := range ids {
			id, err := staking.ParsePositionID(raw)
			if err != nil {
				return fmt.Errorf("genesis: items of %s: %w", holderStr, err)
			}
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("genesis: item %s assigned to both %s and %s", id, prev, holderStr)
			}
			seen[id] = holderStr
			h.items = append(h.items, id)
		}
		sort.Slice(h.items, func(i, j int) bool { return h.items[i].Hex() < h.items[j].Hex() })
		s.holdings = append(s.holdings, h)
	}
	sort.Slice(s.holdings, func(i, j int) bool { return s.holdings[i].holder.String() < s.holdings[j].holder.String() })

	s.balances = s.balances[:0]
	for ownerStr, amount := range s.Balances {
		owner, err := crypto.ParseAddress(ownerStr)
		if err != nil {
			return fmt.Errorf("genesis: balance owner %q: %w", ownerStr, err)
		}
		s.balances = append(s.balances, balance{owner: owner, amount: amount})
	}
	sort.Slice(s.balances, func(i, j int) bool { return s.balances[i].owner.String() < s.balances[j].owner.String() })
	return nil
}
