package state

import (
	"github.com/ethereum/go-ethereum/common"

	"nftstake/storage/trie"
)

var genesisMarkerKey = []byte("meta/genesis")

// GenesisHash returns the hash of the genesis document the store was seeded
// from, or nil when no genesis has been applied.
func (s *Store) GenesisHash() ([]byte, error) {
	data, ok, err := s.kv.get(genesisMarkerKey)
	if err != nil || !ok {
		return nil, err
	}
	return data, nil
}

// MarkGenesis records the genesis hash in the batch.
func (b *Batch) MarkGenesis(hash []byte) {
	b.put(genesisMarkerKey, append([]byte(nil), hash...))
}

// StateRoot is the Merkle root over every staking and custody record. Nonce
// bookkeeping and the genesis marker are excluded.
func (s *Store) StateRoot() (common.Hash, error) {
	return trie.Root(s.db, stakingPrefix, custodyPrefix)
}
