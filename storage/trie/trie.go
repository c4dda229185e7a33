package trie

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"

	"nftstake/storage"
)

// Trie wraps go-ethereum's Merkle Patricia trie on a throwaway in-memory node
// database. It is used to fingerprint ledger state, never to store it.
//
// Keys are hashed with keccak256 before insertion so the trie shape does not
// depend on key prefixes.
//
// Trie is not safe for concurrent use.
type Trie struct {
	trie *gethtrie.Trie
}

// New returns an empty trie.
func New() (*Trie, error) {
	trieDB := triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil)
	underlying, err := gethtrie.New(gethtrie.TrieID(gethtypes.EmptyRootHash), trieDB)
	if err != nil {
		return nil, err
	}
	return &Trie{trie: underlying}, nil
}

// Update inserts a copy of value under the keccak256 hash of key. Empty
// values are rejected because the trie treats them as deletions.
func (t *Trie) Update(key, value []byte) error {
	if len(value) == 0 {
		return errors.New("trie: empty value")
	}
	return t.trie.Update(crypto.Keccak256(key), common.CopyBytes(value))
}

// Get looks up a key previously passed to Update.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.trie.Get(crypto.Keccak256(key))
}

// Hash returns the root hash reflecting all updates so far.
func (t *Trie) Hash() common.Hash {
	return t.trie.Hash()
}

// Root computes the commitment over every entry of db under the given
// prefixes. Equal contents yield equal roots regardless of backend.
func Root(db storage.Database, prefixes ...[]byte) (common.Hash, error) {
	t, err := New()
	if err != nil {
		return common.Hash{}, err
	}
	for _, prefix := range prefixes {
		if err := db.Iterate(prefix, t.Update); err != nil {
			return common.Hash{}, err
		}
	}
	return t.Hash(), nil
}
