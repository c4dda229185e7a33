package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"

	"github.com/ethereum/go-ethereum/crypto"
)

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the ledger identity controlled by the key.
func (k *PrivateKey) Address() Address {
	return k.PubKey().Address()
}

func (k *PublicKey) Address() Address {
	return Address(crypto.PubkeyToAddress(*k.PublicKey))
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Sign produces a recoverable secp256k1 signature over keccak256(payload).
func (k *PrivateKey) Sign(payload []byte) ([]byte, error) {
	return crypto.Sign(crypto.Keccak256(payload), k.PrivateKey)
}

// RecoverAddress returns the identity that produced sig over payload.
func RecoverAddress(payload, sig []byte) (Address, error) {
	pub, err := crypto.SigToPub(crypto.Keccak256(payload), sig)
	if err != nil {
		return Address{}, err
	}
	return Address(crypto.PubkeyToAddress(*pub)), nil
}
