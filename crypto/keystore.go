package crypto

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// ScryptParams selects the key derivation cost for keystore files.
type ScryptParams struct {
	N int
	P int
}

var (
	// StandardScrypt is used for operator keys on disk.
	StandardScrypt = ScryptParams{N: keystore.StandardScryptN, P: keystore.StandardScryptP}
	// LightScrypt keeps tests and throwaway identities fast.
	LightScrypt = ScryptParams{N: keystore.LightScryptN, P: keystore.LightScryptP}
)

// SaveToKeystore writes the key to a v3 keystore file at path with 0600
// permissions, replacing any existing file.
func SaveToKeystore(path string, key *PrivateKey, passphrase string, params ScryptParams) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	if params.N == 0 {
		params = StandardScrypt
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	ks := keystore.NewKeyStore(tmpDir, params.N, params.P)
	account, err := ks.ImportECDSA(key.PrivateKey, passphrase)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(account.URL.Path, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts a v3 keystore file.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
