package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
)

// AddressPrefix is the bech32 human-readable part of a ledger identity.
const AddressPrefix = "stk"

var ErrInvalidAddress = errors.New("crypto: invalid address")

// Address is a 20-byte ledger identity.
type Address [20]byte

// ZeroAddress is the null identity used as the "from" side of the first
// ownership record.
var ZeroAddress Address

// IsZero reports whether the address is the null identity.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte { return append([]byte(nil), a[:]...) }

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// MarshalText renders the bech32 form.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText accepts either bech32 or 0x-prefixed hex.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// FormatAddress renders raw identity bytes in bech32 form.
func FormatAddress(raw [20]byte) string { return Address(raw).String() }

// ParseAddress decodes a bech32 "stk1..." identity or a 0x hex identity.
func ParseAddress(value string) (Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Address{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		if !common.IsHexAddress(trimmed) {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, value)
		}
		return Address(common.HexToAddress(trimmed)), nil
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidAddress, prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("%w: expected 20 bytes, got %d", ErrInvalidAddress, len(conv))
	}
	var out Address
	copy(out[:], conv)
	return out, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(value string) Address {
	addr, err := ParseAddress(value)
	if err != nil {
		panic(err)
	}
	return addr
}
