package types

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressSize matches the ed25519 public key size: an address IS the holder's public key.
const AddressSize = ed25519.PublicKeySize

// Address identifies a token holder, spender or operator.
type Address [AddressSize]byte

// ZeroAddress is never a valid transfer recipient.
var ZeroAddress Address

// AddressFromBytes creates an Address from a byte slice. Returns error if len != 32.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// AddressFromHex parses a hex-encoded address, with or without a 0x prefix.
func AddressFromHex(s string) (Address, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex: %w", err)
	}
	return AddressFromBytes(b)
}

// PublicKey returns the ed25519 public key encoded by the address.
func (a Address) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(a[:])
}

// Hex returns the lowercase hex-encoded string.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return a.Hex()
}

// IsZero returns true if every byte is 0x00.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// MarshalText implements encoding.TextMarshaler so addresses encode as hex in JSON and YAML.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := AddressFromHex(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
