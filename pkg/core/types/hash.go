package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash is an op id: the SHA-256 digest of the op's signed payload.
type Hash [32]byte

// HashFromHex parses a 64-digit hex op id, with or without a 0x prefix.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return h, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("op id must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) Hex() string    { return hex.EncodeToString(h[:]) }
func (h Hash) String() string { return h.Hex() }

// IsZero reports whether the id is unset.
func (h Hash) IsZero() bool { return h == Hash{} }
