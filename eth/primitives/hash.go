package primitives

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// HashLength is the length in bytes of a Hash.
const HashLength = 32

// Hash is a 32-byte opaque identifier, hex-serialized with a 0x prefix.
type Hash [HashLength]byte

// ZeroHash is the all-zero sentinel, used as the parent hash of genesis.
var ZeroHash = Hash{}

// EmptyUncleHash is always emitted as BlockHeader.uncle_hash.
var EmptyUncleHash = HashFromHex("0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347")

// EmptyTrieHash is the sentinel used for transactions_root/receipts_root/state_root
// when no real trie is computed.
var EmptyTrieHash = HashFromHex("0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

// Keccak256 hashes data and wraps the digest as a Hash.
func Keccak256(data ...[]byte) Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// HashFromHex parses a 0x-prefixed hex string into a Hash. Panics on malformed
// input: only used for compile-time sentinel construction.
func HashFromHex(s string) Hash {
	h, err := ParseHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

// ParseHash parses a 0x-prefixed hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := decodeFixedHex(s, HashLength)
	if err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) IsZero() bool { return h == ZeroHash }

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func (h Hash) MarshalBinary() ([]byte, error) {
	out := make([]byte, HashLength)
	copy(out, h[:])
	return out, nil
}

func (h *Hash) UnmarshalBinary(data []byte) error {
	if len(data) != HashLength {
		return fmt.Errorf("hash: invalid binary length %d", len(data))
	}
	copy(h[:], data)
	return nil
}

func decodeFixedHex(s string, length int) ([]byte, error) {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != length {
		return nil, fmt.Errorf("expected %d bytes, got %d", length, len(b))
	}
	return b, nil
}
