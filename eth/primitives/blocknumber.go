package primitives

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// BlockNumber is a 64-bit unsigned block height. It is monotonic and
// produced exclusively by the storage engine's increment_block_number.
type BlockNumber uint64

const (
	GenesisBlockNumber BlockNumber = 0
	FirstBlockNumber   BlockNumber = 1
)

// Hash returns the keccak-256 hash of the block number's 8-byte big-endian
// representation. Used only to derive deterministic placeholder parent
// chains for locally-mined blocks (see NewBlockHeader); it is not a
// cryptographic commitment to block contents.
func (n BlockNumber) Hash() Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	return Keccak256(buf[:])
}

// Prev returns the previous block number. Undefined (ok=false) at zero.
func (n BlockNumber) Prev() (BlockNumber, bool) {
	if n == 0 {
		return 0, false
	}
	return n - 1, true
}

// Next always increments.
func (n BlockNumber) Next() BlockNumber { return n + 1 }

func (n BlockNumber) Uint64() uint64 { return uint64(n) }

// Bytes8 returns the canonical 8-byte big-endian key encoding used to sort
// block numbers lexicographically in KV storage.
func (n BlockNumber) Bytes8() [8]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	return buf
}

// String renders the canonical lowercase 0x-prefixed minimal hex quantity,
// matching upstream JSON-RPC encoding rules.
func (n BlockNumber) String() string {
	return "0x" + strconv.FormatUint(uint64(n), 16)
}

func (n BlockNumber) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *BlockNumber) UnmarshalText(text []byte) error {
	parsed, err := ParseBlockNumber(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// ParseBlockNumber accepts both 0x-prefixed hex and plain decimal.
func ParseBlockNumber(s string) (BlockNumber, error) {
	if s == "" {
		return 0, nil
	}
	if len(s) >= 2 && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("parse block number %q: %w", s, err)
		}
		return BlockNumber(v), nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse block number %q: %w", s, err)
	}
	return BlockNumber(v), nil
}
