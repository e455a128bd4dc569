package primitives

import (
	"encoding/hex"
	"fmt"
)

// SlotIndex is the 256-bit key of a storage slot.
type SlotIndex [32]byte

func (i SlotIndex) MarshalText() ([]byte, error) {
	return []byte("0x" + hex.EncodeToString(i[:])), nil
}

func (i *SlotIndex) UnmarshalText(text []byte) error {
	b, err := decodeFixedHex(string(text), len(i))
	if err != nil {
		return fmt.Errorf("parse slot index: %w", err)
	}
	copy(i[:], b)
	return nil
}

func SlotIndexFromUint64(v uint64) SlotIndex {
	var idx SlotIndex
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * (7 - i)))
	}
	copy(idx[24:], buf[:])
	return idx
}

func (i SlotIndex) Bytes() []byte { return i[:] }

// Slot is a single (index, value) storage cell. Its identity is the pair
// (account address, index); the address is carried alongside a Slot by its
// container (ExecutionAccountChanges, storage reads) rather than embedded.
type Slot struct {
	Index SlotIndex
	Value Wei
}

// SlotSample is one entry returned by read_slots_sample.
type SlotSample struct {
	Address Address
	Index   SlotIndex
	Value   Wei
	Block   BlockNumber
}

// Account is the externally-owned or contract account record.
type Account struct {
	Address  Address
	Nonce    uint64
	Balance  Wei
	Bytecode Bytes // nil/empty for an externally-owned account
	CodeHash Hash
}

// IsContract reports whether the account carries bytecode.
func (a Account) IsContract() bool { return !a.Bytecode.IsEmpty() }

// EmptyCodeHash is the code_hash sentinel for an account with no bytecode:
// keccak256 of the empty byte string.
var EmptyCodeHash = Keccak256(nil)
