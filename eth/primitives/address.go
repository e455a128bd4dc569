package primitives

import (
	"encoding/hex"
	"fmt"
)

// AddressLength is the length in bytes of an Address.
const AddressLength = 20

// Address is a 20-byte account identifier, hex-serialized with a 0x prefix.
type Address [AddressLength]byte

// ZeroAddress is the default/empty address value.
var ZeroAddress = Address{}

func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := decodeFixedHex(s, AddressLength)
	if err != nil {
		return a, fmt.Errorf("parse address: %w", err)
	}
	copy(a[:], b)
	return a, nil
}

func (a Address) Bytes() []byte { return a[:] }

func (a Address) IsZero() bool { return a == ZeroAddress }

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Address) MarshalBinary() ([]byte, error) {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out, nil
}

func (a *Address) UnmarshalBinary(data []byte) error {
	if len(data) != AddressLength {
		return fmt.Errorf("address: invalid binary length %d", len(data))
	}
	copy(a[:], data)
	return nil
}
