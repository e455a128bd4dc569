package primitives

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Wei is a 256-bit unsigned value, used for account balances and storage
// slot values. It wraps holiman/uint256.Int, the same arbitrary-precision
// word type the wider Go Ethereum ecosystem uses for EVM-adjacent state.
type Wei struct {
	inner uint256.Int
}

func NewWei(v uint64) Wei {
	var w Wei
	w.inner.SetUint64(v)
	return w
}

func WeiFromBig(b []byte) Wei {
	var w Wei
	w.inner.SetBytes(b)
	return w
}

func (w Wei) Add(other Wei) Wei {
	var out Wei
	out.inner.Add(&w.inner, &other.inner)
	return out
}

func (w Wei) Sub(other Wei) Wei {
	var out Wei
	out.inner.Sub(&w.inner, &other.inner)
	return out
}

func (w Wei) Cmp(other Wei) int {
	return w.inner.Cmp(&other.inner)
}

func (w Wei) IsZero() bool { return w.inner.IsZero() }

func (w Wei) Bytes32() [32]byte { return w.inner.Bytes32() }

func (w Wei) Bytes() []byte { return w.inner.Bytes() }

func (w Wei) String() string {
	return "0x" + w.inner.Hex()[2:]
}

func (w Wei) MarshalText() ([]byte, error) {
	return []byte("0x" + w.inner.Hex()[2:]), nil
}

func (w *Wei) UnmarshalText(text []byte) error {
	s := string(text)
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		v, err := uint256.FromHex(s)
		if err != nil {
			return fmt.Errorf("parse wei %q: %w", s, err)
		}
		w.inner = *v
		return nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return fmt.Errorf("parse wei %q: %w", s, err)
	}
	w.inner = *v
	return nil
}

func (w Wei) MarshalBinary() ([]byte, error) {
	b := w.inner.Bytes32()
	return b[:], nil
}

func (w *Wei) UnmarshalBinary(data []byte) error {
	if len(data) != 32 {
		return fmt.Errorf("wei: invalid binary length %d", len(data))
	}
	w.inner.SetBytes(data)
	return nil
}

// Gas is a 64-bit gas quantity.
type Gas uint64

func (g Gas) Uint64() uint64 { return uint64(g) }

func (g Gas) String() string {
	return fmt.Sprintf("0x%x", uint64(g))
}

func (g Gas) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

func (g *Gas) UnmarshalText(text []byte) error {
	n, err := ParseBlockNumber(string(text)) // shares quantity parsing rules
	if err != nil {
		return err
	}
	*g = Gas(n)
	return nil
}
