package primitives

import "encoding/hex"

// Bytes is an arbitrary-length byte string, hex-serialized with a 0x prefix
// (used for bytecode, call input/output, and extra_data).
type Bytes []byte

func (b Bytes) String() string {
	return "0x" + hex.EncodeToString(b)
}

func (b Bytes) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Bytes) UnmarshalText(text []byte) error {
	s := string(text)
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	if len(s) == 0 {
		*b = Bytes{}
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

func (b Bytes) IsEmpty() bool { return len(b) == 0 }
