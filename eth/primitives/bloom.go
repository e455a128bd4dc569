package primitives

import "encoding/hex"

// BloomLength is the size in bytes of the block/log bloom filter.
const BloomLength = 256

// LogsBloom is a 2048-bit probabilistic index over log addresses and topics.
type LogsBloom [BloomLength]byte

// Add folds an address and its topics into the bloom filter using the
// standard three-hash-per-item Ethereum bloom construction.
func (b *LogsBloom) Add(address Address, topics ...Hash) {
	b.addItem(address.Bytes())
	for _, topic := range topics {
		b.addItem(topic.Bytes())
	}
}

func (b *LogsBloom) addItem(data []byte) {
	hash := Keccak256(data)
	for i := 0; i < 3; i++ {
		bitIdx := (uint(hash[2*i])<<8 | uint(hash[2*i+1])) & 2047
		byteIdx := BloomLength - 1 - bitIdx/8
		bit := byte(1) << (bitIdx % 8)
		b[byteIdx] |= bit
	}
}

func (b LogsBloom) String() string {
	return "0x" + hex.EncodeToString(b[:])
}

func (b LogsBloom) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *LogsBloom) UnmarshalText(text []byte) error {
	raw, err := decodeFixedHex(string(text), BloomLength)
	if err != nil {
		return err
	}
	copy(b[:], raw)
	return nil
}
