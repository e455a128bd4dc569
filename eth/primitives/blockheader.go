package primitives

// LocallyMinedGasLimit is the gas_limit emitted for locally-mined blocks.
const LocallyMinedGasLimit Gas = 100_000_000

// BlockHeader carries a block's metadata. For a locally-mined block,
// Hash == Number.Hash() and ParentHash == (Number-1).Hash() (or the zero
// hash at genesis); several fields are always-zero/always-sentinel values
// kept only for bit-compatibility with upstream EVM clients.
type BlockHeader struct {
	Number           BlockNumber
	Hash             Hash
	ParentHash       Hash
	TransactionsRoot Hash
	ReceiptsRoot     Hash
	StateRoot        Hash
	UncleHash        Hash
	Difficulty       Wei
	TotalDifficulty  Wei
	Nonce            uint64
	GasUsed          Gas
	GasLimit         Gas
	Bloom            LogsBloom
	Timestamp        UnixTime
	Size             uint64
	Author           Address
	Miner            Address
	ExtraData        Bytes
}

// NewBlockHeader mints a header for a locally-produced block, used by the
// executor's local-mining path (integrated-relayer tests, standalone
// mining) when there is no upstream header to copy verbatim.
func NewBlockHeader(number BlockNumber, timestamp UnixTime) BlockHeader {
	parent := ZeroHash
	if prev, ok := number.Prev(); ok {
		parent = prev.Hash()
	}
	return BlockHeader{
		Number:           number,
		Hash:             number.Hash(),
		ParentHash:       parent,
		TransactionsRoot: EmptyTrieHash,
		ReceiptsRoot:     EmptyTrieHash,
		StateRoot:        EmptyTrieHash,
		UncleHash:        EmptyUncleHash,
		Difficulty:       NewWei(0),
		TotalDifficulty:  NewWei(0),
		Nonce:            0,
		GasLimit:         LocallyMinedGasLimit,
		Timestamp:        timestamp,
	}
}
