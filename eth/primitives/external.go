package primitives

// ExternalBlock is a block exactly as returned by the upstream node's
// eth_getBlockByNumber (full transaction objects), trusted verbatim and
// never re-derived: its Hash/ParentHash/StateRoot are taken as ground
// truth during reconciliation, never recomputed locally.
type ExternalBlock struct {
	Number           BlockNumber          `json:"number"`
	Hash             Hash                 `json:"hash"`
	ParentHash       Hash                 `json:"parentHash"`
	TransactionsRoot Hash                 `json:"transactionsRoot"`
	ReceiptsRoot     Hash                 `json:"receiptsRoot"`
	StateRoot        Hash                 `json:"stateRoot"`
	UncleHash        Hash                 `json:"sha3Uncles"`
	Difficulty       Wei                  `json:"difficulty"`
	TotalDifficulty  Wei                  `json:"totalDifficulty"`
	Nonce            Bytes                `json:"nonce"`
	GasUsed          Gas                  `json:"gasUsed"`
	GasLimit         Gas                  `json:"gasLimit"`
	Bloom            LogsBloom            `json:"logsBloom"`
	Timestamp        UnixTime             `json:"timestamp"`
	Size             uint64               `json:"size"`
	Miner            Address              `json:"miner"`
	ExtraData        Bytes                `json:"extraData"`
	Transactions     []ExternalTransaction `json:"transactions"`
}

func (b ExternalBlock) IsGenesis() bool { return b.Number == GenesisBlockNumber }

func (b ExternalBlock) Header() BlockHeader {
	return BlockHeader{
		Number:           b.Number,
		Hash:             b.Hash,
		ParentHash:       b.ParentHash,
		TransactionsRoot: b.TransactionsRoot,
		ReceiptsRoot:     b.ReceiptsRoot,
		StateRoot:        b.StateRoot,
		UncleHash:        b.UncleHash,
		Difficulty:       b.Difficulty,
		TotalDifficulty:  b.TotalDifficulty,
		GasUsed:          b.GasUsed,
		GasLimit:         b.GasLimit,
		Bloom:            b.Bloom,
		Timestamp:        b.Timestamp,
		Size:             b.Size,
		Miner:            b.Miner,
		Author:           b.Miner,
		ExtraData:        b.ExtraData,
	}
}

// ExternalTransaction is a signed transaction as embedded in an
// ExternalBlock's transaction list.
type ExternalTransaction struct {
	Hash        Hash     `json:"hash"`
	From        Address  `json:"from"`
	To          *Address `json:"to"`
	Nonce       uint64   `json:"nonce"`
	Value       Wei      `json:"value"`
	Gas         Gas      `json:"gas"`
	GasPrice    Wei      `json:"gasPrice"`
	Input       Bytes    `json:"input"`
	V           Bytes    `json:"v"`
	R           Bytes    `json:"r"`
	S           Bytes    `json:"s"`
	BlockHash   Hash     `json:"blockHash"`
	BlockNumber BlockNumber `json:"blockNumber"`
	TxIndex     uint64   `json:"transactionIndex"`
}

func (t ExternalTransaction) ToInput() TransactionInput {
	return TransactionInput{Hash: t.Hash, Raw: t.Input, From: t.From, To: t.To}
}

// ExternalReceipt is a transaction receipt exactly as returned by the
// upstream node's eth_getTransactionReceipt: the reconciliation oracle
// that import_external checks local EVM execution against.
type ExternalReceipt struct {
	TransactionHash   Hash          `json:"transactionHash"`
	TransactionIndex  uint64        `json:"transactionIndex"`
	BlockHash         Hash          `json:"blockHash"`
	BlockNumber       BlockNumber   `json:"blockNumber"`
	From              Address       `json:"from"`
	To                *Address      `json:"to"`
	CumulativeGasUsed Gas           `json:"cumulativeGasUsed"`
	GasUsed           Gas           `json:"gasUsed"`
	ContractAddress   *Address      `json:"contractAddress"`
	Logs              []ExternalLog `json:"logs"`
	LogsBloom         LogsBloom     `json:"logsBloom"`
	Status            Gas           `json:"status"` // 0x0 or 0x1, shares Gas's hex quantity codec
}

func (r ExternalReceipt) IsSuccess() bool { return r.Status.Uint64() == 1 }

func (r ExternalReceipt) ExecutionResult() ExecutionResult {
	if r.IsSuccess() {
		return ExecutionSuccess
	}
	return ExecutionRevert
}

// ExternalLog is a log entry embedded in an ExternalReceipt.
type ExternalLog struct {
	Address Address `json:"address"`
	Topics  []Hash  `json:"topics"`
	Data    Bytes   `json:"data"`
	LogIndex uint64 `json:"logIndex"`
}

func (l ExternalLog) ToLog() Log { return Log{Address: l.Address, Data: l.Data, Topics: l.Topics} }

// ExternalReceipts indexes a batch of fetched receipts by transaction hash,
// the shape import_external consumes so it can pull a transaction's
// receipt in hash order without scanning.
type ExternalReceipts map[Hash]ExternalReceipt

func NewExternalReceipts(receipts []ExternalReceipt) ExternalReceipts {
	out := make(ExternalReceipts, len(receipts))
	for _, r := range receipts {
		out[r.TransactionHash] = r
	}
	return out
}

// Take removes and returns the receipt for hash, mirroring the Rust
// source's HashMap::remove semantics: each receipt is consumed exactly
// once as its transaction is replayed.
func (r ExternalReceipts) Take(hash Hash) (ExternalReceipt, bool) {
	receipt, ok := r[hash]
	if ok {
		delete(r, hash)
	}
	return receipt, ok
}
