package primitives

// ValueChange represents the before/after of a single field touched by a
// transaction's execution. Original == nil means the field (or the whole
// account/slot) did not exist before the transaction.
type ValueChange[T any] struct {
	Original *T
	Modified *T
}

// IsModified reports whether Modified is set and differs from Original,
// per the spec's definition of "modified" (nil Modified never counts).
func (c ValueChange[T]) IsModified(equal func(a, b T) bool) bool {
	if c.Modified == nil {
		return false
	}
	if c.Original == nil {
		return true
	}
	return !equal(*c.Original, *c.Modified)
}

func ValueChangeFromModified[T any](v T) ValueChange[T] {
	return ValueChange[T]{Modified: &v}
}

func ValueChangeFromOriginal[T any](v T) ValueChange[T] {
	return ValueChange[T]{Original: &v}
}

func weiEqual(a, b Wei) bool { return a.Cmp(b) == 0 }

func u64Equal(a, b uint64) bool { return a == b }

func bytesEqual(a, b Bytes) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func slotEqual(a, b Slot) bool { return a.Index == b.Index && weiEqual(a.Value, b.Value) }

// ExecutionAccountChanges is the per-account diff produced by replaying one
// transaction: nonce/balance/bytecode changes plus every touched slot.
type ExecutionAccountChanges struct {
	Address  Address
	Nonce    ValueChange[uint64]
	Balance  ValueChange[Wei]
	Bytecode ValueChange[Bytes]
	CodeHash Hash
	Slots    map[SlotIndex]ValueChange[Slot]
}

func NewExecutionAccountChanges(address Address) ExecutionAccountChanges {
	return ExecutionAccountChanges{
		Address: address,
		Slots:   make(map[SlotIndex]ValueChange[Slot]),
	}
}

func (c ExecutionAccountChanges) NonceModified() bool   { return c.Nonce.IsModified(u64Equal) }
func (c ExecutionAccountChanges) BalanceModified() bool  { return c.Balance.IsModified(weiEqual) }
func (c ExecutionAccountChanges) BytecodeModified() bool { return c.Bytecode.IsModified(bytesEqual) }

func (c ExecutionAccountChanges) ModifiedSlots() []SlotIndex {
	out := make([]SlotIndex, 0, len(c.Slots))
	for idx, change := range c.Slots {
		if change.IsModified(slotEqual) {
			out = append(out, idx)
		}
	}
	return out
}

// ExecutionResult is the outcome class of a single transaction replay.
type ExecutionResult int

const (
	ExecutionSuccess ExecutionResult = iota
	ExecutionRevert
	ExecutionHalt
)

func (r ExecutionResult) String() string {
	switch r {
	case ExecutionSuccess:
		return "success"
	case ExecutionRevert:
		return "revert"
	case ExecutionHalt:
		return "halt"
	default:
		return "unknown"
	}
}

// EvmExecution is the outcome of replaying one transaction through the EVM.
type EvmExecution struct {
	Result  ExecutionResult
	Output  Bytes
	Gas     Gas
	Logs    []Log
	Changes map[Address]ExecutionAccountChanges
}

// Bloom derives the logs bloom filter from the execution's logs.
func (e EvmExecution) Bloom() LogsBloom {
	var bloom LogsBloom
	for _, log := range e.Logs {
		bloom.Add(log.Address, log.Topics...)
	}
	return bloom
}

// Log is a single EVM log emitted during execution, before it is mined
// into a block (see LogMined for the persisted, positioned form).
type Log struct {
	Address Address
	Data    Bytes
	Topics  []Hash // at most 4
}

// TransactionInput is the signed transaction as submitted (hash + raw form).
type TransactionInput struct {
	Hash Hash
	Raw  Bytes
	From Address
	To   *Address
}

// TransactionMined is a transaction together with its execution outcome and
// its position within a mined block.
type TransactionMined struct {
	Input            TransactionInput
	Execution        EvmExecution
	Logs             []LogMined
	TransactionIndex uint64
	BlockNumber      BlockNumber
	BlockHash        Hash
}

// LogMined is a Log positioned within its block and transaction.
type LogMined struct {
	Log              Log
	TransactionHash  Hash
	TransactionIndex uint64
	LogIndex         uint64
	BlockNumber      BlockNumber
	BlockHash        Hash
}

// ConflictKind enumerates the optimistic-concurrency violations save_block
// can detect. Slot and the former Pg-slot distinction are unified per the
// spec's redesign note; backend identity belongs in telemetry.
type ConflictKind int

const (
	ConflictNonce ConflictKind = iota
	ConflictBalance
	ConflictSlot
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictNonce:
		return "nonce"
	case ConflictBalance:
		return "balance"
	case ConflictSlot:
		return "slot"
	default:
		return "unknown"
	}
}

// LogFilter selects a range of mined logs, mirroring eth_getLogs params.
type LogFilter struct {
	FromBlock BlockNumber
	ToBlock   *BlockNumber
	Addresses []Address
	Topics    []Hash
}

// NewConflictErr reports the conflicts check's findings for a save_block
// attempt as a *ConflictError (see errors.go): save_block never partially
// applies when this is returned. Returns nil for an empty kind set.
func NewConflictErr(kinds []ConflictKind) error {
	if len(kinds) == 0 {
		return nil
	}
	return NewConflictError(kinds)
}

// StoragePointInTime selects whether a read observes the latest projection
// or a specific historical height.
type StoragePointInTime struct {
	Past  bool
	Block BlockNumber
}

// Present is the StoragePointInTime for the latest projection.
var Present = StoragePointInTime{}

func AtBlock(n BlockNumber) StoragePointInTime {
	return StoragePointInTime{Past: true, Block: n}
}
