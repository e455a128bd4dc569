package primitives

// Block is an ordered sequence of mined transactions under one header.
// Invariants: every transaction's BlockNumber/BlockHash match the header,
// and TransactionIndex is dense starting at 0 in slice order.
type Block struct {
	Header       BlockHeader
	Transactions []TransactionMined
}

func (b Block) Number() BlockNumber { return b.Header.Number }
func (b Block) Hash() Hash          { return b.Header.Hash }

// AccountChanges flattens every transaction's per-account diffs into one
// map per address, folding original/modified across the whole block: the
// original is the earliest original seen, the modified is the latest
// modified seen. This is what save_block and the dependency DAG consume.
func (b Block) AccountChanges() []ExecutionAccountChanges {
	byAddress := make(map[Address]*ExecutionAccountChanges)
	order := make([]Address, 0)

	for _, tx := range b.Transactions {
		for addr, change := range tx.Execution.Changes {
			existing, ok := byAddress[addr]
			if !ok {
				merged := change
				merged.Slots = make(map[SlotIndex]ValueChange[Slot], len(change.Slots))
				for idx, sc := range change.Slots {
					merged.Slots[idx] = sc
				}
				byAddress[addr] = &merged
				order = append(order, addr)
				continue
			}
			mergeValueChange(&existing.Nonce, change.Nonce)
			mergeValueChange(&existing.Balance, change.Balance)
			mergeValueChange(&existing.Bytecode, change.Bytecode)
			if change.CodeHash != (Hash{}) {
				existing.CodeHash = change.CodeHash
			}
			for idx, sc := range change.Slots {
				if prior, ok := existing.Slots[idx]; ok {
					mergeValueChange(&prior, sc)
					existing.Slots[idx] = prior
				} else {
					existing.Slots[idx] = sc
				}
			}
		}
	}

	out := make([]ExecutionAccountChanges, 0, len(order))
	for _, addr := range order {
		out = append(out, *byAddress[addr])
	}
	return out
}

func mergeValueChange[T any](dst *ValueChange[T], src ValueChange[T]) {
	if dst.Original == nil {
		dst.Original = src.Original
	}
	if src.Modified != nil {
		dst.Modified = src.Modified
	}
}

// BlockSelectionKind discriminates how a block is looked up via read_block.
type BlockSelectionKind int

const (
	SelectLatest BlockSelectionKind = iota
	SelectEarliest
	SelectByHash
	SelectByNumber
)

type BlockSelection struct {
	Kind   BlockSelectionKind
	Hash   Hash
	Number BlockNumber
}

func SelectBlockLatest() BlockSelection   { return BlockSelection{Kind: SelectLatest} }
func SelectBlockEarliest() BlockSelection { return BlockSelection{Kind: SelectEarliest} }
func SelectBlockByHash(h Hash) BlockSelection {
	return BlockSelection{Kind: SelectByHash, Hash: h}
}
func SelectBlockByNumber(n BlockNumber) BlockSelection {
	return BlockSelection{Kind: SelectByNumber, Number: n}
}
