package kvstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/stratus/eth/primitives"
)

func testAddress(t *testing.T, seed byte) primitives.Address {
	t.Helper()
	var addr primitives.Address
	for i := range addr {
		addr[i] = seed
	}
	return addr
}

// buildBlock wraps a single account change into a one-transaction block at
// number, mirroring how the executor assembles a Block from a replayed
// transaction's ExecutionAccountChanges.
func buildBlock(number primitives.BlockNumber, change primitives.ExecutionAccountChanges) primitives.Block {
	header := primitives.NewBlockHeader(number, primitives.UnixTime(number))
	tx := primitives.TransactionMined{
		Input:            primitives.TransactionInput{Hash: primitives.Keccak256(header.Hash[:], []byte{byte(number)})},
		Execution:        primitives.EvmExecution{Result: primitives.ExecutionSuccess, Changes: map[primitives.Address]primitives.ExecutionAccountChanges{change.Address: change}},
		TransactionIndex: 0,
		BlockNumber:      number,
		BlockHash:        header.Hash,
	}
	return primitives.Block{Header: header, Transactions: []primitives.TransactionMined{tx}}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMaybeReadAccountAcrossMultipleBlocks(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	addr := testAddress(t, 0xaa)

	change1 := primitives.NewExecutionAccountChanges(addr)
	change1.Nonce = primitives.ValueChange[uint64]{Modified: ptrU64(1)}
	change1.Balance = primitives.ValueChange[primitives.Wei]{Modified: ptrWei(primitives.NewWei(100))}
	require.NoError(t, store.SaveBlock(ctx, buildBlock(1, change1)))

	change2 := primitives.NewExecutionAccountChanges(addr)
	change2.Nonce = primitives.ValueChange[uint64]{Original: ptrU64(1), Modified: ptrU64(2)}
	change2.Balance = primitives.ValueChange[primitives.Wei]{Original: ptrWei(primitives.NewWei(100)), Modified: ptrWei(primitives.NewWei(70))}
	require.NoError(t, store.SaveBlock(ctx, buildBlock(2, change2)))

	change3 := primitives.NewExecutionAccountChanges(addr)
	change3.Nonce = primitives.ValueChange[uint64]{Original: ptrU64(2), Modified: ptrU64(3)}
	change3.Balance = primitives.ValueChange[primitives.Wei]{Original: ptrWei(primitives.NewWei(70)), Modified: ptrWei(primitives.NewWei(40))}
	require.NoError(t, store.SaveBlock(ctx, buildBlock(3, change3)))

	present, err := store.MaybeReadAccount(ctx, addr, primitives.Present)
	require.NoError(t, err)
	require.Equal(t, uint64(3), present.Nonce)
	require.Equal(t, 0, present.Balance.Cmp(primitives.NewWei(40)))

	at1, err := store.MaybeReadAccount(ctx, addr, primitives.AtBlock(1))
	require.NoError(t, err)
	require.Equal(t, uint64(1), at1.Nonce)
	require.Equal(t, 0, at1.Balance.Cmp(primitives.NewWei(100)))

	at2, err := store.MaybeReadAccount(ctx, addr, primitives.AtBlock(2))
	require.NoError(t, err)
	require.Equal(t, uint64(2), at2.Nonce)
	require.Equal(t, 0, at2.Balance.Cmp(primitives.NewWei(70)))
}

func TestResetAtTruncatesHistoryAndRewindsLatest(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	addr := testAddress(t, 0xbb)
	idx := primitives.SlotIndexFromUint64(7)

	change1 := primitives.NewExecutionAccountChanges(addr)
	change1.Nonce = primitives.ValueChange[uint64]{Modified: ptrU64(1)}
	change1.Slots[idx] = primitives.ValueChange[primitives.Slot]{Modified: &primitives.Slot{Index: idx, Value: primitives.NewWei(10)}}
	require.NoError(t, store.SaveBlock(ctx, buildBlock(1, change1)))

	change2 := primitives.NewExecutionAccountChanges(addr)
	change2.Nonce = primitives.ValueChange[uint64]{Original: ptrU64(1), Modified: ptrU64(2)}
	change2.Slots[idx] = primitives.ValueChange[primitives.Slot]{Original: &primitives.Slot{Index: idx, Value: primitives.NewWei(10)}, Modified: &primitives.Slot{Index: idx, Value: primitives.NewWei(20)}}
	require.NoError(t, store.SaveBlock(ctx, buildBlock(2, change2)))

	change3 := primitives.NewExecutionAccountChanges(addr)
	change3.Nonce = primitives.ValueChange[uint64]{Original: ptrU64(2), Modified: ptrU64(3)}
	change3.Slots[idx] = primitives.ValueChange[primitives.Slot]{Original: &primitives.Slot{Index: idx, Value: primitives.NewWei(20)}, Modified: &primitives.Slot{Index: idx, Value: primitives.NewWei(30)}}
	require.NoError(t, store.SaveBlock(ctx, buildBlock(3, change3)))

	require.NoError(t, store.ResetAt(ctx, 2))

	mined, err := store.ReadMinedBlockNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, primitives.BlockNumber(2), mined)

	present, err := store.MaybeReadAccount(ctx, addr, primitives.Present)
	require.NoError(t, err)
	require.Equal(t, uint64(2), present.Nonce)

	slot, err := store.MaybeReadSlot(ctx, addr, idx, primitives.Present)
	require.NoError(t, err)
	require.Equal(t, 0, slot.Value.Cmp(primitives.NewWei(20)))

	// history above block 2 was truncated: querying block 3's height can no
	// longer resolve to the pre-reset nonce/value at block 3.
	pastAcc, err := store.MaybeReadAccount(ctx, addr, primitives.AtBlock(3))
	require.NoError(t, err)
	require.Equal(t, uint64(2), pastAcc.Nonce)

	pastSlot, err := store.MaybeReadSlot(ctx, addr, idx, primitives.AtBlock(3))
	require.NoError(t, err)
	require.Equal(t, 0, pastSlot.Value.Cmp(primitives.NewWei(20)))
}

func TestSaveBlockIdempotentResubmissionVsConflict(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	addr := testAddress(t, 0xcc)

	change1 := primitives.NewExecutionAccountChanges(addr)
	change1.Nonce = primitives.ValueChange[uint64]{Modified: ptrU64(1)}
	change1.Balance = primitives.ValueChange[primitives.Wei]{Modified: ptrWei(primitives.NewWei(100))}
	require.NoError(t, store.SaveBlock(ctx, buildBlock(1, change1)))

	change2 := primitives.NewExecutionAccountChanges(addr)
	change2.Nonce = primitives.ValueChange[uint64]{Original: ptrU64(1), Modified: ptrU64(2)}
	change2.Balance = primitives.ValueChange[primitives.Wei]{Original: ptrWei(primitives.NewWei(100)), Modified: ptrWei(primitives.NewWei(70))}
	block2 := buildBlock(2, change2)
	require.NoError(t, store.SaveBlock(ctx, block2))

	// Resubmitting the identical block must succeed idempotently: the
	// stored value already equals modified_*, so it is a no-op, not a
	// conflict, even though original_* (100) no longer matches current (70).
	require.NoError(t, store.SaveBlock(ctx, block2))

	account, err := store.MaybeReadAccount(ctx, addr, primitives.Present)
	require.NoError(t, err)
	require.Equal(t, uint64(2), account.Nonce)
	require.Equal(t, 0, account.Balance.Cmp(primitives.NewWei(70)))

	// A genuinely stale write: original_* still claims 100, but modified_*
	// asks for a different value than what is currently stored (70).
	staleChange := primitives.NewExecutionAccountChanges(addr)
	staleChange.Balance = primitives.ValueChange[primitives.Wei]{Original: ptrWei(primitives.NewWei(100)), Modified: ptrWei(primitives.NewWei(99))}
	err = store.SaveBlock(ctx, buildBlock(3, staleChange))
	require.Error(t, err)
	require.Equal(t, primitives.KindConflict, primitives.KindOf(err))
}

func ptrU64(v uint64) *uint64 { return &v }
func ptrWei(v primitives.Wei) *primitives.Wei { return &v }
