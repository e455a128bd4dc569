package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/eth/storage/kvstore"
)

// scriptedEVM replays a fixed EvmExecution per transaction hash, so a test
// can drive the executor through an exact, repeatable sequence of account
// changes without a real EVM.
type scriptedEVM struct {
	byHash map[primitives.Hash]primitives.EvmExecution
}

func (e scriptedEVM) Run(ctx context.Context, tx primitives.ExternalTransaction, pit primitives.StoragePointInTime) (primitives.EvmExecution, error) {
	if exec, ok := e.byHash[tx.Hash]; ok {
		return exec, nil
	}
	return primitives.EvmExecution{Result: primitives.ExecutionSuccess}, nil
}

func testAddress(seed byte) primitives.Address {
	var addr primitives.Address
	for i := range addr {
		addr[i] = seed
	}
	return addr
}

func accountChangeBlock(number primitives.BlockNumber, addr primitives.Address, change primitives.ExecutionAccountChanges) (primitives.ExternalBlock, primitives.ExternalReceipts, scriptedEVM) {
	hash := primitives.Keccak256([]byte{byte(number)}, addr[:])
	txHash := primitives.Keccak256(hash[:], []byte("tx"))

	execution := primitives.EvmExecution{
		Result:  primitives.ExecutionSuccess,
		Gas:     21000,
		Changes: map[primitives.Address]primitives.ExecutionAccountChanges{addr: change},
	}

	block := primitives.ExternalBlock{
		Number: number,
		Hash:   hash,
		Transactions: []primitives.ExternalTransaction{
			{Hash: txHash, From: addr, Nonce: uint64(number), TxIndex: 0, BlockHash: hash, BlockNumber: number},
		},
	}
	receipts := primitives.NewExternalReceipts([]primitives.ExternalReceipt{
		{
			TransactionHash:  txHash,
			TransactionIndex: 0,
			BlockHash:        hash,
			BlockNumber:      number,
			From:             addr,
			GasUsed:          21000,
			Status:           primitives.Gas(1),
		},
	})
	evm := scriptedEVM{byHash: map[primitives.Hash]primitives.EvmExecution{txHash: execution}}
	return block, receipts, evm
}

func openExecutor(t *testing.T) (*Executor, *kvstore.Store) {
	t.Helper()
	store, err := kvstore.Open(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, nil), store
}

func TestImportExternalAppliesAccountChanges(t *testing.T) {
	ctx := context.Background()
	exec, store := openExecutor(t)
	addr := testAddress(0xaa)

	change := primitives.NewExecutionAccountChanges(addr)
	nonce := uint64(1)
	balance := primitives.NewWei(100)
	change.Nonce = primitives.ValueChange[uint64]{Modified: &nonce}
	change.Balance = primitives.ValueChange[primitives.Wei]{Modified: &balance}

	block, receipts, evm := accountChangeBlock(1, addr, change)
	exec.EVM = evm

	require.NoError(t, exec.ImportExternal(ctx, block, receipts))

	account, err := store.MaybeReadAccount(ctx, addr, primitives.Present)
	require.NoError(t, err)
	require.Equal(t, uint64(1), account.Nonce)
	require.Equal(t, 0, account.Balance.Cmp(primitives.NewWei(100)))
}

func TestImportExternalReconciliationMismatch(t *testing.T) {
	ctx := context.Background()
	exec, _ := openExecutor(t)
	addr := testAddress(0xbb)

	change := primitives.NewExecutionAccountChanges(addr)
	block, receipts, evm := accountChangeBlock(1, addr, change)
	// The scripted EVM reports success, but the receipt says it reverted:
	// reconcile must reject this as a status mismatch.
	for hash, receipt := range receipts {
		receipt.Status = primitives.Gas(0)
		receipts[hash] = receipt
	}
	exec.EVM = evm

	err := exec.ImportExternal(ctx, block, receipts)
	require.Error(t, err)
	require.Equal(t, primitives.KindExecutionMismatch, primitives.KindOf(err))
}

func TestImportExternalIdempotentResubmission(t *testing.T) {
	ctx := context.Background()
	exec, store := openExecutor(t)
	addr := testAddress(0xcc)

	baseNonce := uint64(1)
	baseBalance := primitives.NewWei(100)
	first := primitives.NewExecutionAccountChanges(addr)
	first.Nonce = primitives.ValueChange[uint64]{Modified: &baseNonce}
	first.Balance = primitives.ValueChange[primitives.Wei]{Modified: &baseBalance}
	block1, receipts1, evm1 := accountChangeBlock(1, addr, first)
	exec.EVM = evm1
	require.NoError(t, exec.ImportExternal(ctx, block1, receipts1))

	originalNonce, originalBalance := uint64(1), primitives.NewWei(100)
	modifiedNonce, modifiedBalance := uint64(2), primitives.NewWei(70)
	second := primitives.NewExecutionAccountChanges(addr)
	second.Nonce = primitives.ValueChange[uint64]{Original: &originalNonce, Modified: &modifiedNonce}
	second.Balance = primitives.ValueChange[primitives.Wei]{Original: &originalBalance, Modified: &modifiedBalance}
	block2, receipts2, evm2 := accountChangeBlock(2, addr, second)
	exec.EVM = evm2
	require.NoError(t, exec.ImportExternal(ctx, block2, receipts2))

	// Re-deliver the same upstream block a second time, as a crash-replay
	// would: original_* (1, 100) no longer matches current state (2, 70),
	// but modified_* does, so the resubmission must succeed as a no-op
	// rather than exhaust saveWithRetry's conflict retries.
	_, receipts2Again, evm2Again := accountChangeBlock(2, addr, second)
	exec.EVM = evm2Again
	require.NoError(t, exec.ImportExternal(ctx, block2, receipts2Again))

	account, err := store.MaybeReadAccount(ctx, addr, primitives.Present)
	require.NoError(t, err)
	require.Equal(t, uint64(2), account.Nonce)
	require.Equal(t, 0, account.Balance.Cmp(primitives.NewWei(70)))
}
