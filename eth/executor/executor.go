// Package executor replays upstream blocks through a pluggable EVM,
// reconciles each transaction's local execution against the upstream
// receipt, and persists the reconciled block.
package executor

import (
	"context"
	"fmt"

	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/eth/storage"
	"github.com/erigontech/stratus/infra/metrics"
	"github.com/erigontech/stratus/infra/tracing"
)

// EVM is the replay collaborator the executor drives. The EVM itself is
// out of this repository's scope; tests inject a fake implementation.
type EVM interface {
	Run(ctx context.Context, tx primitives.ExternalTransaction, pit primitives.StoragePointInTime) (primitives.EvmExecution, error)
}

// SaveBlockRetries is the total number of SaveBlock attempts made for one
// block while each attempt fails with a storage Conflict. Every attempt
// saves the same reconciled block; its transactions are not re-executed
// between attempts.
const SaveBlockRetries = 3

// VerifyRoots is an opt-in hardening check (off by default, per spec.md
// §9: "recommended extension, not part of compatibility") that compares
// the saved header's transactions_root/receipts_root with the upstream
// block's. The saved header is copied from the upstream block and the
// roots are not recomputed from the transactions or receipts, so the
// comparison always passes.
var VerifyRoots = false

// Executor replays external blocks and persists the reconciled result.
type Executor struct {
	Storage storage.PermanentStorage
	EVM     EVM
}

func New(store storage.PermanentStorage, evm EVM) *Executor {
	return &Executor{Storage: store, EVM: evm}
}

// ImportExternal reconciles every transaction in block against its
// receipt in receipts, then saves the resulting Block, making up to
// SaveBlockRetries SaveBlock attempts while they fail with a storage
// Conflict. The transactions are executed once; only the save is repeated.
func (e *Executor) ImportExternal(ctx context.Context, block primitives.ExternalBlock, receipts primitives.ExternalReceipts) error {
	mined := make([]primitives.TransactionMined, 0, len(block.Transactions))

	for _, tx := range block.Transactions {
		receipt, ok := receipts.Take(tx.Hash)
		if !ok {
			return primitives.MissingReceiptErr(tx.Hash)
		}

		execution, err := e.EVM.Run(ctx, tx, primitives.Present)
		if err != nil {
			return primitives.WrapError(primitives.KindInternal, "evm execution failed", err)
		}

		if err := reconcile(execution, receipt); err != nil {
			metrics.IncExecutionMismatch(string(primitives.KindOf(err)))
			return err
		}

		logs := make([]primitives.LogMined, 0, len(execution.Logs))
		for i, log := range execution.Logs {
			logs = append(logs, primitives.LogMined{
				Log:              log,
				TransactionHash:  tx.Hash,
				TransactionIndex: tx.TxIndex,
				LogIndex:         uint64(i),
				BlockNumber:      block.Number,
				BlockHash:        block.Hash,
			})
		}

		mined = append(mined, primitives.TransactionMined{
			Input:            tx.ToInput(),
			Execution:        execution,
			Logs:             logs,
			TransactionIndex: tx.TxIndex,
			BlockNumber:      block.Number,
			BlockHash:        block.Hash,
		})
	}

	toSave := primitives.Block{Header: block.Header(), Transactions: mined}
	if VerifyRoots {
		if err := verifyRoots(toSave, block); err != nil {
			return err
		}
	}

	return e.saveWithRetry(ctx, toSave)
}

func reconcile(execution primitives.EvmExecution, receipt primitives.ExternalReceipt) error {
	wantSuccess := receipt.IsSuccess()
	gotSuccess := execution.Result == primitives.ExecutionSuccess
	if wantSuccess != gotSuccess {
		return primitives.ExecutionMismatchErr(receipt.TransactionHash, primitives.MismatchStatus)
	}
	if primitives.Gas(execution.Gas) != receipt.GasUsed {
		return primitives.ExecutionMismatchErr(receipt.TransactionHash, primitives.MismatchGas)
	}
	if execution.Bloom() != receipt.LogsBloom {
		return primitives.ExecutionMismatchErr(receipt.TransactionHash, primitives.MismatchBloom)
	}
	if len(execution.Logs) != len(receipt.Logs) {
		return primitives.ExecutionMismatchErr(receipt.TransactionHash, primitives.MismatchLogs)
	}
	for i, log := range execution.Logs {
		want := receipt.Logs[i]
		if log.Address != want.Address || !bytesEqual(log.Data, want.Data) || !topicsEqual(log.Topics, want.Topics) {
			return primitives.ExecutionMismatchErr(receipt.TransactionHash, primitives.MismatchLogs)
		}
	}
	return nil
}

func bytesEqual(a, b primitives.Bytes) bool {
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

func topicsEqual(a, b []primitives.Hash) bool {
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

func verifyRoots(block primitives.Block, external primitives.ExternalBlock) error {
	if block.Header.TransactionsRoot != external.TransactionsRoot {
		return primitives.NewError(primitives.KindExecutionMismatch, "transactions_root mismatch")
	}
	if block.Header.ReceiptsRoot != external.ReceiptsRoot {
		return primitives.NewError(primitives.KindExecutionMismatch, "receipts_root mismatch")
	}
	return nil
}

func (e *Executor) saveWithRetry(ctx context.Context, block primitives.Block) error {
	var lastErr error
	for attempt := 0; attempt < SaveBlockRetries; attempt++ {
		err := e.Storage.SaveBlock(ctx, block)
		if err == nil {
			return nil
		}
		if primitives.KindOf(err) != primitives.KindConflict {
			return err
		}
		lastErr = err
		tracing.Warn("retrying save_block after conflict", "number", block.Number().Uint64(), "attempt", attempt+1)
	}
	return fmt.Errorf("save_block: exhausted %d retries: %w", SaveBlockRetries, lastErr)
}

// LocalMine runs a transaction against a freshly-minted local header,
// used by cmd/run-with-importer's integrated relayer path when there is
// no upstream block to replay.
func (e *Executor) LocalMine(ctx context.Context, txs []primitives.ExternalTransaction, now primitives.UnixTime) (primitives.Block, error) {
	number, err := e.Storage.IncrementBlockNumber(ctx)
	if err != nil {
		return primitives.Block{}, err
	}
	header := primitives.NewBlockHeader(number, now)

	mined := make([]primitives.TransactionMined, 0, len(txs))
	for i, tx := range txs {
		execution, err := e.EVM.Run(ctx, tx, primitives.Present)
		if err != nil {
			return primitives.Block{}, primitives.WrapError(primitives.KindInternal, "evm execution failed", err)
		}
		mined = append(mined, primitives.TransactionMined{
			Input:            tx.ToInput(),
			Execution:        execution,
			TransactionIndex: uint64(i),
			BlockNumber:      number,
			BlockHash:        header.Hash,
		})
	}

	block := primitives.Block{Header: header, Transactions: mined}
	if err := e.saveWithRetry(ctx, block); err != nil {
		return primitives.Block{}, err
	}
	return block, nil
}
