// Package importer runs the unbounded online-import loop: fetch the
// next upstream block, fetch its receipts with bounded parallelism,
// replay it through the executor, repeat.
package importer

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/erigontech/stratus/eth/executor"
	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/eth/rpcclient"
	"github.com/erigontech/stratus/eth/storage"
	"github.com/erigontech/stratus/infra/metrics"
	"github.com/erigontech/stratus/infra/retry"
	"github.com/erigontech/stratus/infra/tracing"
)

// ReceiptFetchConcurrency bounds the in-flight eth_getTransactionReceipt
// calls per block, per spec.md §4.4.
const ReceiptFetchConcurrency = 10

// Importer drives the online-import loop against an upstream RPC node.
type Importer struct {
	RPC          *rpcclient.Client
	Executor     *executor.Executor
	Storage      storage.PermanentStorage
	SyncInterval time.Duration
}

func New(rpc *rpcclient.Client, exec *executor.Executor, store storage.PermanentStorage, syncInterval time.Duration) *Importer {
	return &Importer{RPC: rpc, Executor: exec, Storage: store, SyncInterval: syncInterval}
}

// Run starts from storage's latest mined block + 1 and imports forever
// until ctx is cancelled. Each loop iteration checks ctx at its top, and
// ctx is also passed to the block and receipt fetches and to the
// executor, so a cancellation can end Run in the middle of a block.
func (imp *Importer) Run(ctx context.Context) error {
	mined, err := imp.Storage.ReadMinedBlockNumber(ctx)
	if err != nil {
		return primitives.WrapError(primitives.KindInternal, "read starting block number", err)
	}
	next := mined.Next()
	if mined == primitives.GenesisBlockNumber {
		next = primitives.FirstBlockNumber
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		block, err := imp.fetchBlock(ctx, next)
		if err != nil {
			return err
		}

		start := time.Now()
		receipts, err := imp.fetchReceipts(ctx, block)
		if err != nil {
			return err
		}

		if err := imp.Executor.ImportExternal(ctx, block, receipts); err != nil {
			return primitives.WrapError(primitives.KindInternal, "import_external failed", err)
		}

		metrics.IncImportOnline(next.Uint64(), len(block.Transactions), time.Since(start))
		tracing.Info("imported block", "number", next.Uint64(), "transactions", len(block.Transactions))

		next = next.Next()
	}
}

// fetchBlock retries forever on transport error or on the upstream's
// null sentinel (block not yet mined), sleeping SyncInterval between
// null polls. Deserialization failure is fatal, per spec.md §4.4.
func (imp *Importer) fetchBlock(ctx context.Context, number primitives.BlockNumber) (primitives.ExternalBlock, error) {
	loopCtx, abort := context.WithCancel(ctx)
	defer abort()

	var block primitives.ExternalBlock
	var fatalErr error
	err := retry.Forever(loopCtx, imp.SyncInterval, func() (bool, error) {
		raw, err := imp.RPC.GetBlockByNumber(ctx, number)
		if err != nil {
			return false, err
		}
		if rpcclient.IsNull(raw) {
			return false, nil
		}
		decoded, err := rpcclient.DecodeBlock(raw)
		if err != nil {
			fatalErr = primitives.WrapError(primitives.KindDeserialize, "fatal: malformed block payload", err)
			abort()
			return false, fatalErr
		}
		block = decoded
		return true, nil
	}, func(err error) {
		tracing.Warn("fetch block failed, retrying", "number", number.Uint64(), "error", err.Error())
	})
	if fatalErr != nil {
		return primitives.ExternalBlock{}, fatalErr
	}
	if err != nil {
		return primitives.ExternalBlock{}, err
	}
	return block, nil
}

// fetchReceipts fetches every transaction's receipt with at most
// ReceiptFetchConcurrency in flight, each individual fetch retrying
// forever on transport error or null exactly like fetchBlock.
func (imp *Importer) fetchReceipts(ctx context.Context, block primitives.ExternalBlock) (primitives.ExternalReceipts, error) {
	sem := semaphore.NewWeighted(ReceiptFetchConcurrency)
	group, groupCtx := errgroup.WithContext(ctx)

	receipts := make([]primitives.ExternalReceipt, len(block.Transactions))
	for i, tx := range block.Transactions {
		i, tx := i, tx
		if err := sem.Acquire(groupCtx, 1); err != nil {
			return nil, err
		}
		group.Go(func() error {
			defer sem.Release(1)
			receipt, err := imp.fetchReceipt(groupCtx, tx.Hash)
			if err != nil {
				return err
			}
			receipts[i] = receipt
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return primitives.NewExternalReceipts(receipts), nil
}

func (imp *Importer) fetchReceipt(ctx context.Context, hash primitives.Hash) (primitives.ExternalReceipt, error) {
	loopCtx, abort := context.WithCancel(ctx)
	defer abort()

	var receipt primitives.ExternalReceipt
	var fatalErr error
	err := retry.Forever(loopCtx, imp.SyncInterval, func() (bool, error) {
		raw, err := imp.RPC.GetTransactionReceipt(ctx, hash)
		if err != nil {
			return false, err
		}
		if rpcclient.IsNull(raw) {
			return false, nil
		}
		decoded, err := rpcclient.DecodeReceipt(raw)
		if err != nil {
			fatalErr = primitives.WrapError(primitives.KindDeserialize, "fatal: malformed receipt payload", err)
			abort()
			return false, fatalErr
		}
		receipt = decoded
		return true, nil
	}, func(err error) {
		tracing.Warn("fetch receipt failed, retrying", "hash", hash.String(), "error", err.Error())
	})
	if fatalErr != nil {
		return primitives.ExternalReceipt{}, fatalErr
	}
	if err != nil {
		return primitives.ExternalReceipt{}, err
	}
	return receipt, nil
}
