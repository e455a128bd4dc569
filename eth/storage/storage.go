// Package storage defines the PermanentStorage contract wired into the
// executor, importer, relayer and RPC server, and Open, which picks a
// backend by URL scheme.
// Two backends implement it: kvstore (embedded, bbolt) and sqlstore
// (modernc.org/sqlite via database/sql).
package storage

import (
	"context"
	"fmt"

	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/eth/storage/kvstore"
	"github.com/erigontech/stratus/eth/storage/sqlstore"
)

// PermanentStorage is the durable state engine every backend implements,
// exactly the operation set of the original RocksPermanentStorage /
// PostgresPermanentStorage trait impls.
type PermanentStorage interface {
	ReadMinedBlockNumber(ctx context.Context) (primitives.BlockNumber, error)
	IncrementBlockNumber(ctx context.Context) (primitives.BlockNumber, error)
	SetMinedBlockNumber(ctx context.Context, number primitives.BlockNumber) error

	MaybeReadAccount(ctx context.Context, address primitives.Address, pit primitives.StoragePointInTime) (*primitives.Account, error)
	MaybeReadSlot(ctx context.Context, address primitives.Address, index primitives.SlotIndex, pit primitives.StoragePointInTime) (*primitives.Slot, error)
	ReadBlock(ctx context.Context, selection primitives.BlockSelection) (*primitives.Block, error)
	ReadMinedTransaction(ctx context.Context, hash primitives.Hash) (*primitives.TransactionMined, error)
	ReadLogs(ctx context.Context, filter primitives.LogFilter) ([]primitives.LogMined, error)
	ReadSlotsSample(ctx context.Context, start, end primitives.BlockNumber, maxSamples, seed uint64) ([]primitives.SlotSample, error)

	SaveBlock(ctx context.Context, block primitives.Block) error
	SaveAccounts(ctx context.Context, accounts []primitives.Account) error
	ResetAt(ctx context.Context, number primitives.BlockNumber) error

	Close() error
}

// Open selects a PermanentStorage backend by URL scheme: file: for the
// embedded kvstore backend, sqlite: for the sqlstore backend.
func Open(ctx context.Context, rawURL string) (PermanentStorage, error) {
	scheme, path, err := splitURL(rawURL)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "file", "":
		return kvstore.Open(path)
	case "sqlite":
		return sqlstore.Open(ctx, path)
	default:
		return nil, fmt.Errorf("storage: unknown scheme %q", scheme)
	}
}

func splitURL(raw string) (scheme, path string, err error) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			return raw[:i], raw[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("storage: url %q has no scheme", raw)
}
