package relayer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
	"golang.org/x/sync/errgroup"

	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/eth/rpcclient"
	"github.com/erigontech/stratus/eth/storage"
	"github.com/erigontech/stratus/infra/metrics"
	"github.com/erigontech/stratus/infra/tracing"
)

// relayStatus is the bookkeeping state of one enqueued block, persisted
// in the relayer's own sqlite-backed queue (a separate logical database
// from the node's PermanentStorage, per the original's
// ExternalRelayerClient/Server split).
type relayStatus string

const (
	statusPending  relayStatus = "pending"
	statusRelayed  relayStatus = "relayed"
	statusMismatch relayStatus = "mismatch"
)

const schema = `
CREATE TABLE IF NOT EXISTS relay_queue (
	block_number INTEGER PRIMARY KEY,
	block_hash   TEXT NOT NULL,
	status       TEXT NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	updated_at   INTEGER NOT NULL
);
`

// Client writes block numbers into the relay queue that the standalone
// relayer binary reads. No component in this repository opens a Client
// or calls Enqueue; saving a block does not enqueue it.
type Client struct {
	db *sql.DB
}

func OpenClient(ctx context.Context, dsn string) (*Client, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInternal, "open relay queue db", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, primitives.WrapError(primitives.KindInternal, "create relay queue schema", err)
	}
	return &Client{db: db}, nil
}

func (c *Client) Close() error { return c.db.Close() }

// Enqueue records number/hash as pending relay.
func (c *Client) Enqueue(ctx context.Context, number primitives.BlockNumber, hash primitives.Hash) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO relay_queue(block_number, block_hash, status, attempts, updated_at)
		 VALUES (?, ?, ?, 0, ?)
		 ON CONFLICT(block_number) DO NOTHING`,
		number.Uint64(), hash.String(), string(statusPending), time.Now().Unix())
	if err != nil {
		return primitives.WrapError(primitives.KindInternal, "enqueue relay block", err)
	}
	return nil
}

// pendingEntry is one row pulled off the queue for forwarding.
type pendingEntry struct {
	Number primitives.BlockNumber
	Hash   primitives.Hash
}

// Server is the standalone forwarding loop (cmd/relayer): it pulls
// pending blocks from its own queue and from the node's storage, DAG-
// orders each block's transactions, and forwards each wave upstream.
type Server struct {
	db              *sql.DB
	Storage         storage.PermanentStorage
	RPC             *rpcclient.Client
	BlocksToFetch   int
	MismatchBlocks  uint64
	forwardFn       func(ctx context.Context, rawTx primitives.Bytes) (primitives.Hash, error)
}

func OpenServer(ctx context.Context, dsn string, store storage.PermanentStorage, rpc *rpcclient.Client, blocksToFetch int) (*Server, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInternal, "open relay queue db", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, primitives.WrapError(primitives.KindInternal, "create relay queue schema", err)
	}
	s := &Server{db: db, Storage: store, RPC: rpc, BlocksToFetch: blocksToFetch}
	s.forwardFn = s.RPC.SendRawTransaction
	return s, nil
}

func (s *Server) Close() error { return s.db.Close() }

func (s *Server) pending(ctx context.Context) ([]pendingEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT block_number, block_hash FROM relay_queue WHERE status = ? ORDER BY block_number ASC LIMIT ?`,
		string(statusPending), s.BlocksToFetch)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInternal, "query pending relay blocks", err)
	}
	defer rows.Close()

	var out []pendingEntry
	for rows.Next() {
		var number uint64
		var hashHex string
		if err := rows.Scan(&number, &hashHex); err != nil {
			return nil, primitives.WrapError(primitives.KindInternal, "scan pending relay row", err)
		}
		hash, err := primitives.ParseHash(hashHex)
		if err != nil {
			return nil, primitives.WrapError(primitives.KindDeserialize, "parse relay queue hash", err)
		}
		out = append(out, pendingEntry{Number: primitives.BlockNumber(number), Hash: hash})
	}
	return out, rows.Err()
}

func (s *Server) markStatus(ctx context.Context, number primitives.BlockNumber, status relayStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE relay_queue SET status = ?, attempts = attempts + 1, updated_at = ? WHERE block_number = ?`,
		string(status), time.Now().Unix(), number.Uint64())
	return err
}

// RelayOnce pulls up to BlocksToFetch pending blocks and forwards each
// one's transactions, wave by wave, per spec.md §4.5.
func (s *Server) RelayOnce(ctx context.Context) error {
	entries, err := s.pending(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := s.relayBlock(ctx, entry); err != nil {
			tracing.Warn("relay block failed, leaving pending for retry", "number", entry.Number.Uint64(), "error", err.Error())
			continue
		}
	}
	return nil
}

func (s *Server) relayBlock(ctx context.Context, entry pendingEntry) error {
	block, err := s.Storage.ReadBlock(ctx, primitives.SelectBlockByNumber(entry.Number))
	if err != nil {
		return err
	}
	if block == nil {
		// Block no longer exists locally (reset_at rewound past it):
		// nothing to relay, drop it from the queue as relayed.
		return s.markStatus(ctx, entry.Number, statusRelayed)
	}

	dag := NewTransactionDag(block.Transactions)
	mismatches := 0
	for {
		wave := dag.TakeRoots()
		if wave == nil {
			break
		}

		group, groupCtx := errgroup.WithContext(ctx)
		for _, tx := range wave {
			tx := tx
			group.Go(func() error {
				upstreamHash, err := s.forwardFn(groupCtx, tx.Input.Raw)
				if err != nil {
					return err
				}
				if upstreamHash != tx.Input.Hash {
					mismatches++
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return primitives.WrapError(primitives.KindTransport, fmt.Sprintf("forward wave for block %d", entry.Number.Uint64()), err)
		}
	}

	if mismatches > 0 {
		metrics.IncExecutionMismatch("relay_hash_mismatch")
		return s.markStatus(ctx, entry.Number, statusMismatch)
	}
	return s.markStatus(ctx, entry.Number, statusRelayed)
}

// Cleanup drops queue entries for blocks that no longer exist in the
// node's storage, per spec.md §4.5's optional startup cleanup.
func (s *Server) Cleanup(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT block_number FROM relay_queue`)
	if err != nil {
		return primitives.WrapError(primitives.KindInternal, "query relay queue for cleanup", err)
	}
	var stale []uint64
	for rows.Next() {
		var number uint64
		if err := rows.Scan(&number); err != nil {
			rows.Close()
			return err
		}
		block, err := s.Storage.ReadBlock(ctx, primitives.SelectBlockByNumber(primitives.BlockNumber(number)))
		if err != nil {
			rows.Close()
			return err
		}
		if block == nil {
			stale = append(stale, number)
		}
	}
	rows.Close()

	for _, number := range stale {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM relay_queue WHERE block_number = ?`, number); err != nil {
			return primitives.WrapError(primitives.KindInternal, "delete stale relay queue row", err)
		}
	}
	return nil
}
