package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/stratus/eth/executor"
	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/eth/rpcclient"
	"github.com/erigontech/stratus/eth/storage/kvstore"
	"github.com/erigontech/stratus/infra/retry"
)

// noopEVM marks every transaction a no-op success with zero gas. The fake
// upstream's blocks carry no transactions, so no receipt is ever fetched.
type noopEVM struct{}

func (noopEVM) Run(ctx context.Context, tx primitives.ExternalTransaction, pit primitives.StoragePointInTime) (primitives.EvmExecution, error) {
	return primitives.EvmExecution{Result: primitives.ExecutionSuccess}, nil
}

func TestImporterRunStopsAtUpstreamTip(t *testing.T) {
	const tip = 3

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
			ID     uint64        `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Method {
		case "eth_getBlockByNumber":
			numberHex := req.Params[0].(string)
			number, err := primitives.ParseBlockNumber(numberHex)
			require.NoError(t, err)
			if number.Uint64() > tip {
				fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":null}`, req.ID)
				return
			}
			hash := primitives.Keccak256([]byte(numberHex))
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{"number":"%s","hash":"%s","transactions":[]}}`, req.ID, number.String(), hash.String())
		default:
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"unexpected method"}}`, req.ID)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	store, err := kvstore.Open(filepath.Join(dir, "data"))
	require.NoError(t, err)
	defer store.Close()

	rpc := rpcclient.New(rpcclient.Config{URL: srv.URL, Timeout: time.Second, Retry: retry.DefaultConfig})
	exec := executor.New(store, noopEVM{})
	imp := New(rpc, exec, store, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = imp.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	mined, err := store.ReadMinedBlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, primitives.BlockNumber(tip), mined)
}
