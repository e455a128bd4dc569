package rpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/infra/retry"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL, Timeout: time.Second, Retry: retry.DefaultConfig})
}

func TestGetBlockByNumberNull(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	})
	raw, err := client.GetBlockByNumber(context.Background(), 99)
	require.NoError(t, err)
	assert.True(t, IsNull(raw))
}

func TestGetBlockByNumberDecodes(t *testing.T) {
	hash := primitives.Keccak256([]byte("block"))
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "eth_getBlockByNumber", req.Method)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"number":"0x1","hash":"` + hash.String() + `"}}`))
	})
	raw, err := client.GetBlockByNumber(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, IsNull(raw))

	block, err := DecodeBlock(raw)
	require.NoError(t, err)
	assert.Equal(t, primitives.BlockNumber(1), block.Number)
	assert.Equal(t, hash, block.Hash)
}

func TestCallPropagatesRPCError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params"}}`))
	})
	_, err := client.GetTransactionReceipt(context.Background(), primitives.ZeroHash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid params")
}

func TestCallRetriesTransportFailure(t *testing.T) {
	attempts := 0
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	})
	client.cfg.Retry = retry.Config{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 1.2}

	_, err := client.GetBlockByNumber(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestGetReceiptsSkipsMissing(t *testing.T) {
	present := primitives.Keccak256([]byte("present"))
	missing := primitives.Keccak256([]byte("missing"))

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		hash := req.Params[0].(string)
		if hash == present.String() {
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"transactionHash":"` + hash + `","status":"0x1"}}`))
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	})

	receipts, err := client.GetReceipts(context.Background(), []primitives.Hash{present, missing}, 2)
	require.NoError(t, err)
	_, ok := receipts.Take(present)
	assert.True(t, ok)
	_, ok = receipts.Take(missing)
	assert.False(t, ok)
}
