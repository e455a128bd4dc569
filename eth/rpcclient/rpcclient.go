// Package rpcclient is the outbound JSON-RPC client the importer and
// relayer use to talk to an upstream/leader node: eth_getBlockByNumber,
// eth_getTransactionReceipt, eth_sendRawTransaction over HTTP, plus an
// eth_subscribe("newHeads") stream over WebSocket.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/infra/retry"
)

var jsonLib = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonNull is the raw JSON the upstream node sends back for
// eth_getBlockByNumber/eth_getTransactionReceipt when the block or
// transaction hasn't been mined yet. The importer's polling loop treats
// this as "not yet, keep waiting" rather than an error.
var jsonNull = []byte("null")

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Config holds the client's endpoint, per-call timeout and retry shape.
type Config struct {
	URL     string
	Timeout time.Duration
	Retry   retry.Config
}

// Client is an HTTP JSON-RPC client. It is safe for concurrent use; every
// call gets its own request ID and its own context deadline derived from
// Config.Timeout.
type Client struct {
	cfg    Config
	http   *http.Client
	nextID atomic.Uint64
}

func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{},
	}
}

// call performs one JSON-RPC request, retrying transport-level failures
// (connection refused, timeout, non-2xx) via infra/retry, but never
// retrying an application-level RPC error (malformed params, etc).
func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	body, err := jsonLib.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInternal, "marshal rpc request", err)
	}

	var result json.RawMessage
	err = retry.Do(ctx, c.cfg.Retry, isTransportErr, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return primitives.WrapError(primitives.KindInternal, "build rpc request", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return primitives.WrapError(primitives.KindTransport, fmt.Sprintf("%s: transport failure", method), err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return primitives.NewError(primitives.KindTransport, fmt.Sprintf("%s: upstream returned status %d", method, resp.StatusCode))
		}

		var rpcResp response
		if err := jsonLib.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
			return primitives.WrapError(primitives.KindDeserialize, fmt.Sprintf("%s: decode rpc envelope", method), err)
		}
		if rpcResp.Error != nil {
			return rpcResp.Error
		}
		result = rpcResp.Result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func isTransportErr(err error) bool {
	if _, ok := err.(*rpcError); ok {
		return false
	}
	return primitives.KindOf(err) == primitives.KindTransport
}

// GetBlockByNumber calls eth_getBlockByNumber(number, true). The raw
// result is returned verbatim (including the literal `null` the upstream
// sends for an unmined block) so the importer can special-case it.
func (c *Client) GetBlockByNumber(ctx context.Context, number primitives.BlockNumber) (json.RawMessage, error) {
	return c.call(ctx, "eth_getBlockByNumber", []interface{}{number.String(), true})
}

// IsNull reports whether raw is the upstream's null sentinel.
func IsNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

// DecodeBlock unmarshals a non-null GetBlockByNumber result.
func DecodeBlock(raw json.RawMessage) (primitives.ExternalBlock, error) {
	var block primitives.ExternalBlock
	if err := jsonLib.Unmarshal(raw, &block); err != nil {
		return primitives.ExternalBlock{}, primitives.WrapError(primitives.KindDeserialize, "decode external block", err)
	}
	return block, nil
}

// GetTransactionReceipt calls eth_getTransactionReceipt(hash).
func (c *Client) GetTransactionReceipt(ctx context.Context, hash primitives.Hash) (json.RawMessage, error) {
	return c.call(ctx, "eth_getTransactionReceipt", []interface{}{hash.String()})
}

// DecodeReceipt unmarshals a non-null GetTransactionReceipt result.
func DecodeReceipt(raw json.RawMessage) (primitives.ExternalReceipt, error) {
	var receipt primitives.ExternalReceipt
	if err := jsonLib.Unmarshal(raw, &receipt); err != nil {
		return primitives.ExternalReceipt{}, primitives.WrapError(primitives.KindDeserialize, "decode external receipt", err)
	}
	return receipt, nil
}

// GetReceipts fetches every receipt in hashes, bounded to at most
// maxConcurrent in-flight requests at once. A missing/unmined receipt
// (null) is not an error: its hash is simply absent from the returned
// receipts, and callers decide whether that's fatal.
func (c *Client) GetReceipts(ctx context.Context, hashes []primitives.Hash, maxConcurrent int) (primitives.ExternalReceipts, error) {
	type result struct {
		receipt primitives.ExternalReceipt
		ok      bool
	}
	results := make([]result, len(hashes))
	sem := make(chan struct{}, maxConcurrent)
	errCh := make(chan error, len(hashes))

	for i, hash := range hashes {
		i, hash := i, hash
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			raw, err := c.GetTransactionReceipt(ctx, hash)
			if err != nil {
				errCh <- err
				return
			}
			if IsNull(raw) {
				errCh <- nil
				return
			}
			receipt, err := DecodeReceipt(raw)
			if err != nil {
				errCh <- err
				return
			}
			results[i] = result{receipt: receipt, ok: true}
			errCh <- nil
		}()
	}
	for range hashes {
		if err := <-errCh; err != nil {
			return nil, err
		}
	}

	list := make([]primitives.ExternalReceipt, 0, len(hashes))
	for _, r := range results {
		if r.ok {
			list = append(list, r.receipt)
		}
	}
	return primitives.NewExternalReceipts(list), nil
}

// SendRawTransaction calls eth_sendRawTransaction(rawTx) and returns the
// transaction hash the upstream assigned it.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx primitives.Bytes) (primitives.Hash, error) {
	raw, err := c.call(ctx, "eth_sendRawTransaction", []interface{}{rawTx.String()})
	if err != nil {
		return primitives.Hash{}, err
	}
	var hexHash string
	if err := jsonLib.Unmarshal(raw, &hexHash); err != nil {
		return primitives.Hash{}, primitives.WrapError(primitives.KindDeserialize, "decode sendRawTransaction result", err)
	}
	return primitives.ParseHash(hexHash)
}
