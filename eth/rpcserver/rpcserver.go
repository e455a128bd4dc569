// Package rpcserver exposes the Ethereum JSON-RPC surface (spec.md §6)
// over HTTP, backed directly by eth/storage. Mutating methods first
// consult eth/consensus.Election: a follower rejects them with -32000.
package rpcserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	jsoniter "github.com/json-iterator/go"

	"github.com/erigontech/stratus/eth/consensus"
	"github.com/erigontech/stratus/eth/executor"
	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/eth/storage"
	"github.com/erigontech/stratus/infra/metrics"
)

var jsonLib = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeNotLeader      = -32000
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *errorObject    `json:"error,omitempty"`
}

type errorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ChainID is the value returned by eth_chainId/net_version. It is a
// deployment constant, not derived from upstream (the node never forks).
var ChainID uint64 = 1

// Server serves the JSON-RPC surface backed by storage, optionally
// executing locally-submitted transactions through exec when the node
// is the leader.
type Server struct {
	Storage  storage.PermanentStorage
	Exec     *executor.Executor
	Election consensus.Election
	router   *httprouter.Router
}

func New(store storage.PermanentStorage, exec *executor.Executor, election consensus.Election) *Server {
	s := &Server{Storage: store, Exec: exec, Election: election}
	s.router = httprouter.New()
	s.router.POST("/", s.handleHTTP)
	s.router.GET("/", s.handleWebSocketUpgrade)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req request
	if err := jsonLib.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, codeParseError, "parse error")
		return
	}

	start := time.Now()
	result, err := s.dispatch(r.Context(), req.Method, req.Params)
	metrics.RpcRequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		writeError(w, req.ID, mapErrorCode(err), err.Error())
		return
	}
	writeResult(w, req.ID, result)
}

func mapErrorCode(err error) int {
	switch primitives.KindOf(err) {
	case primitives.KindNotLeader:
		return codeNotLeader
	case primitives.KindInvalidArgument:
		return codeInvalidParams
	default:
		return codeInternal
	}
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	jsonLib.NewEncoder(w).Encode(response{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	jsonLib.NewEncoder(w).Encode(response{JSONRPC: "2.0", ID: id, Error: &errorObject{Code: code, Message: message}})
}

// dispatch routes one JSON-RPC call to its handler. JSON-RPC errors
// never leak stack traces: the error message is err.Error(), which
// includes a wrapped cause's text (formatted with %v) but not its stack.
func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case "eth_chainId":
		return primitives.Gas(ChainID).String(), nil
	case "net_version":
		return strconv.FormatUint(ChainID, 10), nil
	case "eth_blockNumber":
		return s.ethBlockNumber(ctx)
	case "eth_getBlockByNumber":
		return s.ethGetBlockByNumber(ctx, params)
	case "eth_getBlockByHash":
		return s.ethGetBlockByHash(ctx, params)
	case "eth_getTransactionByHash":
		return s.ethGetTransactionByHash(ctx, params)
	case "eth_getTransactionReceipt":
		return s.ethGetTransactionReceipt(ctx, params)
	case "eth_getBalance":
		return s.ethGetBalance(ctx, params)
	case "eth_getTransactionCount":
		return s.ethGetTransactionCount(ctx, params)
	case "eth_getCode":
		return s.ethGetCode(ctx, params)
	case "eth_getStorageAt":
		return s.ethGetStorageAt(ctx, params)
	case "eth_getLogs":
		return s.ethGetLogs(ctx, params)
	case "eth_sendRawTransaction":
		return s.ethSendRawTransaction(ctx, params)
	case "eth_call", "eth_estimateGas":
		// Out of scope: these require a live EVM against arbitrary
		// call data, not just transaction replay. Documented in
		// DESIGN.md rather than silently stubbed to a fake value.
		return nil, primitives.NewError(primitives.KindInvalidArgument, method+" is not supported: no standalone call-EVM wired")
	default:
		return nil, primitives.NewError(primitives.KindInvalidArgument, "unknown method "+method)
	}
}

func (s *Server) requireLeader() error {
	if s.Election != nil && s.Election.IsFollower() {
		return primitives.NewError(primitives.KindNotLeader, "node is follower")
	}
	return nil
}

func decodeParams(params json.RawMessage, out interface{}) error {
	if len(params) == 0 {
		return primitives.NewError(primitives.KindInvalidArgument, "missing params")
	}
	if err := jsonLib.Unmarshal(params, out); err != nil {
		return primitives.WrapError(primitives.KindInvalidArgument, "malformed params", err)
	}
	return nil
}
