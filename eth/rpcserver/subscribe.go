package rpcserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/infra/tracing"
)

// PollInterval bounds how often a WebSocket connection polls storage for
// newly mined blocks, standing in for the original's internal pub/sub
// since eth/storage never raises an event: the notification is derived
// purely from the highest mined block number advancing.
var PollInterval = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type subscribeParams [1]string

type subscriptionNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  struct {
		Subscription string      `json:"subscription"`
		Result       interface{} `json:"result"`
	} `json:"params"`
}

func (s *Server) handleWebSocketUpgrade(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if r.Header.Get("Upgrade") == "" {
		http.NotFound(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		tracing.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var mu sync.Mutex
	subs := make(map[string]string) // subscription id -> kind ("newHeads" | "logs")
	nextID := 1

	go s.broadcastLoop(ctx, conn, &mu, subs)

	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Method != "eth_subscribe" {
			writeWSError(conn, req.ID, codeMethodNotFound, "only eth_subscribe is supported over websocket")
			continue
		}
		var p subscribeParams
		if err := decodeParams(req.Params, &p); err != nil {
			writeWSError(conn, req.ID, codeInvalidParams, err.Error())
			continue
		}
		if p[0] != "newHeads" && p[0] != "logs" {
			writeWSError(conn, req.ID, codeInvalidParams, "unsupported subscription kind "+p[0])
			continue
		}

		mu.Lock()
		id := subscriptionID(nextID)
		nextID++
		subs[id] = p[0]
		mu.Unlock()

		writeResultWS(conn, req.ID, id)
	}
}

func subscriptionID(n int) string {
	return "0x" + string(rune('a'+n%26)) + primitives.Keccak256([]byte{byte(n)}).String()[2:10]
}

// broadcastLoop polls storage for the highest mined block and pushes a
// notification to every live subscription whenever it advances.
func (s *Server) broadcastLoop(ctx context.Context, conn *websocket.Conn, mu *sync.Mutex, subs map[string]string) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var last primitives.BlockNumber
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		number, err := s.Storage.ReadMinedBlockNumber(ctx)
		if err != nil || number <= last {
			continue
		}
		block, err := s.Storage.ReadBlock(ctx, primitives.SelectBlockByNumber(number))
		if err != nil || block == nil {
			continue
		}
		last = number

		mu.Lock()
		snapshot := make(map[string]string, len(subs))
		for id, kind := range subs {
			snapshot[id] = kind
		}
		mu.Unlock()

		for id, kind := range snapshot {
			switch kind {
			case "newHeads":
				sendNotification(conn, id, block.Header)
			case "logs":
				for _, tx := range block.Transactions {
					for _, log := range tx.Logs {
						sendNotification(conn, id, log)
					}
				}
			}
		}
	}
}

func sendNotification(conn *websocket.Conn, subID string, result interface{}) {
	var notif subscriptionNotification
	notif.JSONRPC = "2.0"
	notif.Method = "eth_subscription"
	notif.Params.Subscription = subID
	notif.Params.Result = result
	conn.WriteJSON(notif)
}

func writeResultWS(conn *websocket.Conn, id json.RawMessage, result interface{}) {
	conn.WriteJSON(response{JSONRPC: "2.0", ID: id, Result: result})
}

func writeWSError(conn *websocket.Conn, id json.RawMessage, code int, message string) {
	conn.WriteJSON(response{JSONRPC: "2.0", ID: id, Error: &errorObject{Code: code, Message: message}})
}
