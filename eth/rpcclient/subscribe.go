package rpcclient

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/infra/tracing"
)

type subscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type subscriptionNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

// Subscriber streams eth_subscribe("newHeads") notifications over a
// WebSocket connection, reconnecting after Config.Retry.InitialInterval
// when the connection drops.
type Subscriber struct {
	wsURL  string
	cfg    Config
	nextID atomic.Uint64
}

func NewSubscriber(wsURL string, cfg Config) *Subscriber {
	return &Subscriber{wsURL: wsURL, cfg: cfg}
}

// NewHeads streams decoded block headers from eth_subscribe("newHeads")
// onto the returned channel until ctx is cancelled. After a connection
// drop it waits Config.Retry.InitialInterval (a fixed delay) before
// reconnecting; the channel is closed only when ctx is done.
func (s *Subscriber) NewHeads(ctx context.Context) (<-chan primitives.BlockHeader, <-chan error) {
	headers := make(chan primitives.BlockHeader)
	errs := make(chan error, 1)

	go func() {
		defer close(headers)
		for {
			if ctx.Err() != nil {
				return
			}
			if err := s.streamOnce(ctx, headers); err != nil {
				select {
				case errs <- err:
				default:
				}
				tracing.Warn("newHeads subscription dropped, reconnecting", "error", err.Error())
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.Retry.InitialInterval):
			}
		}
	}()

	return headers, errs
}

func (s *Subscriber) streamOnce(ctx context.Context, headers chan<- primitives.BlockHeader) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return primitives.WrapError(primitives.KindTransport, "dial newHeads websocket", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	id := s.nextID.Add(1)
	sub := subscribeRequest{JSONRPC: "2.0", ID: id, Method: "eth_subscribe", Params: []interface{}{"newHeads"}}
	if err := conn.WriteJSON(sub); err != nil {
		return primitives.WrapError(primitives.KindTransport, "send eth_subscribe", err)
	}

	for {
		var notif subscriptionNotification
		if err := conn.ReadJSON(&notif); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return primitives.WrapError(primitives.KindTransport, "read newHeads notification", err)
		}
		if notif.Method != "eth_subscription" {
			continue
		}
		var external primitives.ExternalBlock
		if err := jsonLib.Unmarshal(notif.Params.Result, &external); err != nil {
			return primitives.WrapError(primitives.KindDeserialize, "decode newHeads header", err)
		}
		select {
		case headers <- external.Header():
		case <-ctx.Done():
			return nil
		}
	}
}
