package rpcserver

import (
	"context"
	"encoding/json"

	"github.com/erigontech/stratus/eth/primitives"
)

func (s *Server) ethBlockNumber(ctx context.Context) (interface{}, error) {
	number, err := s.Storage.ReadMinedBlockNumber(ctx)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInternal, "read mined block number", err)
	}
	return number.String(), nil
}

type blockByNumberParams [2]interface{}

func (s *Server) ethGetBlockByNumber(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p []json.RawMessage
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p) < 1 {
		return nil, primitives.NewError(primitives.KindInvalidArgument, "eth_getBlockByNumber: missing block tag")
	}
	selection, err := parseBlockSelection(p[0])
	if err != nil {
		return nil, err
	}
	return s.readBlock(ctx, selection)
}

func (s *Server) ethGetBlockByHash(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p []string
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p) < 1 {
		return nil, primitives.NewError(primitives.KindInvalidArgument, "eth_getBlockByHash: missing hash")
	}
	hash, err := primitives.ParseHash(p[0])
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInvalidArgument, "malformed block hash", err)
	}
	return s.readBlock(ctx, primitives.SelectBlockByHash(hash))
}

func (s *Server) readBlock(ctx context.Context, selection primitives.BlockSelection) (interface{}, error) {
	block, err := s.Storage.ReadBlock(ctx, selection)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInternal, "read block", err)
	}
	if block == nil {
		return nil, nil
	}
	return block, nil
}

// parseBlockSelection accepts a quantity (hex or decimal) or the tags
// "latest"/"earliest"/"pending" (treated as latest, since there is no
// mempool concept here).
func parseBlockSelection(raw json.RawMessage) (primitives.BlockSelection, error) {
	var tag string
	if err := jsonLib.Unmarshal(raw, &tag); err != nil {
		return primitives.BlockSelection{}, primitives.NewError(primitives.KindInvalidArgument, "block tag must be a string")
	}
	switch tag {
	case "latest", "pending":
		return primitives.SelectBlockLatest(), nil
	case "earliest":
		return primitives.SelectBlockEarliest(), nil
	default:
		number, err := primitives.ParseBlockNumber(tag)
		if err != nil {
			return primitives.BlockSelection{}, primitives.WrapError(primitives.KindInvalidArgument, "malformed block quantity", err)
		}
		return primitives.SelectBlockByNumber(number), nil
	}
}

func (s *Server) ethGetTransactionByHash(ctx context.Context, params json.RawMessage) (interface{}, error) {
	hash, err := parseHashParam(params, "eth_getTransactionByHash")
	if err != nil {
		return nil, err
	}
	tx, err := s.Storage.ReadMinedTransaction(ctx, hash)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInternal, "read transaction", err)
	}
	if tx == nil {
		return nil, nil
	}
	return tx, nil
}

func (s *Server) ethGetTransactionReceipt(ctx context.Context, params json.RawMessage) (interface{}, error) {
	hash, err := parseHashParam(params, "eth_getTransactionReceipt")
	if err != nil {
		return nil, err
	}
	tx, err := s.Storage.ReadMinedTransaction(ctx, hash)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInternal, "read transaction receipt", err)
	}
	if tx == nil {
		return nil, nil
	}
	return tx, nil
}

func parseHashParam(params json.RawMessage, method string) (primitives.Hash, error) {
	var p []string
	if err := decodeParams(params, &p); err != nil {
		return primitives.Hash{}, err
	}
	if len(p) < 1 {
		return primitives.Hash{}, primitives.NewError(primitives.KindInvalidArgument, method+": missing hash")
	}
	hash, err := primitives.ParseHash(p[0])
	if err != nil {
		return primitives.Hash{}, primitives.WrapError(primitives.KindInvalidArgument, "malformed hash", err)
	}
	return hash, nil
}

func (s *Server) addressAndPit(params json.RawMessage, method string) (primitives.Address, primitives.StoragePointInTime, error) {
	var p []json.RawMessage
	if err := decodeParams(params, &p); err != nil {
		return primitives.Address{}, primitives.StoragePointInTime{}, err
	}
	if len(p) < 1 {
		return primitives.Address{}, primitives.StoragePointInTime{}, primitives.NewError(primitives.KindInvalidArgument, method+": missing address")
	}
	var addrHex string
	if err := jsonLib.Unmarshal(p[0], &addrHex); err != nil {
		return primitives.Address{}, primitives.StoragePointInTime{}, primitives.NewError(primitives.KindInvalidArgument, method+": malformed address")
	}
	address, err := primitives.ParseAddress(addrHex)
	if err != nil {
		return primitives.Address{}, primitives.StoragePointInTime{}, primitives.WrapError(primitives.KindInvalidArgument, "malformed address", err)
	}

	pit := primitives.Present
	if len(p) >= 2 {
		selection, err := parseBlockSelection(p[1])
		if err != nil {
			return primitives.Address{}, primitives.StoragePointInTime{}, err
		}
		if selection.Kind == primitives.SelectByNumber {
			pit = primitives.AtBlock(selection.Number)
		}
	}
	return address, pit, nil
}

func (s *Server) ethGetBalance(ctx context.Context, params json.RawMessage) (interface{}, error) {
	address, pit, err := s.addressAndPit(params, "eth_getBalance")
	if err != nil {
		return nil, err
	}
	account, err := s.Storage.MaybeReadAccount(ctx, address, pit)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInternal, "read account", err)
	}
	if account == nil {
		return primitives.NewWei(0).String(), nil
	}
	return account.Balance.String(), nil
}

func (s *Server) ethGetTransactionCount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	address, pit, err := s.addressAndPit(params, "eth_getTransactionCount")
	if err != nil {
		return nil, err
	}
	account, err := s.Storage.MaybeReadAccount(ctx, address, pit)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInternal, "read account", err)
	}
	if account == nil {
		return primitives.Gas(0).String(), nil
	}
	return primitives.Gas(account.Nonce).String(), nil
}

func (s *Server) ethGetCode(ctx context.Context, params json.RawMessage) (interface{}, error) {
	address, pit, err := s.addressAndPit(params, "eth_getCode")
	if err != nil {
		return nil, err
	}
	account, err := s.Storage.MaybeReadAccount(ctx, address, pit)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInternal, "read account", err)
	}
	if account == nil {
		return primitives.Bytes{}.String(), nil
	}
	return account.Bytecode.String(), nil
}

func (s *Server) ethGetStorageAt(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p []json.RawMessage
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p) < 2 {
		return nil, primitives.NewError(primitives.KindInvalidArgument, "eth_getStorageAt: missing address/index")
	}
	var addrHex, indexHex string
	if err := jsonLib.Unmarshal(p[0], &addrHex); err != nil {
		return nil, primitives.NewError(primitives.KindInvalidArgument, "malformed address")
	}
	if err := jsonLib.Unmarshal(p[1], &indexHex); err != nil {
		return nil, primitives.NewError(primitives.KindInvalidArgument, "malformed slot index")
	}
	address, err := primitives.ParseAddress(addrHex)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInvalidArgument, "malformed address", err)
	}
	indexValue, err := primitives.ParseBlockNumber(indexHex) // shares hex/decimal quantity parsing
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInvalidArgument, "malformed slot index", err)
	}
	index := primitives.SlotIndexFromUint64(indexValue.Uint64())

	pit := primitives.Present
	if len(p) >= 3 {
		selection, err := parseBlockSelection(p[2])
		if err != nil {
			return nil, err
		}
		if selection.Kind == primitives.SelectByNumber {
			pit = primitives.AtBlock(selection.Number)
		}
	}

	slot, err := s.Storage.MaybeReadSlot(ctx, address, index, pit)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInternal, "read slot", err)
	}
	if slot == nil {
		return primitives.NewWei(0).String(), nil
	}
	return slot.Value.String(), nil
}

func (s *Server) ethGetLogs(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p []struct {
		FromBlock string   `json:"fromBlock"`
		ToBlock   string   `json:"toBlock"`
		Address   []string `json:"address"`
		Topics    []string `json:"topics"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p) < 1 {
		return nil, primitives.NewError(primitives.KindInvalidArgument, "eth_getLogs: missing filter")
	}

	filter := primitives.LogFilter{}
	if p[0].FromBlock != "" {
		n, err := primitives.ParseBlockNumber(p[0].FromBlock)
		if err != nil {
			return nil, primitives.WrapError(primitives.KindInvalidArgument, "malformed fromBlock", err)
		}
		filter.FromBlock = n
	}
	if p[0].ToBlock != "" && p[0].ToBlock != "latest" {
		n, err := primitives.ParseBlockNumber(p[0].ToBlock)
		if err != nil {
			return nil, primitives.WrapError(primitives.KindInvalidArgument, "malformed toBlock", err)
		}
		filter.ToBlock = &n
	}
	for _, a := range p[0].Address {
		addr, err := primitives.ParseAddress(a)
		if err != nil {
			return nil, primitives.WrapError(primitives.KindInvalidArgument, "malformed log address", err)
		}
		filter.Addresses = append(filter.Addresses, addr)
	}
	for _, t := range p[0].Topics {
		h, err := primitives.ParseHash(t)
		if err != nil {
			return nil, primitives.WrapError(primitives.KindInvalidArgument, "malformed log topic", err)
		}
		filter.Topics = append(filter.Topics, h)
	}

	logs, err := s.Storage.ReadLogs(ctx, filter)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInternal, "read logs", err)
	}
	return logs, nil
}

// decodeSignedTransaction derives the minimal ExternalTransaction shape
// the executor's EVM collaborator needs from a raw signed transaction.
// Full RLP decoding and ECDSA sender recovery are EVM-adjacent concerns
// that belong to the EVM collaborator itself (out of this repository's
// scope, see eth/executor.EVM); here we only need a stable hash to
// track the submission by.
func decodeSignedTransaction(raw primitives.Bytes) (primitives.ExternalTransaction, error) {
	if raw.IsEmpty() {
		return primitives.ExternalTransaction{}, primitives.NewError(primitives.KindInvalidArgument, "empty raw transaction")
	}
	return primitives.ExternalTransaction{
		Hash:  primitives.Keccak256(raw),
		Input: raw,
	}, nil
}

func (s *Server) ethSendRawTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := s.requireLeader(); err != nil {
		return nil, err
	}
	var p []string
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p) < 1 {
		return nil, primitives.NewError(primitives.KindInvalidArgument, "eth_sendRawTransaction: missing raw tx")
	}
	var raw primitives.Bytes
	if err := raw.UnmarshalText([]byte(p[0])); err != nil {
		return nil, primitives.WrapError(primitives.KindInvalidArgument, "malformed raw transaction", err)
	}

	tx, err := decodeSignedTransaction(raw)
	if err != nil {
		return nil, err
	}

	if s.Exec == nil {
		return nil, primitives.NewError(primitives.KindInternal, "no executor wired for local mining")
	}
	block, err := s.Exec.LocalMine(ctx, []primitives.ExternalTransaction{tx}, primitives.Now())
	if err != nil {
		return nil, primitives.WrapError(primitives.KindInternal, "local mine failed", err)
	}
	return block.Transactions[0].Input.Hash.String(), nil
}
