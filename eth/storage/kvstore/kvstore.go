// Package kvstore is the embedded PermanentStorage backend, keeping every
// logical namespace from spec.md's persisted-state-layout as its own
// bbolt bucket and writing a whole save_block as one bbolt Update
// transaction, which already gives the all-or-none guarantee the
// original backend hand-rolled across nine separate column families.
package kvstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	jsoniter "github.com/json-iterator/go"
	bolt "go.etcd.io/bbolt"

	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/infra/metrics"
)

// Bucket names, one per logical namespace in spec.md §6.
const (
	latestAccounts   = "latest_accounts"   // address -> account
	latestSlots      = "latest_slots"      // address+slot_index -> wei
	historyAccounts  = "history_accounts"  // address+block_number -> account
	historySlots     = "history_slots"     // address+slot_index+block_number -> wei
	blocksByNumber   = "blocks_by_number"  // block_number -> block (json)
	blocksByHash     = "blocks_by_hash"    // hash -> block_number
	transactionIndex = "transactions_index" // tx_hash -> block_number
	logIndex         = "logs_index"        // tx_hash+log_index -> block_number
	metaBucket       = "meta"              // "block_number" -> block_number
)

var allBuckets = []string{
	latestAccounts, latestSlots, historyAccounts, historySlots,
	blocksByNumber, blocksByHash, transactionIndex, logIndex, metaBucket,
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var blockNumberKey = []byte("block_number")

// Store is the bbolt-backed PermanentStorage implementation.
type Store struct {
	db   *bolt.DB
	flk  *flock.Flock
	mu   sync.Mutex // serializes conflict-check + write across goroutines
}

// Open opens (creating if absent) the bbolt database at path, guarded by
// an advisory file lock so two processes never open the same data
// directory concurrently.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("kvstore: create data dir: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("kvstore: acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("kvstore: data directory %q is locked by another process", path)
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("kvstore: open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("kvstore: create buckets: %w", err)
	}

	return &Store{db: db, flk: lock}, nil
}

func (s *Store) Close() error {
	err := s.db.Close()
	_ = s.flk.Unlock()
	return err
}

func accountKey(addr primitives.Address) []byte { return addr[:] }

func slotKey(addr primitives.Address, idx primitives.SlotIndex) []byte {
	key := make([]byte, 0, 52)
	key = append(key, addr[:]...)
	key = append(key, idx[:]...)
	return key
}

func historyAccountKey(addr primitives.Address, number primitives.BlockNumber) []byte {
	key := make([]byte, 0, 28)
	key = append(key, addr[:]...)
	buf := number.Bytes8()
	key = append(key, buf[:]...)
	return key
}

func historySlotKey(addr primitives.Address, idx primitives.SlotIndex, number primitives.BlockNumber) []byte {
	key := make([]byte, 0, 60)
	key = append(key, addr[:]...)
	key = append(key, idx[:]...)
	buf := number.Bytes8()
	key = append(key, buf[:]...)
	return key
}

func logKey(txHash primitives.Hash, logIdx uint64) []byte {
	key := make([]byte, 40)
	copy(key, txHash[:])
	binary.BigEndian.PutUint64(key[32:], logIdx)
	return key
}

type accountRecord struct {
	Nonce    uint64 `json:"nonce"`
	Balance  []byte `json:"balance"`
	Bytecode []byte `json:"bytecode,omitempty"`
	CodeHash []byte `json:"code_hash"`
}

func encodeAccount(a primitives.Account) []byte {
	rec := accountRecord{Nonce: a.Nonce, Balance: a.Balance.Bytes(), Bytecode: a.Bytecode, CodeHash: a.CodeHash[:]}
	b, _ := json.Marshal(rec)
	return b
}

func decodeAccount(addr primitives.Address, data []byte) (primitives.Account, error) {
	var rec accountRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return primitives.Account{}, err
	}
	var codeHash primitives.Hash
	copy(codeHash[:], rec.CodeHash)
	return primitives.Account{
		Address:  addr,
		Nonce:    rec.Nonce,
		Balance:  primitives.WeiFromBig(rec.Balance),
		Bytecode: rec.Bytecode,
		CodeHash: codeHash,
	}, nil
}

// ReadMinedBlockNumber returns the highest block number committed so far.
func (s *Store) ReadMinedBlockNumber(ctx context.Context) (primitives.BlockNumber, error) {
	var number primitives.BlockNumber
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(metaBucket)).Get(blockNumberKey)
		if v == nil {
			return nil
		}
		number = primitives.BlockNumber(binary.BigEndian.Uint64(v))
		return nil
	})
	return number, err
}

// IncrementBlockNumber atomically advances the counter and returns the
// new value, used by the local-mining path.
func (s *Store) IncrementBlockNumber(ctx context.Context) (primitives.BlockNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next primitives.BlockNumber
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(metaBucket))
		v := b.Get(blockNumberKey)
		var current uint64
		if v != nil {
			current = binary.BigEndian.Uint64(v)
		}
		next = primitives.BlockNumber(current + 1)
		buf := next.Bytes8()
		return b.Put(blockNumberKey, buf[:])
	})
	return next, err
}

func (s *Store) SetMinedBlockNumber(ctx context.Context, number primitives.BlockNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		buf := number.Bytes8()
		return tx.Bucket([]byte(metaBucket)).Put(blockNumberKey, buf[:])
	})
}

func (s *Store) MaybeReadAccount(ctx context.Context, address primitives.Address, pit primitives.StoragePointInTime) (*primitives.Account, error) {
	var out *primitives.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		if !pit.Past {
			v := tx.Bucket([]byte(latestAccounts)).Get(accountKey(address))
			if v == nil {
				return nil
			}
			acc, err := decodeAccount(address, v)
			if err != nil {
				return err
			}
			out = &acc
			return nil
		}

		c := tx.Bucket([]byte(historyAccounts)).Cursor()
		prefix := address[:]
		seekKey := historyAccountKey(address, pit.Block)
		k, v := c.Seek(seekKey)
		if k == nil || !hasPrefix(k, prefix) || !bytesEqual(k, seekKey) {
			k, v = c.Prev()
		}
		for k != nil && hasPrefix(k, prefix) {
			number := primitives.BlockNumber(binary.BigEndian.Uint64(k[len(prefix):]))
			if number <= pit.Block {
				acc, err := decodeAccount(address, v)
				if err != nil {
					return err
				}
				out = &acc
				return nil
			}
			k, v = c.Prev()
		}
		return nil
	})
	return out, err
}

func (s *Store) MaybeReadSlot(ctx context.Context, address primitives.Address, index primitives.SlotIndex, pit primitives.StoragePointInTime) (*primitives.Slot, error) {
	var out *primitives.Slot
	err := s.db.View(func(tx *bolt.Tx) error {
		if !pit.Past {
			v := tx.Bucket([]byte(latestSlots)).Get(slotKey(address, index))
			if v == nil {
				return nil
			}
			out = &primitives.Slot{Index: index, Value: primitives.WeiFromBig(v)}
			return nil
		}

		c := tx.Bucket([]byte(historySlots)).Cursor()
		prefix := slotKey(address, index)
		seekKey := historySlotKey(address, index, pit.Block)
		k, v := c.Seek(seekKey)
		if k == nil || !hasPrefix(k, prefix) || !bytesEqual(k, seekKey) {
			k, v = c.Prev()
		}
		for k != nil && hasPrefix(k, prefix) {
			number := primitives.BlockNumber(binary.BigEndian.Uint64(k[len(prefix):]))
			if number <= pit.Block {
				out = &primitives.Slot{Index: index, Value: primitives.WeiFromBig(v)}
				return nil
			}
			k, v = c.Prev()
		}
		return nil
	})
	return out, err
}

func (s *Store) ReadBlock(ctx context.Context, selection primitives.BlockSelection) (*primitives.Block, error) {
	var out *primitives.Block
	err := s.db.View(func(tx *bolt.Tx) error {
		numbers := tx.Bucket([]byte(blocksByNumber))
		hashes := tx.Bucket([]byte(blocksByHash))
		meta := tx.Bucket([]byte(metaBucket))

		var number primitives.BlockNumber
		switch selection.Kind {
		case primitives.SelectLatest:
			v := meta.Get(blockNumberKey)
			if v == nil {
				return nil
			}
			number = primitives.BlockNumber(binary.BigEndian.Uint64(v))
		case primitives.SelectEarliest:
			number = primitives.GenesisBlockNumber
		case primitives.SelectByNumber:
			number = selection.Number
		case primitives.SelectByHash:
			v := hashes.Get(selection.Hash[:])
			if v == nil {
				return nil
			}
			number = primitives.BlockNumber(binary.BigEndian.Uint64(v))
		}

		key := number.Bytes8()
		v := numbers.Get(key[:])
		if v == nil {
			return nil
		}
		var block primitives.Block
		if err := json.Unmarshal(v, &block); err != nil {
			return err
		}
		out = &block
		return nil
	})
	return out, err
}

func (s *Store) ReadMinedTransaction(ctx context.Context, hash primitives.Hash) (*primitives.TransactionMined, error) {
	block, err := s.readTransactionBlock(hash)
	if err != nil || block == nil {
		return nil, err
	}
	for _, tx := range block.Transactions {
		if tx.Input.Hash == hash {
			return &tx, nil
		}
	}
	return nil, nil
}

func (s *Store) readTransactionBlock(hash primitives.Hash) (*primitives.Block, error) {
	var number *primitives.BlockNumber
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(transactionIndex)).Get(hash[:])
		if v == nil {
			return nil
		}
		n := primitives.BlockNumber(binary.BigEndian.Uint64(v))
		number = &n
		return nil
	})
	if err != nil || number == nil {
		return nil, err
	}
	return s.ReadBlock(context.Background(), primitives.SelectBlockByNumber(*number))
}

func (s *Store) ReadLogs(ctx context.Context, filter primitives.LogFilter) ([]primitives.LogMined, error) {
	var out []primitives.LogMined
	err := s.db.View(func(tx *bolt.Tx) error {
		numbers := tx.Bucket([]byte(blocksByNumber))
		meta := tx.Bucket([]byte(metaBucket))

		to := filter.FromBlock
		if v := meta.Get(blockNumberKey); v != nil {
			to = primitives.BlockNumber(binary.BigEndian.Uint64(v))
		}
		if filter.ToBlock != nil {
			to = *filter.ToBlock
		}

		for n := filter.FromBlock; n <= to; n++ {
			key := n.Bytes8()
			v := numbers.Get(key[:])
			if v == nil {
				continue
			}
			var block primitives.Block
			if err := json.Unmarshal(v, &block); err != nil {
				return err
			}
			for _, tx := range block.Transactions {
				for _, log := range tx.Logs {
					if logMatchesFilter(log, filter) {
						out = append(out, log)
					}
				}
			}
		}
		return nil
	})
	return out, err
}

func logMatchesFilter(log primitives.LogMined, filter primitives.LogFilter) bool {
	if len(filter.Addresses) > 0 && !addressIn(log.Log.Address, filter.Addresses) {
		return false
	}
	if len(filter.Topics) > 0 {
		found := false
		for _, topic := range log.Log.Topics {
			if hashIn(topic, filter.Topics) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func addressIn(a primitives.Address, list []primitives.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func hashIn(h primitives.Hash, list []primitives.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}

// ReadSlotsSample implements the originally-todo!() sampling operation:
// a deterministic FNV-1a hash of (seed, address, slot_index) selects a
// bounded number of entries from the history_slots range.
func (s *Store) ReadSlotsSample(ctx context.Context, start, end primitives.BlockNumber, maxSamples, seed uint64) ([]primitives.SlotSample, error) {
	var out []primitives.SlotSample
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(historySlots)).Cursor()
		for k, v := c.First(); k != nil && uint64(len(out)) < maxSamples; k, v = c.Next() {
			if len(k) != 20+32+8 {
				continue
			}
			var addr primitives.Address
			copy(addr[:], k[:20])
			var idx primitives.SlotIndex
			copy(idx[:], k[20:52])
			number := primitives.BlockNumber(binary.BigEndian.Uint64(k[52:]))
			if number < start || number > end {
				continue
			}
			if !sampleSelected(seed, addr, idx, maxSamples) {
				continue
			}
			out = append(out, primitives.SlotSample{
				Address: addr,
				Index:   idx,
				Value:   primitives.WeiFromBig(v),
				Block:   number,
			})
		}
		return nil
	})
	return out, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SaveBlock persists one block as a single bbolt Update transaction: it
// first confirms no concurrent writer invalidated the transaction's
// original_* reads, then writes the block, its hash, one index entry per
// transaction and per log, the account and slot changes, and the mined
// block number.
func (s *Store) SaveBlock(ctx context.Context, block primitives.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accountChanges := block.AccountChanges()

	return s.db.Update(func(tx *bolt.Tx) error {
		if conflicts := checkConflicts(tx, accountChanges); len(conflicts) > 0 {
			for _, k := range conflicts {
				metrics.IncStorageConflict(k.String(), "kv")
			}
			return primitives.NewConflictErr(conflicts)
		}

		numbers := tx.Bucket([]byte(blocksByNumber))
		hashes := tx.Bucket([]byte(blocksByHash))
		txIndex := tx.Bucket([]byte(transactionIndex))
		logs := tx.Bucket([]byte(logIndex))
		latestAcc := tx.Bucket([]byte(latestAccounts))
		latestSlot := tx.Bucket([]byte(latestSlots))
		histAcc := tx.Bucket([]byte(historyAccounts))
		histSlot := tx.Bucket([]byte(historySlots))
		meta := tx.Bucket([]byte(metaBucket))

		number := block.Number()
		numberKey := number.Bytes8()

		blockJSON, err := json.Marshal(block)
		if err != nil {
			return err
		}
		if err := numbers.Put(numberKey[:], blockJSON); err != nil {
			return err
		}
		hash := block.Hash()
		if err := hashes.Put(hash[:], numberKey[:]); err != nil {
			return err
		}

		for _, mined := range block.Transactions {
			if err := txIndex.Put(mined.Input.Hash[:], numberKey[:]); err != nil {
				return err
			}
			for _, log := range mined.Logs {
				if err := logs.Put(logKey(mined.Input.Hash, log.LogIndex), numberKey[:]); err != nil {
					return err
				}
			}
		}

		for _, change := range accountChanges {
			if err := applyAccountChange(latestAcc, histAcc, change, number); err != nil {
				return err
			}
			for idx, slotChange := range change.Slots {
				if err := applySlotChange(latestSlot, histSlot, change.Address, idx, slotChange, number); err != nil {
					return err
				}
			}
		}

		return meta.Put(blockNumberKey, numberKey[:])
	})
}

// checkConflicts flags a conflict only when the stored value has diverged
// from both the read original AND the value this write would set it to:
// original != current is a stale read, but modified == current means this
// write was already applied, so resubmitting it must succeed rather than
// conflict.
func checkConflicts(tx *bolt.Tx, changes []primitives.ExecutionAccountChanges) []primitives.ConflictKind {
	latestAcc := tx.Bucket([]byte(latestAccounts))
	latestSlot := tx.Bucket([]byte(latestSlots))

	var conflicts []primitives.ConflictKind
	for _, change := range changes {
		raw := latestAcc.Get(accountKey(change.Address))
		if raw != nil {
			current, err := decodeAccount(change.Address, raw)
			if err == nil {
				if change.Nonce.Original != nil && *change.Nonce.Original != current.Nonce &&
					(change.Nonce.Modified == nil || *change.Nonce.Modified != current.Nonce) {
					conflicts = append(conflicts, primitives.ConflictNonce)
				}
				if change.Balance.Original != nil && change.Balance.Original.Cmp(current.Balance) != 0 &&
					(change.Balance.Modified == nil || change.Balance.Modified.Cmp(current.Balance) != 0) {
					conflicts = append(conflicts, primitives.ConflictBalance)
				}
			}
		}
		for idx, slotChange := range change.Slots {
			if slotChange.Original == nil {
				continue
			}
			rawSlot := latestSlot.Get(slotKey(change.Address, idx))
			if rawSlot == nil {
				continue
			}
			current := primitives.WeiFromBig(rawSlot)
			if slotChange.Original.Value.Cmp(current) != 0 &&
				(slotChange.Modified == nil || slotChange.Modified.Value.Cmp(current) != 0) {
				conflicts = append(conflicts, primitives.ConflictSlot)
			}
		}
	}
	return conflicts
}

func applyAccountChange(latest, history *bolt.Bucket, change primitives.ExecutionAccountChanges, number primitives.BlockNumber) error {
	raw := latest.Get(accountKey(change.Address))
	current := primitives.Account{Address: change.Address}
	if raw != nil {
		if decoded, err := decodeAccount(change.Address, raw); err == nil {
			current = decoded
		}
	}
	if change.Nonce.Modified != nil {
		current.Nonce = *change.Nonce.Modified
	}
	if change.Balance.Modified != nil {
		current.Balance = *change.Balance.Modified
	}
	if change.Bytecode.Modified != nil {
		current.Bytecode = *change.Bytecode.Modified
		current.CodeHash = change.CodeHash
	}

	encoded := encodeAccount(current)
	if err := latest.Put(accountKey(change.Address), encoded); err != nil {
		return err
	}
	return history.Put(historyAccountKey(change.Address, number), encoded)
}

func applySlotChange(latest, history *bolt.Bucket, addr primitives.Address, idx primitives.SlotIndex, change primitives.ValueChange[primitives.Slot], number primitives.BlockNumber) error {
	if change.Modified == nil {
		return nil
	}
	value := change.Modified.Value.Bytes()
	if err := latest.Put(slotKey(addr, idx), value); err != nil {
		return err
	}
	return history.Put(historySlotKey(addr, idx, number), value)
}

func (s *Store) SaveAccounts(ctx context.Context, accounts []primitives.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		latest := tx.Bucket([]byte(latestAccounts))
		history := tx.Bucket([]byte(historyAccounts))
		for _, acc := range accounts {
			encoded := encodeAccount(acc)
			if err := latest.Put(accountKey(acc.Address), encoded); err != nil {
				return err
			}
			if err := history.Put(historyAccountKey(acc.Address, primitives.GenesisBlockNumber), encoded); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetAt rewinds the latest-projection buckets to their state at
// block_number by replaying the history buckets backwards, matching the
// original's history-replay rewind mechanism rather than a snapshot diff,
// and truncates every history entry above block_number so a subsequent
// Past() read can never observe post-reset state.
func (s *Store) ResetAt(ctx context.Context, number primitives.BlockNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		if v := meta.Get(blockNumberKey); v != nil {
			current := primitives.BlockNumber(binary.BigEndian.Uint64(v))
			if uint64(number) > uint64(current) {
				return nil
			}
		}

		if err := truncateHistoryAccounts(tx, number); err != nil {
			return err
		}
		if err := truncateHistorySlots(tx, number); err != nil {
			return err
		}
		if err := rewindAccounts(tx, number); err != nil {
			return err
		}
		if err := rewindSlots(tx, number); err != nil {
			return err
		}

		buf := number.Bytes8()
		return meta.Put(blockNumberKey, buf[:])
	})
}

func truncateHistoryAccounts(tx *bolt.Tx, number primitives.BlockNumber) error {
	history := tx.Bucket([]byte(historyAccounts))
	c := history.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		if len(k) != 20+8 {
			continue
		}
		blockNum := primitives.BlockNumber(binary.BigEndian.Uint64(k[20:]))
		if blockNum > number {
			if err := c.Delete(); err != nil {
				return err
			}
		}
	}
	return nil
}

func truncateHistorySlots(tx *bolt.Tx, number primitives.BlockNumber) error {
	history := tx.Bucket([]byte(historySlots))
	c := history.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		if len(k) != 20+32+8 {
			continue
		}
		blockNum := primitives.BlockNumber(binary.BigEndian.Uint64(k[52:]))
		if blockNum > number {
			if err := c.Delete(); err != nil {
				return err
			}
		}
	}
	return nil
}

func rewindAccounts(tx *bolt.Tx, number primitives.BlockNumber) error {
	history := tx.Bucket([]byte(historyAccounts))
	latest := tx.Bucket([]byte(latestAccounts))
	c := history.Cursor()

	seen := make(map[primitives.Address]bool)
	for k, v := c.Last(); k != nil; k, v = c.Prev() {
		if len(k) != 20+8 {
			continue
		}
		var addr primitives.Address
		copy(addr[:], k[:20])
		if seen[addr] {
			continue
		}
		blockNum := primitives.BlockNumber(binary.BigEndian.Uint64(k[20:]))
		if blockNum > number {
			continue
		}
		seen[addr] = true
		if err := latest.Put(accountKey(addr), v); err != nil {
			return err
		}
	}
	return nil
}

func rewindSlots(tx *bolt.Tx, number primitives.BlockNumber) error {
	history := tx.Bucket([]byte(historySlots))
	latest := tx.Bucket([]byte(latestSlots))
	c := history.Cursor()

	type key struct {
		addr primitives.Address
		idx  primitives.SlotIndex
	}
	seen := make(map[key]bool)
	for k, v := c.Last(); k != nil; k, v = c.Prev() {
		if len(k) != 20+32+8 {
			continue
		}
		var addr primitives.Address
		copy(addr[:], k[:20])
		var idx primitives.SlotIndex
		copy(idx[:], k[20:52])
		sk := key{addr, idx}
		if seen[sk] {
			continue
		}
		blockNum := primitives.BlockNumber(binary.BigEndian.Uint64(k[52:]))
		if blockNum > number {
			continue
		}
		seen[sk] = true
		if err := latest.Put(slotKey(addr, idx), v); err != nil {
			return err
		}
	}
	return nil
}

// sampleSelected is the deterministic FNV-1a based inclusion test for
// read_slots_sample: a (seed, address, slot_index) triple is included
// when its hash falls in the bucket selected by maxSamples.
func sampleSelected(seed uint64, addr primitives.Address, idx primitives.SlotIndex, maxSamples uint64) bool {
	if maxSamples == 0 {
		return false
	}
	h := fnv1a(seed, addr, idx)
	return h%maxSamples == 0
}

func fnv1a(seed uint64, addr primitives.Address, idx primitives.SlotIndex) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211

	hash := uint64(offset64)
	mix := func(b byte) {
		hash ^= uint64(b)
		hash *= prime64
	}
	var seedBuf [8]byte
	binary.BigEndian.PutUint64(seedBuf[:], seed)
	for _, b := range seedBuf {
		mix(b)
	}
	for _, b := range addr {
		mix(b)
	}
	for _, b := range idx {
		mix(b)
	}
	return hash
}
