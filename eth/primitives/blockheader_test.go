package primitives

import "testing"

func TestGenesisHeaderHash(t *testing.T) {
	header := NewBlockHeader(GenesisBlockNumber, UnixTime(1234567890))

	const want = "0x011b4d03dd8c01f1049143cf9c4c817e4b167f1d1b83e5c6f0f10d89ba1e7bce"
	if got := header.Hash.String(); got != want {
		t.Fatalf("genesis hash = %s, want %s", got, want)
	}
	if !header.ParentHash.IsZero() {
		t.Fatalf("genesis parent hash = %s, want zero", header.ParentHash)
	}
}

func TestBlockOneParentHash(t *testing.T) {
	header := NewBlockHeader(FirstBlockNumber, UnixTime(1234567891))

	const want = "0x011b4d03dd8c01f1049143cf9c4c817e4b167f1d1b83e5c6f0f10d89ba1e7bce"
	if got := header.ParentHash.String(); got != want {
		t.Fatalf("block 1 parent hash = %s, want %s", got, want)
	}
}

func TestHeaderChainForAllN(t *testing.T) {
	prev := NewBlockHeader(0, 0)
	for n := BlockNumber(1); n < 50; n++ {
		cur := NewBlockHeader(n, 0)
		if cur.ParentHash != prev.Hash {
			t.Fatalf("block %d: parent_hash=%s want %s", n, cur.ParentHash, prev.Hash)
		}
		prev = cur
	}
}

func TestHeaderSentinels(t *testing.T) {
	h := NewBlockHeader(5, 42)
	if h.UncleHash != EmptyUncleHash {
		t.Fatalf("uncle hash mismatch")
	}
	if h.TransactionsRoot != EmptyTrieHash || h.ReceiptsRoot != EmptyTrieHash || h.StateRoot != EmptyTrieHash {
		t.Fatalf("trie sentinel mismatch")
	}
	if h.GasLimit != LocallyMinedGasLimit {
		t.Fatalf("gas limit = %d, want %d", h.GasLimit, LocallyMinedGasLimit)
	}
}
