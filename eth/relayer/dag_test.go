package relayer

import (
	"testing"

	"github.com/erigontech/stratus/eth/primitives"
)

var zeroAddress = primitives.Address{}

func dagFixtureTx(slotIndexes []uint64, txIndex uint64) primitives.TransactionMined {
	slots := make(map[primitives.SlotIndex]primitives.ValueChange[primitives.Slot], len(slotIndexes))
	for _, raw := range slotIndexes {
		idx := primitives.SlotIndexFromUint64(raw)
		slots[idx] = primitives.ValueChangeFromModified(primitives.Slot{Index: idx, Value: primitives.NewWei(0)})
	}
	changes := map[primitives.Address]primitives.ExecutionAccountChanges{
		zeroAddress: {Address: zeroAddress, Slots: slots},
	}
	return primitives.TransactionMined{
		Execution:        primitives.EvmExecution{Result: primitives.ExecutionSuccess, Changes: changes},
		TransactionIndex: txIndex,
		BlockNumber:      0,
	}
}

func runDagFixture(t *testing.T, slotSets [][]uint64, expectedWaves [][]uint64) {
	t.Helper()

	txs := make([]primitives.TransactionMined, len(slotSets))
	for i, set := range slotSets {
		txs[i] = dagFixtureTx(set, uint64(i))
	}

	dag := NewTransactionDag(txs)
	for waveIdx, expected := range expectedWaves {
		wave := dag.TakeRoots()
		if len(wave) != len(expected) {
			t.Fatalf("wave %d: got %d transactions, want %d", waveIdx, len(wave), len(expected))
		}
		want := make(map[uint64]bool, len(expected))
		for _, idx := range expected {
			want[idx] = true
		}
		for _, tx := range wave {
			if !want[tx.TransactionIndex] {
				t.Fatalf("wave %d: unexpected transaction index %d, want one of %v", waveIdx, tx.TransactionIndex, expected)
			}
		}
	}
	if wave := dag.TakeRoots(); wave != nil {
		t.Fatalf("expected no waves left, got %v", wave)
	}
}

func TestTransactionDagCaseA(t *testing.T) {
	slotSets := [][]uint64{
		{1},       // (0): dag root
		{2},       // (1): dag root
		{1, 2, 3}, // (2): depends on (0) and (1)
		{3, 4, 5}, // (3): depends on (2)
		{4, 7},    // (4): depends on (3)
		{3, 8},    // (5): depends on (2) and (3)
		{8, 7},    // (6): depends on (4) and (5)
	}
	expected := [][]uint64{{0, 1}, {2}, {3}, {4, 5}, {6}}
	runDagFixture(t, slotSets, expected)
}

func TestTransactionDagCaseB(t *testing.T) {
	slotSets := [][]uint64{
		{1, 2},           // (0): dag root
		{1, 3},           // (1): depends on (0)
		{2, 7},           // (2): depends on (0)
		{3, 4, 5},        // (3): depends on (1)
		{7, 8, 9},        // (4): depends on (2)
		{4, 10},          // (5): depends on (3)
		{5, 11},          // (6): depends on (3)
		{8, 12},          // (7): depends on (4)
		{9, 13},          // (8): depends on (4)
		{10, 11, 12, 13}, // (9): depends on (5),(6),(7),(8)
	}
	expected := [][]uint64{{0}, {1, 2}, {3, 4}, {5, 6, 7, 8}, {9}}
	runDagFixture(t, slotSets, expected)
}

func TestTransactionDagCaseC(t *testing.T) {
	slotSets := [][]uint64{
		{1},                  // (0): dag root
		{1, 2, 3},            // (1): depends on (0)
		{13},                 // (2): dag root
		{14, 15},             // (3): dag root
		{2, 4, 5, 6, 13, 14}, // (4): depends on (1), (2) and (3)
		{4, 12, 15, 16},      // (5): depends on (3) and (4)
		{5, 9, 16},           // (6): depends on (4) and (5)
		{3, 6, 7, 10},        // (7): depends on (1) and (4)
		{9, 10, 11, 12},      // (8): depends on (5),(6),(7)
		{11},                 // (9): depends on (8)
		{7, 8},               // (10): depends on (7)
		{8},                  // (11): depends on (10)
	}
	expected := [][]uint64{{0, 2, 3}, {1}, {4}, {5, 7}, {6, 10}, {8, 11}, {9}}
	runDagFixture(t, slotSets, expected)
}
