// Package relayer forwards mined transactions from a follower's storage
// to the leader in dependency order, so the leader can replay them
// without re-deriving conflicts the follower already resolved.
package relayer

import (
	"sort"
	"time"

	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/infra/metrics"
)

// slotKey identifies one conflict-relevant storage slot.
type slotKey struct {
	Address primitives.Address
	Index   primitives.SlotIndex
}

// TransactionDag is the dependency graph over one block's mined
// transactions: an edge tx[i] -> tx[j] (i<j by transaction index) exists
// whenever both modify the same slot or both modify the same account's
// balance. It is an arena of indices rather than a pointer graph: the
// slices keep every node for the DAG's lifetime, and TakeRoots mutates
// in place by marking taken nodes dead in alive.
type TransactionDag struct {
	nodes    []primitives.TransactionMined
	children [][]int32
	indegree []int32
	alive    []bool
	remain   int
}

// NewTransactionDag builds the DAG for one block's transactions. Edge
// rule: two transactions conflict if they modify the same (address,
// slot_index) or both modify the same address's balance; the edge always
// points from the lower to the higher transaction index.
func NewTransactionDag(blockTransactions []primitives.TransactionMined) *TransactionDag {
	start := time.Now()

	sorted := make([]primitives.TransactionMined, len(blockTransactions))
	copy(sorted, blockTransactions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TransactionIndex < sorted[j].TransactionIndex
	})

	slotConflicts := make(map[int]map[slotKey]struct{}, len(sorted))
	balanceConflicts := make(map[int]map[primitives.Address]struct{}, len(sorted))

	for i, tx := range sorted {
		for addr, change := range tx.Execution.Changes {
			for idx, slotChange := range change.Slots {
				if !slotChange.IsModified(func(a, b primitives.Slot) bool {
					return a.Index == b.Index && a.Value.Cmp(b.Value) == 0
				}) {
					continue
				}
				if slotConflicts[i] == nil {
					slotConflicts[i] = make(map[slotKey]struct{})
				}
				slotConflicts[i][slotKey{Address: addr, Index: idx}] = struct{}{}
			}
			if change.BalanceModified() {
				if balanceConflicts[i] == nil {
					balanceConflicts[i] = make(map[primitives.Address]struct{})
				}
				balanceConflicts[i][addr] = struct{}{}
			}
		}
	}

	d := &TransactionDag{
		nodes:    sorted,
		children: make([][]int32, len(sorted)),
		indegree: make([]int32, len(sorted)),
		alive:    make([]bool, len(sorted)),
		remain:   len(sorted),
	}
	for i := range d.alive {
		d.alive[i] = true
	}

	addEdge := func(u, v int) {
		d.children[u] = append(d.children[u], int32(v))
		d.indegree[v]++
	}

	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if setsIntersect(slotConflicts[i], slotConflicts[j]) || setsIntersect(balanceConflicts[i], balanceConflicts[j]) {
				addEdge(i, j)
			}
		}
	}

	metrics.DagComputeDuration.Observe(time.Since(start).Seconds())
	return d
}

func setsIntersect[T comparable](a, b map[T]struct{}) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	for k := range small {
		if _, ok := big[k]; ok {
			return true
		}
	}
	return false
}

// TakeRoots removes every zero-indegree node from the DAG and returns
// them as one wave, decrementing the indegree of their children so a
// subsequent call surfaces the next wave. Returns nil once the DAG is
// empty, mirroring the original's Option<Vec<_>> sentinel.
func (d *TransactionDag) TakeRoots() []primitives.TransactionMined {
	if d.remain == 0 {
		return nil
	}

	var roots []int32
	for i := range d.nodes {
		if d.alive[i] && d.indegree[i] == 0 {
			roots = append(roots, int32(i))
		}
	}

	out := make([]primitives.TransactionMined, 0, len(roots))
	for _, idx := range roots {
		d.alive[idx] = false
		d.remain--
		out = append(out, d.nodes[idx])
		for _, child := range d.children[idx] {
			d.indegree[child]--
		}
	}
	return out
}
