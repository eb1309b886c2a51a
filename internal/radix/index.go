// Package radix implements the in-memory index mapping normalized
// opening-text prefixes to the set of tasks that declared them.
package radix

import (
	"sort"
	"sync"
	"sync/atomic"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/taskindex/taskindex/internal/core"
)

// emitterSet is the value stored at each trie node: the set of task IDs
// that registered this exact prefix.
type emitterSet map[core.TaskId]struct{}

func (es emitterSet) clone() emitterSet {
	cp := make(emitterSet, len(es)+1)
	for k := range es {
		cp[k] = struct{}{}
	}
	return cp
}

// Index is a path-compressed prefix tree. A single writer mutates it
// through copy-on-write transactions; any number of readers load a
// published, immutable snapshot lock-free.
type Index struct {
	writeMu sync.Mutex
	tree    atomic.Pointer[iradix.Tree]
}

// New builds an empty Index.
func New() *Index {
	idx := &Index{}
	idx.tree.Store(iradix.New())
	return idx
}

// Add registers prefix as declared by taskID. Idempotent: registering the
// same (taskID, prefix) pair twice is a no-op.
func (idx *Index) Add(taskID core.TaskId, prefix string) {
	if prefix == "" || taskID.IsZero() {
		return
	}
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	tree := idx.tree.Load()
	key := []byte(prefix)
	var es emitterSet
	if raw, ok := tree.Get(key); ok {
		existing := raw.(emitterSet)
		if _, already := existing[taskID]; already {
			return
		}
		es = existing.clone()
	} else {
		es = make(emitterSet, 1)
	}
	es[taskID] = struct{}{}

	txn := tree.Txn()
	txn.Insert(key, es)
	idx.tree.Store(txn.Commit())
}

// Clear discards every registered prefix, resetting the index to empty.
func (idx *Index) Clear() {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	idx.tree.Store(iradix.New())
}

// ExactLookup returns every emitter whose registered prefix is an exact
// prefix of openingText, walking candidate prefix lengths 1..min(len,
// maxPrefixLen). Results are deduplicated and sorted for determinism.
func (idx *Index) ExactLookup(openingText string, maxPrefixLen int) []core.TaskId {
	tree := idx.tree.Load()
	limit := len(openingText)
	if maxPrefixLen > 0 && maxPrefixLen < limit {
		limit = maxPrefixLen
	}
	seen := make(map[core.TaskId]struct{})
	for i := 1; i <= limit; i++ {
		candidate := []byte(openingText[:i])
		raw, ok := tree.Get(candidate)
		if !ok {
			continue
		}
		for taskID := range raw.(emitterSet) {
			seen[taskID] = struct{}{}
		}
	}
	out := make([]core.TaskId, 0, len(seen))
	for taskID := range seen {
		out = append(out, taskID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stats summarizes the current index content.
type Stats struct {
	Prefixes int
	Emitters int
}

// Stats walks the tree once to report the number of distinct prefixes and
// the total number of (prefix, emitter) registrations.
func (idx *Index) Stats() Stats {
	tree := idx.tree.Load()
	var st Stats
	tree.Root().Walk(func(_ []byte, raw interface{}) bool {
		st.Prefixes++
		st.Emitters += len(raw.(emitterSet))
		return false
	})
	return st
}
