package poolstate

import (
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

// shardCount is the sharding fan-out (spec §4.D: "sharding by low bits of
// pool hash is required to avoid a single hot lock"). A power of two keeps
// the shard selection a mask instead of a modulo.
const shardCount = 16

type shard struct {
	mu      sync.RWMutex
	pools   map[uint64]*PoolState
	byToken map[common.Address]map[uint64]struct{}
	byPair  map[pairKey]map[uint64]struct{}
}

func newShard() *shard {
	return &shard{
		pools:   make(map[uint64]*PoolState),
		byToken: make(map[common.Address]map[uint64]struct{}),
		byPair:  make(map[pairKey]map[uint64]struct{}),
	}
}

// Index is the concurrent pool-state store. A producer task applies
// updates while one or more detector tasks read concurrently; each shard's
// RWMutex lets reads proceed in parallel across shards and within a shard
// whenever no write is in flight.
type Index struct {
	shards      [shardCount]*shard
	staleUpdates atomic.Uint64
}

// New constructs an empty Index.
func New() *Index {
	idx := &Index{}
	for i := range idx.shards {
		idx.shards[i] = newShard()
	}
	return idx
}

func (idx *Index) shardFor(hash uint64) *shard {
	return idx.shards[hash&(shardCount-1)]
}

// StaleUpdates returns the count of updates discarded for arriving
// out-of-order by timestamp.
func (idx *Index) StaleUpdates() uint64 { return idx.staleUpdates.Load() }

// Update inserts or replaces the stored state for state.ID, provided
// state.LastUpdateNs is strictly newer than what's stored (spec §4.D
// precondition). Out-of-order updates are discarded silently and counted.
func (idx *Index) Update(state *PoolState) {
	hash := state.ID.Hash()
	sh := idx.shardFor(hash)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.pools[hash]; ok {
		if state.LastUpdateNs <= existing.LastUpdateNs {
			idx.staleUpdates.Add(1)
			return
		}
	}

	sh.pools[hash] = state
	addToIndex(sh.byToken, state.ID.Tokens[0], hash)
	addToIndex(sh.byToken, state.ID.Tokens[1], hash)

	pk := canonicalPair(state.ID.Tokens[0], state.ID.Tokens[1])
	set, ok := sh.byPair[pk]
	if !ok {
		set = make(map[uint64]struct{})
		sh.byPair[pk] = set
	}
	set[hash] = struct{}{}
}

func addToIndex(idx map[common.Address]map[uint64]struct{}, token common.Address, hash uint64) {
	set, ok := idx[token]
	if !ok {
		set = make(map[uint64]struct{})
		idx[token] = set
	}
	set[hash] = struct{}{}
}

// Get returns the stored state for hash, or ok=false if absent.
func (idx *Index) Get(hash uint64) (*PoolState, bool) {
	sh := idx.shardFor(hash)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.pools[hash]
	return s, ok
}

// GetByID hashes id and looks up its stored state.
func (idx *Index) GetByID(id PoolId) (*PoolState, bool) {
	return idx.Get(id.Hash())
}

// FindPoolsWithToken returns the hashes of every pool containing token,
// across all shards (the token-index is sharded by pool hash, not by
// token, so every shard must be consulted).
func (idx *Index) FindPoolsWithToken(token common.Address) []uint64 {
	var out []uint64
	for _, sh := range idx.shards {
		sh.mu.RLock()
		for hash := range sh.byToken[token] {
			out = append(out, hash)
		}
		sh.mu.RUnlock()
	}
	return out
}

// FindPoolsForPair returns the hashes of every pool holding the canonical
// (t0, t1) pair, across all shards.
func (idx *Index) FindPoolsForPair(t0, t1 common.Address) []uint64 {
	pk := canonicalPair(t0, t1)
	var out []uint64
	for _, sh := range idx.shards {
		sh.mu.RLock()
		for hash := range sh.byPair[pk] {
			out = append(out, hash)
		}
		sh.mu.RUnlock()
	}
	return out
}

// FindArbitragePairs returns every other pool sharing pool's canonical
// token pair, excluding pool itself.
func (idx *Index) FindArbitragePairs(pool PoolId) []*PoolState {
	hashes := idx.FindPoolsForPair(pool.Tokens[0], pool.Tokens[1])
	self := pool.Hash()
	out := make([]*PoolState, 0, len(hashes))
	for _, h := range hashes {
		if h == self {
			continue
		}
		if s, ok := idx.Get(h); ok {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the total number of pools currently tracked, across all
// shards. For dashboard/metrics use; not on any hot path.
func (idx *Index) Count() int {
	total := 0
	for _, sh := range idx.shards {
		sh.mu.RLock()
		total += len(sh.pools)
		sh.mu.RUnlock()
	}
	return total
}

// CleanupStale removes every pool whose LastUpdateNs is older than
// maxAgeNs relative to nowNs, updating all indices atomically per pool
// (spec §4.D invariant), and returns the count removed.
func (idx *Index) CleanupStale(nowNs, maxAgeNs uint64) int {
	removed := 0
	for _, sh := range idx.shards {
		sh.mu.Lock()
		for hash, state := range sh.pools {
			if nowNs <= state.LastUpdateNs || nowNs-state.LastUpdateNs <= maxAgeNs {
				continue
			}
			delete(sh.pools, hash)
			removeFromIndex(sh.byToken, state.ID.Tokens[0], hash)
			removeFromIndex(sh.byToken, state.ID.Tokens[1], hash)
			pk := canonicalPair(state.ID.Tokens[0], state.ID.Tokens[1])
			if set, ok := sh.byPair[pk]; ok {
				delete(set, hash)
				if len(set) == 0 {
					delete(sh.byPair, pk)
				}
			}
			removed++
		}
		sh.mu.Unlock()
	}
	return removed
}

func removeFromIndex(idx map[common.Address]map[uint64]struct{}, token common.Address, hash uint64) {
	set, ok := idx[token]
	if !ok {
		return
	}
	delete(set, hash)
	if len(set) == 0 {
		delete(idx, token)
	}
}
