package poolstate

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	tokenA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenC = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestPoolIdCanonicalizesTokenOrder(t *testing.T) {
	t.Parallel()

	id1 := NewPoolId(1, tokenA, tokenB, 30)
	id2 := NewPoolId(1, tokenB, tokenA, 30)
	if id1.Hash() != id2.Hash() {
		t.Fatalf("hashes differ for same pool with tokens swapped: %d vs %d", id1.Hash(), id2.Hash())
	}
}

func TestPoolIdDistinctByFeeTier(t *testing.T) {
	t.Parallel()

	id1 := NewPoolId(1, tokenA, tokenB, 30)
	id2 := NewPoolId(1, tokenA, tokenB, 5)
	if id1.Hash() == id2.Hash() {
		t.Fatalf("hashes collide for distinct fee tiers")
	}
}

func TestUpdateDiscardsOutOfOrder(t *testing.T) {
	t.Parallel()

	idx := New()
	id := NewPoolId(1, tokenA, tokenB, 30)
	idx.Update(&PoolState{ID: id, Kind: KindV2, Reserve0: big.NewInt(100), Reserve1: big.NewInt(200), LastUpdateNs: 100})
	idx.Update(&PoolState{ID: id, Kind: KindV2, Reserve0: big.NewInt(1), Reserve1: big.NewInt(1), LastUpdateNs: 50})

	got, ok := idx.GetByID(id)
	if !ok {
		t.Fatal("pool missing after stale update")
	}
	if got.LastUpdateNs != 100 {
		t.Errorf("LastUpdateNs = %d, want 100 (stale update should be discarded)", got.LastUpdateNs)
	}
	if idx.StaleUpdates() != 1 {
		t.Errorf("StaleUpdates = %d, want 1", idx.StaleUpdates())
	}
}

func TestFindPoolsWithTokenAndPair(t *testing.T) {
	t.Parallel()

	idx := New()
	idAB := NewPoolId(1, tokenA, tokenB, 30)
	idAC := NewPoolId(2, tokenA, tokenC, 30)
	idx.Update(&PoolState{ID: idAB, Kind: KindV2, Reserve0: big.NewInt(1), Reserve1: big.NewInt(1), LastUpdateNs: 1})
	idx.Update(&PoolState{ID: idAC, Kind: KindV2, Reserve0: big.NewInt(1), Reserve1: big.NewInt(1), LastUpdateNs: 1})

	withA := idx.FindPoolsWithToken(tokenA)
	if len(withA) != 2 {
		t.Errorf("FindPoolsWithToken(A) = %d pools, want 2", len(withA))
	}

	pairAB := idx.FindPoolsForPair(tokenA, tokenB)
	if len(pairAB) != 1 || pairAB[0] != idAB.Hash() {
		t.Errorf("FindPoolsForPair(A,B) = %v, want [%d]", pairAB, idAB.Hash())
	}

	pairBA := idx.FindPoolsForPair(tokenB, tokenA) // order must not matter
	if len(pairBA) != 1 || pairBA[0] != idAB.Hash() {
		t.Errorf("FindPoolsForPair(B,A) = %v, want [%d]", pairBA, idAB.Hash())
	}
}

func TestFindArbitragePairsExcludesSelf(t *testing.T) {
	t.Parallel()

	idx := New()
	idV2 := NewPoolId(1, tokenA, tokenB, 30)
	idV3 := NewPoolId(2, tokenA, tokenB, 5)
	idx.Update(&PoolState{ID: idV2, Kind: KindV2, Reserve0: big.NewInt(1), Reserve1: big.NewInt(1), LastUpdateNs: 1})
	idx.Update(&PoolState{ID: idV3, Kind: KindV2, Reserve0: big.NewInt(1), Reserve1: big.NewInt(1), LastUpdateNs: 1})

	others := idx.FindArbitragePairs(idV2)
	if len(others) != 1 || others[0].ID.Hash() != idV3.Hash() {
		t.Fatalf("FindArbitragePairs(idV2) = %v, want [idV3]", others)
	}
}

func TestCleanupStaleRemovesFromAllIndices(t *testing.T) {
	t.Parallel()

	idx := New()
	id := NewPoolId(1, tokenA, tokenB, 30)
	idx.Update(&PoolState{ID: id, Kind: KindV2, Reserve0: big.NewInt(1), Reserve1: big.NewInt(1), LastUpdateNs: 1000})

	removed := idx.CleanupStale(2000, 500) // age = 1000 > maxAge 500
	if removed != 1 {
		t.Fatalf("CleanupStale removed %d, want 1", removed)
	}
	if _, ok := idx.GetByID(id); ok {
		t.Error("pool still present in primary map after cleanup")
	}
	if len(idx.FindPoolsWithToken(tokenA)) != 0 {
		t.Error("token index still references cleaned-up pool")
	}
	if len(idx.FindPoolsForPair(tokenA, tokenB)) != 0 {
		t.Error("pair index still references cleaned-up pool")
	}
}

func TestCleanupStalePreservesFreshPools(t *testing.T) {
	t.Parallel()

	idx := New()
	id := NewPoolId(1, tokenA, tokenB, 30)
	idx.Update(&PoolState{ID: id, Kind: KindV2, Reserve0: big.NewInt(1), Reserve1: big.NewInt(1), LastUpdateNs: 1900})

	removed := idx.CleanupStale(2000, 500) // age = 100 <= maxAge 500
	if removed != 0 {
		t.Fatalf("CleanupStale removed %d, want 0", removed)
	}
	if _, ok := idx.GetByID(id); !ok {
		t.Error("fresh pool incorrectly removed")
	}
}
