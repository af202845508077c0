package hilbertsort

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planetidx/hilbertpvt/internal/testfixture"
)

func TestComputeAndSortPairs(t *testing.T) {
	dir := t.TempDir()
	a := testfixture.FourNodes(t, dir)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, ComputeNodePairs(ctx, a))
	require.NoError(t, ComputeWayPairs(ctx, a))
	require.Equal(t, 4, a.NodePairs.Len())
	require.Equal(t, 1, a.WayPairs.Len())

	require.NoError(t, SortPairs(ctx, a))
	for i := 1; i < a.NodePairs.Len(); i++ {
		require.LessOrEqual(t, a.NodePairs.Get(i-1).H, a.NodePairs.Get(i).H)
	}

	require.NoError(t, Permute(a))
	for i := 1; i < a.Nodes.Len(); i++ {
		require.LessOrEqual(t, a.NodePairs.Get(i-1).H, a.NodePairs.Get(i).H)
	}
}

func TestInteriorPointRing(t *testing.T) {
	refs := []uint64{0, 1, 2, 3, 0}
	resolve := func(idx uint64) (int32, int32, bool) {
		pts := [][2]int32{{0, 0}, {100000000, 0}, {100000000, 100000000}, {0, 100000000}}
		if int(idx) >= len(pts) {
			return 0, 0, false
		}
		return pts[idx][0], pts[idx][1], true
	}
	h, resolvedAny := WayRepresentativeHilbert(refs, resolve)
	require.True(t, resolvedAny)
	require.NotZero(t, h)
}

func TestWayRepresentativeFallsBackOnFewRefs(t *testing.T) {
	refs := []uint64{0, 1}
	resolve := func(idx uint64) (int32, int32, bool) {
		return int32(idx) + 1, int32(idx) + 1, true
	}
	h, resolvedAny := WayRepresentativeHilbert(refs, resolve)
	require.True(t, resolvedAny)
	require.NotZero(t, h)
}
