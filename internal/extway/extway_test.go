package extway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planetidx/hilbertpvt/internal/hilbertsort"
	"github.com/planetidx/hilbertpvt/internal/leafbuild"
	"github.com/planetidx/hilbertpvt/internal/testfixture"
)

func TestBuildExternalWaysNonDecreasing(t *testing.T) {
	dir := t.TempDir()
	a := testfixture.FourNodes(t, dir)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, hilbertsort.ComputeNodePairs(ctx, a))
	require.NoError(t, hilbertsort.ComputeWayPairs(ctx, a))
	require.NoError(t, hilbertsort.SortPairs(ctx, a))
	require.NoError(t, hilbertsort.Permute(a))
	require.NoError(t, leafbuild.Build(a, 12))

	require.NoError(t, Build(ctx, a, 12))

	for i := 1; i < a.Leaves.Len(); i++ {
		require.LessOrEqual(t, a.Leaves.Get(i-1).WExt, a.Leaves.Get(i).WExt)
	}
}

func TestShardedSetAddGet(t *testing.T) {
	s := newShardedSet()
	s.add(7, 42)
	s.add(7, 43)
	bm, ok := s.get(7)
	require.True(t, ok)
	require.Equal(t, uint64(2), bm.GetCardinality())

	_, ok = s.get(99)
	require.False(t, ok)
}
