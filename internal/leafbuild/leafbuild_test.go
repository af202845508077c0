package leafbuild

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planetidx/hilbertpvt/internal/hilbertsort"
	"github.com/planetidx/hilbertpvt/internal/testfixture"
)

func TestBuildLeavesMonotone(t *testing.T) {
	dir := t.TempDir()
	a := testfixture.FourNodes(t, dir)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, hilbertsort.ComputeNodePairs(ctx, a))
	require.NoError(t, hilbertsort.ComputeWayPairs(ctx, a))
	require.NoError(t, hilbertsort.SortPairs(ctx, a))
	require.NoError(t, hilbertsort.Permute(a))

	require.NoError(t, Build(a, 12))

	require.Greater(t, a.Leaves.Len(), 0)
	for i := 1; i < a.Leaves.Len(); i++ {
		prev, cur := a.Leaves.Get(i-1), a.Leaves.Get(i)
		require.Less(t, prev.H, cur.H)
		require.LessOrEqual(t, prev.N, cur.N)
		require.LessOrEqual(t, prev.W, cur.W)
	}
}

func TestBuildRejectsOddLeafZoom(t *testing.T) {
	dir := t.TempDir()
	a := testfixture.FourNodes(t, dir)
	defer a.Close()

	require.Error(t, Build(a, 13))
}
