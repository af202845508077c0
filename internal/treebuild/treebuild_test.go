package treebuild

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planetidx/hilbertpvt/internal/extway"
	"github.com/planetidx/hilbertpvt/internal/hilbertsort"
	"github.com/planetidx/hilbertpvt/internal/leafbuild"
	"github.com/planetidx/hilbertpvt/internal/testfixture"
)

func TestBuildTreeMaskPopcountInvariant(t *testing.T) {
	dir := t.TempDir()
	a := testfixture.FourNodes(t, dir)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, hilbertsort.ComputeNodePairs(ctx, a))
	require.NoError(t, hilbertsort.ComputeWayPairs(ctx, a))
	require.NoError(t, hilbertsort.SortPairs(ctx, a))
	require.NoError(t, hilbertsort.Permute(a))
	require.NoError(t, leafbuild.Build(a, 12))
	require.NoError(t, extway.Build(ctx, a, 12))

	root, levels, err := Build(a, 12)
	require.NoError(t, err)
	require.GreaterOrEqual(t, root, 0)
	require.NotEmpty(t, levels)

	for i := 0; i < a.Tiles.Len(); i++ {
		tile := a.Tiles.Get(i)
		require.LessOrEqual(t, popcount16(tile.Mask), 16)
	}

	// Each level's mask bits together account for exactly the entries
	// of the level below it (leaves, for the first level).
	childCount := a.Leaves.Len()
	for _, lvl := range levels {
		sum := 0
		for i := lvl.Base; i < lvl.Base+lvl.Count; i++ {
			sum += popcount16(a.Tiles.Get(i).Mask)
		}
		require.Equal(t, childCount, sum)
		childCount = lvl.Count
	}
}

func popcount16(v uint16) int {
	c := 0
	for v != 0 {
		c += int(v & 1)
		v >>= 1
	}
	return c
}
