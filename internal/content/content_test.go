package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planetidx/hilbertpvt/internal/extway"
	"github.com/planetidx/hilbertpvt/internal/hilbertsort"
	"github.com/planetidx/hilbertpvt/internal/leafbuild"
	"github.com/planetidx/hilbertpvt/internal/rules"
	"github.com/planetidx/hilbertpvt/internal/testfixture"
	"github.com/planetidx/hilbertpvt/internal/treebuild"
)

const sampleDoc = `
render:
  leaf_zoom: 12
layers:
  roads:
    - highway_rule
rules:
  highway_rule:
    minzoom: 0
    maxzoom: 12
    keys: [highway]
`

func TestBuildContentAscendingAndLeafUniverse(t *testing.T) {
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
	_, levels, err := treebuild.Build(a, 12)
	require.NoError(t, err)

	cfg, err := rules.Decode([]byte(sampleDoc))
	require.NoError(t, err)
	ev, err := rules.New(ctx, cfg, a)
	require.NoError(t, err)

	require.NoError(t, Build(a, ev, 12, levels))

	for i := 0; i < a.Tiles.Len(); i++ {
		tile := a.Tiles.Get(i)
		var nEnd uint32
		if i+1 < a.Tiles.Len() {
			nEnd = a.Tiles.Get(i + 1).N
		} else {
			nEnd = uint32(a.ContentN.Len())
		}
		var prev uint32
		first := true
		for off := tile.N; off < nEnd; off++ {
			v := a.ContentN.Get(int(off))
			if !first {
				require.Greater(t, v, prev)
			}
			prev = v
			first = false
		}
	}

	for li := 0; li < a.Leaves.Len(); li++ {
		nodes, ways := LeafUniverse(a, ev, li, 12)
		require.True(t, isSortedUnique(nodes))
		require.True(t, isSortedUnique(ways))
	}
}

func isSortedUnique(s []uint32) bool {
	for i := 1; i < len(s); i++ {
		if s[i] <= s[i-1] {
			return false
		}
	}
	return true
}
