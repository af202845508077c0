package build

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planetidx/hilbertpvt/internal/rules"
	"github.com/planetidx/hilbertpvt/internal/testfixture"
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

// TestRunEndToEndMultiLevelTree exercises the full Run pipeline over a
// tree deep enough to have multiple internal levels (leaf_zoom 12 puts
// 6 tree levels above the leaves, at zooms 10, 8, 6, 4, 2 and 0), so that content.Build's child-index
// lookups are exercised against a non-zero previous-level Base — the
// regression class where an internal tile's ChildFirst (an absolute
// a.Tiles row index) was indexed straight into a level-local slice.
func TestRunEndToEndMultiLevelTree(t *testing.T) {
	dir := t.TempDir()
	a := testfixture.FourNodes(t, dir)
	defer a.Close()

	cfg, err := rules.Decode([]byte(sampleDoc))
	require.NoError(t, err)

	result, err := Run(context.Background(), a, cfg)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.GreaterOrEqual(t, result.Root, 0)
	require.NotEmpty(t, result.Levels)
}

func TestPopcount16(t *testing.T) {
	cases := []struct {
		v    uint16
		want int
	}{
		{0, 0},
		{1, 1},
		{0xFFFF, 16},
		{0x0F0F, 8},
	}
	for _, c := range cases {
		if got := popcount16(c.v); got != c.want {
			t.Errorf("popcount16(%#x) = %d, want %d", c.v, got, c.want)
		}
	}
}
