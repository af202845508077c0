package compose

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planetidx/hilbertpvt/internal/archive"
	"github.com/planetidx/hilbertpvt/internal/content"
	"github.com/planetidx/hilbertpvt/internal/extway"
	"github.com/planetidx/hilbertpvt/internal/geo"
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

func TestComposeRootTileNonEmpty(t *testing.T) {
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
	root, levels, err := treebuild.Build(a, 12)
	require.NoError(t, err)

	cfg, err := rules.Decode([]byte(sampleDoc))
	require.NoError(t, err)
	ev, err := rules.New(ctx, cfg, a)
	require.NoError(t, err)
	require.NoError(t, content.Build(a, ev, 12, levels))

	c := &Composer{Archive: a, Eval: ev, LeafZoom: 12, Root: root}
	buf, err := c.Compose(0, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, buf)
}

func TestComposeEmptyTileOnUnsetBit(t *testing.T) {
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
	root, levels, err := treebuild.Build(a, 12)
	require.NoError(t, err)

	cfg, err := rules.Decode([]byte(sampleDoc))
	require.NoError(t, err)
	ev, err := rules.New(ctx, cfg, a)
	require.NoError(t, err)
	require.NoError(t, content.Build(a, ev, 12, levels))

	c := &Composer{Archive: a, Eval: ev, LeafZoom: 12, Root: root}
	// A leaf-zoom tile far from any populated cell must come back empty
	// but valid rather than erroring.
	buf, err := c.Compose(12, 1<<11, 1<<11)
	require.NoError(t, err)
	require.NotNil(t, buf)
}

func TestTileXYToFoldedMatchesDirectFold(t *testing.T) {
	for _, z := range []int{0, 2, 4, 6, 12} {
		x, y := uint32(3), uint32(1)
		got := tileXYToFolded(x, y, z)
		require.LessOrEqual(t, got, uint32(1)<<uint(2*z)-1)

		// Folding any point inside the tile (here its center) directly
		// must give the same key.
		shift := uint(32 - z)
		half := uint32(1) << (shift - 1)
		want := geo.FoldToZoom(geo.XYToHilbert(x<<shift+half, y<<shift+half), z)
		require.Equal(t, want, got)
	}
}

func TestProjectPointOrigin(t *testing.T) {
	// The tile's own northwest corner must project to (0, 0).
	z := 4
	tx, ty := uint32(5), uint32(9)
	ox := tx << uint(32-z)
	oy := ty << uint(32-z)
	lx, ly := projectPoint(ox, oy, tx, ty, z)
	require.Equal(t, int16(0), lx)
	require.Equal(t, int16(0), ly)
}

func TestProjectPointFarCornerWithinExtent(t *testing.T) {
	z := 2
	tx, ty := uint32(1), uint32(1)
	ox, oy, side := tileOrigin(tx, ty, z)
	lx, ly := projectPoint(uint32(ox)+uint32(side)-1, uint32(oy)+uint32(side)-1, tx, ty, z)
	require.LessOrEqual(t, int64(lx), int64(Extent))
	require.LessOrEqual(t, int64(ly), int64(Extent))
}

func TestComposeEmptyWhenNoRoot(t *testing.T) {
	c := &Composer{
		Archive:  &archive.Archive{},
		LeafZoom: 2,
		Root:     -1,
	}
	buf, err := c.Compose(2, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, buf)
}

// TestDescendMultiLevelNibbleOrder hand-builds a 2-level tree (root ->
// child -> grandchild) and checks that descend's nibble extraction
// consumes the folded key most-significant-nibble-first, landing on
// the grandchild that treebuild's construction order would have
// assigned it.
func TestDescendMultiLevelNibbleOrder(t *testing.T) {
	dir := t.TempDir()
	a, err := archive.Create(dir)
	require.NoError(t, err)
	defer a.Close()

	const rootLocal = 5
	const childLocal = 9

	require.NoError(t, a.Tiles.Push(archive.HilbertTile{Mask: uint16(1) << rootLocal, ChildFirst: 1}))  // index 0: root
	require.NoError(t, a.Tiles.Push(archive.HilbertTile{Mask: uint16(1) << childLocal, ChildFirst: 2})) // index 1
	require.NoError(t, a.Tiles.Push(archive.HilbertTile{Mask: 0, ChildFirst: 0}))                       // index 2: target

	c := &Composer{Archive: a, LeafZoom: 6, Root: 0}
	folded := uint32(rootLocal)<<4 | uint32(childLocal)

	state, idx := c.descend(folded, 4)
	require.Equal(t, AtInternal, state)
	require.Equal(t, 2, idx)
}

// TestDescendMultiLevelWrongSiblingIsEmpty checks that flipping the
// second-step nibble to a bit absent from the child's mask reports
// Empty rather than silently walking into an unrelated tile.
func TestDescendMultiLevelWrongSiblingIsEmpty(t *testing.T) {
	dir := t.TempDir()
	a, err := archive.Create(dir)
	require.NoError(t, err)
	defer a.Close()

	const rootLocal = 5
	const childLocal = 9

	require.NoError(t, a.Tiles.Push(archive.HilbertTile{Mask: uint16(1) << rootLocal, ChildFirst: 1}))
	require.NoError(t, a.Tiles.Push(archive.HilbertTile{Mask: uint16(1) << childLocal, ChildFirst: 2}))
	require.NoError(t, a.Tiles.Push(archive.HilbertTile{Mask: 0, ChildFirst: 0}))

	c := &Composer{Archive: a, LeafZoom: 6, Root: 0}
	folded := uint32(rootLocal)<<4 | (uint32(childLocal+1) & 0xF)

	state, _ := c.descend(folded, 4)
	require.Equal(t, Empty, state)
}

func TestPopcount16(t *testing.T) {
	require.Equal(t, 0, popcount16(0))
	require.Equal(t, 16, popcount16(0xFFFF))
	require.Equal(t, 1, popcount16(0x8000))
	require.Equal(t, 8, popcount16(0x5555))
}
