// Package testfixture builds tiny, in-memory-sized archives for
// package-level tests across internal/hilbertsort, internal/leafbuild,
// internal/extway, internal/treebuild, internal/rules, internal/content,
// and internal/compose, mirroring §8's "four-node fixture" scenario.
package testfixture

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planetidx/hilbertpvt/internal/archive"
)

// FourNodes builds the §8 "four-node fixture": four nodes at distinct
// locations (the first tagged highway=residential), one untagged way
// referencing the first two of them, no relations.
// Coordinates are chosen to land in four distinct order-32 Hilbert
// cells that still collapse to 3 distinct leaf cells at leafZoom=12
// (two of the four nodes share a leaf).
func FourNodes(t *testing.T, dir string) *archive.Archive {
	t.Helper()

	a, err := archive.Create(dir)
	require.NoError(t, err)

	highwayOff, err := a.Strings.Intern("highway")
	require.NoError(t, err)
	residentialOff, err := a.Strings.Intern("residential")
	require.NoError(t, err)

	tagIdx, err := pushTag(a, highwayOff, residentialOff)
	require.NoError(t, err)

	lons := []int32{85417000, 85417500, -1224194000, -1223000000}
	lats := []int32{473769000, 473769500, 377749000, 377749500}

	for i := 0; i < 4; i++ {
		n := archive.Node{ID: uint64(100 + i), LonDm7: lons[i], LatDm7: lats[i], TagFirstIdx: uint32(a.TagsIndex.Len())}
		if i == 0 {
			n.TagFirstIdx = tagIdx
		}
		require.NoError(t, a.Nodes.Push(n))
	}

	refStart := a.NodesIndex.Len()
	require.NoError(t, a.NodesIndex.Push(0))
	require.NoError(t, a.NodesIndex.Push(1))
	way := archive.Way{ID: 200, TagFirstIdx: uint32(a.TagsIndex.Len()), RefFirstIdx: uint32(refStart)}
	require.NoError(t, a.Ways.Push(way))

	return a
}

func pushTag(a *archive.Archive, keyOff, valOff uint32) (uint32, error) {
	idx := uint32(a.Tags.Len())
	if err := a.Tags.Push(archive.Tag{KeyOff: keyOff, ValOff: valOff}); err != nil {
		return 0, err
	}
	start := uint32(a.TagsIndex.Len())
	if err := a.TagsIndex.Push(idx); err != nil {
		return 0, err
	}
	return start, nil
}
