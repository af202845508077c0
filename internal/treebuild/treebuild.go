// Package treebuild implements Component F (§4.F): the bottom-up
// construction of the 16-way tree (2-zoom-step fanout) above the
// leaves, using the mask + child_first representation (§13 Open
// Question: consolidated on this single representation).
package treebuild

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"

	"github.com/planetidx/hilbertpvt/internal/archive"
)

// Every tree level covers exactly 2 Hilbert-quadtree zoom steps (16-way
// fanout, invariant 2 in §3), so folding a child's key up to its
// parent's level always drops exactly 4 bits, and the low 4 bits of
// the child's key (at the child's own resolution) are its local
// position among its 16 siblings. This holds uniformly at every tree
// level, so the builder never needs leaf_zoom in its shift arithmetic
// past the initial leaf keys (which already arrive folded to leaf
// zoom, per the Leaf record).
const (
	levelShift    = 4
	levelLocalBit = 0xF
)

// Level describes one bottom-up tree level: a contiguous run of rows
// in a.Tiles, all at the same zoom, whose children are either leaves
// (LeafChildren) or the previous Level's row range.
type Level struct {
	Zoom         int
	Base, Count  int
	LeafChildren bool
}

// Build constructs every tree level from leaf zoom down to 0 in steps
// of 2, reading runs of children sharing a parent key and emitting one
// HilbertTile per run. It returns the root tile's index in a.Tiles (-1
// if there were no leaves) and the level layout, leaf-adjacent level
// first, for internal/content.Build to consume.
func Build(a *archive.Archive, leafZoom int) (int, []Level, error) {
	numLeaves := a.Leaves.Len()
	if numLeaves == 0 {
		return -1, nil, a.Tiles.Trim()
	}

	// keys holds the current level's folded key per entry; childBase is
	// the index of entry 0 of the current level within its backing
	// column (the leaves column for the first iteration, a.Tiles for
	// every iteration after).
	keys := make([]uint32, numLeaves)
	for i := 0; i < numLeaves; i++ {
		keys[i] = a.Leaves.Get(i).H
	}
	childBase := 0
	root := -1
	var levels []Level
	leafChildren := true

	for z := leafZoom - 2; z >= 0; z -= 2 {
		levelBase := a.Tiles.Len()
		var parentKeys []uint32

		runStart := 0
		for runStart < len(keys) {
			parentKey := keys[runStart] >> levelShift
			runEnd := runStart + 1
			for runEnd < len(keys) && keys[runEnd]>>levelShift == parentKey {
				runEnd++
			}

			var mask uint16
			for i := runStart; i < runEnd; i++ {
				local := keys[i] & levelLocalBit
				mask |= 1 << local
			}

			tile := archive.HilbertTile{
				ChildFirst: uint32(childBase + runStart),
				Mask:       mask,
			}
			if err := a.Tiles.Push(tile); err != nil {
				return -1, nil, errors.Wrap(err, "treebuild: emitting tile")
			}
			root = a.Tiles.Len() - 1
			parentKeys = append(parentKeys, parentKey)

			runStart = runEnd
		}

		levels = append(levels, Level{
			Zoom: z, Base: levelBase, Count: len(parentKeys), LeafChildren: leafChildren,
		})
		leafChildren = false
		childBase = levelBase
		keys = parentKeys
	}

	if err := a.Tiles.Trim(); err != nil {
		return -1, nil, errors.Wrap(err, "treebuild: trimming tiles")
	}
	sigolo.Debugf("treebuild: emitted %d tiles over %d leaves", a.Tiles.Len(), numLeaves)
	return root, levels, nil
}

// UpperBoundTiles computes the §4.F capacity formula:
// leaf_span = last.h - first.h + 1; sum_{k=1..leafZoom/2} ceil(leaf_span / 4^k).
// Exposed for callers that want to pre-size a.Tiles before Build runs;
// Build itself relies on the column store's doubling growth instead.
func UpperBoundTiles(a *archive.Archive, leafZoom int) int {
	n := a.Leaves.Len()
	if n == 0 {
		return 0
	}
	first := a.Leaves.Get(0).H
	last := a.Leaves.Get(n - 1).H
	span := uint64(last-first) + 1
	var total uint64
	for k := 1; k <= leafZoom/2; k++ {
		div := uint64(1)
		for i := 0; i < k; i++ {
			div *= 4
		}
		total += (span + div - 1) / div
	}
	return int(total)
}
