// Package content implements Component H (§4.H): per internal tree
// node, the sorted list of entity indices whose rule-evaluated zoom
// band covers that tile, built bottom-up from each tile's children.
//
// Leaves are deliberately NOT materialized into the content columns:
// a leaf's own entity range is small by construction (that is what
// makes it a leaf), so the tile composer (internal/compose) evaluates
// a leaf's rule-filtered universe on demand via LeafUniverse instead of
// paying for a stored copy of it. Only internal tiles, which aggregate
// many leaves, benefit from precomputed, persisted content lists.
package content

import (
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"

	"github.com/planetidx/hilbertpvt/internal/archive"
	"github.com/planetidx/hilbertpvt/internal/rules"
	"github.com/planetidx/hilbertpvt/internal/treebuild"
)

// Build fills every internal tile's content slice in a.ContentN/W and
// records each tile's starting offset in tile.N/tile.W, in bottom-up
// order (levels must be ordered leaf-adjacent level first, root last,
// matching treebuild.Build's emission order).
func Build(a *archive.Archive, ev *rules.Evaluator, leafZoom int, levels []treebuild.Level) error {
	if a.Leaves.Len() == 0 {
		return nil
	}

	// childNodeSets/childWaySets hold the previous level's filtered
	// index lists, indexed by that level's local row number; prevBase
	// is that previous level's absolute a.Tiles row offset, needed to
	// turn tile.ChildFirst (an absolute row index, treebuild.go:79,95)
	// back into a local index into childNodeSets/childWaySets.
	var childNodeSets, childWaySets [][]uint32
	var prevBase int

	for _, lvl := range levels {
		nextNodeSets := make([][]uint32, lvl.Count)
		nextWaySets := make([][]uint32, lvl.Count)

		for i := 0; i < lvl.Count; i++ {
			tileIdx := lvl.Base + i
			tile := a.Tiles.Get(tileIdx)
			childFirst := int(tile.ChildFirst)
			numChildren := popcount16(tile.Mask)

			nodeUnion := roaring.New()
			wayUnion := roaring.New()

			if lvl.LeafChildren {
				for c := 0; c < numChildren; c++ {
					nodes, ways := LeafUniverse(a, ev, childFirst+c, leafZoom)
					for _, v := range nodes {
						nodeUnion.Add(v)
					}
					for _, v := range ways {
						wayUnion.Add(v)
					}
				}
			} else {
				localFirst := childFirst - prevBase
				for c := 0; c < numChildren; c++ {
					for _, v := range childNodeSets[localFirst+c] {
						nodeUnion.Add(v)
					}
					for _, v := range childWaySets[localFirst+c] {
						wayUnion.Add(v)
					}
				}
			}

			var nodes, ways []uint32
			for _, v := range nodeUnion.ToArray() {
				s, e := entityTagRange(a, int(v), true)
				if ev.Evaluate(a, s, e).Band.Covers(lvl.Zoom) {
					nodes = append(nodes, v)
				}
			}
			for _, v := range wayUnion.ToArray() {
				s, e := entityTagRange(a, int(v), false)
				if ev.Evaluate(a, s, e).Band.Covers(lvl.Zoom) {
					ways = append(ways, v)
				}
			}
			nextNodeSets[i] = nodes
			nextWaySets[i] = ways

			tile.N = uint32(a.ContentN.Len())
			tile.W = uint32(a.ContentW.Len())
			for _, v := range nodes {
				if err := a.ContentN.Push(v); err != nil {
					return errors.Wrap(err, "content: writing n column")
				}
			}
			for _, v := range ways {
				if err := a.ContentW.Push(v); err != nil {
					return errors.Wrap(err, "content: writing w column")
				}
			}
			a.Tiles.Set(tileIdx, tile)
		}

		childNodeSets, childWaySets = nextNodeSets, nextWaySets
		prevBase = lvl.Base
	}

	sigolo.Debugf("content: filtered %d internal tile levels, %d n-entries, %d w-entries",
		len(levels), a.ContentN.Len(), a.ContentW.Len())
	return nil
}

// LeafUniverse computes leaf li's rule-filtered node and way index
// lists on demand (§4.H.1): nodes[n..n_next) minus untagged nodes,
// ways[w..w_next), and external ways from w_ext..w_ext_next, each kept
// iff the leaf's zoom lies in its rule-evaluated band. Both returned
// slices are sorted ascending (invariant 6).
func LeafUniverse(a *archive.Archive, ev *rules.Evaluator, li int, leafZoom int) (nodes, ways []uint32) {
	leaf := a.Leaves.Get(li)

	nStart, nEnd := uint64(leaf.N), entityEnd(a.Leaves, li, true, uint64(a.Nodes.Len()))
	wStart, wEnd := uint64(leaf.W), entityEnd(a.Leaves, li, false, uint64(a.Ways.Len()))

	for ni := nStart; ni < nEnd; ni++ {
		tagStart, tagEnd := entityTagRange(a, int(ni), true)
		if tagStart == tagEnd {
			continue // untagged nodes are skipped at leaves (§4.H.1)
		}
		if ev.Evaluate(a, tagStart, tagEnd).Band.Covers(leafZoom) {
			nodes = append(nodes, uint32(ni))
		}
	}
	for wi := wStart; wi < wEnd; wi++ {
		tagStart, tagEnd := entityTagRange(a, int(wi), false)
		if ev.Evaluate(a, tagStart, tagEnd).Band.Covers(leafZoom) {
			ways = append(ways, uint32(wi))
		}
	}

	extStart := leaf.WExt
	var extEnd uint32
	if li+1 < a.Leaves.Len() {
		extEnd = a.Leaves.Get(li + 1).WExt
	} else {
		extEnd = uint32(a.LeavesExternal.Len())
	}
	for ei := extStart; ei < extEnd; ei++ {
		wi := a.LeavesExternal.Get(int(ei))
		tagStart, tagEnd := entityTagRange(a, int(wi), false)
		if ev.Evaluate(a, tagStart, tagEnd).Band.Covers(leafZoom) {
			ways = append(ways, wi)
		}
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	sort.Slice(ways, func(i, j int) bool { return ways[i] < ways[j] })
	return dedupSorted(nodes), dedupSorted(ways)
}

func popcount16(v uint16) int {
	count := 0
	for v != 0 {
		count += int(v & 1)
		v >>= 1
	}
	return count
}

func dedupSorted(s []uint32) []uint32 {
	if len(s) < 2 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// entityEnd returns the half-open end of leaf li's n or w range: the
// next leaf's corresponding start, or the given column length for the
// last leaf.
func entityEnd(leaves *archive.LeafColumn, li int, isNode bool, columnLen uint64) uint64 {
	if li+1 < leaves.Len() {
		next := leaves.Get(li + 1)
		if isNode {
			return next.N
		}
		return uint64(next.W)
	}
	return columnLen
}

func entityTagRange(a *archive.Archive, idx int, isNode bool) (int, int) {
	if isNode {
		node := a.Nodes.Get(idx)
		start := int(node.TagFirstIdx)
		if idx+1 < a.Nodes.Len() {
			return start, int(a.Nodes.Get(idx + 1).TagFirstIdx)
		}
		if a.Ways.Len() > 0 {
			return start, int(a.Ways.Get(0).TagFirstIdx)
		}
		return start, a.TagsIndex.Len()
	}
	way := a.Ways.Get(idx)
	start := int(way.TagFirstIdx)
	if idx+1 < a.Ways.Len() {
		return start, int(a.Ways.Get(idx + 1).TagFirstIdx)
	}
	return start, a.TagsIndex.Len()
}
