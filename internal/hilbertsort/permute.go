package hilbertsort

import (
	"os"
	"path/filepath"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"

	"github.com/planetidx/hilbertpvt/internal/archive"
	"github.com/planetidx/hilbertpvt/internal/column"
)

// Permute reorders the node column, the shared tag-index column, and
// the way-ref-index column into Hilbert order (§4.C step 4), once
// SortPairs has settled the pair columns' order. It rewrites ways'
// tag_first_idx and ref_first_idx, and every ref's node index, to
// point at the new layout, then atomically renames the scratch
// "sorted_*" columns over the originals.
//
// Node pairs are rewritten in place with I set to the node's new
// (sequential) index: once nodes are physically moved into sorted
// order, position and index coincide, so the pair column's index
// field becomes the identity permutation — still written out
// explicitly so a reader never has to special-case it.
func Permute(a *archive.Archive) error {
	n := a.Nodes.Len()
	w := a.Ways.Len()

	nodeOldToNew := make([]uint32, n)
	for newIdx := 0; newIdx < n; newIdx++ {
		pair := a.NodePairs.Get(newIdx)
		nodeOldToNew[pair.I] = uint32(newIdx)
	}

	sortedNodes, err := column.Create(a.Dir, "sorted_nodes", archive.NodeSize, n)
	if err != nil {
		return errors.Wrap(err, "creating sorted_nodes")
	}
	sortedTagsIndex, err := column.Create(a.Dir, "sorted_tags_index", archive.TagIndexSize, a.TagsIndex.Len())
	if err != nil {
		return errors.Wrap(err, "creating sorted_tags_index")
	}
	sortedWays, err := column.Create(a.Dir, "sorted_ways", archive.WaySize, w)
	if err != nil {
		return errors.Wrap(err, "creating sorted_ways")
	}
	sortedRefs, err := column.Create(a.Dir, "sorted_nodes_index", archive.RefSize, a.NodesIndex.Len())
	if err != nil {
		return errors.Wrap(err, "creating sorted_nodes_index")
	}

	newNodes := archive.NewNodeColumn(sortedNodes)
	newTagsIndex := archive.NewTagIndexColumn(sortedTagsIndex)
	newWays := archive.NewWayColumn(sortedWays)
	newRefs := archive.NewRefColumn(sortedRefs)

	// Nodes, carrying their tag slices along in new node order.
	for newIdx := 0; newIdx < n; newIdx++ {
		pair := a.NodePairs.Get(newIdx)
		oldIdx := int(pair.I)
		node := a.Nodes.Get(oldIdx)

		tagStart, tagEnd := nodeTagRange(a, oldIdx)
		newTagFirst := newTagsIndex.Len()
		for t := tagStart; t < tagEnd; t++ {
			if err := newTagsIndex.Push(a.TagsIndex.Get(t)); err != nil {
				return errors.Wrap(err, "permuting node tag index")
			}
		}

		node.TagFirstIdx = uint32(newTagFirst)
		if err := newNodes.Push(node); err != nil {
			return errors.Wrap(err, "permuting nodes")
		}

		a.NodePairs.Set(newIdx, archive.HilbertNodePair{H: pair.H, I: uint64(newIdx)})
	}

	// Ways, carrying their tag and ref slices along in new way order,
	// rewriting ref values through the node permutation.
	for newIdx := 0; newIdx < w; newIdx++ {
		pair := a.WayPairs.Get(newIdx)
		oldIdx := int(pair.I)
		way := a.Ways.Get(oldIdx)

		tagStart, tagEnd := wayTagRange(a, oldIdx)
		newTagFirst := newTagsIndex.Len()
		for t := tagStart; t < tagEnd; t++ {
			if err := newTagsIndex.Push(a.TagsIndex.Get(t)); err != nil {
				return errors.Wrap(err, "permuting way tag index")
			}
		}

		refStart, refEnd := wayRefRange(a, oldIdx)
		newRefFirst := newRefs.Len()
		for r := refStart; r < refEnd; r++ {
			oldNodeIdx := a.NodesIndex.Get(r)
			var newNodeIdx uint64
			if oldNodeIdx < uint64(n) {
				newNodeIdx = uint64(nodeOldToNew[oldNodeIdx])
			}
			if err := newRefs.Push(newNodeIdx); err != nil {
				return errors.Wrap(err, "permuting way refs")
			}
		}

		way.TagFirstIdx = uint32(newTagFirst)
		way.RefFirstIdx = uint32(newRefFirst)
		if err := newWays.Push(way); err != nil {
			return errors.Wrap(err, "permuting ways")
		}

		a.WayPairs.Set(newIdx, archive.HilbertWayPair{H: pair.H, I: uint32(newIdx)})
	}

	for _, c := range []interface{ Trim() error }{newNodes, newTagsIndex, newWays, newRefs} {
		if err := c.Trim(); err != nil {
			return errors.Wrap(err, "trimming permuted column")
		}
	}

	if err := a.Nodes.Raw().Close(); err != nil {
		return errors.Wrap(err, "closing old nodes column")
	}
	if err := a.TagsIndex.Raw().Close(); err != nil {
		return errors.Wrap(err, "closing old tags_index column")
	}
	if err := a.Ways.Raw().Close(); err != nil {
		return errors.Wrap(err, "closing old ways column")
	}
	if err := a.NodesIndex.Raw().Close(); err != nil {
		return errors.Wrap(err, "closing old nodes_index column")
	}

	renames := []struct {
		raw  *column.Raw
		want string
	}{
		{sortedNodes, archive.FileNodes},
		{sortedTagsIndex, archive.FileTagsIndex},
		{sortedWays, archive.FileWays},
		{sortedRefs, archive.FileNodesIndex},
	}
	for _, r := range renames {
		if err := r.raw.Rename(r.want); err != nil {
			return errors.Wrapf(err, "promoting %s", r.want)
		}
	}
	a.Nodes, a.TagsIndex, a.Ways, a.NodesIndex = newNodes, newTagsIndex, newWays, newRefs

	sigolo.Debugf("hilbertsort: permuted %d nodes, %d ways into hilbert order", n, w)
	return nil
}

// replaceColumn closes the scratch "sorted_*" column (already trimmed
// above) and atomically renames its backing file over the original,
// matching §4.C step 4's "atomically rename sorted_* over the
// originals". The original was already closed by the caller.
func replaceColumn(dir string, raw *column.Raw, want string) error {
	scratchName := raw.Name()
	if err := raw.Close(); err != nil {
		return errors.Wrapf(err, "closing %s before promotion", scratchName)
	}
	oldPath := filepath.Join(dir, scratchName)
	wantPath := filepath.Join(dir, want)
	if err := os.Rename(oldPath, wantPath); err != nil {
		return errors.Wrapf(err, "promoting %s to %s", scratchName, want)
	}
	return nil
}

func nodeTagRange(a *archive.Archive, oldIdx int) (int, int) {
	node := a.Nodes.Get(oldIdx)
	start := int(node.TagFirstIdx)
	end := nextTagFirst(a, oldIdx, true)
	return start, end
}

func wayTagRange(a *archive.Archive, oldIdx int) (int, int) {
	way := a.Ways.Get(oldIdx)
	start := int(way.TagFirstIdx)
	end := nextTagFirst(a, oldIdx, false)
	return start, end
}

// nextTagFirst returns the half-open end of an entity's tag-index
// slice: the next entity's tag_first_idx within the same column, or
// the tags_index length for the last entity of its kind. Nodes and
// ways draw from one shared TagIndex space, so the true "next"
// boundary for the very last node is the first way's tag_first_idx
// when ways exist, else the column length; symmetrically for the last
// way.
func nextTagFirst(a *archive.Archive, oldIdx int, isNode bool) int {
	if isNode {
		if oldIdx+1 < a.Nodes.Len() {
			return int(a.Nodes.Get(oldIdx + 1).TagFirstIdx)
		}
		if a.Ways.Len() > 0 {
			return int(a.Ways.Get(0).TagFirstIdx)
		}
		return a.TagsIndex.Len()
	}
	if oldIdx+1 < a.Ways.Len() {
		return int(a.Ways.Get(oldIdx + 1).TagFirstIdx)
	}
	return a.TagsIndex.Len()
}

func wayRefRange(a *archive.Archive, oldIdx int) (int, int) {
	way := a.Ways.Get(oldIdx)
	start := int(way.RefFirstIdx)
	var end int
	if oldIdx+1 < a.Ways.Len() {
		end = int(a.Ways.Get(oldIdx + 1).RefFirstIdx)
	} else {
		end = a.NodesIndex.Len()
	}
	return start, end
}
