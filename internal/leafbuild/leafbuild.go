// Package leafbuild implements Component D (§4.D): a single lockstep
// pass over the sorted node-pair and way-pair columns that emits one
// leaf per distinct Hilbert cell at leaf zoom.
package leafbuild

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"

	"github.com/planetidx/hilbertpvt/internal/archive"
	"github.com/planetidx/hilbertpvt/internal/geo"
)

// Build walks a.NodePairs and a.WayPairs in lockstep (both already
// sorted by h) and fills a.Leaves with one record per distinct folded
// Hilbert cell at leafZoom. w_ext/r_ext are left at zero here; they
// are filled in by internal/extway.
func Build(a *archive.Archive, leafZoom int) error {
	if leafZoom < 0 || leafZoom > 32 || leafZoom%2 != 0 {
		return errors.Errorf("leafbuild: leaf_zoom must be even and <= 32, got %d", leafZoom)
	}

	numNodes := a.NodePairs.Len()
	numWays := a.WayPairs.Len()
	if numNodes == 0 && numWays == 0 {
		return a.Leaves.Trim()
	}

	ni, wi := 0, 0
	nextFolded := func() (folded uint32, fromNode bool, ok bool) {
		hasNode := ni < numNodes
		hasWay := wi < numWays
		switch {
		case !hasNode && !hasWay:
			return 0, false, false
		case hasNode && !hasWay:
			return geo.FoldToZoom(a.NodePairs.Get(ni).H, leafZoom), true, true
		case !hasNode && hasWay:
			return geo.FoldToZoom(a.WayPairs.Get(wi).H, leafZoom), false, true
		default:
			nf := geo.FoldToZoom(a.NodePairs.Get(ni).H, leafZoom)
			wf := geo.FoldToZoom(a.WayPairs.Get(wi).H, leafZoom)
			if nf <= wf {
				return nf, true, true
			}
			return wf, false, true
		}
	}

	folded, _, ok := nextFolded()
	if !ok {
		return a.Leaves.Trim()
	}
	currentFolded := folded
	currentN, currentW := ni, wi

	emit := func(nextN, nextW int) error {
		return a.Leaves.Push(archive.Leaf{
			N: uint64(currentN),
			W: uint32(currentW),
			R: 0,
			H: currentFolded,
		})
	}

	for {
		f, fromNode, more := nextFolded()
		if !more {
			if err := emit(numNodes, numWays); err != nil {
				return errors.Wrap(err, "leafbuild: emitting final leaf")
			}
			break
		}
		if f != currentFolded {
			if err := emit(ni, wi); err != nil {
				return errors.Wrap(err, "leafbuild: emitting leaf")
			}
			currentFolded = f
			currentN, currentW = ni, wi
		}
		if fromNode {
			ni++
		} else {
			wi++
		}
	}

	if err := a.Leaves.Trim(); err != nil {
		return errors.Wrap(err, "leafbuild: trimming leaves")
	}
	sigolo.Debugf("leafbuild: emitted %d leaves for %d nodes, %d ways", a.Leaves.Len(), numNodes, numWays)
	return nil
}
