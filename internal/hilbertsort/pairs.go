package hilbertsort

import (
	"context"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/planetidx/hilbertpvt/internal/archive"
	"github.com/planetidx/hilbertpvt/internal/geo"
)

// shardCount bounds the fan-out of the data-parallel phases named in
// §5; a fixed shard count keeps each goroutine's slice contiguous
// (sequential mmap access) instead of interleaving cache lines across
// workers.
const shardCount = 8

// ComputeNodePairs fills a.NodePairs with one (h, i) pair per node
// (§4.C step 1), in parallel across contiguous shards of the nodes
// column.
func ComputeNodePairs(ctx context.Context, a *archive.Archive) error {
	n := a.Nodes.Len()
	if err := a.NodePairs.SetLen(n); err != nil {
		return errors.Wrap(err, "sizing hilbert_node_pairs")
	}

	g, _ := errgroup.WithContext(ctx)
	forEachShard(n, shardCount, func(lo, hi int) {
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				node := a.Nodes.Get(i)
				h := geo.LonLatToHilbert(node.LonDm7, node.LatDm7)
				a.NodePairs.Set(i, archive.HilbertNodePair{H: h, I: uint64(i)})
			}
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "computing node pairs")
	}
	sigolo.Debugf("hilbertsort: computed %d node pairs", n)
	return nil
}

// ComputeWayPairs fills a.WayPairs with one (h, i) pair per way (§4.C
// step 2), resolving each way's representative point against the
// (pre-sort) node column via its ref slice in a.NodesIndex.
func ComputeWayPairs(ctx context.Context, a *archive.Archive) error {
	n := a.Ways.Len()
	if err := a.WayPairs.SetLen(n); err != nil {
		return errors.Wrap(err, "sizing hilbert_way_pairs")
	}

	resolve := func(nodeIdx uint64) (int32, int32, bool) {
		if nodeIdx >= uint64(a.Nodes.Len()) {
			return 0, 0, false
		}
		node := a.Nodes.Get(int(nodeIdx))
		return node.LonDm7, node.LatDm7, true
	}

	var unresolved int64
	g, _ := errgroup.WithContext(ctx)
	forEachShard(n, shardCount, func(lo, hi int) {
		g.Go(func() error {
			localUnresolved := 0
			for i := lo; i < hi; i++ {
				refs := wayRefs(a, i)
				h, resolvedAny := WayRepresentativeHilbert(refs, resolve)
				if !resolvedAny {
					localUnresolved++
				}
				a.WayPairs.Set(i, archive.HilbertWayPair{H: h, I: uint32(i)})
			}
			atomicAdd(&unresolved, int64(localUnresolved))
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "computing way pairs")
	}
	if unresolved > 0 {
		sigolo.Warnf("hilbertsort: %d ways had no resolvable node reference; keyed at h=0", unresolved)
	}
	sigolo.Debugf("hilbertsort: computed %d way pairs", n)
	return nil
}

// wayRefs reads way i's node-index slice out of a.NodesIndex, bounded
// by the next way's ref_first_idx (or the column length, for the last
// way) — the same half-open sentinel convention used by tag slices.
func wayRefs(a *archive.Archive, i int) []uint64 {
	way := a.Ways.Get(i)
	start := way.RefFirstIdx
	var end uint32
	if i+1 < a.Ways.Len() {
		end = a.Ways.Get(i + 1).RefFirstIdx
	} else {
		end = uint32(a.NodesIndex.Len())
	}
	refs := make([]uint64, 0, end-start)
	for idx := start; idx < end; idx++ {
		refs = append(refs, a.NodesIndex.Get(int(idx)))
	}
	return refs
}

// forEachShard partitions [0, n) into up to shards contiguous ranges
// and invokes fn on each, skipping empty shards for small n.
func forEachShard(n, shards int, fn func(lo, hi int)) {
	if n == 0 {
		return
	}
	if shards > n {
		shards = n
	}
	base := n / shards
	rem := n % shards
	lo := 0
	for s := 0; s < shards; s++ {
		size := base
		if s < rem {
			size++
		}
		hi := lo + size
		if size > 0 {
			fn(lo, hi)
		}
		lo = hi
	}
}
