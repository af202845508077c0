// Package extway implements Component E (§4.E): for every way, find
// the leaf cells its referenced nodes fall into that differ from the
// way's own home leaf, and record the way as "external" to each of
// those leaves.
package extway

import (
	"context"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/planetidx/hilbertpvt/internal/archive"
	"github.com/planetidx/hilbertpvt/internal/geo"
)

// shardCount bounds the fan-out of the parallel way scan (§4.E,
// "Algorithm (parallel over ways)").
const shardCount = 8

// lockShards is the stripe count for the concurrent leaf->ways map
// (§5, "per-bucket locks, drained single-threaded"); a leaf key is
// routed to shard leafKey % lockShards.
const lockShards = 64

type shardedSet struct {
	mu   [lockShards]sync.Mutex
	bits [lockShards]map[uint32]*roaring.Bitmap
}

func newShardedSet() *shardedSet {
	s := &shardedSet{}
	for i := range s.bits {
		s.bits[i] = make(map[uint32]*roaring.Bitmap)
	}
	return s
}

func (s *shardedSet) add(leaf uint32, way uint32) {
	shard := leaf % lockShards
	s.mu[shard].Lock()
	defer s.mu[shard].Unlock()
	bm, ok := s.bits[shard][leaf]
	if !ok {
		bm = roaring.New()
		s.bits[shard][leaf] = bm
	}
	bm.Add(way)
}

func (s *shardedSet) get(leaf uint32) (*roaring.Bitmap, bool) {
	shard := leaf % lockShards
	s.mu[shard].Lock()
	defer s.mu[shard].Unlock()
	bm, ok := s.bits[shard][leaf]
	return bm, ok
}

// Build scans every way in a.Ways (already Hilbert-sorted), finds the
// leaves its referenced nodes enter that differ from its own home
// leaf, and fills a.LeavesExternal plus each leaf's w_ext bound.
func Build(ctx context.Context, a *archive.Archive, leafZoom int) error {
	set := newShardedSet()
	numWays := a.Ways.Len()
	numNodes := a.Nodes.Len()

	g, _ := errgroup.WithContext(ctx)
	forEachShard(numWays, shardCount, func(lo, hi int) {
		g.Go(func() error {
			for wIdx := lo; wIdx < hi; wIdx++ {
				homeFolded := geo.FoldToZoom(a.WayPairs.Get(wayPairIndexOf(a, wIdx)).H, leafZoom)
				refs := wayRefsOf(a, wIdx)
				for _, nodeIdx := range refs {
					if nodeIdx >= uint64(numNodes) {
						continue // unresolved ref, skipped per §4.E
					}
					node := a.Nodes.Get(int(nodeIdx))
					nodeFolded := geo.FoldToZoom(geo.LonLatToHilbert(node.LonDm7, node.LatDm7), leafZoom)
					if nodeFolded != homeFolded {
						set.add(nodeFolded, uint32(wIdx))
					}
				}
			}
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "extway: scanning ways")
	}

	// Drain in leaf order, single-threaded (§5).
	numLeaves := a.Leaves.Len()
	counter := 0
	for li := 0; li < numLeaves; li++ {
		leaf := a.Leaves.Get(li)
		leaf.WExt = uint32(counter)
		if bm, ok := set.get(leaf.H); ok {
			ways := bm.ToArray()
			sort.Slice(ways, func(i, j int) bool { return ways[i] < ways[j] })
			for _, w := range ways {
				if err := a.LeavesExternal.Push(w); err != nil {
					return errors.Wrap(err, "extway: writing external way column")
				}
			}
			counter += len(ways)
		}
		a.Leaves.Set(li, leaf)
	}

	if err := a.LeavesExternal.Trim(); err != nil {
		return errors.Wrap(err, "extway: trimming external way column")
	}
	sigolo.Debugf("extway: %d external-way entries across %d leaves", a.LeavesExternal.Len(), numLeaves)
	return nil
}

// wayPairIndexOf and wayRefsOf assume ways have already been permuted
// into Hilbert order (internal/hilbertsort.Permute), so a way's
// position in a.Ways equals its position in a.WayPairs.
func wayPairIndexOf(a *archive.Archive, wIdx int) int { return wIdx }

func wayRefsOf(a *archive.Archive, wIdx int) []uint64 {
	way := a.Ways.Get(wIdx)
	start := way.RefFirstIdx
	var end uint32
	if wIdx+1 < a.Ways.Len() {
		end = a.Ways.Get(wIdx + 1).RefFirstIdx
	} else {
		end = uint32(a.NodesIndex.Len())
	}
	refs := make([]uint64, 0, end-start)
	for i := start; i < end; i++ {
		refs = append(refs, a.NodesIndex.Get(int(i)))
	}
	return refs
}

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
