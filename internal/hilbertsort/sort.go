package hilbertsort

import (
	"context"
	"sort"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/planetidx/hilbertpvt/internal/archive"
)

// SortPairs sorts the node-pair and way-pair columns by h (§4.C step
// 3). The two columns are independent, so they sort concurrently with
// each other; stable order among equal keys is not required by the
// spec, so each column's own sort runs as a single in-memory
// sort.Slice rather than a hand-rolled parallel merge sort — at
// planet scale the dominant cost is the mmap I/O these calls already
// incur, not comparison count.
func SortPairs(ctx context.Context, a *archive.Archive) error {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return sortNodePairs(a) })
	g.Go(func() error { return sortWayPairs(a) })
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "sorting hilbert pairs")
	}
	sigolo.Debugf("hilbertsort: sorted %d node pairs, %d way pairs", a.NodePairs.Len(), a.WayPairs.Len())
	return nil
}

func sortNodePairs(a *archive.Archive) error {
	n := a.NodePairs.Len()
	pairs := make([]archive.HilbertNodePair, n)
	for i := 0; i < n; i++ {
		pairs[i] = a.NodePairs.Get(i)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].H < pairs[j].H })
	for i, p := range pairs {
		a.NodePairs.Set(i, p)
	}
	return nil
}

func sortWayPairs(a *archive.Archive) error {
	n := a.WayPairs.Len()
	pairs := make([]archive.HilbertWayPair, n)
	for i := 0; i < n; i++ {
		pairs[i] = a.WayPairs.Get(i)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].H < pairs[j].H })
	for i, p := range pairs {
		a.WayPairs.Set(i, p)
	}
	return nil
}
