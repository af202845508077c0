// Package hilbertpvt is the public entry point (§6): building or
// opening a Hilbert-tree archive over OSM entity columns, and
// composing Planet Vector Tile buffers from it.
package hilbertpvt

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/planetidx/hilbertpvt/internal/archive"
	"github.com/planetidx/hilbertpvt/internal/build"
	"github.com/planetidx/hilbertpvt/internal/compose"
	"github.com/planetidx/hilbertpvt/internal/geo"
	"github.com/planetidx/hilbertpvt/internal/rules"
)

// Tile pairs a composed tile's coordinates with its serialized bytes
// (§6 "iterate_leaves() -> lazy sequence of (Tile, bytes)").
type Tile struct {
	Z, X, Y int
	Bytes   []byte
}

// HilbertTree is a built or opened archive ready to compose tiles.
type HilbertTree struct {
	result   *build.Result
	composer *compose.Composer
}

// Build runs the full pipeline (§4 components C-H) over an archive
// directory whose entity columns (nodes/ways/relations/tags/
// stringtable) are already populated, per the expanded spec's Non-goal
// that PBF ingestion is an external concern (§6 "build(archive_dir,
// leaf_zoom, rules) -> Result<HilbertTree>").
func Build(ctx context.Context, archiveDir string, cfg *rules.Config) (*HilbertTree, error) {
	a, err := archive.OpenEntitiesWritable(archiveDir)
	if err != nil {
		return nil, errors.Wrap(err, "hilbertpvt: opening archive for build")
	}

	result, err := build.Run(ctx, a, cfg)
	if err != nil {
		_ = a.Close()
		return nil, errors.Wrap(err, "hilbertpvt: running build pipeline")
	}

	return wrap(result), nil
}

// Open reopens a previously built archive read-only and reconstructs
// the rule evaluator (§6 "open(archive_dir, rules) -> Result<HilbertTree>").
func Open(ctx context.Context, archiveDir string, cfg *rules.Config) (*HilbertTree, error) {
	result, err := build.Open(ctx, archiveDir, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "hilbertpvt: opening archive")
	}
	return wrap(result), nil
}

func wrap(result *build.Result) *HilbertTree {
	return &HilbertTree{
		result: result,
		composer: &compose.Composer{
			Archive:  result.Archive,
			Eval:     result.Eval,
			LeafZoom: result.LeafZoom,
			Root:     result.Root,
		},
	}
}

// Compose implements HilbertTree.compose(z, x, y) -> bytes (§4.I).
func (t *HilbertTree) Compose(z, x, y int) ([]byte, error) {
	return t.composer.Compose(z, x, y)
}

// LeafZoom returns the zoom level at which this tree's leaves live.
func (t *HilbertTree) LeafZoom() int { return t.result.LeafZoom }

// Archive exposes the underlying built archive, for callers (e.g. the
// build CLI's idempotence check) that need direct column access beyond
// Compose/IterateLeaves.
func (t *HilbertTree) Archive() *archive.Archive { return t.result.Archive }

// Close releases the archive's mmap'd columns.
func (t *HilbertTree) Close() error { return t.result.Archive.Close() }

// IterateLeaves returns a lazy, restartable, finite sequence of every
// leaf tile at leaf zoom, composed on demand (§6, §9 "coroutine-style
// iteration ... modelled as a lazy, restartable, finite sequence").
// The returned function yields one (Tile, error) per call and reports
// done via a nil Tile pointer.
func (t *HilbertTree) IterateLeaves() func() (*Tile, error) {
	leaves := t.result.Archive.Leaves
	leafZoom := t.result.LeafZoom
	i := 0
	return func() (*Tile, error) {
		if i >= leaves.Len() {
			return nil, nil
		}
		h := leaves.Get(i).H
		x, y := foldedToTileXY(h, leafZoom)
		buf, err := t.Compose(leafZoom, int(x), int(y))
		i++
		if err != nil {
			return nil, err
		}
		return &Tile{Z: leafZoom, X: int(x), Y: int(y), Bytes: buf}, nil
	}
}

// foldedToTileXY recovers a leaf-zoom tile's (X,Y) from its folded
// Hilbert key by unfolding back to full resolution and re-deriving the
// grid coordinates, then right-shifting to the tile's own zoom.
func foldedToTileXY(folded uint32, leafZoom int) (x, y uint32) {
	full := geo.UnfoldFromZoom(folded, leafZoom)
	fx, fy := geo.HilbertToXY(full)
	shift := uint(32 - leafZoom)
	return fx >> shift, fy >> shift
}

// EnsureDir creates an archive directory if it does not yet exist, for
// callers (e.g. the CLI) that build a fresh archive in place.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
