// Package build orchestrates the full core pipeline (§4, components
// A-H in dependency order) over an Archive that already holds its
// entity columns (nodes, ways, relations, tags, stringtable): pair
// computation, pair sort, the column permutation commit, leaf
// building, external-way spillover, tree construction, rule
// evaluation, and content filtering.
package build

import (
	"context"

	"github.com/cespare/xxhash/v2"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"

	"github.com/planetidx/hilbertpvt/internal/archive"
	"github.com/planetidx/hilbertpvt/internal/content"
	"github.com/planetidx/hilbertpvt/internal/extway"
	"github.com/planetidx/hilbertpvt/internal/hilbertsort"
	"github.com/planetidx/hilbertpvt/internal/leafbuild"
	"github.com/planetidx/hilbertpvt/internal/rules"
	"github.com/planetidx/hilbertpvt/internal/treebuild"
)

// Result is everything a composer needs after a successful build or
// open (§6 "HilbertTree").
type Result struct {
	Archive  *archive.Archive
	Eval     *rules.Evaluator
	LeafZoom int
	Root     int
	Levels   []treebuild.Level
}

// Run executes components C through H over an archive whose entity
// columns are already populated (§1 Non-goals: PBF ingestion itself is
// out of scope). The archive must have been opened with its entity
// columns writable (archive.OpenEntitiesWritable) so Permute can commit
// the Hilbert-sorted column rewrite.
func Run(ctx context.Context, a *archive.Archive, cfg *rules.Config) (*Result, error) {
	leafZoom := int(cfg.Render.LeafZoom)

	if err := hilbertsort.ComputeNodePairs(ctx, a); err != nil {
		return nil, errors.Wrap(err, "build: computing node pairs")
	}
	if err := hilbertsort.ComputeWayPairs(ctx, a); err != nil {
		return nil, errors.Wrap(err, "build: computing way pairs")
	}
	if err := hilbertsort.SortPairs(ctx, a); err != nil {
		return nil, errors.Wrap(err, "build: sorting pairs")
	}
	if err := hilbertsort.Permute(a); err != nil {
		return nil, errors.Wrap(err, "build: permuting entity columns")
	}

	if err := leafbuild.Build(a, leafZoom); err != nil {
		return nil, errors.Wrap(err, "build: building leaves")
	}
	if err := extway.Build(ctx, a, leafZoom); err != nil {
		return nil, errors.Wrap(err, "build: scanning external ways")
	}

	root, levels, err := treebuild.Build(a, leafZoom)
	if err != nil {
		return nil, errors.Wrap(err, "build: building tree")
	}

	ev, err := rules.New(ctx, cfg, a)
	if err != nil {
		return nil, errors.Wrap(err, "build: constructing rule evaluator")
	}

	if err := content.Build(a, ev, leafZoom, levels); err != nil {
		return nil, errors.Wrap(err, "build: filtering tile content")
	}

	sigolo.Debugf("build: complete, root tile %d over %d leaves, %d tree levels",
		root, a.Leaves.Len(), len(levels))

	return &Result{Archive: a, Eval: ev, LeafZoom: leafZoom, Root: root, Levels: levels}, nil
}

// Open resumes composing against a previously built archive: it only
// reopens the archive's columns read-only and rebuilds the in-memory
// rule evaluator (§6 "open(archive_dir, rules)"), doing none of the
// build-phase work again.
func Open(ctx context.Context, dir string, cfg *rules.Config) (*Result, error) {
	a, err := archive.Open(dir, false)
	if err != nil {
		return nil, errors.Wrap(err, "build: opening archive")
	}

	ev, err := rules.New(ctx, cfg, a)
	if err != nil {
		return nil, errors.Wrap(err, "build: constructing rule evaluator")
	}

	root := -1
	if a.Leaves.Len() > 0 && a.Tiles.Len() > 0 {
		root = a.Tiles.Len() - 1
	}

	levels, err := reconstructLevels(a, int(cfg.Render.LeafZoom))
	if err != nil {
		return nil, errors.Wrap(err, "build: reconstructing tree levels")
	}

	return &Result{Archive: a, Eval: ev, LeafZoom: int(cfg.Render.LeafZoom), Root: root, Levels: levels}, nil
}

// reconstructLevels recomputes treebuild.Build's Level layout from the
// already-built tiles column, since Open does not re-run the tree
// builder. A level's tile count is not a fixed function of the level
// below it; it depends on how the data populates the tree, so it is
// derived from the already-built Mask fields: each tile claims as many
// children as its mask has set bits.
func reconstructLevels(a *archive.Archive, leafZoom int) ([]treebuild.Level, error) {
	numLeaves := a.Leaves.Len()
	if numLeaves == 0 {
		return nil, nil
	}

	// The bottom level's child count is numLeaves; every tile claims a
	// contiguous run of children starting at ChildFirst. We recover each
	// level's row count by walking the tiles column once, using the fact
	// that levels were emitted leaf-adjacent-first (treebuild.Build) and
	// every tile's children lie entirely within the prior level's range.
	childCount := numLeaves
	base := 0
	var levels []treebuild.Level
	leafChildren := true

	for z := leafZoom - 2; z >= 0; z -= 2 {
		count := 0
		consumed := 0
		for consumed < childCount {
			tile := a.Tiles.Get(base + count)
			consumed += popcount16(tile.Mask)
			count++
		}
		levels = append(levels, treebuild.Level{Zoom: z, Base: base, Count: count, LeafChildren: leafChildren})
		leafChildren = false
		base += count
		childCount = count
	}
	return levels, nil
}

func popcount16(v uint16) int {
	c := 0
	for v != 0 {
		c += int(v & 1)
		v >>= 1
	}
	return c
}

// ArchiveDigest hashes an archive's built columns for the idempotence
// check (§8 "rebuilding ... yields byte-identical ... columns"):
// cespare/xxhash over each column's raw bytes in a fixed order.
func ArchiveDigest(a *archive.Archive) uint64 {
	h := xxhash.New()
	for _, b := range [][]byte{
		a.Nodes.Raw().Bytes(), a.Ways.Raw().Bytes(), a.Relations.Raw().Bytes(),
		a.NodesIndex.Raw().Bytes(), a.Tags.Raw().Bytes(), a.TagsIndex.Raw().Bytes(),
		a.Strings.Bytes(), a.Leaves.Raw().Bytes(), a.LeavesExternal.Raw().Bytes(),
		a.Tiles.Raw().Bytes(), a.ContentN.Raw().Bytes(), a.ContentW.Raw().Bytes(),
	} {
		_, _ = h.Write(b)
	}
	return h.Sum64()
}
