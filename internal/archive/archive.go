package archive

import (
	"github.com/pkg/errors"

	"github.com/planetidx/hilbertpvt/internal/column"
)

// Column file names, per §6's required archive layout.
const (
	FileNodes           = "nodes"
	FileWays            = "ways"
	FileRelations       = "relations"
	FileNodesIndex      = "nodes_index"
	FileTags            = "tags"
	FileTagsIndex       = "tags_index"
	FileStringtable     = "stringtable"
	FileHilbertNodePairs = "hilbert_node_pairs"
	FileHilbertWayPairs  = "hilbert_way_pairs"
	FileHilbertLeaves    = "hilbert_leaves"
	FileHilbertLeavesExt = "hilbert_leaves_external"
	FileHilbertTiles     = "hilbert_tiles"
	FileContentN         = "n"
	FileContentW         = "w"
	FileContentR         = "r"
)

// Archive holds open handles to every required column of a build (§6).
// Relations are carried as an opaque pass-through (§13 Open Question):
// the "r" content-index column and the leaf r_ext bound both exist to
// satisfy the archive layout contract but stay structurally empty,
// since relations never enter the tree.
type Archive struct {
	Dir string

	Nodes      *NodeColumn
	Ways       *WayColumn
	Relations  *RelationColumn
	NodesIndex *RefColumn
	Tags       *TagColumn
	TagsIndex  *TagIndexColumn
	Strings    *Stringtable

	NodePairs *HilbertNodePairColumn
	WayPairs  *HilbertWayPairColumn

	Leaves         *LeafColumn
	LeavesExternal *ExternalWayColumn
	Tiles          *HilbertTileColumn

	ContentN *ContentIndexColumn
	ContentW *ContentIndexColumn
	ContentR *ContentIndexColumn
}

// columnSpec pairs a file name with its record stride, for the
// create/open loops below.
type columnSpec struct {
	name   string
	stride int
}

func specs() []columnSpec {
	return []columnSpec{
		{FileNodes, NodeSize},
		{FileWays, WaySize},
		{FileRelations, RelationSize},
		{FileNodesIndex, RefSize},
		{FileTags, TagSize},
		{FileTagsIndex, TagIndexSize},
		{FileStringtable, 1},
		{FileHilbertNodePairs, HilbertNodePairSize},
		{FileHilbertWayPairs, HilbertWayPairSize},
		{FileHilbertLeaves, LeafSize},
		{FileHilbertLeavesExt, 4},
		{FileHilbertTiles, HilbertTileSize},
		{FileContentN, 4},
		{FileContentW, 4},
		{FileContentR, 4},
	}
}

// Create allocates a brand-new, empty archive directory with every
// required column present. Entity-bearing columns (nodes, ways,
// relations, refs, tags, tags_index, stringtable) are expected to be
// populated by an external ingestor (§1); the remaining columns are
// populated by the build pipeline in internal/build.
func Create(dir string) (*Archive, error) {
	raws := make(map[string]*column.Raw, len(specs()))
	for _, s := range specs() {
		r, err := column.Create(dir, s.name, s.stride, 0)
		if err != nil {
			return nil, errors.Wrapf(err, "creating column %s", s.name)
		}
		raws[s.name] = r
	}
	return wire(dir, raws), nil
}

// Open maps an existing archive directory's columns. writableBuild
// marks the build-phase-owned columns (everything except the
// ingest-owned entity columns) as writable; the entity columns are
// always opened read-only here since §3's lifecycle freezes them after
// the Hilbert sort commits (a build that still has to sort them opens
// the archive with OpenEntitiesWritable instead).
func Open(dir string, writableBuild bool) (*Archive, error) {
	raws := make(map[string]*column.Raw, len(specs()))
	entityFiles := map[string]bool{
		FileNodes: true, FileWays: true, FileRelations: true,
		FileNodesIndex: true, FileTags: true, FileTagsIndex: true,
		FileStringtable: true,
	}
	for _, s := range specs() {
		writable := writableBuild && !entityFiles[s.name]
		r, err := column.Open(dir, s.name, s.stride, writable)
		if err != nil {
			return nil, errors.Wrapf(err, "opening column %s", s.name)
		}
		raws[s.name] = r
	}
	return wire(dir, raws), nil
}

// OpenEntitiesWritable opens every column, the ingest-owned entity
// columns included, for writing. hilbertpvt.Build uses it so that
// internal/hilbertsort can permute the entity columns into Hilbert
// order (§4.C step 4).
func OpenEntitiesWritable(dir string) (*Archive, error) {
	raws := make(map[string]*column.Raw, len(specs()))
	for _, s := range specs() {
		r, err := column.Open(dir, s.name, s.stride, true)
		if err != nil {
			return nil, errors.Wrapf(err, "opening column %s", s.name)
		}
		raws[s.name] = r
	}
	return wire(dir, raws), nil
}

func wire(dir string, raws map[string]*column.Raw) *Archive {
	return &Archive{
		Dir:            dir,
		Nodes:          newNodeColumn(raws[FileNodes]),
		Ways:           newWayColumn(raws[FileWays]),
		Relations:      newRelationColumn(raws[FileRelations]),
		NodesIndex:     newRefColumn(raws[FileNodesIndex]),
		Tags:           newTagColumn(raws[FileTags]),
		TagsIndex:      newUint32Column(raws[FileTagsIndex]),
		Strings:        newStringtable(raws[FileStringtable]),
		NodePairs:      newHilbertNodePairColumn(raws[FileHilbertNodePairs]),
		WayPairs:       newHilbertWayPairColumn(raws[FileHilbertWayPairs]),
		Leaves:         newLeafColumn(raws[FileHilbertLeaves]),
		LeavesExternal: newUint32Column(raws[FileHilbertLeavesExt]),
		Tiles:          newHilbertTileColumn(raws[FileHilbertTiles]),
		ContentN:       newUint32Column(raws[FileContentN]),
		ContentW:       newUint32Column(raws[FileContentW]),
		ContentR:       newUint32Column(raws[FileContentR]),
	}
}

// Close unmaps every column.
func (a *Archive) Close() error {
	closers := []interface{ Close() error }{
		a.Nodes, a.Ways, a.Relations, a.NodesIndex, a.Tags, a.TagsIndex, a.Strings,
		a.NodePairs, a.WayPairs, a.Leaves, a.LeavesExternal, a.Tiles,
		a.ContentN, a.ContentW, a.ContentR,
	}
	var first error
	for _, c := range closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// TagSlice returns the [start, end) tag-index slots owned by an entity
// given its tag_first_idx and the next entity's tag_first_idx (or the
// tags_index column length, for the last entity) — the sentinel
// convention described in §3.
func (a *Archive) TagSlice(firstIdx, nextFirstIdx uint32) []uint32 {
	out := make([]uint32, 0, nextFirstIdx-firstIdx)
	for i := firstIdx; i < nextFirstIdx; i++ {
		out = append(out, a.TagsIndex.Get(int(i)))
	}
	return out
}
