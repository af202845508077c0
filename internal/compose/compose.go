// Package compose implements Component I (§4.I): given a requested
// Z/X/Y, descend the tree, collect a tile's node and way lists,
// evaluate rules per entity, project geometry into tile-local integer
// coordinates, and emit a serialized tile buffer.
//
// The wire format is a bespoke encoding (the core spec excludes real
// MVT/protobuf wire work) built with encoding/binary varints, grounded
// on the teacher's serializeDirectory/DeserializeDirectory varint
// directory encoding (internal/pmtiles/directory.go).
package compose

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/planetidx/hilbertpvt/internal/archive"
	"github.com/planetidx/hilbertpvt/internal/content"
	"github.com/planetidx/hilbertpvt/internal/geo"
	"github.com/planetidx/hilbertpvt/internal/rules"
)

// Extent is the tile-local coordinate extent (§4.I step 5).
const Extent = 8192

// State is the traversal state machine named in §4.I.
type State int

const (
	Descending State = iota
	AtLeaf
	AtInternal
	Empty
)

// Composer holds the read-only handles needed to compose tiles; every
// column it touches is a read-only mmap view, so it is safe for
// concurrent use by multiple callers (§5 "Composer holds read-only
// mmap views").
type Composer struct {
	Archive  *archive.Archive
	Eval     *rules.Evaluator
	LeafZoom int
	Root     int // root tile index into Archive.Tiles, -1 if the archive has no leaves
}

// Compose implements compose(Z, X, Y) -> bytes (§4.I). Side effects:
// none; the composer never writes to the archive.
func (c *Composer) Compose(z, x, y int) ([]byte, error) {
	if z < 0 || z > c.LeafZoom || z%2 != 0 || c.Root < 0 {
		return c.encodeEmpty(), nil
	}

	folded := tileXYToFolded(uint32(x), uint32(y), z)
	state, idx := c.descend(folded, z)

	var nodes, ways []uint32
	switch state {
	case Empty:
		return c.encodeEmpty(), nil
	case AtLeaf:
		nodes, ways = content.LeafUniverse(c.Archive, c.Eval, idx, c.LeafZoom)
	case AtInternal:
		nodes, ways = c.tileContent(idx)
	}

	return c.encodeTile(nodes, ways, z, x, y)
}

// tileXYToFolded derives a tile's folded Hilbert key directly from its
// Z/X/Y: the tile's (X,Y) at zoom z, left-shifted to the full-resolution
// grid and Hilbert-indexed, folded back down to z, reproduces exactly
// the z-resolution folded key (the standard quadtree<->Hilbert
// correspondence at tile boundaries, §4.I step 1 "xy_to_hilbert").
func tileXYToFolded(x, y uint32, z int) uint32 {
	shift := uint(32 - z)
	h := geo.XYToHilbert(x<<shift, y<<shift)
	return geo.FoldToZoom(h, z)
}

// descend walks from the root per §4.I step 1: foldedAtZ holds exactly
// 2*targetZ bits (the path from root to the requested tile, 2 bits per
// Hilbert-quadtree level), grouped into targetZ/2 nibbles of 4 bits
// each (16-way fanout, §3 invariant 2), most-significant nibble first
// — the inverse of the bottom-up builder's low-end peeling
// (internal/treebuild, which grows a key from the leaves upward instead
// of consuming one downward from a fixed-width root path).
func (c *Composer) descend(foldedAtZ uint32, targetZ int) (State, int) {
	if targetZ == 0 {
		return AtInternal, c.Root
	}

	current := c.Root
	steps := targetZ / 2
	for s := 0; s < steps; s++ {
		tile := c.Archive.Tiles.Get(current)
		shift := uint(4 * (steps - s - 1))
		local := (foldedAtZ >> shift) & 0xF
		bit := uint16(1) << local
		if tile.Mask&bit == 0 {
			return Empty, 0
		}
		childIdx := int(tile.ChildFirst) + popcount16(tile.Mask&(bit-1))

		if s == steps-1 {
			if targetZ == c.LeafZoom {
				return AtLeaf, childIdx
			}
			return AtInternal, childIdx
		}
		current = childIdx
	}
	return Empty, 0
}

func popcount16(v uint16) int {
	count := 0
	for v != 0 {
		count += int(v & 1)
		v >>= 1
	}
	return count
}

// tileContent reads an internal tile's precomputed, persisted content
// slice (§4.H), bounded by the next tile's offsets or the column
// length for the last tile.
func (c *Composer) tileContent(tileIdx int) (nodes, ways []uint32) {
	tile := c.Archive.Tiles.Get(tileIdx)
	var nEnd, wEnd uint32
	if tileIdx+1 < c.Archive.Tiles.Len() {
		next := c.Archive.Tiles.Get(tileIdx + 1)
		nEnd, wEnd = next.N, next.W
	} else {
		nEnd, wEnd = uint32(c.Archive.ContentN.Len()), uint32(c.Archive.ContentW.Len())
	}
	for i := tile.N; i < nEnd; i++ {
		nodes = append(nodes, c.Archive.ContentN.Get(int(i)))
	}
	for i := tile.W; i < wEnd; i++ {
		ways = append(ways, c.Archive.ContentW.Get(int(i)))
	}
	return nodes, ways
}

// tileOrigin returns the full-resolution (X,Y) of a tile's northwest
// corner and its side length in full-resolution units, at zoom z.
func tileOrigin(x, y uint32, z int) (ox, oy, side uint64) {
	shift := uint(32 - z)
	return uint64(x) << shift, uint64(y) << shift, uint64(1) << shift
}

// projectPoint converts a full-resolution (X,Y) into tile-local
// extent-8192 coordinates relative to tile (x,y,z) (§4.I step 5).
func projectPoint(px, py uint32, tx, ty uint32, z int) (int16, int16) {
	ox, oy, side := tileOrigin(tx, ty, z)
	lx := (int64(px) - int64(ox)) * Extent / int64(side)
	ly := (int64(py) - int64(oy)) * Extent / int64(side)
	return clampI16(lx), clampI16(ly)
}

func clampI16(v int64) int16 {
	if v < -32768 {
		return -32768
	}
	if v > 32767 {
		return 32767
	}
	return int16(v)
}

// feature is the composer's in-memory representation of one entity
// before serialization (§4.I step 6).
type feature struct {
	id     uint64
	keys   []uint32 // stringtable offsets
	values []uint32 // stringtable offsets (values are always strings at this layer; numeric tag values are pre-interned into the stringtable, §3 Tag)
	points [][2]int16
}

func (c *Composer) encodeTile(nodeIdx, wayIdx []uint32, z, x, y int) ([]byte, error) {
	layerFeatures := make(map[int][]feature)

	for _, ni := range nodeIdx {
		f := c.projectNode(ni, x, y, z)
		ev := c.entityEval(int(ni), true)
		c.assignToLayers(ev, f, layerFeatures)
	}
	for _, wi := range wayIdx {
		f := c.projectWay(wi, x, y, z)
		if f == nil {
			continue
		}
		ev := c.entityEval(int(wi), false)
		c.assignToLayers(ev, *f, layerFeatures)
	}

	return c.serialize(layerFeatures), nil
}

func (c *Composer) entityEval(idx int, isNode bool) rules.RuleEval {
	start, end := entityTagRange(c.Archive, idx, isNode)
	return c.Eval.Evaluate(c.Archive, start, end)
}

func (c *Composer) assignToLayers(ev rules.RuleEval, f feature, out map[int][]feature) {
	if ev.Include == rules.IncludeNone {
		return
	}
	for _, li := range ev.Layers {
		out[li] = append(out[li], f)
	}
}

func (c *Composer) projectNode(ni uint32, tx, ty, z int) feature {
	node := c.Archive.Nodes.Get(int(ni))
	px, py := geo.LonLatToXY(node.LonDm7, node.LatDm7)
	lx, ly := projectPoint(px, py, uint32(tx), uint32(ty), z)

	keys, values := c.tagPairs(int(ni), true)
	return feature{id: node.ID, keys: keys, values: values, points: [][2]int16{{lx, ly}}}
}

func (c *Composer) projectWay(wi uint32, tx, ty, z int) *feature {
	way := c.Archive.Ways.Get(int(wi))
	refs := wayRefs(c.Archive, int(wi))
	if len(refs) == 0 {
		return nil
	}

	points := make([][2]int16, 0, len(refs))
	for _, ref := range refs {
		if ref >= uint64(c.Archive.Nodes.Len()) {
			continue
		}
		node := c.Archive.Nodes.Get(int(ref))
		px, py := geo.LonLatToXY(node.LonDm7, node.LatDm7)
		lx, ly := projectPoint(px, py, uint32(tx), uint32(ty), z)
		points = append(points, [2]int16{lx, ly})
	}
	if len(points) == 0 {
		return nil
	}

	keys, values := c.tagPairs(int(wi), false)
	return &feature{id: way.ID, keys: keys, values: values, points: points}
}

// tagPairs translates an entity's tag-index slice into parallel
// key/value stringtable-offset slices, honoring the rule's
// included-keys policy (§4.I step 4).
func (c *Composer) tagPairs(idx int, isNode bool) (keys, values []uint32) {
	start, end := entityTagRange(c.Archive, idx, isNode)
	ev := c.Eval.Evaluate(c.Archive, start, end)
	for i := start; i < end; i++ {
		tagIdx := c.Archive.TagsIndex.Get(i)
		tag := c.Archive.Tags.Get(int(tagIdx))
		if ev.Include == rules.IncludeSet && !ev.Keys[tag.KeyOff] {
			continue
		}
		keys = append(keys, tag.KeyOff)
		values = append(values, tag.ValOff)
	}
	return keys, values
}

func wayRefs(a *archive.Archive, wi int) []uint64 {
	way := a.Ways.Get(wi)
	start := int(way.RefFirstIdx)
	var end int
	if wi+1 < a.Ways.Len() {
		end = int(a.Ways.Get(wi + 1).RefFirstIdx)
	} else {
		end = a.NodesIndex.Len()
	}
	refs := make([]uint64, 0, end-start)
	for i := start; i < end; i++ {
		refs = append(refs, a.NodesIndex.Get(i))
	}
	return refs
}

// entityTagRange mirrors internal/content's range logic: nodes are
// allocated before ways in the shared tag-index space, so a node's
// range may end at the first way's tag_first_idx.
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

// --- wire format ---
//
// uvarint layer_count
// per layer: string name, uvarint feature_count
//   per feature: uvarint id, uvarint key_count, key_count * string,
//                uvarint value_count, value_count * string,
//                uvarint point_count, point_count * (i16 x, i16 y)
//
// Values are written as strings (never numbers) at this layer: the
// archive's Tag record already interns every value, numeric or not,
// as a stringtable offset (§3 "Tag, TagIndex"), so the composer has no
// separate numeric representation to emit.

func (c *Composer) encodeEmpty() []byte {
	buf := &bytes.Buffer{}
	writeUvarint(buf, 0)
	return buf.Bytes()
}

func (c *Composer) serialize(layerFeatures map[int][]feature) []byte {
	buf := &bytes.Buffer{}

	layerIdx := make([]int, 0, len(layerFeatures))
	for li := range layerFeatures {
		layerIdx = append(layerIdx, li)
	}
	sort.Ints(layerIdx)

	writeUvarint(buf, uint64(len(layerIdx)))
	for _, li := range layerIdx {
		writeString(buf, c.Eval.Layers[li].Name)
		feats := layerFeatures[li]
		writeUvarint(buf, uint64(len(feats)))
		for _, f := range feats {
			writeUvarint(buf, f.id)
			writeUvarint(buf, uint64(len(f.keys)))
			for _, k := range f.keys {
				writeString(buf, c.stringAt(k))
			}
			writeUvarint(buf, uint64(len(f.values)))
			for _, v := range f.values {
				writeString(buf, c.stringAt(v))
			}
			writeUvarint(buf, uint64(len(f.points)))
			for _, p := range f.points {
				writeInt16(buf, p[0])
				writeInt16(buf, p[1])
			}
		}
	}
	return buf.Bytes()
}

func (c *Composer) stringAt(offset uint32) string {
	return c.Archive.Strings.String(offset)
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	tmp := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(tmp, v)
	buf.Write(tmp[:n])
}

func writeInt16(buf *bytes.Buffer, v int16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(v))
	buf.Write(tmp[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}
