// Package archive defines the on-disk record layouts of §3/§6 and the
// Archive type that opens or creates the full set of required columns
// (nodes, ways, relations, nodes_index, tags, tags_index, stringtable,
// hilbert_node_pairs, hilbert_way_pairs, hilbert_leaves,
// hilbert_leaves_external, hilbert_tiles, n, w, r).
//
// Every record is encoded explicitly field-by-field with
// encoding/binary, never via a Go struct cast over the mmap'd bytes, so
// there is no struct-alignment padding to reason about (§9 "packed
// structs").
package archive

import "encoding/binary"

// Node is a 64-bit OSM id plus packed (lat, lon) dm7 and a tag-index
// cursor. 20 bytes.
type Node struct {
	ID          uint64
	LatDm7      int32
	LonDm7      int32
	TagFirstIdx uint32
}

const NodeSize = 20

func (n Node) Marshal(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], n.ID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(n.LatDm7))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(n.LonDm7))
	binary.LittleEndian.PutUint32(buf[16:20], n.TagFirstIdx)
}

func UnmarshalNode(buf []byte) Node {
	return Node{
		ID:          binary.LittleEndian.Uint64(buf[0:8]),
		LatDm7:      int32(binary.LittleEndian.Uint32(buf[8:12])),
		LonDm7:      int32(binary.LittleEndian.Uint32(buf[12:16])),
		TagFirstIdx: binary.LittleEndian.Uint32(buf[16:20]),
	}
}

// Way is a 64-bit OSM id plus tag-index and ref-index cursors. 16 bytes.
type Way struct {
	ID          uint64
	TagFirstIdx uint32
	RefFirstIdx uint32
}

const WaySize = 16

func (w Way) Marshal(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], w.ID)
	binary.LittleEndian.PutUint32(buf[8:12], w.TagFirstIdx)
	binary.LittleEndian.PutUint32(buf[12:16], w.RefFirstIdx)
}

func UnmarshalWay(buf []byte) Way {
	return Way{
		ID:          binary.LittleEndian.Uint64(buf[0:8]),
		TagFirstIdx: binary.LittleEndian.Uint32(buf[8:12]),
		RefFirstIdx: binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// Relation is an opaque pass-through record (§1 Non-goals: relation
// geometry assembly is out of scope). It carries enough to round-trip
// through an archive but is never consulted by the tree, content
// filter, or composer (§13 Open Question decision). 16 bytes.
type Relation struct {
	ID          uint64
	TagFirstIdx uint32
	MemFirstIdx uint32
}

const RelationSize = 16

func (r Relation) Marshal(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], r.ID)
	binary.LittleEndian.PutUint32(buf[8:12], r.TagFirstIdx)
	binary.LittleEndian.PutUint32(buf[12:16], r.MemFirstIdx)
}

func UnmarshalRelation(buf []byte) Relation {
	return Relation{
		ID:          binary.LittleEndian.Uint64(buf[0:8]),
		TagFirstIdx: binary.LittleEndian.Uint32(buf[8:12]),
		MemFirstIdx: binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// HilbertNodePair is the per-node sort key: a full order-32 Hilbert key
// and the node's index, 40 bits packed into the low 5 bytes of an
// 8-byte field (high 3 bytes zero) per §6. 16 bytes.
type HilbertNodePair struct {
	H uint64
	I uint64 // uses only the low 40 bits
}

const HilbertNodePairSize = 16

func (p HilbertNodePair) Marshal(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], p.H)
	binary.LittleEndian.PutUint64(buf[8:16], p.I&0xFFFFFFFFFF)
}

func UnmarshalHilbertNodePair(buf []byte) HilbertNodePair {
	return HilbertNodePair{
		H: binary.LittleEndian.Uint64(buf[0:8]),
		I: binary.LittleEndian.Uint64(buf[8:16]) & 0xFFFFFFFFFF,
	}
}

// HilbertWayPair is the per-way sort key. 12 bytes.
type HilbertWayPair struct {
	H uint64
	I uint32
}

const HilbertWayPairSize = 12

func (p HilbertWayPair) Marshal(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], p.H)
	binary.LittleEndian.PutUint32(buf[8:12], p.I)
}

func UnmarshalHilbertWayPair(buf []byte) HilbertWayPair {
	return HilbertWayPair{
		H: binary.LittleEndian.Uint64(buf[0:8]),
		I: binary.LittleEndian.Uint32(buf[8:12]),
	}
}

// Leaf is an addressable spatial cell at leaf zoom, ordered by H.
// 28 bytes, packed (§6).
type Leaf struct {
	N     uint64
	W     uint32
	R     uint32
	H     uint32
	WExt  uint32
	RExt  uint32
}

const LeafSize = 28

func (l Leaf) Marshal(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], l.N)
	binary.LittleEndian.PutUint32(buf[8:12], l.W)
	binary.LittleEndian.PutUint32(buf[12:16], l.R)
	binary.LittleEndian.PutUint32(buf[16:20], l.H)
	binary.LittleEndian.PutUint32(buf[20:24], l.WExt)
	binary.LittleEndian.PutUint32(buf[24:28], l.RExt)
}

func UnmarshalLeaf(buf []byte) Leaf {
	return Leaf{
		N:    binary.LittleEndian.Uint64(buf[0:8]),
		W:    binary.LittleEndian.Uint32(buf[8:12]),
		R:    binary.LittleEndian.Uint32(buf[12:16]),
		H:    binary.LittleEndian.Uint32(buf[16:20]),
		WExt: binary.LittleEndian.Uint32(buf[20:24]),
		RExt: binary.LittleEndian.Uint32(buf[24:28]),
	}
}

// HilbertTile is an internal tree node spanning 2 Hilbert-quadtree
// levels (16-way fanout). child_first indexes the first present child
// in the next lower level (or leaves, for the lowest tree level); mask
// bit i (LSB-first) marks whether local child i is stored. Packed,
// 18 bytes (§6: "fix one and document" — this implementation packs).
type HilbertTile struct {
	ChildFirst uint32
	Mask       uint16
	N          uint32
	W          uint32
	R          uint32
}

const HilbertTileSize = 18

func (t HilbertTile) Marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], t.ChildFirst)
	binary.LittleEndian.PutUint16(buf[4:6], t.Mask)
	binary.LittleEndian.PutUint32(buf[6:10], t.N)
	binary.LittleEndian.PutUint32(buf[10:14], t.W)
	binary.LittleEndian.PutUint32(buf[14:18], t.R)
}

func UnmarshalHilbertTile(buf []byte) HilbertTile {
	return HilbertTile{
		ChildFirst: binary.LittleEndian.Uint32(buf[0:4]),
		Mask:       binary.LittleEndian.Uint16(buf[4:6]),
		N:          binary.LittleEndian.Uint32(buf[6:10]),
		W:          binary.LittleEndian.Uint32(buf[10:14]),
		R:          binary.LittleEndian.Uint32(buf[14:18]),
	}
}

// Tag is a deduplicated (key_string_idx, value_string_idx) pair, both
// byte offsets into the stringtable. 8 bytes.
type Tag struct {
	KeyOff uint32
	ValOff uint32
}

const TagSize = 8

func (t Tag) Marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], t.KeyOff)
	binary.LittleEndian.PutUint32(buf[4:8], t.ValOff)
}

func UnmarshalTag(buf []byte) Tag {
	return Tag{
		KeyOff: binary.LittleEndian.Uint32(buf[0:4]),
		ValOff: binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// TagIndexSize is the stride of the tags_index column: one uint32 index
// into the tags table per slot, 4 bytes.
const TagIndexSize = 4

func MarshalTagIndex(buf []byte, tagIdx uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], tagIdx)
}

func UnmarshalTagIndex(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[0:4])
}

// RefSize is the stride of the nodes_index (way->node refs) column:
// a 40-bit packed node index, 5 bytes (§9 "40-bit indices").
const RefSize = 5

const maxRef40 = (uint64(1) << 40) - 1

func MarshalRef(buf []byte, idx uint64) {
	v := idx & maxRef40
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
	buf[4] = byte(v >> 32)
}

func UnmarshalRef(buf []byte) uint64 {
	return uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 |
		uint64(buf[3])<<24 | uint64(buf[4])<<32
}
