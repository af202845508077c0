package archive

import "github.com/planetidx/hilbertpvt/internal/column"

// TypedColumn adapts a byte-stride column.Raw to a record type's
// Marshal/Unmarshal pair, so every typed column (nodes, ways, pairs,
// leaves, tiles, ...) shares one small implementation instead of eight
// hand-written near-duplicates.
type TypedColumn[T any] struct {
	raw       *column.Raw
	marshal   func(T, []byte)
	unmarshal func([]byte) T
}

func newTyped[T any](raw *column.Raw, marshal func(T, []byte), unmarshal func([]byte) T) *TypedColumn[T] {
	return &TypedColumn[T]{raw: raw, marshal: marshal, unmarshal: unmarshal}
}

func (c *TypedColumn[T]) Len() int        { return c.raw.Len() }
func (c *TypedColumn[T]) Raw() *column.Raw { return c.raw }

func (c *TypedColumn[T]) Get(i int) T {
	return c.unmarshal(c.raw.Slice(i))
}

// Set overwrites slot i in place; the column must be writable and i
// must already be within the current length (grown via SetLen first).
func (c *TypedColumn[T]) Set(i int, v T) {
	c.marshal(v, c.raw.SliceMut(i))
}

func (c *TypedColumn[T]) Push(v T) error {
	buf := make([]byte, c.raw.Stride())
	c.marshal(v, buf)
	return c.raw.Push(buf)
}

func (c *TypedColumn[T]) SetLen(n int) error { return c.raw.SetLen(n) }
func (c *TypedColumn[T]) Trim() error        { return c.raw.Trim() }
func (c *TypedColumn[T]) Close() error       { return c.raw.Close() }
func (c *TypedColumn[T]) Rename(name string) error { return c.raw.Rename(name) }

// Column type aliases for the record types in records.go.
type (
	NodeColumn            = TypedColumn[Node]
	WayColumn             = TypedColumn[Way]
	RelationColumn        = TypedColumn[Relation]
	HilbertNodePairColumn = TypedColumn[HilbertNodePair]
	HilbertWayPairColumn  = TypedColumn[HilbertWayPair]
	LeafColumn            = TypedColumn[Leaf]
	HilbertTileColumn     = TypedColumn[HilbertTile]
	TagColumn             = TypedColumn[Tag]
	TagIndexColumn        = TypedColumn[uint32]
	ExternalWayColumn     = TypedColumn[uint32]
	ContentIndexColumn    = TypedColumn[uint32]
	RefColumn             = TypedColumn[uint64]
)

func newNodeColumn(raw *column.Raw) *NodeColumn {
	return newTyped(raw, Node.Marshal, UnmarshalNode)
}
func newWayColumn(raw *column.Raw) *WayColumn {
	return newTyped(raw, Way.Marshal, UnmarshalWay)
}

// NewNodeColumn, NewWayColumn, NewTagIndexColumn, and NewRefColumn
// expose the same constructors for scratch columns created outside
// this package — internal/hilbertsort's sorted_* permutation targets
// (§4.C step 4), which need typed Get/Push over a freshly column.Create'd
// Raw before it is ready to become part of an Archive.
func NewNodeColumn(raw *column.Raw) *NodeColumn         { return newNodeColumn(raw) }
func NewWayColumn(raw *column.Raw) *WayColumn           { return newWayColumn(raw) }
func NewTagIndexColumn(raw *column.Raw) *TagIndexColumn { return newUint32Column(raw) }
func NewRefColumn(raw *column.Raw) *RefColumn           { return newRefColumn(raw) }
func newRelationColumn(raw *column.Raw) *RelationColumn {
	return newTyped(raw, Relation.Marshal, UnmarshalRelation)
}
func newHilbertNodePairColumn(raw *column.Raw) *HilbertNodePairColumn {
	return newTyped(raw, HilbertNodePair.Marshal, UnmarshalHilbertNodePair)
}
func newHilbertWayPairColumn(raw *column.Raw) *HilbertWayPairColumn {
	return newTyped(raw, HilbertWayPair.Marshal, UnmarshalHilbertWayPair)
}
func newLeafColumn(raw *column.Raw) *LeafColumn {
	return newTyped(raw, Leaf.Marshal, UnmarshalLeaf)
}
func newHilbertTileColumn(raw *column.Raw) *HilbertTileColumn {
	return newTyped(raw, HilbertTile.Marshal, UnmarshalHilbertTile)
}
func newTagColumn(raw *column.Raw) *TagColumn {
	return newTyped(raw, Tag.Marshal, UnmarshalTag)
}
func newUint32Column(raw *column.Raw) *TypedColumn[uint32] {
	return newTyped(raw,
		func(v uint32, buf []byte) { MarshalTagIndex(buf, v) },
		UnmarshalTagIndex)
}
func newRefColumn(raw *column.Raw) *RefColumn {
	return newTyped(raw,
		func(v uint64, buf []byte) { MarshalRef(buf, v) },
		UnmarshalRef)
}
