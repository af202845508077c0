// Package column implements the archive's typed, fixed-stride,
// memory-mapped append-only vectors (§4.A of the core spec).
//
// A column file is an 8-byte little-endian element count followed by a
// flat array of fixed-stride records. Records never contain pointers;
// every on-disk layout is an explicit byte encoding (see Marshal/Unmarshal
// on the entity types in internal/archive) so there is no struct padding
// to reason about.
package column

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// HeaderSize is the fixed 8-byte little-endian element-count header.
const HeaderSize = 8

// initialCapacityRecords is the number of records a freshly created column
// reserves room for before its first growth.
const initialCapacityRecords = 1024

// Raw is a byte-stride-addressed column: the common machinery shared by
// every typed column (nodes, ways, pairs, leaves, tiles, ...). Typed
// wrappers in internal/archive expose Get/Push in terms of their own
// record types by Marshal/Unmarshal-ing into a Raw record slot.
type Raw struct {
	dir    string
	name   string
	stride int

	file     *os.File
	data     []byte // full mmap, including the 8-byte header
	writable bool
	count    int // cached element count
	capRecs  int // capacity in records implied by len(data)
}

func path(dir, name string) string {
	return filepath.Join(dir, name)
}

// Create allocates a backing file sized for capacity records plus the
// header, and maps it read-write. capacity may be 0, in which case a
// small default capacity is used.
func Create(dir, name string, stride, capacity int) (*Raw, error) {
	if stride <= 0 {
		return nil, errors.Errorf("column %s: stride must be positive, got %d", name, stride)
	}
	if capacity <= 0 {
		capacity = initialCapacityRecords
	}

	p := path(dir, name)
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "creating column %s", name)
	}

	size := HeaderSize + capacity*stride
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "sizing column %s", name)
	}

	data, err := mmapFile(f.Fd(), size, true)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "mmap column %s", name)
	}

	r := &Raw{
		dir: dir, name: name, stride: stride,
		file: f, data: data, writable: true,
		count: 0, capRecs: capacity,
	}
	binary.LittleEndian.PutUint64(r.data[0:8], 0)
	return r, nil
}

// Open maps an existing column file and parses its element count.
func Open(dir, name string, stride int, writable bool) (*Raw, error) {
	if stride <= 0 {
		return nil, errors.Errorf("column %s: stride must be positive, got %d", name, stride)
	}

	p := path(dir, name)
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(p, flag, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening column %s", name)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat column %s", name)
	}
	size := fi.Size()
	if size < HeaderSize {
		f.Close()
		return nil, errors.Errorf("column %s: file too small (%d bytes) to hold header", name, size)
	}

	data, err := mmapFile(f.Fd(), int(size), writable)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "mmap column %s", name)
	}

	count := int(binary.LittleEndian.Uint64(data[0:8]))
	capRecs := (len(data) - HeaderSize) / stride
	if count > capRecs {
		munmapFile(data)
		f.Close()
		return nil, errors.Errorf("column %s: header count %d exceeds file capacity %d", name, count, capRecs)
	}

	return &Raw{
		dir: dir, name: name, stride: stride,
		file: f, data: data, writable: writable,
		count: count, capRecs: capRecs,
	}, nil
}

// Name returns the column's file name within its archive directory.
func (r *Raw) Name() string { return r.name }

// Stride returns the fixed record size in bytes.
func (r *Raw) Stride() int { return r.stride }

// Len returns the number of live records.
func (r *Raw) Len() int { return r.count }

// Slice returns the byte range for record i. The returned slice aliases
// the memory map and is valid only until the next structural mutation
// (Push past capacity, SetLen growing past capacity, Trim, Close).
func (r *Raw) Slice(i int) []byte {
	off := HeaderSize + i*r.stride
	return r.data[off : off+r.stride]
}

// SliceMut is Slice for a writable column; it panics if the column was
// opened read-only, matching the spec's "single writer during build
// phase" ownership rule.
func (r *Raw) SliceMut(i int) []byte {
	if !r.writable {
		panic("column: SliceMut on read-only column " + r.name)
	}
	return r.Slice(i)
}

// Push appends one record, growing the backing file (by doubling) if the
// column is at capacity. rec must be exactly Stride() bytes.
func (r *Raw) Push(rec []byte) error {
	if !r.writable {
		return errors.Errorf("column %s: push on read-only column", r.name)
	}
	if len(rec) != r.stride {
		return errors.Errorf("column %s: record is %d bytes, want %d", r.name, len(rec), r.stride)
	}
	if r.count >= r.capRecs {
		if err := r.grow(); err != nil {
			return err
		}
	}
	copy(r.Slice(r.count), rec)
	r.count++
	binary.LittleEndian.PutUint64(r.data[0:8], uint64(r.count))
	return nil
}

// SetLen sets the element count directly, used by build phases that know
// the final count up front (e.g. after a parallel permute) and write
// records out of order via SliceMut. newLen must not exceed capacity;
// callers should Create with a sufficient capacity first.
func (r *Raw) SetLen(newLen int) error {
	if !r.writable {
		return errors.Errorf("column %s: SetLen on read-only column", r.name)
	}
	if newLen > r.capRecs {
		if err := r.growTo(newLen); err != nil {
			return err
		}
	}
	r.count = newLen
	binary.LittleEndian.PutUint64(r.data[0:8], uint64(newLen))
	return nil
}

// grow doubles the backing file's record capacity.
func (r *Raw) grow() error {
	newCap := r.capRecs * 2
	if newCap == 0 {
		newCap = initialCapacityRecords
	}
	return r.growTo(newCap)
}

// growTo resizes the backing file to hold at least newCap records,
// remapping the file in place.
func (r *Raw) growTo(newCap int) error {
	if newCap <= r.capRecs {
		return nil
	}
	newSize := HeaderSize + newCap*r.stride

	if err := munmapFile(r.data); err != nil {
		return errors.Wrapf(err, "unmapping column %s before resize", r.name)
	}
	if err := r.file.Truncate(int64(newSize)); err != nil {
		return errors.Wrapf(err, "growing column %s to %d records", r.name, newCap)
	}
	data, err := mmapFile(r.file.Fd(), newSize, true)
	if err != nil {
		return errors.Wrapf(err, "remapping column %s after resize", r.name)
	}
	r.data = data
	r.capRecs = newCap
	return nil
}

// AppendBytes appends an arbitrary byte blob to a stride-1 column (used
// for the NUL-delimited stringtable) and returns the byte offset the
// blob was written at. It is the column-store primitive underlying
// internal/archive's Stringtable.Intern.
func (r *Raw) AppendBytes(data []byte) (int, error) {
	if r.stride != 1 {
		return 0, errors.Errorf("column %s: AppendBytes requires stride 1, got %d", r.name, r.stride)
	}
	if !r.writable {
		return 0, errors.Errorf("column %s: AppendBytes on read-only column", r.name)
	}
	offset := r.count
	needed := offset + len(data)
	if needed > r.capRecs {
		newCap := r.capRecs * 2
		if newCap == 0 {
			newCap = initialCapacityRecords
		}
		for newCap < needed {
			newCap *= 2
		}
		if err := r.growTo(newCap); err != nil {
			return 0, err
		}
	}
	copy(r.data[HeaderSize+offset:HeaderSize+needed], data)
	r.count = needed
	binary.LittleEndian.PutUint64(r.data[0:8], uint64(r.count))
	return offset, nil
}

// Bytes returns the full live byte range of a stride-1 column.
func (r *Raw) Bytes() []byte {
	return r.data[HeaderSize : HeaderSize+r.count]
}

// Trim truncates the backing file to exactly its live element count,
// dropping any doubled-growth slack. Called once a build phase finishes
// writing a column.
func (r *Raw) Trim() error {
	if !r.writable {
		return errors.Errorf("column %s: trim on read-only column", r.name)
	}
	newSize := HeaderSize + r.count*r.stride
	if err := munmapFile(r.data); err != nil {
		return errors.Wrapf(err, "unmapping column %s before trim", r.name)
	}
	if err := r.file.Truncate(int64(newSize)); err != nil {
		return errors.Wrapf(err, "trimming column %s", r.name)
	}
	data, err := mmapFile(r.file.Fd(), newSize, true)
	if err != nil {
		return errors.Wrapf(err, "remapping column %s after trim", r.name)
	}
	r.data = data
	r.capRecs = r.count
	return nil
}

// Rename atomically renames the column's backing file, used to promote a
// "sorted_*" scratch column over the original once a build phase commits
// (§4.C step 4).
func (r *Raw) Rename(newName string) error {
	oldPath := path(r.dir, r.name)
	newPath := path(r.dir, newName)
	if err := os.Rename(oldPath, newPath); err != nil {
		return errors.Wrapf(err, "renaming column %s to %s", r.name, newName)
	}
	r.name = newName
	return nil
}

// Close unmaps and closes the backing file.
func (r *Raw) Close() error {
	if err := munmapFile(r.data); err != nil {
		return errors.Wrapf(err, "unmapping column %s", r.name)
	}
	r.data = nil
	return r.file.Close()
}

// Sync flushes the memory map's dirty pages to disk.
func (r *Raw) Sync() error {
	if err := r.file.Sync(); err != nil {
		return errors.Wrapf(err, "syncing column %s", r.name)
	}
	return nil
}
