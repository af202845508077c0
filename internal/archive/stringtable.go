package archive

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/planetidx/hilbertpvt/internal/column"
)

// Stringtable is the NUL-delimited byte blob of UTF-8 strings described
// in §3: entities reference substrings by start offset only. Intern is
// the dedup-on-write helper carried from the original implementation's
// string pool (§12 of SPEC_FULL.md) even though PBF ingestion itself is
// out of scope, since tests need a way to build fixture archives that
// satisfy the "entities reference substrings, not whole strings" rule.
type Stringtable struct {
	raw *column.Raw
	// dedup maps an already-written string to its offset, for Intern.
	// Only populated for strings written through Intern in this process;
	// a reopened stringtable starts with an empty map (dedup is a write
	// optimization, not a correctness requirement — duplicate substrings
	// are legal, just wasteful).
	dedup map[string]int
}

func newStringtable(raw *column.Raw) *Stringtable {
	return &Stringtable{raw: raw, dedup: make(map[string]int)}
}

// Intern appends s (NUL-terminated) if it hasn't already been written by
// a prior Intern call in this process, and returns its byte offset.
func (s *Stringtable) Intern(str string) (uint32, error) {
	if off, ok := s.dedup[str]; ok {
		return uint32(off), nil
	}
	data := append([]byte(str), 0)
	off, err := s.raw.AppendBytes(data)
	if err != nil {
		return 0, errors.Wrap(err, "interning string")
	}
	s.dedup[str] = off
	return uint32(off), nil
}

// String reads the NUL-terminated string starting at byte offset off.
func (s *Stringtable) String(off uint32) string {
	buf := s.raw.Bytes()
	if int(off) >= len(buf) {
		return ""
	}
	end := bytes.IndexByte(buf[off:], 0)
	if end < 0 {
		return string(buf[off:])
	}
	return string(buf[off : int(off)+end])
}

// Bytes returns the raw live stringtable contents, for the parallel
// rule-offset scan in internal/rules (§4.G step 2).
func (s *Stringtable) Bytes() []byte {
	return s.raw.Bytes()
}

func (s *Stringtable) Close() error { return s.raw.Close() }
