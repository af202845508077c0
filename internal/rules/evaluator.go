package rules

import (
	"bytes"
	"context"
	"sort"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/planetidx/hilbertpvt/internal/archive"
)

// Band is a zoom range [Min, Max], inclusive.
type Band struct {
	Min, Max uint8
}

func (b Band) Covers(zoom int) bool { return zoom >= int(b.Min) && zoom <= int(b.Max) }

// IncludeMode is the policy for which tag keys a matched entity exposes
// in the composed tile (§4.G output "IncludeKeys").
type IncludeMode int

const (
	IncludeNone IncludeMode = iota
	IncludeAll
	IncludeSet
)

// RuleEval is the per-entity classification result (§4.G output).
type RuleEval struct {
	Layers  []int // indices into Evaluator.Layers
	Band    Band
	Include IncludeMode
	Keys    map[uint32]bool // only populated when Include == IncludeSet; key is a stringtable offset
}

type matchClass int

const (
	matchNone matchClass = iota
	matchKey
	matchValue
	matchTag
)

type ruleInfo struct {
	layers  []int
	band    Band
	include IncludeMode
	keys    map[uint32]bool
}

// Evaluator is the one-time-constructed lookup built over a built or
// opened archive's stringtable (§4.G "One-time construction").
type Evaluator struct {
	Layers []Layer

	leafZoom int

	byTagOffsets map[[2]uint32]*ruleInfo
	byValueOff   map[uint32]*ruleInfo
	byKeyOff     map[uint32]*ruleInfo

	defaultBand Band
}

// New resolves every rule string named by cfg against a.Strings and
// builds the three offset-keyed maps (§4.G steps 1-3).
func New(ctx context.Context, cfg *Config, a *archive.Archive) (*Evaluator, error) {
	leafZoom := int(cfg.Render.LeafZoom)

	wanted := collectStrings(cfg)
	offsets, err := resolveOffsets(ctx, a, wanted)
	if err != nil {
		return nil, errors.Wrap(err, "rules: resolving rule strings")
	}
	for _, s := range wanted {
		if _, ok := offsets[s]; !ok {
			sigolo.Warnf("rules: rule string %q not found in stringtable", s)
		}
	}

	e := &Evaluator{
		Layers:       cfg.Layers,
		leafZoom:     leafZoom,
		byTagOffsets: make(map[[2]uint32]*ruleInfo),
		byValueOff:   make(map[uint32]*ruleInfo),
		byKeyOff:     make(map[uint32]*ruleInfo),
		defaultBand:  Band{Min: uint8(leafZoom), Max: uint8(leafZoom)},
	}

	layerIdxByRule := make(map[string][]int)
	for li, layer := range cfg.Layers {
		for _, ruleName := range layer.Rules {
			layerIdxByRule[ruleName] = append(layerIdxByRule[ruleName], li)
		}
	}

	for name, rc := range cfg.Rules {
		info := &ruleInfo{
			layers:  layerIdxByRule[name],
			band:    Band{Min: rc.MinZoom, Max: rc.effectiveMaxZoom(cfg.Render.LeafZoom)},
			include: includeModeOf(rc),
		}
		if info.include == IncludeSet {
			info.keys = make(map[uint32]bool, len(rc.Keys))
			for _, k := range rc.Keys {
				if off, ok := offsets[k]; ok {
					info.keys[off] = true
				}
			}
		}

		for _, k := range rc.Keys {
			off, ok := offsets[k]
			if !ok {
				continue
			}
			e.byKeyOff[off] = info
		}
		for _, v := range rc.Values {
			off, ok := offsets[v]
			if !ok {
				continue
			}
			e.byValueOff[off] = info
		}
		for _, kv := range rc.Tags {
			koff, kok := offsets[kv[0]]
			voff, vok := offsets[kv[1]]
			if !kok || !vok {
				continue
			}
			e.byTagOffsets[[2]uint32{koff, voff}] = info
		}
	}

	return e, nil
}

func includeModeOf(rc RuleConfig) IncludeMode {
	if len(rc.Keys) == 0 && len(rc.Values) == 0 && len(rc.Tags) == 0 {
		return IncludeAll
	}
	if len(rc.Keys) > 0 {
		return IncludeSet
	}
	return IncludeAll
}

// collectStrings gathers every distinct rule string named by cfg
// (§4.G step 1).
func collectStrings(cfg *Config) []string {
	set := make(map[string]bool)
	for _, rc := range cfg.Rules {
		for _, k := range rc.Keys {
			set[k] = true
		}
		for _, v := range rc.Values {
			set[v] = true
		}
		for _, kv := range rc.Tags {
			set[kv[0]] = true
			set[kv[1]] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// resolveOffsets scans the stringtable once, in parallel shards, to
// translate each wanted rule string to its byte offset (§4.G step 2,
// "halts early when the set is exhausted").
func resolveOffsets(ctx context.Context, a *archive.Archive, wanted []string) (map[string]uint32, error) {
	result := make(map[string]uint32, len(wanted))
	if len(wanted) == 0 {
		return result, nil
	}

	data := a.Strings.Bytes()
	needles := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		needles[w] = true
	}

	const shards = 8
	shardBounds := splitOnBoundaries(data, shards)

	type found struct {
		str string
		off uint32
	}
	foundCh := make(chan found, len(wanted))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range shardBounds {
		b := b
		g.Go(func() error {
			pos := b.start
			for pos < b.end {
				if gctx.Err() != nil {
					return nil
				}
				strStart := pos
				rel := bytes.IndexByte(data[pos:b.end], 0)
				var str string
				if rel < 0 {
					str = string(data[pos:b.end])
					pos = b.end
				} else {
					str = string(data[pos : pos+rel])
					pos = pos + rel + 1
				}
				if needles[str] {
					select {
					case foundCh <- found{str, uint32(strStart)}:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(foundCh)
	}()
	for f := range foundCh {
		if _, ok := result[f.str]; !ok {
			result[f.str] = f.off
			if len(result) == len(wanted) {
				cancel()
			}
		}
	}
	return result, nil
}

type shardBound struct{ start, end int }

// splitOnBoundaries partitions data into `shards` contiguous byte
// ranges, snapping each boundary forward to the next NUL so no shard
// starts mid-string.
func splitOnBoundaries(data []byte, shards int) []shardBound {
	n := len(data)
	if n == 0 {
		return nil
	}
	var bounds []shardBound
	chunk := n / shards
	if chunk == 0 {
		return []shardBound{{0, n}}
	}
	start := 0
	for s := 0; s < shards; s++ {
		end := start + chunk
		if s == shards-1 {
			end = n
		} else if end < n {
			if idx := bytes.IndexByte(data[end:], 0); idx >= 0 {
				end = end + idx + 1
			} else {
				end = n
			}
		}
		if end > n {
			end = n
		}
		if start < end {
			bounds = append(bounds, shardBound{start, end})
		}
		start = end
		if start >= n {
			break
		}
	}
	return bounds
}

// Evaluate classifies one entity's tag-index slice (§4.G "Per-entity
// evaluation"): Tag match beats Value beats Key; ties don't displace.
func (e *Evaluator) Evaluate(a *archive.Archive, tagIdxStart, tagIdxEnd int) RuleEval {
	var best *ruleInfo
	bestClass := matchNone

	for i := tagIdxStart; i < tagIdxEnd && bestClass != matchTag; i++ {
		tagIdx := a.TagsIndex.Get(i)
		tag := a.Tags.Get(int(tagIdx))

		if info, ok := e.byTagOffsets[[2]uint32{tag.KeyOff, tag.ValOff}]; ok {
			best, bestClass = info, matchTag
			break
		}
		if info, ok := e.byValueOff[tag.ValOff]; ok && bestClass < matchValue {
			best, bestClass = info, matchValue
			continue
		}
		if info, ok := e.byKeyOff[tag.KeyOff]; ok && bestClass < matchKey {
			best, bestClass = info, matchKey
		}
	}

	if best == nil {
		return RuleEval{Band: e.defaultBand, Include: IncludeAll}
	}
	return RuleEval{Layers: best.layers, Band: best.band, Include: best.include, Keys: best.keys}
}
