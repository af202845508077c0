// Package hilbertsort implements Component C (§4.C): computing a
// (Hilbert-key, entity-index) pair for every node and way, sorting both
// pair columns in parallel, and permuting the entity/tag/ref columns
// into the resulting order.
package hilbertsort

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/planetidx/hilbertpvt/internal/geo"
)

// NodeResolver looks up a node's dm7 longitude/latitude by its index in
// the (pre-sort) nodes column. ok is false for an unresolved/out-of-range
// reference (§7 "unresolved node ref").
type NodeResolver func(nodeIdx uint64) (lonDm7, latDm7 int32, ok bool)

// WayRepresentativeHilbert computes a way's Hilbert key per the §4.C
// step 2 fallback chain: interior point of the referenced nodes' ring
// or line string; on failure, the median referenced (resolved) node;
// on that failing, the first resolved ref. If fewer than 4 references
// resolved at all, the spec directs straight to the first-resolved-ref
// shortcut (interior-point needs at least a triangle to be meaningful).
//
// The interior point is computed in lon/lat space and projected to the
// Mercator grid only once, on the single resulting point — matching
// original_source/src/sort.rs's build_hilbert_way_pairs, which runs
// geo::InteriorPoint over raw lon/lat coordinates and only then calls
// lonlat_to_h on the result. Projecting every ref first and running the
// sweep in already-projected XY space would not generally give the same
// answer, since Web Mercator's Y axis is a nonlinear (not affine)
// function of latitude.
//
// resolvedAny reports whether any ref resolved at all; when false the
// caller must still assign a key (§7: "never dropped") using whatever
// zero-value policy it chooses upstream (e.g. key 0).
func WayRepresentativeHilbert(refs []uint64, resolve NodeResolver) (h uint64, resolvedAny bool) {
	pts := make([]lonlat, 0, len(refs))
	for _, ref := range refs {
		if lon, lat, ok := resolve(ref); ok {
			pts = append(pts, lonlat{lon, lat})
		}
	}
	if len(pts) == 0 {
		return 0, false
	}
	if len(pts) < 4 {
		return geo.LonLatToHilbert(pts[0].lon, pts[0].lat), true
	}

	coords := make([]orb.Point, len(pts))
	for i, p := range pts {
		coords[i] = orb.Point{float64(p.lon), float64(p.lat)}
	}
	if ip, ok := interiorPoint(coords); ok {
		lon, lat := clampDm7(ip[0], ip[1])
		return geo.LonLatToHilbert(lon, lat), true
	}

	m := medianPoint(pts)
	return geo.LonLatToHilbert(m.lon, m.lat), true
}

type lonlat struct{ lon, lat int32 }

// medianPoint returns the point whose longitude is the median among
// the resolved referenced nodes — the §4.C "median referenced node"
// fallback. Ties (even count) take the lower of the two middle points.
func medianPoint(pts []lonlat) lonlat {
	sorted := make([]lonlat, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].lon < sorted[j].lon })
	return sorted[(len(sorted)-1)/2]
}

// clampDm7 guards against a degenerate interior-point computation (or
// float round-off) carrying the result outside the int32 dm7 range
// before geo.LonLatToHilbert's own Mercator clamp sees it.
func clampDm7(lon, lat float64) (int32, int32) {
	const maxDm7 = float64(1<<31 - 1)
	if lon < -maxDm7 {
		lon = -maxDm7
	}
	if lon > maxDm7 {
		lon = maxDm7
	}
	if lat < -maxDm7 {
		lat = -maxDm7
	}
	if lat > maxDm7 {
		lat = maxDm7
	}
	return int32(lon), int32(lat)
}
