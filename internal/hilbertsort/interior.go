package hilbertsort

import (
	"sort"

	"github.com/paulmach/orb"
)

// interiorPoint implements the classical computational-geometry
// interior-point (a.k.a. "point on surface") algorithm named in §4.C
// step 2: a vertical sweep that finds the longest horizontal segment
// internal to the geometry at the mid-Y scanline, and returns its
// midpoint. For a closed ring this point lies strictly inside the
// polygon; for an open line string it lies on the line. ok is false if
// the geometry degenerates (fewer than 2 distinct Y values, or no
// interior segment at the scanline), signalling the caller to fall
// back per the chain in §4.C.
func interiorPoint(coords []orb.Point) (orb.Point, bool) {
	if len(coords) < 2 {
		return orb.Point{}, false
	}

	closed := coords[0] == coords[len(coords)-1] && len(coords) >= 4

	minY, maxY := coords[0][1], coords[0][1]
	for _, p := range coords {
		if p[1] < minY {
			minY = p[1]
		}
		if p[1] > maxY {
			maxY = p[1]
		}
	}
	if minY == maxY {
		return orb.Point{}, false
	}
	scanY := (minY + maxY) / 2

	if closed {
		return ringInteriorPoint(coords, scanY)
	}
	return lineInteriorPoint(coords, scanY)
}

// ringInteriorPoint finds every edge crossing of the scanline, sorts
// the crossing X coordinates, and returns the midpoint of the longest
// odd-even (inside) span — the standard even-odd polygon fill rule
// applied at a single scanline.
func ringInteriorPoint(ring []orb.Point, scanY float64) (orb.Point, bool) {
	var xs []float64
	n := len(ring)
	for i := 0; i < n-1; i++ {
		a, b := ring[i], ring[i+1]
		if (a[1] <= scanY && b[1] > scanY) || (b[1] <= scanY && a[1] > scanY) {
			t := (scanY - a[1]) / (b[1] - a[1])
			xs = append(xs, a[0]+t*(b[0]-a[0]))
		}
	}
	if len(xs) < 2 {
		return orb.Point{}, false
	}
	sort.Float64s(xs)

	bestLen := -1.0
	var bestMid float64
	for i := 0; i+1 < len(xs); i += 2 {
		span := xs[i+1] - xs[i]
		if span > bestLen {
			bestLen = span
			bestMid = (xs[i] + xs[i+1]) / 2
		}
	}
	if bestLen < 0 {
		return orb.Point{}, false
	}
	return orb.Point{bestMid, scanY}, true
}

// lineInteriorPoint finds the first segment of the line string (in line
// order) that straddles the scanline and returns its scanline crossing.
func lineInteriorPoint(line []orb.Point, scanY float64) (orb.Point, bool) {
	for i := 0; i+1 < len(line); i++ {
		a, b := line[i], line[i+1]
		if (a[1] <= scanY && b[1] >= scanY) || (b[1] <= scanY && a[1] >= scanY) {
			if a[1] == b[1] {
				continue
			}
			t := (scanY - a[1]) / (b[1] - a[1])
			return orb.Point{a[0] + t*(b[0]-a[0]), scanY}, true
		}
	}
	return orb.Point{}, false
}
