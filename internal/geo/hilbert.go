package geo

// Order is the Hilbert curve order used for keys: (X,Y) live on a
// 2^Order x 2^Order grid, so the key is a 64-bit index (2*Order bits,
// here 64).
const Order = 32

// gridSide is 2^Order as a uint64, the side length of the full-resolution
// Hilbert grid that node/way coordinates are keyed against.
const gridSide = uint64(1) << Order

// XYToHilbert converts (x, y) to the order-32 Hilbert curve index.
// Grounded on the teacher's xyToHilbert bit-interleaving loop
// (internal/coord/hilbert.go), generalized from a zoom-bounded n x n
// grid to the fixed 2^32 x 2^32 grid the spec's key space requires.
func XYToHilbert(x, y uint32) uint64 {
	return xyToHilbertN(uint64(x), uint64(y), gridSide)
}

func xyToHilbertN(x, y, n uint64) uint64 {
	var d uint64
	s := n / 2
	for s > 0 {
		var rx, ry uint64
		if (x & s) > 0 {
			rx = 1
		}
		if (y & s) > 0 {
			ry = 1
		}
		d += s * s * ((3 * rx) ^ ry)
		if ry == 0 {
			if rx == 1 {
				x = s*2 - 1 - x
				y = s*2 - 1 - y
			}
			x, y = y, x
		}
		s /= 2
	}
	return d
}

// HilbertToXY is the inverse of XYToHilbert.
func HilbertToXY(h uint64) (x, y uint32) {
	ux, uy := hilbertToXYN(h, gridSide)
	return uint32(ux), uint32(uy)
}

func hilbertToXYN(d, n uint64) (x, y uint64) {
	var rx, ry uint64
	s := uint64(1)
	for s < n {
		rx = 1 & (d / 2)
		ry = 1 & (d ^ rx)
		if ry == 0 {
			if rx == 1 {
				x = s - 1 - x
				y = s - 1 - y
			}
			x, y = y, x
		}
		x += s * rx
		y += s * ry
		d /= 4
		s *= 2
	}
	return x, y
}

// LonLatToHilbert composes LonLatToXY with XYToHilbert.
func LonLatToHilbert(lonDm7, latDm7 int32) uint64 {
	x, y := LonLatToXY(lonDm7, latDm7)
	return XYToHilbert(x, y)
}

// FoldToZoom right-shifts a full order-32 Hilbert key down to the key
// space of zoom level z (§4.B: h >> (2*(32-z))).
func FoldToZoom(h uint64, z int) uint32 {
	shift := 2 * (Order - z)
	if shift <= 0 {
		return uint32(h)
	}
	if shift >= 64 {
		return 0
	}
	return uint32(h >> uint(shift))
}

// UnfoldFromZoom is the inverse of FoldToZoom: it left-shifts a folded
// key back into the order-32 key space (the low bits are zero-filled,
// i.e. this returns the first full key whose folded value is folded).
func UnfoldFromZoom(folded uint32, z int) uint64 {
	shift := 2 * (Order - z)
	if shift <= 0 {
		return uint64(folded)
	}
	if shift >= 64 {
		return 0
	}
	return uint64(folded) << uint(shift)
}

// TileCountForZoom returns 4^z, the number of tiles along both axes
// combined (i.e. the total number of tiles) at zoom z.
func TileCountForZoom(z int) uint64 {
	if z < 0 {
		return 0
	}
	return uint64(1) << uint(2*z)
}
