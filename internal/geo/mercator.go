// Package geo implements the core's projection pipeline (§4.B): dm7
// longitude/latitude <-> Web Mercator unit square <-> unsigned 32-bit
// (X,Y) <-> the 64-bit order-32 Hilbert key, plus zoom folding.
package geo

import "math"

// Dm7Scale converts between degrees and dm7 (degrees * 1e7) integer units.
const Dm7Scale = 1e7

// maxMercatorLat bounds latitude to what Web Mercator can represent without the
// projection diverging (tan blows up at +-90deg); 85.05112878 is the
// standard Web Mercator cutoff.
const maxMercatorLat = 85.05112877980659

// LonLatToUnit projects dm7 longitude/latitude to the Mercator unit
// square [0,1]x[0,1], clamping in float space before quantization per
// the numerical policy in §4.B.
func LonLatToUnit(lonDm7, latDm7 int32) (x, y float64) {
	lon := float64(lonDm7) / Dm7Scale
	lat := float64(latDm7) / Dm7Scale

	if lat > maxMercatorLat {
		lat = maxMercatorLat
	}
	if lat < -maxMercatorLat {
		lat = -maxMercatorLat
	}
	if lon > 180 {
		lon = 180
	}
	if lon < -180 {
		lon = -180
	}

	x = (lon + 180.0) / 360.0
	latRad := lat * math.Pi / 180.0
	y = 0.5 - math.Log(math.Tan(math.Pi/4+latRad/2))/(2*math.Pi)
	if y < 0 {
		y = 0
	}
	if y > 1 {
		y = 1
	}
	return x, y
}

// UnitToLonLat is the inverse of LonLatToUnit.
func UnitToLonLat(x, y float64) (lonDm7, latDm7 int32) {
	lon := x*360.0 - 180.0
	n := math.Pi - 2*math.Pi*y
	lat := 180.0 / math.Pi * math.Atan(0.5*(math.Exp(n)-math.Exp(-n)))
	return int32(math.Round(lon * Dm7Scale)), int32(math.Round(lat * Dm7Scale))
}

// LonLatToXY projects dm7 longitude/latitude to unsigned 32-bit (X,Y),
// origin at the northwest corner. (0,0) lon/lat maps to the tile center
// (2^31, 2^31).
func LonLatToXY(lonDm7, latDm7 int32) (x, y uint32) {
	ux, uy := LonLatToUnit(lonDm7, latDm7)
	return unitToXY(ux, uy)
}

func unitToXY(ux, uy float64) (x, y uint32) {
	const maxCoord = float64(math.MaxUint32)
	fx := ux * maxCoord
	fy := uy * maxCoord
	if fx < 0 {
		fx = 0
	}
	if fx > maxCoord {
		fx = maxCoord
	}
	if fy < 0 {
		fy = 0
	}
	if fy > maxCoord {
		fy = maxCoord
	}
	return uint32(math.Round(fx)), uint32(math.Round(fy))
}

// XYToLonLat is the inverse of LonLatToXY.
func XYToLonLat(x, y uint32) (lonDm7, latDm7 int32) {
	const maxCoord = float64(math.MaxUint32)
	return UnitToLonLat(float64(x)/maxCoord, float64(y)/maxCoord)
}
