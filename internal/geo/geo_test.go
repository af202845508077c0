package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLonLatRoundTrip(t *testing.T) {
	cases := []struct{ lon, lat float64 }{
		{0, 0},
		{8.5417, 47.3769},
		{-122.4194, 37.7749},
		{179.9, 84.9},
		{-179.9, -84.9},
	}
	for _, c := range cases {
		lonDm7 := int32(math.Round(c.lon * Dm7Scale))
		latDm7 := int32(math.Round(c.lat * Dm7Scale))

		x, y := LonLatToXY(lonDm7, latDm7)
		gotLon, gotLat := XYToLonLat(x, y)

		// Quantization to u32 over a ~360deg / ~180deg (Mercator-warped)
		// range bounds the error; allow a small tolerance.
		require.InDelta(t, c.lon, float64(gotLon)/Dm7Scale, 1e-3)
		require.InDelta(t, c.lat, float64(gotLat)/Dm7Scale, 1e-2)
	}
}

func TestOriginMapsToCenter(t *testing.T) {
	x, y := LonLatToXY(0, 0)
	require.InDelta(t, float64(uint32(1)<<31), float64(x), 2)
	require.InDelta(t, float64(uint32(1)<<31), float64(y), 2)
}

func TestHilbertRoundTrip(t *testing.T) {
	pts := [][2]uint32{
		{0, 0},
		{1 << 31, 1 << 31},
		{1234567, 89012345},
		{math.MaxUint32, math.MaxUint32},
		{math.MaxUint32, 0},
	}
	for _, p := range pts {
		h := XYToHilbert(p[0], p[1])
		x, y := HilbertToXY(h)
		require.Equal(t, p[0], x)
		require.Equal(t, p[1], y)
	}
}

func TestFoldUnfoldRoundTrip(t *testing.T) {
	h := XYToHilbert(123456789, 987654321)
	for z := 0; z <= 14; z += 2 {
		folded := FoldToZoom(h, z)
		unfolded := UnfoldFromZoom(folded, z)
		require.Equal(t, folded, FoldToZoom(unfolded, z))
		require.LessOrEqual(t, unfolded, h)
	}
}

func TestFoldAtMaxZoomIsIdentity(t *testing.T) {
	h := XYToHilbert(42, 4242)
	require.Equal(t, uint32(h), FoldToZoom(h, Order))
}

func TestTileCountForZoom(t *testing.T) {
	require.Equal(t, uint64(1), TileCountForZoom(0))
	require.Equal(t, uint64(4), TileCountForZoom(1))
	require.Equal(t, uint64(16), TileCountForZoom(2))
	require.Equal(t, uint64(16777216), TileCountForZoom(12))
}
