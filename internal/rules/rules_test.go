package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planetidx/hilbertpvt/internal/testfixture"
)

const sampleDoc = `
render:
  leaf_zoom: 12
layers:
  roads:
    - highway_rule
rules:
  highway_rule:
    minzoom: 10
    maxzoom: 12
    keys: [highway]
`

func TestDecodePreservesLayerOrderAndValidates(t *testing.T) {
	cfg, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)
	require.Equal(t, uint8(12), cfg.Render.LeafZoom)
	require.Len(t, cfg.Layers, 1)
	require.Equal(t, "roads", cfg.Layers[0].Name)
	require.Equal(t, []string{"highway_rule"}, cfg.Layers[0].Rules)
}

func TestDecodeRejectsOddLeafZoom(t *testing.T) {
	_, err := Decode([]byte("render:\n  leaf_zoom: 11\nrules: {}\n"))
	require.Error(t, err)
}

func TestEvaluatorBandCoversZoomWindow(t *testing.T) {
	dir := t.TempDir()
	a := testfixture.FourNodes(t, dir)
	defer a.Close()

	cfg, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)

	ev, err := New(context.Background(), cfg, a)
	require.NoError(t, err)

	node := a.Nodes.Get(0)
	result := ev.Evaluate(a, int(node.TagFirstIdx), int(node.TagFirstIdx)+1)
	require.True(t, result.Band.Covers(10))
	require.True(t, result.Band.Covers(12))
	require.False(t, result.Band.Covers(9))
}
