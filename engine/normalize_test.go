package engine

import (
	"testing"

	iface "WasteDetServer/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	m, err := NewCategoryMapper(iface.NamesConf{Data: wasteLabels()})
	require.NoError(t, err)

	t.Run("Test truncation and area", func(t *testing.T) {
		d := m.Normalize(iface.RawDetection{X1: 10.9, Y1: 20.2, X2: 110.99, Y2: 70.5, ClassID: 2, Confidence: 0.87654})
		assert.Equal(t, "glass", d.Category)
		assert.Equal(t, 0.877, d.Confidence)
		assert.Equal(t, iface.BBox{X1: 10, Y1: 20, X2: 110, Y2: 70}, d.BBox)
		assert.Equal(t, 100*50, d.Area)
	})

	t.Run("Test area uses truncated corners", func(t *testing.T) {
		// raw width is 1.2, truncated width is 2
		d := m.Normalize(iface.RawDetection{X1: 0.9, Y1: 0, X2: 2.1, Y2: 1, ClassID: 0, Confidence: 0.5})
		assert.Equal(t, 2, d.Area)
	})

	t.Run("Test negative coordinates truncate toward zero", func(t *testing.T) {
		d := m.Normalize(iface.RawDetection{X1: -1.7, Y1: -0.2, X2: 3.9, Y2: 2.5, ClassID: 1, Confidence: 0.3})
		assert.Equal(t, iface.BBox{X1: -1, Y1: 0, X2: 3, Y2: 2}, d.BBox)
		assert.Equal(t, 8, d.Area)
	})

	t.Run("Test degenerate box passes through", func(t *testing.T) {
		d := m.Normalize(iface.RawDetection{X1: 50, Y1: 10, X2: 40, Y2: 20, ClassID: 3, Confidence: 0.6})
		assert.Equal(t, -100, d.Area)
		d = m.Normalize(iface.RawDetection{X1: 5, Y1: 5, X2: 5, Y2: 9, ClassID: 3, Confidence: 0.6})
		assert.Equal(t, 0, d.Area)
	})

	t.Run("Test unmapped class", func(t *testing.T) {
		d := m.Normalize(iface.RawDetection{X2: 1, Y2: 1, ClassID: 80, Confidence: 0.9})
		assert.Equal(t, UnknownCategory, d.Category)
	})
}

func TestRoundAndFloor(t *testing.T) {
	assert.Equal(t, 0.5, roundTo3(0.4996))
	assert.Equal(t, 1.0, roundTo3(0.9996))
	assert.Equal(t, 0.123, roundTo3(0.12349))
	assert.Equal(t, 7, floorDiv(15, 2))
	assert.Equal(t, -2, floorDiv(-3, 2))
	assert.Equal(t, -50, floorDiv(-100, 2))
}

func TestScoreFilterAndSort(t *testing.T) {
	in := []iface.NormalizedDetection{
		{Category: "a", Confidence: 0.5},
		{Category: "b", Confidence: 0.499},
		{Category: "c", Confidence: 0.7},
		{Category: "d", Confidence: 0.5},
	}
	out := SortByConfidence(NewScoreFilter(0.5)(in))
	require.Len(t, out, 3)
	assert.Equal(t, []string{"c", "a", "d"}, []string{out[0].Category, out[1].Category, out[2].Category})
}

func TestSummarize(t *testing.T) {
	dets := []iface.NormalizedDetection{
		{Category: "plastic", Confidence: 0.9, Area: 10},
		{Category: "glass", Confidence: 0.7, Area: -3},
		{Category: "plastic", Confidence: 0.8, Area: 5},
	}
	s := Summarize(dets)
	require.Len(t, s, 2)
	assert.Equal(t, 2, s["plastic"].Count)
	assert.InDelta(t, 1.7, s["plastic"].TotalConfidence, 1e-9)
	assert.Equal(t, 0.85, s["plastic"].AvgConfidence)
	assert.Equal(t, 15, s["plastic"].TotalArea)
	assert.Equal(t, 7, s["plastic"].AvgArea)
	assert.Equal(t, -3, s["glass"].AvgArea)

	assert.Empty(t, Summarize(nil))
}

func TestGroupByDisposal(t *testing.T) {
	summary := map[string]iface.CategoryStats{
		"plastic": {Count: 1},
		"glass":   {Count: 2},
		"unknown": {Count: 1},
	}
	assert.Nil(t, GroupByDisposal(summary, nil))

	groups := GroupByDisposal(summary, map[string]string{"plastic": "recyclable", "glass": "recyclable"})
	assert.Equal(t, map[string][]string{
		"recyclable":      {"glass", "plastic"},
		UnclassifiedGroup: {"unknown"},
	}, groups)
}
