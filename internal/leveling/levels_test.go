package leveling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevelTableRejectsBadTables(t *testing.T) {
	t.Parallel()
	for name, thresholds := range map[string][]int{
		"short":         {0, 100, 200},
		"nonzero start": {10, 100, 500, 1200, 2200, 3500, 5100, 7000, 9200, 11700},
		"not ascending": {0, 100, 100, 1200, 2200, 3500, 5100, 7000, 9200, 11700},
		"descending":    {0, 100, 500, 400, 2200, 3500, 5100, 7000, 9200, 11700},
	} {
		_, err := NewLevelTable(thresholds)
		assert.Error(t, err, name)
	}
}

func TestLevelFor(t *testing.T) {
	t.Parallel()
	levels := testLevels(t)
	cases := []struct {
		exp   int
		level int
	}{
		{-5, 1},
		{0, 1},
		{50, 1},
		{99, 1},
		{100, 2},
		{110, 2},
		{499, 2},
		{500, 3},
		{9199, 8},
		{11700, 10},
		{1000000, 10},
	}
	for _, c := range cases {
		assert.Equal(t, c.level, levels.LevelFor(c.exp), "xp %d", c.exp)
	}

	var missing *LevelTable
	assert.Equal(t, 1, missing.LevelFor(5000))
}

func TestNextAndProgress(t *testing.T) {
	t.Parallel()
	levels := testLevels(t)

	next, ok := levels.Next(1)
	require.True(t, ok)
	assert.Equal(t, 100, next)
	_, ok = levels.Next(MaxLevel)
	assert.False(t, ok)

	assert.Equal(t, 50, levels.Progress(50))
	assert.Equal(t, 2, levels.Progress(110))
	assert.Equal(t, 100, levels.Progress(20000))
	assert.Equal(t, 0, levels.Threshold(0))
	assert.Equal(t, 11700, levels.Threshold(42))
}

func TestParseMarker(t *testing.T) {
	t.Parallel()
	valid := map[string]int{"Level 1": 1, "Level 7": 7, "Level 10": 10}
	for name, level := range valid {
		got, ok := ParseMarker(name)
		assert.True(t, ok, name)
		assert.Equal(t, level, got, name)
		assert.Equal(t, name, MarkerName(level))
	}
	for _, name := range []string{"Level 0", "Level 11", "level 3", "Level 03", "Level 2 ", "Levels 2", "Level", "Gold Badge"} {
		_, ok := ParseMarker(name)
		assert.False(t, ok, name)
	}
}

func TestMarkerColorGradient(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0x0099ff, MarkerColor(1))
	assert.Equal(t, 0xffd700, MarkerColor(10))
	assert.Less(t, MarkerColor(3), MarkerColor(4))
}
