package leveling

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emirpasic/gods/maps/treemap"
)

const (
	MinLevel     = 1
	MaxLevel     = 10
	markerPrefix = "Level "

	markerColorLow  = 0x0099ff
	markerColorHigh = 0xffd700
)

// LevelTable maps xp onto levels 1..10.
type LevelTable struct {
	thresholds []int
	byExp      *treemap.Map
}

// NewLevelTable builds a table from ten strictly ascending thresholds starting at 0.
func NewLevelTable(thresholds []int) (*LevelTable, error) {
	if len(thresholds) != MaxLevel {
		return nil, fmt.Errorf("level table needs %d thresholds, got %d", MaxLevel, len(thresholds))
	}
	if thresholds[0] != 0 {
		return nil, fmt.Errorf("level 1 threshold must be 0, got %d", thresholds[0])
	}
	byExp := treemap.NewWithIntComparator()
	for i, t := range thresholds {
		if i > 0 && t <= thresholds[i-1] {
			return nil, fmt.Errorf("threshold of level %d is not above level %d", i+1, i)
		}
		byExp.Put(t, i+1)
	}
	return &LevelTable{thresholds: append([]int(nil), thresholds...), byExp: byExp}, nil
}

// LevelFor returns the highest level whose threshold is at most exp. Anything
// below the table, or a nil table, is level 1.
func (t *LevelTable) LevelFor(exp int) int {
	if t == nil {
		return MinLevel
	}
	_, level := t.byExp.Floor(exp)
	if level == nil {
		return MinLevel
	}
	return level.(int)
}

// Threshold returns the xp needed for level.
func (t *LevelTable) Threshold(level int) int {
	if level < MinLevel {
		level = MinLevel
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return t.thresholds[level-1]
}

// Next returns the threshold of the level after level, or false at the top.
func (t *LevelTable) Next(level int) (int, bool) {
	if level >= MaxLevel {
		return 0, false
	}
	return t.Threshold(level + 1), true
}

// Thresholds returns a copy of the table.
func (t *LevelTable) Thresholds() []int {
	return append([]int(nil), t.thresholds...)
}

// Progress reports how far exp is into its level, 0..100. The top level is always 100.
func (t *LevelTable) Progress(exp int) int {
	level := t.LevelFor(exp)
	next, ok := t.Next(level)
	if !ok {
		return 100
	}
	floor := t.Threshold(level)
	p := (exp - floor) * 100 / (next - floor)
	if p < 0 {
		return 0
	}
	return p
}

func MarkerName(level int) string {
	return markerPrefix + strconv.Itoa(level)
}

// ParseMarker recognizes "Level N" role names with N in 1..10.
func ParseMarker(name string) (int, bool) {
	if !strings.HasPrefix(name, markerPrefix) {
		return 0, false
	}
	digits := name[len(markerPrefix):]
	level, err := strconv.Atoi(digits)
	if err != nil || strconv.Itoa(level) != digits {
		return 0, false
	}
	if level < MinLevel || level > MaxLevel {
		return 0, false
	}
	return level, true
}

// MarkerColor fades from blue at level 1 to gold at level 10.
func MarkerColor(level int) int {
	return markerColorLow + (markerColorHigh-markerColorLow)*(level-1)/(MaxLevel-1)
}
