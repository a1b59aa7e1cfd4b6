package genetics

import "math"

// Stats are the heritable traits of a bee.
type Stats struct {
	Speed     int
	Fertility int
	Lifetime  int
}

// StatLimits bounds how one stat is inherited: the child's lower bound is
// floor(min(parents) * LowFactor) but at least Floor, the upper bound is
// ceil(max(parents) * HighFactor) but at most Ceiling.
type StatLimits struct {
	Floor      int
	Ceiling    int
	LowFactor  float64
	HighFactor float64
}

var (
	// SpeedLimits: at least a 1% production chance, at most 3 combs a tick.
	SpeedLimits = StatLimits{Floor: 1, Ceiling: 200, LowFactor: 0.5, HighFactor: 1.5}
	// FertilityLimits: always at least one drone.
	FertilityLimits = StatLimits{Floor: 1, Ceiling: 3, LowFactor: 0.5, HighFactor: 1.2}
	// LifetimeLimits in ticks.
	LifetimeLimits = StatLimits{Floor: 60, Ceiling: 720, LowFactor: 0.75, HighFactor: 1.25}
)

// WildStats are given to bees caught in the wild.
var WildStats = Stats{Speed: 10, Fertility: 1, Lifetime: 120}

// Bounds returns the inclusive range a child stat is drawn from. Both ends
// stay within [Floor, Ceiling] even for out-of-range parents.
func (l StatLimits) Bounds(a, b int) (lo, hi int) {
	lo = max(l.Floor, int(math.Floor(float64(min(a, b))*l.LowFactor)))
	lo = min(lo, l.Ceiling)
	hi = min(l.Ceiling, int(math.Ceil(float64(max(a, b))*l.HighFactor)))
	hi = max(hi, lo)
	return lo, hi
}

// Roll draws a child stat uniformly from Bounds(a, b).
func (l StatLimits) Roll(a, b int, dice Dice) int {
	lo, hi := l.Bounds(a, b)
	return lo + dice.IntN(hi-lo+1)
}

// InheritStats draws each child stat independently from its parents' range.
// Pass the same parent twice for single-parent brood.
func InheritStats(a, b Stats, dice Dice) Stats {
	return Stats{
		Speed:     SpeedLimits.Roll(a.Speed, b.Speed, dice),
		Fertility: FertilityLimits.Roll(a.Fertility, b.Fertility, dice),
		Lifetime:  LifetimeLimits.Roll(a.Lifetime, b.Lifetime, dice),
	}
}
