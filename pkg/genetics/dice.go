package genetics

import (
	"math/rand/v2"
	"sync"
)

// LockedDice is a Dice safe for use by the scheduler and request handlers at
// the same time.
type LockedDice struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLockedDice seeds a PCG source. A zero seed pair draws a random seed.
func NewLockedDice(seed1, seed2 uint64) *LockedDice {
	if seed1 == 0 && seed2 == 0 {
		seed1, seed2 = rand.Uint64(), rand.Uint64()
	}
	return &LockedDice{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

func (d *LockedDice) IntN(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.IntN(n)
}

func (d *LockedDice) Float64() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64()
}

var _ Dice = (*LockedDice)(nil)
