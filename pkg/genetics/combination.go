package genetics

// Dice is the source of randomness for breeding and production rolls.
// *rand.Rand from math/rand/v2 satisfies it.
type Dice interface {
	// IntN returns a uniform int in [0, n).
	IntN(n int) int
	// Float64 returns a uniform float in [0.0, 1.0).
	Float64() float64
}

// Key is one side of a combination entry: a concrete type name, or a class
// matching every type of a variant.
type Key struct {
	Name  string
	Class Variant
}

// IsClass reports whether k matches a whole variant.
func (k Key) IsClass() bool {
	return k.Name == ""
}

// Matches reports whether t satisfies the key.
func (k Key) Matches(t BeeType) bool {
	if k.IsClass() {
		return t.Variant == k.Class
	}
	return k.Name == t.Name
}

func (k Key) String() string {
	if !k.IsClass() {
		return k.Name
	}
	if k.Class == Mundane {
		return ClassKeyMundane
	}
	return ClassKeyComplex
}

// Combination maps an unordered pair of keys to candidate result types.
type Combination struct {
	Left    Key
	Right   Key
	Results []string
}

// Matches reports whether the parents fit the entry in either order.
func (c Combination) Matches(a, b BeeType) bool {
	return (c.Left.Matches(a) && c.Right.Matches(b)) ||
		(c.Left.Matches(b) && c.Right.Matches(a))
}

// Resolve picks the offspring type of two parents. Identical parents breed
// true; otherwise the first matching table entry wins, choosing uniformly
// among its results. Without a match the child takes one parent's type.
func (c *Catalog) Resolve(a, b BeeType, dice Dice) BeeType {
	candidates := c.ResolveAll(a, b)
	if len(candidates) == 1 {
		return candidates[0]
	}
	return candidates[dice.IntN(len(candidates))]
}

// ResolveAll returns every type the pair could produce, without choosing.
func (c *Catalog) ResolveAll(a, b BeeType) []BeeType {
	if a.Name == b.Name {
		return []BeeType{a}
	}
	if combo, ok := c.match(a, b); ok {
		out := make([]BeeType, 0, len(combo.Results))
		for _, name := range combo.Results {
			out = append(out, c.types[name])
		}
		return out
	}
	return []BeeType{a, b}
}

// IsTableMatch reports whether the pair is covered by a combination entry
// rather than falling back to a parent's type.
func (c *Catalog) IsTableMatch(a, b BeeType) bool {
	if a.Name == b.Name {
		return false
	}
	_, ok := c.match(a, b)
	return ok
}

func (c *Catalog) match(a, b BeeType) (Combination, bool) {
	for _, combo := range c.combinations {
		if combo.Matches(a, b) {
			return combo, true
		}
	}
	return Combination{}, false
}
