// Package genetics holds the bee type catalog, the combination rules used to
// resolve offspring types, and stat inheritance.
//
// A Catalog is built once at startup and never mutated afterwards, so it is
// safe to share between goroutines.
package genetics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Variant tags a bee type as caught in the wild or bred.
type Variant uint8

const (
	Mundane Variant = iota + 1
	Complex
)

func (v Variant) String() string {
	switch v {
	case Mundane:
		return "mundane"
	case Complex:
		return "complex"
	default:
		return "unknown"
	}
}

// Class keys let a combination side match every type of a variant.
const (
	ClassKeyMundane = "@mundane"
	ClassKeyComplex = "@complex"
)

// BeeType is one genetic type of bee.
type BeeType struct {
	Name    string
	Variant Variant
	Comb    string
}

// IsZero reports whether t is the zero BeeType.
func (t BeeType) IsZero() bool {
	return t.Name == ""
}

// Catalog is the immutable registry of bee types and combination rules.
type Catalog struct {
	types        map[string]BeeType
	order        []string
	combinations []Combination
	ranks        map[string]int
	common       string
}

// NewDefaultCatalog builds the catalog compiled into the binary.
func NewDefaultCatalog() (*Catalog, error) {
	def, err := DefaultDefinition()
	if err != nil {
		return nil, err
	}
	return NewCatalog(def)
}

// NewCatalog validates a definition and builds a catalog from it.
// Any error here is a configuration error and should stop startup.
func NewCatalog(def *Definition) (*Catalog, error) {
	c := &Catalog{
		types: make(map[string]BeeType),
		ranks: make(map[string]int),
	}

	add := func(td TypeDefinition, variant Variant) error {
		name := normalizeName(td.Name)
		if name == "" {
			return fmt.Errorf("%s type with empty name", variant)
		}
		if strings.HasPrefix(name, "@") {
			return fmt.Errorf("type name %q collides with class key syntax", name)
		}
		if _, exists := c.types[name]; exists {
			return fmt.Errorf("duplicate type %q", name)
		}
		comb := normalizeName(td.Comb)
		if comb == "" {
			return fmt.Errorf("type %q has no comb mapping", name)
		}
		c.types[name] = BeeType{Name: name, Variant: variant, Comb: comb}
		c.order = append(c.order, name)
		return nil
	}

	for _, td := range def.Mundane {
		if err := add(td, Mundane); err != nil {
			return nil, err
		}
	}
	for _, td := range def.Complex {
		if err := add(td, Complex); err != nil {
			return nil, err
		}
	}
	if len(def.Mundane) == 0 {
		return nil, fmt.Errorf("catalog declares no mundane types")
	}

	common, ok := c.types[normalizeName(def.Common)]
	if !ok || common.Variant != Complex {
		return nil, fmt.Errorf("common type %q must be a declared complex type", def.Common)
	}
	c.common = common.Name

	for i, cd := range def.Combinations {
		combo, err := c.parseCombination(cd)
		if err != nil {
			return nil, fmt.Errorf("combination %d: %w", i, err)
		}
		c.combinations = append(c.combinations, combo)
	}
	c.combinations = append(c.combinations, c.mundanePairCombinations()...)

	if err := c.computeRanks(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Catalog) parseCombination(cd CombinationDefinition) (Combination, error) {
	left, err := c.parseKey(cd.Left)
	if err != nil {
		return Combination{}, err
	}
	right, err := c.parseKey(cd.Right)
	if err != nil {
		return Combination{}, err
	}
	if len(cd.Results) == 0 {
		return Combination{}, fmt.Errorf("%s x %s has no results", cd.Left, cd.Right)
	}
	results := make([]string, 0, len(cd.Results))
	for _, r := range cd.Results {
		t, ok := c.types[normalizeName(r)]
		if !ok {
			return Combination{}, fmt.Errorf("unknown result type %q", r)
		}
		if t.Variant != Complex {
			return Combination{}, fmt.Errorf("result type %q is not complex", r)
		}
		results = append(results, t.Name)
	}
	return Combination{Left: left, Right: right, Results: results}, nil
}

func (c *Catalog) parseKey(raw string) (Key, error) {
	name := normalizeName(raw)
	switch name {
	case ClassKeyMundane:
		return Key{Class: Mundane}, nil
	case ClassKeyComplex:
		return Key{Class: Complex}, nil
	}
	if _, ok := c.types[name]; !ok {
		return Key{}, fmt.Errorf("unknown type %q", raw)
	}
	return Key{Name: name}, nil
}

// mundanePairCombinations generates one entry per unordered pair of distinct
// mundane types, each producing the common type.
func (c *Catalog) mundanePairCombinations() []Combination {
	mundane := c.Mundane()
	var combos []Combination
	for i := range mundane {
		for j := i + 1; j < len(mundane); j++ {
			combos = append(combos, Combination{
				Left:    Key{Name: mundane[i].Name},
				Right:   Key{Name: mundane[j].Name},
				Results: []string{c.common},
			})
		}
	}
	return combos
}

// computeRanks assigns every type its breeding depth. Mundane types are rank 1;
// a result type takes the smallest max(rank(left), rank(right)) + 1 over the
// entries producing it. Iterates until no rank changes.
func (c *Catalog) computeRanks() error {
	for _, name := range c.order {
		if c.types[name].Variant == Mundane {
			c.ranks[name] = 1
		}
	}

	// Each productive round fixes at least one more type, so more rounds than
	// types means the table never settled.
	for round := 0; ; round++ {
		if round > len(c.order) {
			return fmt.Errorf("type ranks did not converge")
		}
		changed := false
		for _, combo := range c.combinations {
			left, lok := c.keyRank(combo.Left)
			right, rok := c.keyRank(combo.Right)
			if !lok || !rok {
				continue
			}
			rank := max(left, right) + 1
			for _, result := range combo.Results {
				if existing, ok := c.ranks[result]; !ok || rank < existing {
					c.ranks[result] = rank
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	var unreachable []string
	for _, name := range c.order {
		if _, ok := c.ranks[name]; !ok {
			unreachable = append(unreachable, name)
		}
	}
	if len(unreachable) > 0 {
		return fmt.Errorf("types not reachable from mundane ancestors: %s", strings.Join(unreachable, ", "))
	}
	return nil
}

// keyRank is the rank of a concrete key, or the lowest known rank in a class.
func (c *Catalog) keyRank(k Key) (int, bool) {
	if !k.IsClass() {
		r, ok := c.ranks[k.Name]
		return r, ok
	}
	best, found := 0, false
	for _, name := range c.order {
		if c.types[name].Variant != k.Class {
			continue
		}
		if r, ok := c.ranks[name]; ok && (!found || r < best) {
			best, found = r, true
		}
	}
	return best, found
}

// Get looks up a type by name, ignoring case.
func (c *Catalog) Get(name string) (BeeType, bool) {
	t, ok := c.types[normalizeName(name)]
	return t, ok
}

// MustGet is Get for names known to be in the catalog.
func (c *Catalog) MustGet(name string) BeeType {
	t, ok := c.Get(name)
	if !ok {
		panic(fmt.Sprintf("genetics: unknown bee type %q", name))
	}
	return t
}

// IsMundane reports whether t was declared as a wild type.
func (c *Catalog) IsMundane(t BeeType) bool {
	declared, ok := c.types[t.Name]
	return ok && declared.Variant == Mundane
}

// Comb returns the comb category produced by t.
func (c *Catalog) Comb(t BeeType) string {
	return c.types[t.Name].Comb
}

// Rank returns the breeding depth of t; mundane types are rank 1.
func (c *Catalog) Rank(t BeeType) int {
	return c.ranks[t.Name]
}

// Common returns the type produced by two distinct mundane parents.
func (c *Catalog) Common() BeeType {
	return c.types[c.common]
}

// Mundane returns the wild types in declaration order.
func (c *Catalog) Mundane() []BeeType {
	var out []BeeType
	for _, name := range c.order {
		if t := c.types[name]; t.Variant == Mundane {
			out = append(out, t)
		}
	}
	return out
}

// All returns every type ordered by rank, then name.
func (c *Catalog) All() []BeeType {
	out := make([]BeeType, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.types[name])
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := c.ranks[out[i].Name], c.ranks[out[j].Name]
		if ri != rj {
			return ri < rj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Combinations returns the full combination table, generated entries included.
func (c *Catalog) Combinations() []Combination {
	out := make([]Combination, len(c.combinations))
	copy(out, c.combinations)
	return out
}

// CombValue is the lowest rank among the types producing comb.
// Returns false if no type produces it.
func (c *Catalog) CombValue(comb string) (int, bool) {
	comb = normalizeName(comb)
	best, found := 0, false
	for _, name := range c.order {
		if c.types[name].Comb != comb {
			continue
		}
		if r := c.ranks[name]; !found || r < best {
			best, found = r, true
		}
	}
	return best, found
}

// Suggest returns the type name closest to name, for "did you mean" replies.
// Returns false when nothing is close enough to be useful.
func (c *Catalog) Suggest(name string) (string, bool) {
	return Closest(name, c.order)
}

// Closest picks the candidate with the smallest case-insensitive edit
// distance to input, tolerating roughly one typo per four characters.
// The candidate is returned as given.
func Closest(input string, candidates []string) (string, bool) {
	input = normalizeName(input)
	if input == "" {
		return "", false
	}
	best, bestDist := "", -1
	for _, cand := range candidates {
		dist := levenshtein.ComputeDistance(input, strings.ToLower(cand))
		if bestDist < 0 || dist < bestDist {
			best, bestDist = cand, dist
		}
	}
	limit := max(1, len(best)/4)
	if bestDist < 0 || bestDist > limit {
		return "", false
	}
	return best, true
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
