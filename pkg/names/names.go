// Package names picks random bee names from a word list.
package names

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed names.txt
var defaultNames []byte

// Dice supplies random indexes. genetics.Dice and *rand.Rand satisfy it.
type Dice interface {
	IntN(n int) int
}

// Generator picks names from a fixed list.
type Generator struct {
	names []string
}

// Default returns a Generator over the built-in list.
func Default() *Generator {
	g, err := Parse(defaultNames)
	if err != nil {
		panic(fmt.Sprintf("names: built-in list is invalid: %v", err))
	}
	return g
}

// Load reads a name list from path.
func Load(path string) (*Generator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read names file: %w", err)
	}
	return Parse(data)
}

// Parse reads one name per line. Blank lines and lines starting with '#' are
// skipped; duplicates are dropped ignoring case.
func Parse(data []byte) (*Generator, error) {
	seen := make(map[string]bool)
	var list []string

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		list = append(list, name)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan names: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("name list is empty")
	}
	return &Generator{names: list}, nil
}

// Len is the number of distinct names.
func (g *Generator) Len() int {
	return len(g.names)
}

// Taken is a set of names compared without case.
type Taken map[string]struct{}

// NewTaken builds a Taken set from names.
func NewTaken(names ...string) Taken {
	t := make(Taken, len(names))
	for _, n := range names {
		t.Add(n)
	}
	return t
}

// Add marks name as used.
func (t Taken) Add(name string) {
	t[strings.ToLower(name)] = struct{}{}
}

// Has reports whether name is used.
func (t Taken) Has(name string) bool {
	_, ok := t[strings.ToLower(name)]
	return ok
}

// Pick returns a random name not in taken and adds it to taken. When every
// listed name is used, a numbered variant ("Clover 2") is returned instead.
func (g *Generator) Pick(dice Dice, taken Taken) string {
	free := make([]string, 0, len(g.names))
	for _, n := range g.names {
		if !taken.Has(n) {
			free = append(free, n)
		}
	}

	var name string
	if len(free) > 0 {
		name = free[dice.IntN(len(free))]
	} else {
		base := g.names[dice.IntN(len(g.names))]
		for i := 2; ; i++ {
			name = fmt.Sprintf("%s %d", base, i)
			if !taken.Has(name) {
				break
			}
		}
	}

	taken.Add(name)
	return name
}
