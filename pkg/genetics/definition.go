package genetics

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Definition is the declarative form of a catalog as stored in YAML.
type Definition struct {
	// Common is the type produced by any two distinct mundane types.
	Common       string                  `yaml:"common"`
	Mundane      []TypeDefinition        `yaml:"mundane"`
	Complex      []TypeDefinition        `yaml:"complex"`
	Combinations []CombinationDefinition `yaml:"combinations"`
}

// TypeDefinition declares one bee type and the comb it produces.
type TypeDefinition struct {
	Name string `yaml:"name"`
	Comb string `yaml:"comb"`
}

// CombinationDefinition declares one breeding rule. Left and Right are type
// names or class keys (ClassKeyMundane, ClassKeyComplex).
type CombinationDefinition struct {
	Left    string   `yaml:"left"`
	Right   string   `yaml:"right"`
	Results []string `yaml:"results"`
}

// DefaultDefinition returns the catalog definition compiled into the binary.
func DefaultDefinition() (*Definition, error) {
	return ParseDefinition(defaultCatalogYAML)
}

// LoadDefinition reads a catalog definition from a YAML file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseDefinition(data)
}

// ParseDefinition decodes a catalog definition from YAML bytes.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse catalog definition: %w", err)
	}
	return &def, nil
}
