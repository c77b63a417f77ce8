// Package species enriches a predicted label with descriptive metadata.
package species

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/butterfly-api/internal/labels"
)

//go:embed details.yaml
var embedded []byte

// Details is the descriptive record shown next to a prediction.
type Details struct {
	ScientificName string `yaml:"scientific" json:"scientific_name"`
	Description    string `yaml:"desc" json:"description"`
	Habitat        string `yaml:"habitat" json:"habitat"`
	CommonIn       string `yaml:"common" json:"common_in"`
}

// Placeholder is returned for labels without an entry.
var Placeholder = Details{
	ScientificName: "Unknown Species",
	Description:    "No description available for this species yet.",
	Habitat:        "Unknown",
	CommonIn:       "Unknown",
}

// Catalog is an immutable label -> Details table.
type Catalog struct {
	entries map[string]Details
}

// Default returns the catalog compiled into the binary.
var Default = sync.OnceValue(func() *Catalog {
	c, err := Load(bytes.NewReader(embedded))
	if err != nil {
		panic(fmt.Sprintf("species: embedded catalog: %v", err))
	}
	return c
})

// Load parses a YAML mapping of label to details.
func Load(r io.Reader) (*Catalog, error) {
	raw := map[string]Details{}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode species catalog: %w", err)
	}
	c := &Catalog{entries: make(map[string]Details, len(raw))}
	for label, d := range raw {
		c.entries[key(label)] = d
	}
	return c, nil
}

// LoadFile reads a YAML catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Merge returns a catalog with entries from other taking precedence.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	out := &Catalog{entries: make(map[string]Details, c.Len()+other.Len())}
	for _, src := range []*Catalog{c, other} {
		if src == nil {
			continue
		}
		for k, v := range src.entries {
			out.entries[k] = v
		}
	}
	return out
}

// Lookup never fails: unknown labels and blank fields degrade to Placeholder
// values.
func (c *Catalog) Lookup(label string) Details {
	if c == nil {
		return Placeholder
	}
	d, ok := c.entries[key(label)]
	if !ok {
		return Placeholder
	}
	if strings.TrimSpace(d.ScientificName) == "" {
		d.ScientificName = Placeholder.ScientificName
	}
	if strings.TrimSpace(d.Description) == "" {
		d.Description = Placeholder.Description
	}
	if strings.TrimSpace(d.Habitat) == "" {
		d.Habitat = Placeholder.Habitat
	}
	if strings.TrimSpace(d.CommonIn) == "" {
		d.CommonIn = Placeholder.CommonIn
	}
	return d
}

// Len is the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// UnknownLabels lists entries that do not name a model class, usually typos.
func (c *Catalog) UnknownLabels() []string {
	var out []string
	for k := range c.entries {
		if _, ok := labels.Index(k); !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func key(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}
