package grid

import (
	_ "embed"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed regions.yaml
var defaultRegionsYAML []byte

// ErrUnknownRegion is returned when a region key matches no region or state.
var ErrUnknownRegion = eris.New("grid: unknown region")

// Region is a named multi-state search area.
type Region struct {
	Name        string `yaml:"name" json:"name"`
	BoundingBox `yaml:",inline"`
}

// Table maps region keys and state names to bounding boxes.
type Table struct {
	Regions map[string]Region      `yaml:"regions"`
	States  map[string]BoundingBox `yaml:"states"`
}

// DefaultTable returns the built-in region table.
func DefaultTable() *Table {
	t, err := parseTable(defaultRegionsYAML)
	if err != nil {
		panic(err) // embedded file is validated by tests
	}
	return t
}

// LoadTable returns the built-in table with entries from the YAML file at
// path merged over it. An empty path yields the built-in table.
func LoadTable(path string) (*Table, error) {
	t := DefaultTable()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "grid: read regions file %s", path)
	}
	extra, err := parseTable(data)
	if err != nil {
		return nil, eris.Wrapf(err, "grid: parse regions file %s", path)
	}
	for k, r := range extra.Regions {
		t.Regions[k] = r
	}
	for k, b := range extra.States {
		t.States[k] = b
	}
	return t, nil
}

func parseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "grid: unmarshal regions")
	}
	if t.Regions == nil {
		t.Regions = make(map[string]Region)
	}
	if t.States == nil {
		t.States = make(map[string]BoundingBox)
	}
	for k, r := range t.Regions {
		if err := r.Validate(); err != nil {
			return nil, eris.Wrapf(err, "grid: region %s", k)
		}
	}
	for k, b := range t.States {
		if err := b.Validate(); err != nil {
			return nil, eris.Wrapf(err, "grid: state %s", k)
		}
	}
	return &t, nil
}

// Lookup resolves a region key or state name to its bounding box. State names
// match exactly first, then by substring in either direction.
func (t *Table) Lookup(key string) (BoundingBox, error) {
	if r, ok := t.Regions[key]; ok {
		return r.BoundingBox, nil
	}
	name := strings.ToLower(strings.TrimSpace(key))
	if name == "" {
		return BoundingBox{}, eris.Wrap(ErrUnknownRegion, "empty region key")
	}
	if b, ok := t.States[name]; ok {
		return b, nil
	}
	for _, state := range t.StateNames() {
		if strings.Contains(state, name) || strings.Contains(name, state) {
			return t.States[state], nil
		}
	}
	return BoundingBox{}, eris.Wrapf(ErrUnknownRegion, "%q", key)
}

// DisplayName returns the human name for a region key: the region's name, or
// the key title-cased for states.
func (t *Table) DisplayName(key string) string {
	if r, ok := t.Regions[key]; ok {
		return r.Name
	}
	words := strings.Fields(strings.ToLower(key))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// RegionKeys returns the named region keys in sorted order.
func (t *Table) RegionKeys() []string {
	keys := make([]string, 0, len(t.Regions))
	for k := range t.Regions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StateNames returns the state names in sorted order.
func (t *Table) StateNames() []string {
	names := make([]string, 0, len(t.States))
	for k := range t.States {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
