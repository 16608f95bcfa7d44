package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownInstance = errors.New("unknown gerrit instance")
	ErrCatalogParsing  = errors.New("instance catalog parsing failed")
)

//go:embed instances.yaml
var builtinInstances []byte

// Instance is a known public Gerrit installation.
type Instance struct {
	Name        string `yaml:"name" json:"name"`
	URL         string `yaml:"url" json:"url"`
	Description string `yaml:"description" json:"description,omitempty"`
	// Query overrides the default change query for this instance.
	Query string `yaml:"query,omitempty" json:"query,omitempty"`
}

// Catalog maps instance names to instances.
type Catalog struct {
	instances map[string]Instance
}

// LoadInstances returns the built-in catalog merged with the entries of path.
// Entries of path replace built-in entries with the same name. An empty path
// returns the built-in catalog.
func LoadInstances(path string) (*Catalog, error) {
	catalog, err := parseCatalog(builtinInstances)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read instance catalog %s: %w", path, err)
	}
	extra, err := parseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for name, inst := range extra.instances {
		catalog.instances[name] = inst
	}
	return catalog, nil
}

func parseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Instances []Instance `yaml:"instances"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogParsing, err)
	}

	catalog := &Catalog{instances: make(map[string]Instance, len(doc.Instances))}
	for i, inst := range doc.Instances {
		inst.Name = strings.ToLower(strings.TrimSpace(inst.Name))
		inst.URL = strings.TrimRight(strings.TrimSpace(inst.URL), "/")
		if inst.Name == "" || inst.URL == "" {
			return nil, fmt.Errorf("%w: entry %d needs a name and a url", ErrCatalogParsing, i)
		}
		catalog.instances[inst.Name] = inst
	}
	return catalog, nil
}

// Lookup finds an instance by name, ignoring case.
func (c *Catalog) Lookup(name string) (Instance, error) {
	inst, ok := c.instances[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Instance{}, fmt.Errorf("%w: %q", ErrUnknownInstance, name)
	}
	return inst, nil
}

// All returns every instance sorted by name.
func (c *Catalog) All() []Instance {
	out := make([]Instance, 0, len(c.instances))
	for _, inst := range c.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
