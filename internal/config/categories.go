package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"gopkg.in/yaml.v3"
)

// CategoryRegistry maps category name to its description.
type CategoryRegistry map[string]domain.Category

type categoriesFile struct {
	Categories []domain.Category `yaml:"categories"`
}

var categoryNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// DefaultCategories returns the categories served when no registry file is configured.
func DefaultCategories() CategoryRegistry {
	return CategoryRegistry{
		"infrastructure": {Name: "infrastructure", HasSubtypes: true},
		"amenity":        {Name: "amenity", HasSubtypes: true},
		"place":          {Name: "place", HasSubtypes: false},
		"landuse":        {Name: "landuse", HasSubtypes: false},
	}
}

// LoadCategories reads a YAML category registry. An empty path yields the defaults.
func LoadCategories(path string) (CategoryRegistry, error) {
	if path == "" {
		return DefaultCategories(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	return ParseCategories(data)
}

// ParseCategories decodes and validates a YAML category registry.
func ParseCategories(data []byte) (CategoryRegistry, error) {
	var file categoriesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("parse categories: no categories defined")
	}

	registry := make(CategoryRegistry, len(file.Categories))
	for _, c := range file.Categories {
		if !categoryNamePattern.MatchString(c.Name) {
			return nil, fmt.Errorf("parse categories: invalid category name %q", c.Name)
		}
		if _, dup := registry[c.Name]; dup {
			return nil, fmt.Errorf("parse categories: duplicate category %q", c.Name)
		}
		for _, k := range c.Kinds {
			if !categoryNamePattern.MatchString(k) {
				return nil, fmt.Errorf("parse categories: invalid geometry kind %q for %s", k, c.Name)
			}
		}
		registry[c.Name] = c
	}
	return registry, nil
}

// Get returns the category and whether it is registered.
func (r CategoryRegistry) Get(name string) (domain.Category, bool) {
	c, ok := r[name]
	return c, ok
}

// Names returns the registered category names in lexical order.
func (r CategoryRegistry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
