// Package registry holds the static list of transit companies whose GTFS feeds
// are refreshed, in the order they are processed.
package registry

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Company is one feed publisher.
type Company struct {
	ID              string `yaml:"id" validate:"required"`
	Name            string `yaml:"name" validate:"required"`
	GTFSURL         string `yaml:"gtfsUrl" validate:"required,url|filepath"`
	AuthHeaderKey   string `yaml:"authHeaderKey" validate:"required_with=AuthHeaderValue"`
	AuthHeaderValue string `yaml:"authHeaderValue" validate:"required_with=AuthHeaderKey"`
}

// Registry is read once at process start and never mutated afterwards.
type Registry struct {
	Companies []Company `yaml:"companies" validate:"required,min=1,unique=ID,dive"`
}

var ErrUnknownCompany = errors.New("unknown company")

// Load reads and validates a registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry %s: %w", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes and validates registry YAML.
func Parse(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decoding registry: %w", err)
	}
	if err := validator.New().Struct(reg); err != nil {
		return nil, fmt.Errorf("invalid registry: %w", err)
	}
	return &reg, nil
}

// Get returns the company with the given id.
func (r *Registry) Get(id string) (Company, error) {
	for _, c := range r.Companies {
		if c.ID == id {
			return c, nil
		}
	}
	return Company{}, fmt.Errorf("%w: %q", ErrUnknownCompany, id)
}

// IDs returns company ids in registry order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.Companies))
	for _, c := range r.Companies {
		ids = append(ids, c.ID)
	}
	return ids
}
