// Package registry holds the immutable region lookup table built at startup.
package registry

import (
	"fmt"
	"regexp"
	"slices"

	"price_crew/models"
)

// Region codes become column names in the price store.
var codePattern = regexp.MustCompile(`^[a-z][a-z0-9]{1,9}$`)

type Registry struct {
	regions map[string]models.Region
	codes   []string
}

// New validates regions and builds a registry. Order of regions is the order
// reported by Codes.
func New(regions []models.Region) (*Registry, error) {
	if len(regions) == 0 {
		return nil, fmt.Errorf("registry: no regions configured")
	}

	r := &Registry{regions: make(map[string]models.Region, len(regions))}
	for _, region := range regions {
		if !codePattern.MatchString(region.Code) {
			return nil, fmt.Errorf("registry: invalid region code %q", region.Code)
		}
		if _, dup := r.regions[region.Code]; dup {
			return nil, fmt.Errorf("registry: duplicate region code %q", region.Code)
		}
		if region.Currency == "" {
			return nil, fmt.Errorf("registry: region %q has no currency", region.Code)
		}
		if region.Worker.Command == "" {
			return nil, fmt.Errorf("registry: region %q has no worker command", region.Code)
		}
		r.regions[region.Code] = region.Clone()
		r.codes = append(r.codes, region.Code)
	}
	return r, nil
}

// Lookup returns a copy of the region registered under code.
func (r *Registry) Lookup(code string) (models.Region, bool) {
	region, ok := r.regions[code]
	if !ok {
		return models.Region{}, false
	}
	return region.Clone(), true
}

// Codes returns the registered codes in registration order.
func (r *Registry) Codes() []string {
	return slices.Clone(r.codes)
}

// Regions returns copies of every registered region in registration order.
func (r *Registry) Regions() []models.Region {
	out := make([]models.Region, 0, len(r.codes))
	for _, code := range r.codes {
		out = append(out, r.regions[code].Clone())
	}
	return out
}

// Resolve maps codes to regions, rejecting the whole request on the first
// unknown or repeated code.
func (r *Registry) Resolve(codes []string) ([]models.Region, error) {
	if len(codes) == 0 {
		return nil, &models.ConfigurationError{Reason: "no regions requested"}
	}
	seen := make(map[string]bool, len(codes))
	out := make([]models.Region, 0, len(codes))
	for _, code := range codes {
		region, ok := r.Lookup(code)
		if !ok {
			return nil, &models.ConfigurationError{Code: code, Reason: "unknown region"}
		}
		if seen[code] {
			return nil, &models.ConfigurationError{Code: code, Reason: "duplicate region"}
		}
		seen[code] = true
		out = append(out, region)
	}
	return out, nil
}
