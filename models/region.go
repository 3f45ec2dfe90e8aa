package models

import (
	"slices"
	"strings"
)

// Region is one marketplace the crew can query for a product. Regions are
// loaded once at startup and never mutated afterwards.
type Region struct {
	Code        string        `yaml:"code" json:"code"`
	Name        string        `yaml:"name" json:"name"`
	Currency    string        `yaml:"currency" json:"currency"`
	URLTemplate string        `yaml:"url_template" json:"urlTemplate"`
	Worker      WorkerRef     `yaml:"worker" json:"-"`
	Page        PageSelectors `yaml:"page" json:"-"`
}

// WorkerRef tells the invoker how to start the extraction worker for a region.
// The product id is appended as the final argument.
type WorkerRef struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
	Dir     string   `yaml:"dir"`
}

// PageSelectors are CSS selector candidates used by the reference worker,
// tried in order until one yields a value.
type PageSelectors struct {
	Title       []string `yaml:"title"`
	Price       []string `yaml:"price"`
	Seller      []string `yaml:"seller"`
	Image       []string `yaml:"image"`
	ImageAttrs  []string `yaml:"image_attrs"`
	Unavailable []string `yaml:"unavailable"`
}

// ProductURL renders the region's product page URL for id.
func (r Region) ProductURL(id string) string {
	return strings.ReplaceAll(r.URLTemplate, "{id}", id)
}

// Clone returns a deep copy so callers cannot reach the registry's slices.
func (r Region) Clone() Region {
	c := r
	c.Worker.Args = slices.Clone(r.Worker.Args)
	c.Worker.Env = slices.Clone(r.Worker.Env)
	c.Page.Title = slices.Clone(r.Page.Title)
	c.Page.Price = slices.Clone(r.Page.Price)
	c.Page.Seller = slices.Clone(r.Page.Seller)
	c.Page.Image = slices.Clone(r.Page.Image)
	c.Page.ImageAttrs = slices.Clone(r.Page.ImageAttrs)
	c.Page.Unavailable = slices.Clone(r.Page.Unavailable)
	return c
}
