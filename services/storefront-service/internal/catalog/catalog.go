package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tier string

const (
	Starter      Tier = "starter"
	Professional Tier = "professional"
	Enterprise   Tier = "enterprise"
)

// DefaultTier is selected when a checkout page gets no usable plan.
const DefaultTier = Professional

var allTiers = []Tier{Starter, Professional, Enterprise}

// ParseTier accepts only the three tier keys. Matching is case-sensitive.
func ParseTier(s string) (Tier, bool) {
	t := Tier(s)
	if slices.Contains(allTiers, t) {
		return t, true
	}
	return "", false
}

func (t Tier) Valid() bool {
	return slices.Contains(allTiers, t)
}

type TierInfo struct {
	Key         Tier     `yaml:"key" json:"key"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Features    []string `yaml:"features" json:"features"`
}

type Stat struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
}

type Benefit struct {
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

// Product is one sellable product. Pricing is in whole rupees.
type Product struct {
	Slug             string         `yaml:"slug" json:"slug"`
	Name             string         `yaml:"name" json:"name"`
	Description      string         `yaml:"description" json:"description"`
	ShortDescription string         `yaml:"short_description" json:"short_description"`
	Color            string         `yaml:"color" json:"color"`
	Icon             string         `yaml:"icon" json:"icon"`
	Features         []string       `yaml:"features" json:"features"`
	Pricing          map[Tier]int64 `yaml:"pricing" json:"pricing"`
	Support          string         `yaml:"support" json:"support"`
	Uptime           string         `yaml:"uptime" json:"uptime"`
	Stats            []Stat         `yaml:"stats" json:"stats"`
	Benefits         []Benefit      `yaml:"benefits" json:"benefits"`
	UseCases         []string       `yaml:"use_cases" json:"use_cases"`
	Integrations     []string       `yaml:"integrations" json:"integrations"`
}

func (p Product) Price(t Tier) int64 {
	return p.Pricing[t]
}

func (p Product) clone() Product {
	p.Features = slices.Clone(p.Features)
	p.Stats = slices.Clone(p.Stats)
	p.Benefits = slices.Clone(p.Benefits)
	p.UseCases = slices.Clone(p.UseCases)
	p.Integrations = slices.Clone(p.Integrations)
	pricing := make(map[Tier]int64, len(p.Pricing))
	for k, v := range p.Pricing {
		pricing[k] = v
	}
	p.Pricing = pricing
	return p
}

// Catalog is read-only after Load; accessors hand out copies.
type Catalog struct {
	products []Product
	tiers    []TierInfo
	bySlug   map[string]int
}

type document struct {
	Tiers    []TierInfo `yaml:"tiers"`
	Products []Product  `yaml:"products"`
}

//go:embed catalog.yaml
var builtinYAML []byte

var builtin = mustLoad(builtinYAML)

// Builtin returns the catalog compiled into the binary.
func Builtin() *Catalog {
	return builtin
}

func mustLoad(data []byte) *Catalog {
	c, err := Load(data)
	if err != nil {
		panic(fmt.Sprintf("catalog: %v", err))
	}
	return c
}

func Load(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Products) == 0 {
		return nil, errors.New("catalog has no products")
	}

	c := &Catalog{bySlug: make(map[string]int, len(doc.Products))}
	tierSeen := map[Tier]bool{}
	for _, ti := range doc.Tiers {
		if !ti.Key.Valid() {
			return nil, fmt.Errorf("unknown tier %q", ti.Key)
		}
		if tierSeen[ti.Key] {
			return nil, fmt.Errorf("duplicate tier %q", ti.Key)
		}
		tierSeen[ti.Key] = true
		c.tiers = append(c.tiers, ti)
	}
	for _, t := range allTiers {
		if !tierSeen[t] {
			return nil, fmt.Errorf("tier %q is not described", t)
		}
	}

	for i, p := range doc.Products {
		p.Slug = strings.TrimSpace(p.Slug)
		if p.Slug == "" {
			return nil, fmt.Errorf("product %d has no slug", i)
		}
		if _, dup := c.bySlug[p.Slug]; dup {
			return nil, fmt.Errorf("duplicate product slug %q", p.Slug)
		}
		for _, t := range allTiers {
			if p.Pricing[t] <= 0 {
				return nil, fmt.Errorf("product %q has no positive %s price", p.Slug, t)
			}
		}
		c.bySlug[p.Slug] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	for i, p := range c.products {
		out[i] = p.clone()
	}
	return out
}

func (c *Catalog) Tiers() []TierInfo {
	out := make([]TierInfo, len(c.tiers))
	for i, t := range c.tiers {
		t.Features = slices.Clone(t.Features)
		out[i] = t
	}
	return out
}

func (c *Catalog) Product(slug string) (Product, bool) {
	i, ok := c.bySlug[slug]
	if !ok {
		return Product{}, false
	}
	return c.products[i].clone(), true
}

// Default is the first product. Load guarantees there is one.
func (c *Catalog) Default() Product {
	return c.products[0].clone()
}

func (c *Catalog) Tier(t Tier) TierInfo {
	for _, ti := range c.tiers {
		if ti.Key == t {
			ti.Features = slices.Clone(ti.Features)
			return ti
		}
	}
	return TierInfo{}
}

// Price returns 0 for an unknown slug or tier.
func (c *Catalog) Price(slug string, t Tier) int64 {
	i, ok := c.bySlug[slug]
	if !ok {
		return 0
	}
	return c.products[i].Pricing[t]
}
