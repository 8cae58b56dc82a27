package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/catalog"
)

// Scripts is satisfied by *ScriptLoader.
type Scripts interface {
	Ensure(ctx context.Context, url string) error
}

type InitiatorConfig struct {
	KeyID        string
	Currency     string
	MerchantName string
	Image        string
	ThemeColor   string
	ScriptURL    string
}

// Request is the part of a checkout selection the initiator needs.
type Request struct {
	Product catalog.Product
	Tier    catalog.Tier
	Contact Prefill
	Receipt string
}

type Initiator struct {
	provider Provider
	scripts  Scripts
	catalog  *catalog.Catalog
	cfg      InitiatorConfig
}

func NewInitiator(provider Provider, scripts Scripts, cat *catalog.Catalog, cfg InitiatorConfig) *Initiator {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.MerchantName == "" {
		cfg.MerchantName = "Pioneers"
	}
	if cfg.Image == "" {
		cfg.Image = "/logo.png"
	}
	if cfg.ThemeColor == "" {
		cfg.ThemeColor = "#06b6d4"
	}
	if cfg.ScriptURL == "" {
		cfg.ScriptURL = DefaultScriptURL
	}
	return &Initiator{provider: provider, scripts: scripts, catalog: cat, cfg: cfg}
}

// Config builds the widget configuration. The price always comes from the
// catalog, never from the caller.
func (i *Initiator) Config(req Request) WidgetConfig {
	tierName := i.catalog.Tier(req.Tier).Name
	if tierName == "" {
		tierName = string(req.Tier)
	}
	return WidgetConfig{
		Key:         i.cfg.KeyID,
		Amount:      i.catalog.Price(req.Product.Slug, req.Tier) * 100,
		Currency:    strings.ToUpper(i.cfg.Currency),
		Name:        i.cfg.MerchantName,
		Description: fmt.Sprintf("%s - %s Plan", req.Product.Name, tierName),
		Image:       i.cfg.Image,
		Prefill:     req.Contact,
		Notes: map[string]string{
			"product": req.Product.Name,
			"plan":    string(req.Tier),
		},
		Theme:     Theme{Color: i.cfg.ThemeColor},
		ScriptURL: i.cfg.ScriptURL,
		Receipt:   req.Receipt,
	}
}

// Open makes sure the provider script is available, then opens exactly one
// widget. There are no retries.
func (i *Initiator) Open(ctx context.Context, req Request, cb Callbacks) (Widget, error) {
	if err := i.scripts.Ensure(ctx, i.cfg.ScriptURL); err != nil {
		return Widget{}, err
	}
	cfg := i.Config(req)
	if cfg.Amount <= 0 {
		return Widget{}, fmt.Errorf("no price for %s/%s", req.Product.Slug, req.Tier)
	}
	return i.provider.Open(ctx, cfg, cb)
}
