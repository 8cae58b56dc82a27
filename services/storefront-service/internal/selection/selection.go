package selection

import (
	"net/url"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/catalog"
)

// Resolution is the product and tier a checkout page opens with.
type Resolution struct {
	Product catalog.Product
	Tier    catalog.Tier
	// PlanMatched and ProductMatched report whether the query named a known value.
	PlanMatched    bool
	ProductMatched bool
}

// Resolve reads plan and product from a checkout query string. Unknown or
// missing values fall back to the professional tier and the first product.
func Resolve(cat *catalog.Catalog, query url.Values) Resolution {
	res := Resolution{
		Product: cat.Default(),
		Tier:    catalog.DefaultTier,
	}
	if t, ok := catalog.ParseTier(query.Get("plan")); ok {
		res.Tier = t
		res.PlanMatched = true
	}
	if p, ok := cat.Product(query.Get("product")); ok {
		res.Product = p
		res.ProductMatched = true
	}
	return res
}

// CheckoutURL builds the deep link used by product and pricing pages.
func CheckoutURL(slug string, t catalog.Tier) string {
	q := url.Values{}
	q.Set("plan", string(t))
	q.Set("product", slug)
	return "/checkout?" + q.Encode()
}
