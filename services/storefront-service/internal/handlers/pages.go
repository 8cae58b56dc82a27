package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/catalog"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/checkout"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/selection"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pageNames = []string{
	"home", "about", "products", "product", "team", "pricing", "checkout",
	"privacy", "terms", "contact", "notfound",
}

var funcs = template.FuncMap{
	"inr":         catalog.FormatINR,
	"checkoutURL": selection.CheckoutURL,
	"tiers": func() []catalog.Tier {
		return []catalog.Tier{catalog.Starter, catalog.Professional, catalog.Enterprise}
	},
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		pages[name] = t
	}
	return pages, nil
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

func logoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := staticFS.ReadFile("static/logo.png")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		_, _ = w.Write(b)
	})
}

type TeamMember struct {
	Name string
	Role string
	Bio  string
}

var team = []TeamMember{
	{Name: "Alex Chen", Role: "CEO & Co-founder", Bio: "Former engineering lead who has scaled SaaS platforms to millions of users."},
	{Name: "Sarah Williams", Role: "CTO & Co-founder", Bio: "Distributed systems engineer focused on reliability and security."},
	{Name: "Marcus Johnson", Role: "Head of Design", Bio: "Designs products that stay simple as they grow."},
	{Name: "Elena Rodriguez", Role: "VP Engineering", Bio: "Builds teams that ship fast without breaking things."},
}

type checkoutData struct {
	ViewID   string
	Snapshot checkout.Snapshot
	Tiers    []catalog.TierInfo
	Features []string
}

type pageData struct {
	Title        string
	Active       string
	Products     []catalog.Product
	Tiers        []catalog.TierInfo
	Product      catalog.Product
	Team         []TeamMember
	Checkout     *checkoutData
	SupportEmail string
	Year         int
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data pageData) {
	t, ok := h.pages[name]
	if !ok {
		http.Error(w, "page not found", http.StatusInternalServerError)
		return
	}
	data.SupportEmail = h.supportEmail
	data.Year = time.Now().Year()

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		h.logger.Error("render page failed", "page", name, "err", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) staticPage(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, http.StatusOK, name, pageData{Title: title, Active: name, Products: h.catalog.Products()})
	}
}

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "home", pageData{
		Title:    "Pioneers",
		Active:   "home",
		Products: h.catalog.Products(),
		Tiers:    h.catalog.Tiers(),
	})
}

func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "products", pageData{Title: "Products", Active: "products", Products: h.catalog.Products()})
}

func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	p, ok := h.catalog.Product(mux.Vars(r)["slug"])
	if !ok {
		h.render(w, http.StatusNotFound, "notfound", pageData{Title: "Product Not Found", Products: h.catalog.Products()})
		return
	}
	h.render(w, http.StatusOK, "product", pageData{
		Title:    p.Name,
		Active:   "products",
		Product:  p,
		Products: h.catalog.Products(),
		Tiers:    h.catalog.Tiers(),
	})
}

func (h *Handler) Team(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "team", pageData{Title: "Team", Active: "team", Team: team})
}

func (h *Handler) Pricing(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "pricing", pageData{
		Title:    "Pricing",
		Active:   "pricing",
		Products: h.catalog.Products(),
		Tiers:    h.catalog.Tiers(),
	})
}

// CheckoutPage opens a checkout view for this render. The page script talks
// to the view through the JSON API.
func (h *Handler) CheckoutPage(w http.ResponseWriter, r *http.Request) {
	v := h.views.Open(r.URL.Query())
	snap := v.Snapshot()
	h.render(w, http.StatusOK, "checkout", pageData{
		Title:    "Checkout",
		Active:   "pricing",
		Products: h.catalog.Products(),
		Checkout: &checkoutData{
			ViewID:   v.ID(),
			Snapshot: snap,
			Tiers:    h.catalog.Tiers(),
			Features: h.catalog.Tier(snap.Tier).Features,
		},
	})
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusNotFound, "notfound", pageData{Title: "Page Not Found"})
}
