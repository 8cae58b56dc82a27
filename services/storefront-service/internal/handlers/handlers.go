package handlers

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/catalog"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/checkout"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/leads"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/orders"
)

type Handler struct {
	catalog       *catalog.Catalog
	views         *checkout.Views
	leads         *leads.Service
	orders        *orders.Service
	logger        *slog.Logger
	pages         map[string]*template.Template
	webhookSecret string
	supportEmail  string
}

const DefaultSupportEmail = "support@pioneers.com"

type Config struct {
	RazorpayWebhookSecret string
	SupportEmail          string
}

func New(cat *catalog.Catalog, views *checkout.Views, leadSvc *leads.Service, orderSvc *orders.Service, logger *slog.Logger, cfg Config) (*Handler, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}
	if cfg.SupportEmail == "" {
		cfg.SupportEmail = DefaultSupportEmail
	}
	return &Handler{
		catalog:       cat,
		views:         views,
		leads:         leadSvc,
		orders:        orderSvc,
		logger:        logger,
		pages:         pages,
		webhookSecret: strings.TrimSpace(cfg.RazorpayWebhookSecret),
		supportEmail:  cfg.SupportEmail,
	}, nil
}

// Routes registers every page and API route. limit wraps the POST routes
// that take user input; pass nil for none.
func (h *Handler) Routes(r *mux.Router, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r.HandleFunc("/", h.Home).Methods(http.MethodGet)
	r.HandleFunc("/about", h.staticPage("about", "About")).Methods(http.MethodGet)
	r.HandleFunc("/products", h.Products).Methods(http.MethodGet)
	r.HandleFunc("/product/{slug}", h.ProductDetail).Methods(http.MethodGet)
	r.HandleFunc("/team", h.Team).Methods(http.MethodGet)
	r.HandleFunc("/pricing", h.Pricing).Methods(http.MethodGet)
	r.HandleFunc("/checkout", h.CheckoutPage).Methods(http.MethodGet)
	r.HandleFunc("/privacy-policy", h.staticPage("privacy", "Privacy Policy")).Methods(http.MethodGet)
	r.HandleFunc("/terms-of-service", h.staticPage("terms", "Terms of Service")).Methods(http.MethodGet)
	r.HandleFunc("/contact", h.staticPage("contact", "Contact")).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(staticHandler())
	r.Handle("/logo.png", logoHandler())

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/catalog/products", h.ListProducts).Methods(http.MethodGet)
	api.HandleFunc("/catalog/tiers", h.ListTiers).Methods(http.MethodGet)

	api.Handle("/checkout/views", limit(http.HandlerFunc(h.CreateView))).Methods(http.MethodPost)
	api.HandleFunc("/checkout/views/{id}", h.GetView).Methods(http.MethodGet)
	api.HandleFunc("/checkout/views/{id}", h.CloseView).Methods(http.MethodDelete)
	api.HandleFunc("/checkout/views/{id}/location", h.Relocate).Methods(http.MethodPost)
	api.HandleFunc("/checkout/views/{id}/fields", h.SetFields).Methods(http.MethodPost)
	api.HandleFunc("/checkout/views/{id}/tier", h.SelectTier).Methods(http.MethodPost)
	api.HandleFunc("/checkout/views/{id}/channel", h.SelectChannel).Methods(http.MethodPost)
	api.Handle("/checkout/views/{id}/submit", limit(http.HandlerFunc(h.Submit))).Methods(http.MethodPost)
	api.HandleFunc("/checkout/views/{id}/payment/success", h.PaymentSuccess).Methods(http.MethodPost)
	api.HandleFunc("/checkout/views/{id}/payment/dismiss", h.PaymentDismiss).Methods(http.MethodPost)
	api.HandleFunc("/checkout/views/{id}/payment/error", h.PaymentError).Methods(http.MethodPost)

	api.Handle("/leads/contact", limit(http.HandlerFunc(h.ContactLead))).Methods(http.MethodPost)
	api.Handle("/leads/demo", limit(http.HandlerFunc(h.DemoLead))).Methods(http.MethodPost)

	api.HandleFunc("/webhooks/razorpay", h.RazorpayWebhook).Methods(http.MethodPost)

	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	r.NotFoundHandler = http.HandlerFunc(h.NotFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(v)
}
