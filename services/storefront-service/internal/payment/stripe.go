package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
)

// StripeStub is the default secondary provider.
type StripeStub struct{}

func (StripeStub) Start(context.Context, WidgetConfig) (Widget, error) {
	return Widget{}, ErrComingSoon
}

type StripeConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
}

// StripeCheckout sends the buyer to a hosted Stripe Checkout page in one-off
// payment mode.
type StripeCheckout struct {
	cfg       StripeConfig
	newSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewStripeCheckout(cfg StripeConfig) *StripeCheckout {
	sc := checkoutsession.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey}
	return &StripeCheckout{cfg: cfg, newSession: sc.New}
}

// NewSecondary picks the hosted Stripe flow only when it is switched on and
// has a key; otherwise the stub.
func NewSecondary(enabled bool, cfg StripeConfig) Secondary {
	if !enabled || strings.TrimSpace(cfg.SecretKey) == "" {
		return StripeStub{}
	}
	return NewStripeCheckout(cfg)
}

func (s *StripeCheckout) Start(ctx context.Context, cfg WidgetConfig) (Widget, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.cfg.SuccessURL),
		CancelURL:  stripe.String(s.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(cfg.Currency)),
					UnitAmount: stripe.Int64(cfg.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(cfg.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if cfg.Prefill.Email != "" {
		params.CustomerEmail = stripe.String(cfg.Prefill.Email)
	}
	if cfg.Receipt != "" {
		params.ClientReferenceID = stripe.String(cfg.Receipt)
		params.IdempotencyKey = stripe.String("checkout:" + cfg.Receipt)
	}
	for k, v := range cfg.Notes {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := s.newSession(params)
	if err != nil {
		return Widget{}, fmt.Errorf("stripe checkout session: %w", err)
	}
	return Widget{AttemptID: sess.ID, Provider: "stripe", Config: cfg, RedirectURL: sess.URL}, nil
}
