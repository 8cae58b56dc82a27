package payment

import (
	"context"
	"errors"
)

var (
	ErrScriptLoad       = errors.New("payment gateway script failed to load")
	ErrComingSoon       = errors.New("payment provider coming soon")
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrUnknownAttempt   = errors.New("unknown or finished payment attempt")
)

type Prefill struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

type Theme struct {
	Color string `json:"color"`
}

// WidgetConfig is what the browser passes to the hosted checkout widget.
// Amount is in minor units (paise for INR).
type WidgetConfig struct {
	Key         string            `json:"key"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Image       string            `json:"image"`
	OrderID     string            `json:"order_id,omitempty"`
	Prefill     Prefill           `json:"prefill"`
	Notes       map[string]string `json:"notes"`
	Theme       Theme             `json:"theme"`
	ScriptURL   string            `json:"script_url"`
	Receipt     string            `json:"-"`
}

// PaymentResult is the payload the widget hands to its success handler.
type PaymentResult struct {
	PaymentID string `json:"razorpay_payment_id"`
	OrderID   string `json:"razorpay_order_id"`
	Signature string `json:"razorpay_signature"`
}

// Callbacks are invoked at most once per attempt, and only one of them fires.
type Callbacks struct {
	OnSuccess func(PaymentResult)
	OnDismiss func()
}

// Widget describes an opened payment attempt.
type Widget struct {
	AttemptID   string       `json:"attempt_id"`
	Provider    string       `json:"provider"`
	Config      WidgetConfig `json:"config"`
	RedirectURL string       `json:"redirect_url,omitempty"`
}

// Provider opens a hosted payment widget. Callbacks arrive later, driven by
// the browser reporting what the widget did.
type Provider interface {
	Open(ctx context.Context, cfg WidgetConfig, cb Callbacks) (Widget, error)
}

// Secondary handles channels the primary provider does not serve.
type Secondary interface {
	Start(ctx context.Context, cfg WidgetConfig) (Widget, error)
}
