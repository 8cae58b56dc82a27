package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
)

// OrderAPI is the slice of the Razorpay client used here; *resources.Order satisfies it.
type OrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type attempt struct {
	orderID string
	cb      Callbacks
	stop    func() bool
}

// RazorpayProvider opens Razorpay standard checkout attempts. Without a key
// secret it runs in test mode: no order is created and success payloads are
// accepted without signature verification.
type RazorpayProvider struct {
	keySecret string
	orders    OrderAPI
	newID     func() string

	mu       sync.Mutex
	attempts map[string]*attempt
}

func NewRazorpayProvider(keyID, keySecret string) *RazorpayProvider {
	var orders OrderAPI
	if keySecret != "" {
		orders = razorpay.NewClient(keyID, keySecret).Order
	}
	return newRazorpayProvider(keySecret, orders)
}

func newRazorpayProvider(keySecret string, orders OrderAPI) *RazorpayProvider {
	return &RazorpayProvider{
		keySecret: keySecret,
		orders:    orders,
		newID:     uuid.NewString,
		attempts:  map[string]*attempt{},
	}
}

func (p *RazorpayProvider) TestMode() bool {
	return p.keySecret == "" || p.orders == nil
}

func (p *RazorpayProvider) Open(ctx context.Context, cfg WidgetConfig, cb Callbacks) (Widget, error) {
	if err := ctx.Err(); err != nil {
		return Widget{}, err
	}
	if !p.TestMode() {
		notes := map[string]interface{}{}
		for k, v := range cfg.Notes {
			notes[k] = v
		}
		order, err := p.orders.Create(map[string]interface{}{
			"amount":   cfg.Amount,
			"currency": cfg.Currency,
			"receipt":  cfg.Receipt,
			"notes":    notes,
		}, nil)
		if err != nil {
			return Widget{}, fmt.Errorf("razorpay create order: %w", err)
		}
		id, _ := order["id"].(string)
		if id == "" {
			return Widget{}, fmt.Errorf("razorpay create order: response has no id")
		}
		cfg.OrderID = id
	}

	id := p.newID()
	a := &attempt{orderID: cfg.OrderID, cb: cb}
	p.mu.Lock()
	p.attempts[id] = a
	a.stop = context.AfterFunc(ctx, func() { p.take(id) })
	p.mu.Unlock()

	return Widget{AttemptID: id, Provider: "razorpay", Config: cfg}, nil
}

// Complete reports a successful payment for attempt id. The attempt is only
// consumed once the signature checks out.
func (p *RazorpayProvider) Complete(id string, res PaymentResult) error {
	p.mu.Lock()
	a, ok := p.attempts[id]
	p.mu.Unlock()
	if !ok {
		return ErrUnknownAttempt
	}
	if !p.TestMode() {
		if res.OrderID != a.orderID || !VerifyPaymentSignature(res, p.keySecret) {
			return ErrInvalidSignature
		}
	}
	a = p.take(id)
	if a == nil {
		return ErrUnknownAttempt
	}
	if a.cb.OnSuccess != nil {
		a.cb.OnSuccess(res)
	}
	return nil
}

func (p *RazorpayProvider) Dismiss(id string) error {
	a := p.take(id)
	if a == nil {
		return ErrUnknownAttempt
	}
	if a.cb.OnDismiss != nil {
		a.cb.OnDismiss()
	}
	return nil
}

// Pending reports how many attempts are still waiting for a callback.
func (p *RazorpayProvider) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.attempts)
}

func (p *RazorpayProvider) take(id string) *attempt {
	p.mu.Lock()
	a, ok := p.attempts[id]
	delete(p.attempts, id)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	if a.stop != nil {
		a.stop()
	}
	return a
}

func VerifyPaymentSignature(res PaymentResult, secret string) bool {
	if strings.TrimSpace(res.Signature) == "" {
		return false
	}
	return utils.VerifyPaymentSignature(map[string]interface{}{
		"razorpay_order_id":   res.OrderID,
		"razorpay_payment_id": res.PaymentID,
	}, res.Signature, secret)
}

func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	if strings.TrimSpace(signature) == "" || secret == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(body), signature, secret)
}
