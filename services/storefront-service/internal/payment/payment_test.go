package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/catalog"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls []WidgetConfig
	err   error
}

func (f *fakeProvider) Open(_ context.Context, cfg WidgetConfig, _ Callbacks) (Widget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cfg)
	if f.err != nil {
		return Widget{}, f.err
	}
	return Widget{AttemptID: "a1", Provider: "fake", Config: cfg}, nil
}

type fakeScripts struct {
	err   error
	calls int
}

func (f *fakeScripts) Ensure(context.Context, string) error {
	f.calls++
	return f.err
}

func sign(secret, msg string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(msg))
	return hex.EncodeToString(m.Sum(nil))
}

func TestScriptLoaderMemoizesSuccess(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte("window.Razorpay = function(){}"))
	}))
	defer srv.Close()

	l := NewScriptLoader(srv.Client(), time.Second)
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = l.Ensure(context.Background(), srv.URL)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, l.Loaded(srv.URL))

	require.NoError(t, l.Ensure(context.Background(), srv.URL))
	assert.Equal(t, int32(1), hits.Load())
}

func TestScriptLoaderDoesNotCacheFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	l := NewScriptLoader(srv.Client(), time.Second)
	err := l.Ensure(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrScriptLoad)
	assert.False(t, l.Loaded(srv.URL))

	require.NoError(t, l.Ensure(context.Background(), srv.URL))
	assert.Equal(t, int32(2), hits.Load())
}

func TestScriptLoaderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	l := NewScriptLoader(nil, time.Second)
	assert.ErrorIs(t, l.Ensure(context.Background(), url), ErrScriptLoad)
}

func TestInitiatorConfigUsesCatalogPrice(t *testing.T) {
	cat := catalog.Builtin()
	provider := &fakeProvider{}
	scripts := &fakeScripts{}
	initiator := NewInitiator(provider, scripts, cat, InitiatorConfig{KeyID: "rzp_test_key"})

	p, _ := cat.Product("secureauth")
	w, err := initiator.Open(context.Background(), Request{
		Product: p,
		Tier:    catalog.Enterprise,
		Contact: Prefill{Name: "Asha", Email: "asha@example.com", Contact: "9999999999"},
		Receipt: "rcpt_1",
	}, Callbacks{})
	require.NoError(t, err)
	require.Len(t, provider.calls, 1)
	assert.Equal(t, 1, scripts.calls)

	cfg := w.Config
	assert.Equal(t, cat.Price("secureauth", catalog.Enterprise)*100, cfg.Amount)
	assert.Equal(t, "INR", cfg.Currency)
	assert.Equal(t, "Pioneers", cfg.Name)
	assert.Equal(t, "SecureAuth - Enterprise Plan", cfg.Description)
	assert.Equal(t, "/logo.png", cfg.Image)
	assert.Equal(t, "#06b6d4", cfg.Theme.Color)
	assert.Equal(t, map[string]string{"product": "SecureAuth", "plan": "enterprise"}, cfg.Notes)
	assert.Equal(t, "asha@example.com", cfg.Prefill.Email)
	assert.Equal(t, DefaultScriptURL, cfg.ScriptURL)
	assert.Equal(t, "rcpt_1", cfg.Receipt)
}

func TestInitiatorStopsOnScriptFailure(t *testing.T) {
	provider := &fakeProvider{}
	initiator := NewInitiator(provider, &fakeScripts{err: ErrScriptLoad}, catalog.Builtin(), InitiatorConfig{})
	_, err := initiator.Open(context.Background(), Request{Product: catalog.Builtin().Default(), Tier: catalog.Starter}, Callbacks{})
	assert.ErrorIs(t, err, ErrScriptLoad)
	assert.Empty(t, provider.calls)
}

type fakeOrders struct {
	data map[string]interface{}
	err  error
}

func (f *fakeOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.data = data
	if f.err != nil {
		return nil, f.err
	}
	return map[string]interface{}{"id": "order_123", "amount": data["amount"]}, nil
}

func TestRazorpayProviderVerifiedSuccess(t *testing.T) {
	orders := &fakeOrders{}
	p := newRazorpayProvider("secret", orders)

	var successes, dismissals int
	w, err := p.Open(context.Background(), WidgetConfig{Amount: 7999900, Currency: "INR", Receipt: "r1"}, Callbacks{
		OnSuccess: func(PaymentResult) { successes++ },
		OnDismiss: func() { dismissals++ },
	})
	require.NoError(t, err)
	assert.Equal(t, "order_123", w.Config.OrderID)
	assert.Equal(t, int64(7999900), orders.data["amount"])
	assert.Equal(t, "r1", orders.data["receipt"])

	bad := PaymentResult{PaymentID: "pay_1", OrderID: "order_123", Signature: "deadbeef"}
	assert.ErrorIs(t, p.Complete(w.AttemptID, bad), ErrInvalidSignature)
	assert.Equal(t, 1, p.Pending())

	good := PaymentResult{PaymentID: "pay_1", OrderID: "order_123", Signature: sign("secret", "order_123|pay_1")}
	require.NoError(t, p.Complete(w.AttemptID, good))
	assert.ErrorIs(t, p.Dismiss(w.AttemptID), ErrUnknownAttempt)
	assert.ErrorIs(t, p.Complete(w.AttemptID, good), ErrUnknownAttempt)
	assert.Equal(t, 1, successes)
	assert.Equal(t, 0, dismissals)
}

func TestRazorpayProviderOrderFailure(t *testing.T) {
	p := newRazorpayProvider("secret", &fakeOrders{err: errors.New("boom")})
	_, err := p.Open(context.Background(), WidgetConfig{Amount: 100}, Callbacks{})
	assert.Error(t, err)
	assert.Zero(t, p.Pending())
}

func TestRazorpayProviderTestModeAndCancel(t *testing.T) {
	p := NewRazorpayProvider("rzp_test_key", "")
	assert.True(t, p.TestMode())

	ctx, cancel := context.WithCancel(context.Background())
	dismissed := false
	w, err := p.Open(ctx, WidgetConfig{Amount: 100}, Callbacks{OnDismiss: func() { dismissed = true }})
	require.NoError(t, err)
	assert.Empty(t, w.Config.OrderID)
	assert.Equal(t, 1, p.Pending())

	cancel()
	assert.Eventually(t, func() bool { return p.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, p.Dismiss(w.AttemptID), ErrUnknownAttempt)
	assert.False(t, dismissed)
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	assert.True(t, VerifyWebhookSignature(body, sign("whsec", string(body)), "whsec"))
	assert.False(t, VerifyWebhookSignature(body, sign("other", string(body)), "whsec"))
	assert.False(t, VerifyWebhookSignature(body, "", "whsec"))
}

func TestSecondaryProviders(t *testing.T) {
	s := NewSecondary(false, StripeConfig{SecretKey: "sk_test"})
	_, err := s.Start(context.Background(), WidgetConfig{})
	assert.ErrorIs(t, err, ErrComingSoon)

	s = NewSecondary(true, StripeConfig{})
	_, err = s.Start(context.Background(), WidgetConfig{})
	assert.ErrorIs(t, err, ErrComingSoon)

	var got *stripe.CheckoutSessionParams
	sc := &StripeCheckout{
		cfg: StripeConfig{SuccessURL: "https://pioneers.test/ok", CancelURL: "https://pioneers.test/checkout"},
		newSession: func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			got = p
			return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
		},
	}
	w, err := sc.Start(context.Background(), WidgetConfig{
		Amount:      7999900,
		Currency:    "INR",
		Description: "CloudSync - Professional Plan",
		Prefill:     Prefill{Email: "asha@example.com"},
		Notes:       map[string]string{"product": "CloudSync"},
		Receipt:     "r1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", w.RedirectURL)
	assert.Equal(t, "inr", *got.LineItems[0].PriceData.Currency)
	assert.Equal(t, int64(7999900), *got.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "asha@example.com", *got.CustomerEmail)
	assert.Equal(t, "CloudSync", got.Metadata["product"])
}
