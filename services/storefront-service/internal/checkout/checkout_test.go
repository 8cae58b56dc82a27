package checkout

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/catalog"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/payment"
)

type fakeInitiator struct {
	real *payment.Initiator

	mu      sync.Mutex
	opens   []payment.WidgetConfig
	ctxs    []context.Context
	cbs     map[string]payment.Callbacks
	openErr error
	panics  bool
}

func newFakeInitiator() *fakeInitiator {
	f := &fakeInitiator{cbs: map[string]payment.Callbacks{}}
	f.real = payment.NewInitiator(nil, nil, catalog.Builtin(), payment.InitiatorConfig{KeyID: "rzp_test_key"})
	return f
}

func (f *fakeInitiator) Config(req payment.Request) payment.WidgetConfig {
	return f.real.Config(req)
}

func (f *fakeInitiator) Open(ctx context.Context, req payment.Request, cb payment.Callbacks) (payment.Widget, error) {
	if f.panics {
		panic("widget exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return payment.Widget{}, f.openErr
	}
	cfg := f.real.Config(req)
	f.opens = append(f.opens, cfg)
	f.ctxs = append(f.ctxs, ctx)
	id := "att-" + string(rune('0'+len(f.opens)))
	f.cbs[id] = cb
	return payment.Widget{AttemptID: id, Provider: "fake", Config: cfg}, nil
}

func (f *fakeInitiator) Complete(id string, res payment.PaymentResult) error {
	f.mu.Lock()
	cb, ok := f.cbs[id]
	f.mu.Unlock()
	if !ok {
		return payment.ErrUnknownAttempt
	}
	cb.OnSuccess(res)
	return nil
}

func (f *fakeInitiator) Dismiss(id string) error {
	f.mu.Lock()
	cb, ok := f.cbs[id]
	f.mu.Unlock()
	if !ok {
		return payment.ErrUnknownAttempt
	}
	cb.OnDismiss()
	return nil
}

type fakeTimer struct {
	fn      func()
	delay   time.Duration
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeScheduler struct {
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	t := &fakeTimer{fn: f, delay: d}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) fireAll() {
	for _, t := range s.timers {
		if !t.stopped {
			t.fn()
		}
	}
}

type fakeRecorder struct {
	mu       sync.Mutex
	opened   []OrderEvent
	paid     []OrderEvent
	canceled []OrderEvent
}

func (r *fakeRecorder) OrderOpened(_ context.Context, evt OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, evt)
	return nil
}

func (r *fakeRecorder) OrderPaid(_ context.Context, evt OrderEvent, _ payment.PaymentResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paid = append(r.paid, evt)
	return nil
}

func (r *fakeRecorder) OrderCanceled(_ context.Context, evt OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled = append(r.canceled, evt)
	return errors.New("db down")
}

type harness struct {
	views     *Views
	initiator *fakeInitiator
	scheduler *fakeScheduler
	recorder  *fakeRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		initiator: newFakeInitiator(),
		scheduler: &fakeScheduler{},
		recorder:  &fakeRecorder{},
	}
	h.views = NewViews(Config{
		Initiator: h.initiator,
		Reporter:  h.initiator,
		Recorder:  h.recorder,
		Scheduler: h.scheduler,
	})
	return h
}

func fill(t *testing.T, v *View) {
	t.Helper()
	require.NoError(t, v.SetField("fullName", "Asha Rao"))
	require.NoError(t, v.SetField("email", "asha@example.com"))
	require.NoError(t, v.SetField("phone", "9876543210"))
}

func TestOpenResolvesQuery(t *testing.T) {
	h := newHarness(t)
	v := h.views.Open(url.Values{"plan": {"enterprise"}, "product": {"secureauth"}})
	sel := v.Selection()
	assert.Equal(t, "secureauth", sel.Product.Slug)
	assert.Equal(t, catalog.Enterprise, sel.Tier)
	assert.Equal(t, ChannelCard, sel.Channel)
	assert.False(t, sel.Processing)

	v = h.views.Open(url.Values{"plan": {"gold"}})
	sel = v.Selection()
	assert.Equal(t, "cloudsync", sel.Product.Slug)
	assert.Equal(t, catalog.Professional, sel.Tier)

	require.NoError(t, v.Relocate(url.Values{"plan": {"starter"}, "product": {"dataforge"}}))
	sel = v.Selection()
	assert.Equal(t, "dataforge", sel.Product.Slug)
	assert.Equal(t, catalog.Starter, sel.Tier)
}

func TestSetFieldAndSelectTier(t *testing.T) {
	h := newHarness(t)
	v := h.views.Open(nil)

	require.NoError(t, v.SetField("company", "Acme"))
	assert.ErrorIs(t, v.SetField("address", "x"), ErrUnknownField)

	assert.ErrorIs(t, v.SelectTier("gold"), ErrUnknownTier)
	assert.Equal(t, catalog.Professional, v.Selection().Tier)
	require.NoError(t, v.SelectTier(catalog.Starter))
	assert.Equal(t, catalog.Starter, v.Selection().Tier)
	assert.Equal(t, "Acme", v.Selection().Contact.Company)
}

func TestSubmitRequiresFields(t *testing.T) {
	cases := map[string]func(v *View){
		"name":  func(v *View) { _ = v.SetField("name", "   ") },
		"email": func(v *View) { _ = v.SetField("email", "") },
		"phone": func(v *View) { _ = v.SetField("phone", "\t") },
	}
	for field, blank := range cases {
		t.Run(field, func(t *testing.T) {
			h := newHarness(t)
			v := h.views.Open(nil)
			fill(t, v)
			blank(v)

			_, err := v.Submit(context.Background())
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, []string{field}, verr.Missing)
			assert.False(t, v.Selection().Processing)
			assert.Empty(t, h.initiator.opens)

			snap := v.Snapshot()
			assert.Equal(t, []Notice{{Level: LevelError, Message: MsgMissingFields}}, snap.Notices)
		})
	}
}

func TestSubmitCardOpensWidgetOnceWithCatalogPrice(t *testing.T) {
	h := newHarness(t)
	v := h.views.Open(url.Values{"plan": {"enterprise"}, "product": {"secureauth"}})
	fill(t, v)

	out, err := v.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.Widget)
	require.Len(t, h.initiator.opens, 1)
	assert.Equal(t, catalog.Builtin().Price("secureauth", catalog.Enterprise)*100, h.initiator.opens[0].Amount)
	assert.True(t, v.Selection().Processing)

	_, err = v.Submit(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyProcessing)
	assert.Len(t, h.initiator.opens, 1)

	require.Len(t, h.recorder.opened, 1)
	assert.Equal(t, "secureauth", h.recorder.opened[0].ProductSlug)
	assert.Equal(t, out.Widget.AttemptID, h.recorder.opened[0].AttemptID)
}

func TestSecondaryChannelComingSoon(t *testing.T) {
	h := newHarness(t)
	v := h.views.Open(nil)
	fill(t, v)
	require.NoError(t, v.SelectChannel("stripe"))

	_, err := v.Submit(context.Background())
	assert.ErrorIs(t, err, payment.ErrComingSoon)
	assert.False(t, v.Selection().Processing)
	assert.Empty(t, h.initiator.opens)
	assert.Equal(t, []Notice{{Level: LevelInfo, Message: MsgComingSoon}}, v.Snapshot().Notices)
}

func TestSubmitScriptFailure(t *testing.T) {
	h := newHarness(t)
	h.initiator.openErr = payment.ErrScriptLoad
	v := h.views.Open(nil)
	fill(t, v)

	_, err := v.Submit(context.Background())
	assert.ErrorIs(t, err, payment.ErrScriptLoad)
	assert.False(t, v.Selection().Processing)
	assert.Equal(t, []Notice{{Level: LevelError, Message: MsgScriptFailed}}, v.Snapshot().Notices)

	h.initiator.openErr = nil
	_, err = v.Submit(context.Background())
	assert.NoError(t, err)
}

func TestSubmitProviderPanic(t *testing.T) {
	h := newHarness(t)
	h.initiator.panics = true
	v := h.views.Open(nil)
	fill(t, v)

	_, err := v.Submit(context.Background())
	assert.Error(t, err)
	assert.False(t, v.Selection().Processing)
	assert.Equal(t, []Notice{{Level: LevelError, Message: MsgPaymentFailed}}, v.Snapshot().Notices)
}

func TestSuccessRedirectsHomeOnce(t *testing.T) {
	h := newHarness(t)
	v := h.views.Open(nil)
	fill(t, v)
	out, err := v.Submit(context.Background())
	require.NoError(t, err)

	require.NoError(t, v.ReportSuccess(out.Widget.AttemptID, payment.PaymentResult{PaymentID: "pay_1"}))
	assert.False(t, v.Selection().Processing)

	snap := v.Snapshot()
	assert.Equal(t, []Notice{{Level: LevelSuccess, Message: MsgPaymentOK}}, snap.Notices)
	assert.Empty(t, snap.Redirect)

	// A late dismissal and a repeated success are ignored.
	require.NoError(t, v.ReportDismiss(out.Widget.AttemptID))
	require.NoError(t, v.ReportSuccess(out.Widget.AttemptID, payment.PaymentResult{PaymentID: "pay_1"}))
	assert.Empty(t, v.Snapshot().Notices)

	require.Len(t, h.scheduler.timers, 1)
	assert.Equal(t, 2*time.Second, h.scheduler.timers[0].delay)
	h.scheduler.fireAll()
	h.scheduler.fireAll()
	assert.Equal(t, HomePath, v.Snapshot().Redirect)
	assert.Len(t, h.recorder.paid, 1)
	assert.Empty(t, h.recorder.canceled)
}

func TestDismissNeverNavigates(t *testing.T) {
	h := newHarness(t)
	v := h.views.Open(nil)
	fill(t, v)
	out, err := v.Submit(context.Background())
	require.NoError(t, err)

	require.NoError(t, v.ReportDismiss(out.Widget.AttemptID))
	snap := v.Snapshot()
	assert.False(t, snap.Processing)
	assert.Equal(t, []Notice{{Level: LevelInfo, Message: MsgCancelled}}, snap.Notices)
	assert.Empty(t, snap.Redirect)
	assert.Empty(t, h.scheduler.timers)
	assert.Len(t, h.recorder.canceled, 1)

	assert.ErrorIs(t, v.ReportSuccess(out.Widget.AttemptID, payment.PaymentResult{}), payment.ErrUnknownAttempt)
	assert.ErrorIs(t, v.ReportDismiss("other"), payment.ErrUnknownAttempt)
}

func TestTeardownSilencesCallbacks(t *testing.T) {
	h := newHarness(t)
	v := h.views.Open(nil)
	fill(t, v)
	out, err := v.Submit(context.Background())
	require.NoError(t, err)

	cb := h.initiator.cbs[out.Widget.AttemptID]
	require.True(t, h.views.Close(v.ID()))
	assert.True(t, v.Closed())

	cb.OnSuccess(payment.PaymentResult{PaymentID: "late"})
	cb.OnDismiss()
	assert.True(t, v.Selection().Processing)
	assert.Empty(t, h.scheduler.timers)
	assert.Empty(t, h.recorder.paid)
	assert.Empty(t, v.Snapshot().Redirect)

	_, ok := h.views.Get(v.ID())
	assert.False(t, ok)
}

func TestTeardownStopsPendingRedirect(t *testing.T) {
	h := newHarness(t)
	v := h.views.Open(nil)
	fill(t, v)
	out, err := v.Submit(context.Background())
	require.NoError(t, err)
	require.NoError(t, v.ReportSuccess(out.Widget.AttemptID, payment.PaymentResult{PaymentID: "pay_1"}))
	require.Len(t, h.scheduler.timers, 1)

	v.Close()
	assert.True(t, h.scheduler.timers[0].stopped)
	h.scheduler.timers[0].fn()
	assert.Empty(t, v.Snapshot().Redirect)
}

func TestSweepClosesIdleViews(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	vs := NewViews(Config{
		Initiator: newFakeInitiator(),
		TTL:       10 * time.Minute,
		Now:       func() time.Time { return now },
	})
	idle := vs.Open(nil)
	active := vs.Open(nil)

	now = now.Add(8 * time.Minute)
	_, ok := vs.Get(active.ID())
	require.True(t, ok)

	now = now.Add(5 * time.Minute)
	assert.Equal(t, 1, vs.Sweep())
	assert.True(t, idle.Closed())
	assert.False(t, active.Closed())
	assert.Equal(t, 1, vs.Len())
}

func TestRunClosesViewsOnShutdown(t *testing.T) {
	vs := NewViews(Config{Initiator: newFakeInitiator()})
	v := vs.Open(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		vs.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	assert.True(t, v.Closed())
	assert.Zero(t, vs.Len())
}

type fakeSecondary struct {
	mu     sync.Mutex
	starts []payment.WidgetConfig
}

func (f *fakeSecondary) Start(_ context.Context, cfg payment.WidgetConfig) (payment.Widget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, cfg)
	id := "cs_test_" + string(rune('0'+len(f.starts)))
	return payment.Widget{
		AttemptID:   id,
		Provider:    "stripe",
		Config:      cfg,
		RedirectURL: "https://checkout.stripe.test/" + id,
	}, nil
}

func TestSecondaryRedirectFinishesAttempt(t *testing.T) {
	h := newHarness(t)
	secondary := &fakeSecondary{}
	h.views = NewViews(Config{
		Initiator: h.initiator,
		Secondary: secondary,
		Reporter:  h.initiator,
		Recorder:  h.recorder,
		Scheduler: h.scheduler,
	})
	v := h.views.Open(nil)
	fill(t, v)
	require.NoError(t, v.SelectChannel("stripe"))

	out, err := v.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.Widget)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", out.Widget.RedirectURL)
	assert.False(t, v.Selection().Processing)

	snap := v.Snapshot()
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", snap.Redirect)
	assert.Nil(t, snap.Widget)
	assert.ErrorIs(t, v.ReportDismiss(out.Widget.AttemptID), payment.ErrUnknownAttempt)

	_, err = v.Submit(context.Background())
	require.NoError(t, err)
	assert.Len(t, secondary.starts, 2)
	assert.Empty(t, h.initiator.opens)
	require.Len(t, h.recorder.opened, 2)
	assert.Equal(t, "stripe", h.recorder.opened[0].Provider)
}

func TestScriptFailureReportedByBrowser(t *testing.T) {
	h := newHarness(t)
	v := h.views.Open(nil)
	fill(t, v)

	out, err := v.Submit(context.Background())
	require.NoError(t, err)
	require.NoError(t, v.ReportScriptFailure(out.Widget.AttemptID))

	assert.False(t, v.Selection().Processing)
	snap := v.Snapshot()
	assert.Equal(t, []Notice{{Level: LevelError, Message: MsgScriptFailed}}, snap.Notices)
	assert.Nil(t, snap.Widget)
	assert.Empty(t, h.recorder.canceled)
	assert.Error(t, h.initiator.ctxs[0].Err())

	assert.ErrorIs(t, v.ReportScriptFailure(out.Widget.AttemptID), payment.ErrUnknownAttempt)
	assert.ErrorIs(t, v.ReportScriptFailure("att-9"), payment.ErrUnknownAttempt)

	_, err = v.Submit(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.initiator.opens, 2)
}

func TestFinishedAttemptReleasesContext(t *testing.T) {
	h := newHarness(t)
	v := h.views.Open(nil)
	fill(t, v)

	out, err := v.Submit(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.initiator.ctxs[0].Err())
	require.NoError(t, v.ReportDismiss(out.Widget.AttemptID))
	assert.ErrorIs(t, h.initiator.ctxs[0].Err(), context.Canceled)

	out, err = v.Submit(context.Background())
	require.NoError(t, err)
	require.NoError(t, v.ReportSuccess(out.Widget.AttemptID, payment.PaymentResult{PaymentID: "pay_1"}))
	assert.ErrorIs(t, h.initiator.ctxs[1].Err(), context.Canceled)
	assert.False(t, v.Closed())
}

func TestSetFieldsIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	v := h.views.Open(nil)

	err := v.SetFields(map[string]string{"email": "a@b.c", "address": "x", "name": "A"})
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.Equal(t, Contact{}, v.Selection().Contact)

	require.NoError(t, v.SetFields(map[string]string{"email": "a@b.c", "fullName": "A"}))
	assert.Equal(t, Contact{Name: "A", Email: "a@b.c"}, v.Selection().Contact)
}
