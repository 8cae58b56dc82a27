package checkout

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/catalog"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/payment"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/selection"
)

type attempt struct {
	event   OrderEvent
	widget  payment.Widget
	done    bool
	release func()
}

// finish marks the attempt over and lets go of its context.
func (a *attempt) finish() {
	a.done = true
	if a.release != nil {
		a.release()
	}
}

// View is the server side of one rendered checkout page. All of its
// operations are serialized; teardown cancels ctx, after which callbacks
// neither mutate state nor navigate.
type View struct {
	id     string
	deps   *Views
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sel      Selection
	notices  []Notice
	redirect string
	timer    Stopper
	current  *attempt
	created  time.Time
	lastSeen time.Time
}

// Outcome is what a submit produced for the browser.
type Outcome struct {
	Widget *payment.Widget `json:"widget,omitempty"`
}

func newView(deps *Views, query url.Values) *View {
	res := selection.Resolve(deps.catalog, query)
	ctx, cancel := context.WithCancel(context.Background())
	now := deps.now()
	return &View{
		id:     uuid.NewString(),
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		sel: Selection{
			Product: res.Product,
			Tier:    res.Tier,
			Channel: ChannelCard,
		},
		created:  now,
		lastSeen: now,
	}
}

func (v *View) ID() string { return v.id }

func (v *View) Context() context.Context { return v.ctx }

func (v *View) Closed() bool { return v.ctx.Err() != nil }

// Relocate re-resolves product and tier from a new query string.
func (v *View) Relocate(query url.Values) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Closed() {
		return ErrViewClosed
	}
	if v.sel.Processing {
		return ErrAlreadyProcessing
	}
	res := selection.Resolve(v.deps.catalog, query)
	v.sel.Product = res.Product
	v.sel.Tier = res.Tier
	return nil
}

func (v *View) SetField(name, value string) error {
	return v.SetFields(map[string]string{name: value})
}

// SetFields applies all of fields or, if any name is unknown, none of them.
func (v *View) SetFields(fields map[string]string) error {
	names := slices.Sorted(maps.Keys(fields))
	for _, name := range names {
		if contactField(&Contact{}, name) == nil {
			return fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Closed() {
		return ErrViewClosed
	}
	for _, name := range names {
		*contactField(&v.sel.Contact, name) = fields[name]
	}
	return nil
}

func contactField(c *Contact, name string) *string {
	switch name {
	case "fullName", "name":
		return &c.Name
	case "email":
		return &c.Email
	case "company":
		return &c.Company
	case "phone":
		return &c.Phone
	default:
		return nil
	}
}

func (v *View) SelectTier(t catalog.Tier) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTier, t)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Closed() {
		return ErrViewClosed
	}
	v.sel.Tier = t
	return nil
}

func (v *View) SelectChannel(ch Channel) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Closed() {
		return ErrViewClosed
	}
	v.sel.Channel = Channel(strings.TrimSpace(string(ch)))
	return nil
}

func (v *View) Selection() Selection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sel
}

func (v *View) pushLocked(level NoticeLevel, msg string) {
	v.notices = append(v.notices, Notice{Level: level, Message: msg})
}

// Submit validates the contact fields and starts a payment on the provider
// matching the selected channel. The view lock is released while the
// provider works so widget callbacks can land.
func (v *View) Submit(ctx context.Context) (Outcome, error) {
	v.mu.Lock()
	if v.Closed() {
		v.mu.Unlock()
		return Outcome{}, ErrViewClosed
	}
	if v.sel.Processing {
		v.mu.Unlock()
		return Outcome{}, ErrAlreadyProcessing
	}
	if missing := missingFields(v.sel.Contact); len(missing) > 0 {
		v.pushLocked(LevelError, MsgMissingFields)
		v.mu.Unlock()
		return Outcome{}, &ValidationError{Missing: missing}
	}
	v.sel.Processing = true
	sel := v.sel
	a := &attempt{event: OrderEvent{
		ViewID:      v.id,
		Receipt:     newReceipt(),
		ProductSlug: sel.Product.Slug,
		Tier:        sel.Tier,
		Channel:     sel.Channel,
		Contact:     sel.Contact,
	}}
	v.current = a
	// The attempt outlives this request but not the view. Request values
	// (trace spans) are kept.
	attemptCtx, release := v.bind(ctx)
	a.release = release
	v.mu.Unlock()

	req := payment.Request{
		Product: sel.Product,
		Tier:    sel.Tier,
		Contact: payment.Prefill{
			Name:    strings.TrimSpace(sel.Contact.Name),
			Email:   strings.TrimSpace(sel.Contact.Email),
			Contact: strings.TrimSpace(sel.Contact.Phone),
		},
		Receipt: a.event.Receipt,
	}

	w, err := v.start(attemptCtx, sel.Channel, req, a)

	v.mu.Lock()
	if v.Closed() {
		v.mu.Unlock()
		return Outcome{}, ErrViewClosed
	}
	if err != nil {
		v.failLocked(a, err)
		v.mu.Unlock()
		if !errors.Is(err, payment.ErrComingSoon) {
			v.deps.logger.Warn("checkout submit failed",
				"view_id", v.id,
				"product", sel.Product.Slug,
				"tier", string(sel.Tier),
				"channel", string(sel.Channel),
				"err", err,
			)
		}
		return Outcome{}, err
	}
	a.widget = w
	a.event.Provider = w.Provider
	a.event.AttemptID = w.AttemptID
	a.event.ProviderOrderID = w.Config.OrderID
	a.event.Amount = w.Config.Amount
	a.event.Currency = w.Config.Currency
	if !sel.Channel.Primary() {
		// The hosted page takes over; this view has nothing left to wait for.
		a.finish()
		v.sel.Processing = false
		v.current = nil
		v.redirect = w.RedirectURL
	}
	evt := a.event
	v.mu.Unlock()

	v.deps.logger.Info("checkout widget opened",
		"view_id", v.id,
		"product", evt.ProductSlug,
		"tier", string(evt.Tier),
		"channel", string(evt.Channel),
		"provider", evt.Provider,
		"order_id", evt.ProviderOrderID,
	)
	v.record(func(ctx context.Context, r Recorder) error { return r.OrderOpened(ctx, evt) })
	return Outcome{Widget: &w}, nil
}

// start runs the provider path. A panic there is reported as an error.
func (v *View) start(ctx context.Context, ch Channel, req payment.Request, a *attempt) (w payment.Widget, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("payment provider panic: %v", rec)
		}
	}()
	if !ch.Primary() {
		return v.deps.secondary.Start(ctx, v.deps.initiator.Config(req))
	}
	return v.deps.initiator.Open(ctx, req, payment.Callbacks{
		OnSuccess: func(res payment.PaymentResult) { v.onSuccess(a, res) },
		OnDismiss: func() { v.onDismiss(a) },
	})
}

func (v *View) failLocked(a *attempt, err error) {
	a.finish()
	v.sel.Processing = false
	if v.current == a {
		v.current = nil
	}
	switch {
	case errors.Is(err, payment.ErrComingSoon):
		v.pushLocked(LevelInfo, MsgComingSoon)
	case errors.Is(err, payment.ErrScriptLoad):
		v.pushLocked(LevelError, MsgScriptFailed)
	default:
		v.pushLocked(LevelError, MsgPaymentFailed)
	}
}

func (v *View) onSuccess(a *attempt, res payment.PaymentResult) {
	v.mu.Lock()
	if v.Closed() || a.done {
		v.mu.Unlock()
		return
	}
	a.finish()
	v.sel.Processing = false
	v.pushLocked(LevelSuccess, MsgPaymentOK)
	if v.timer == nil {
		v.timer = v.deps.scheduler.AfterFunc(v.deps.redirectDelay, v.navigateHome)
	}
	evt := a.event
	v.mu.Unlock()

	v.deps.logger.Info("checkout payment succeeded", "view_id", v.id, "order_id", evt.ProviderOrderID, "payment_id", res.PaymentID)
	v.record(func(ctx context.Context, r Recorder) error { return r.OrderPaid(ctx, evt, res) })
}

func (v *View) onDismiss(a *attempt) {
	v.mu.Lock()
	if v.Closed() || a.done {
		v.mu.Unlock()
		return
	}
	a.finish()
	v.sel.Processing = false
	v.pushLocked(LevelInfo, MsgCancelled)
	if v.current == a {
		v.current = nil
	}
	evt := a.event
	v.mu.Unlock()

	v.deps.logger.Info("checkout payment dismissed", "view_id", v.id, "order_id", evt.ProviderOrderID)
	v.record(func(ctx context.Context, r Recorder) error { return r.OrderCanceled(ctx, evt) })
}

func (v *View) navigateHome() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Closed() || v.redirect != "" {
		return
	}
	v.redirect = HomePath
}

func (v *View) attemptFor(attemptID string) (*attempt, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Closed() {
		return nil, ErrViewClosed
	}
	a := v.current
	if a == nil || a.widget.AttemptID == "" || a.widget.AttemptID != attemptID {
		return nil, payment.ErrUnknownAttempt
	}
	return a, nil
}

// ReportSuccess passes the widget's success payload to the provider.
func (v *View) ReportSuccess(attemptID string, res payment.PaymentResult) error {
	if _, err := v.attemptFor(attemptID); err != nil {
		return err
	}
	if v.deps.reporter == nil {
		return payment.ErrUnknownAttempt
	}
	return v.deps.reporter.Complete(attemptID, res)
}

// ReportDismiss tells the provider the buyer closed the widget.
func (v *View) ReportDismiss(attemptID string) error {
	if _, err := v.attemptFor(attemptID); err != nil {
		return err
	}
	if v.deps.reporter == nil {
		return payment.ErrUnknownAttempt
	}
	return v.deps.reporter.Dismiss(attemptID)
}

// ReportScriptFailure records that the browser could not load the widget
// script for the attempt. Unlike a dismissal this is an error, and the
// order stays unpaid rather than canceled.
func (v *View) ReportScriptFailure(attemptID string) error {
	a, err := v.attemptFor(attemptID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	if v.Closed() {
		v.mu.Unlock()
		return ErrViewClosed
	}
	if a.done || v.current != a {
		v.mu.Unlock()
		return payment.ErrUnknownAttempt
	}
	v.failLocked(a, payment.ErrScriptLoad)
	evt := a.event
	v.mu.Unlock()

	v.deps.logger.Warn("checkout widget script failed to load",
		"view_id", v.id,
		"order_id", evt.ProviderOrderID,
		"attempt_id", evt.AttemptID,
	)
	return nil
}

func (v *View) record(fn func(context.Context, Recorder) error) {
	if v.deps.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(v.ctx), 5*time.Second)
	defer cancel()
	if err := fn(ctx, v.deps.recorder); err != nil {
		v.deps.logger.Error("order lifecycle record failed", "view_id", v.id, "err", err)
	}
}

// Snapshot is the polled state of a view. Notices are drained by the read.
type Snapshot struct {
	ID         string          `json:"id"`
	Product    ProductSummary  `json:"product"`
	Tier       catalog.Tier    `json:"tier"`
	Channel    Channel         `json:"channel"`
	Contact    Contact         `json:"contact"`
	Processing bool            `json:"processing"`
	Notices    []Notice        `json:"notices"`
	Redirect   string          `json:"redirect,omitempty"`
	Widget     *payment.Widget `json:"widget,omitempty"`
}

type ProductSummary struct {
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	PriceDisplay string `json:"price_display"`
}

func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	price := v.sel.Product.Price(v.sel.Tier)
	s := Snapshot{
		ID: v.id,
		Product: ProductSummary{
			Slug:         v.sel.Product.Slug,
			Name:         v.sel.Product.Name,
			Price:        price,
			PriceDisplay: catalog.FormatINR(price),
		},
		Tier:       v.sel.Tier,
		Channel:    v.sel.Channel,
		Contact:    v.sel.Contact,
		Processing: v.sel.Processing,
		Notices:    v.notices,
		Redirect:   v.redirect,
	}
	if s.Notices == nil {
		s.Notices = []Notice{}
	}
	v.notices = nil
	if a := v.current; a != nil && !a.done && a.widget.AttemptID != "" {
		w := a.widget
		s.Widget = &w
	}
	return s
}

// Close tears the view down. It is safe to call more than once.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancel()
	if v.timer != nil {
		v.timer.Stop()
	}
}

func (v *View) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *View) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen
}

func missingFields(c Contact) []string {
	var missing []string
	if strings.TrimSpace(c.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(c.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(c.Phone) == "" {
		missing = append(missing, "phone")
	}
	return missing
}

func newReceipt() string {
	return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// bind derives an attempt context that ends with the view. The returned func
// ends it early and drops the view hook.
func (v *View) bind(ctx context.Context) (context.Context, func()) {
	bound, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(v.ctx, cancel)
	return bound, func() {
		stop()
		cancel()
	}
}
