package checkout

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/catalog"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/payment"
)

type Config struct {
	Catalog   *catalog.Catalog
	Initiator Initiator
	Secondary payment.Secondary
	Reporter  AttemptReporter
	Recorder  Recorder
	Scheduler Scheduler
	Logger    *slog.Logger

	RedirectDelay time.Duration
	TTL           time.Duration
	Now           func() time.Time
}

// Views holds the live checkout views. Views idle for longer than TTL are
// closed by Run.
type Views struct {
	catalog       *catalog.Catalog
	initiator     Initiator
	secondary     payment.Secondary
	reporter      AttemptReporter
	recorder      Recorder
	scheduler     Scheduler
	logger        *slog.Logger
	redirectDelay time.Duration
	ttl           time.Duration
	now           func() time.Time

	mu    sync.Mutex
	views map[string]*View
}

func NewViews(cfg Config) *Views {
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Builtin()
	}
	if cfg.Secondary == nil {
		cfg.Secondary = payment.StripeStub{}
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = timeScheduler{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.RedirectDelay <= 0 {
		cfg.RedirectDelay = 2 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Views{
		catalog:       cfg.Catalog,
		initiator:     cfg.Initiator,
		secondary:     cfg.Secondary,
		reporter:      cfg.Reporter,
		recorder:      cfg.Recorder,
		scheduler:     cfg.Scheduler,
		logger:        cfg.Logger,
		redirectDelay: cfg.RedirectDelay,
		ttl:           cfg.TTL,
		now:           cfg.Now,
		views:         map[string]*View{},
	}
}

// Open creates a view for a checkout page rendered with query.
func (vs *Views) Open(query url.Values) *View {
	v := newView(vs, query)
	vs.mu.Lock()
	vs.views[v.id] = v
	vs.mu.Unlock()
	return v
}

// Get returns a live view and marks it as seen.
func (vs *Views) Get(id string) (*View, bool) {
	vs.mu.Lock()
	v, ok := vs.views[id]
	vs.mu.Unlock()
	if !ok {
		return nil, false
	}
	v.touch(vs.now())
	return v, true
}

func (vs *Views) Close(id string) bool {
	vs.mu.Lock()
	v, ok := vs.views[id]
	delete(vs.views, id)
	vs.mu.Unlock()
	if ok {
		v.Close()
	}
	return ok
}

func (vs *Views) Len() int {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return len(vs.views)
}

// Sweep closes views idle longer than the TTL and returns how many it closed.
func (vs *Views) Sweep() int {
	cutoff := vs.now().Add(-vs.ttl)
	var stale []*View
	vs.mu.Lock()
	for id, v := range vs.views {
		if v.idleSince().Before(cutoff) {
			stale = append(stale, v)
			delete(vs.views, id)
		}
	}
	vs.mu.Unlock()
	for _, v := range stale {
		v.Close()
	}
	return len(stale)
}

// Run sweeps until ctx is done, then closes every remaining view.
func (vs *Views) Run(ctx context.Context) {
	every := vs.ttl / 4
	if every > time.Minute {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			vs.closeAll()
			return
		case <-ticker.C:
			if n := vs.Sweep(); n > 0 {
				vs.logger.Info("checkout views expired", "count", n)
			}
		}
	}
}

func (vs *Views) closeAll() {
	vs.mu.Lock()
	all := vs.views
	vs.views = map[string]*View{}
	vs.mu.Unlock()
	for _, v := range all {
		v.Close()
	}
}
