package payment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

// DefaultScriptURL is the Razorpay standard checkout bundle.
const DefaultScriptURL = "https://checkout.razorpay.com/v1/checkout.js"

// ScriptLoader checks that a provider script is reachable before a widget is
// offered to the browser. Successful loads are remembered per URL for the life
// of the process; failures are not, so the next submit tries again.
type ScriptLoader struct {
	client  *http.Client
	timeout time.Duration
	group   singleflight.Group
	loaded  sync.Map
}

func NewScriptLoader(client *http.Client, timeout time.Duration) *ScriptLoader {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ScriptLoader{client: client, timeout: timeout}
}

func (l *ScriptLoader) Loaded(url string) bool {
	_, ok := l.loaded.Load(url)
	return ok
}

// Ensure returns nil once url has loaded. Concurrent callers for the same url
// share a single request; a caller whose ctx ends stops waiting without
// cancelling the shared request.
func (l *ScriptLoader) Ensure(ctx context.Context, url string) error {
	if l.Loaded(url) {
		return nil
	}
	ch := l.group.DoChan(url, func() (any, error) {
		if l.Loaded(url) {
			return nil, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		if err := l.fetch(fetchCtx, url); err != nil {
			return nil, err
		}
		l.loaded.Store(url, struct{}{})
		return nil, nil
	})
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrScriptLoad, ctx.Err())
	case res := <-ch:
		return res.Err
	}
}

func (l *ScriptLoader) fetch(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScriptLoad, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScriptLoad, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %d", ErrScriptLoad, url, resp.StatusCode)
	}
	return nil
}
