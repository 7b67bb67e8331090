package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Options configures a Resource's fetch behavior
type Options struct {
	Method  string // default GET
	Body    any    // JSON-encoded for non-GET methods
	Headers map[string]string

	Retries    int           // default 1
	RetryDelay time.Duration // default 2s, grows linearly per attempt

	// RefreshInterval schedules one forced refetch after each settled
	// attempt. Zero disables auto-refresh.
	RefreshInterval time.Duration

	// NoInitialDelay skips the navigation-absorbing delay before the
	// first fetch. Used by tests and one-shot CLI callers.
	NoInitialDelay bool
}

// Resource is a live view over one URL: data, error and loading state plus
// refetch and auto-refresh controls. Close releases the consumer's slot in
// the shared reference count.
type Resource struct {
	ctx  *Context
	url  string
	opts Options

	mu           sync.Mutex
	data         json.RawMessage
	err          error
	loading      bool
	attempted    bool
	initialLoad  bool
	closed       bool
	terminal     bool // invalid URL: no side effects, no fetches
	refreshTimer *time.Timer

	// settled is closed once the first fetch attempt completes; tests and
	// synchronous callers wait on it instead of polling Loading.
	settled     chan struct{}
	settledOnce sync.Once
}

// Open registers a consumer for the URL and starts the initial fetch after
// the navigation-absorbing delay. An empty URL yields a terminal resource:
// loading=false, ErrInvalidURL, and no cache/lock/refcount side effects.
func (c *Context) Open(url string, opts Options) *Resource {
	if url == "" {
		r := &Resource{
			ctx:      c,
			err:      ErrInvalidURL,
			terminal: true,
			settled:  make(chan struct{}),
		}
		close(r.settled)
		return r
	}

	r := &Resource{
		ctx:         c,
		url:         url,
		opts:        opts,
		loading:     true,
		initialLoad: true,
		settled:     make(chan struct{}),
	}

	c.mu.Lock()
	c.refCount[url]++
	c.mu.Unlock()

	go func() {
		if !opts.NoInitialDelay {
			c.sleep(initialDelay)
		}
		r.mu.Lock()
		skip := r.closed || r.attempted
		r.mu.Unlock()
		if skip {
			r.markSettled()
			return
		}
		// Non-forced: a fresh cache entry from another consumer serves
		// this mount without a network trip.
		r.fetch(false)
	}()

	return r
}

// Data returns the last successfully fetched payload, or nil
func (r *Resource) Data() json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// Err returns the current error state, nil when healthy
func (r *Resource) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Loading reports whether the initial load is still in progress
func (r *Resource) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Refetch forces a fetch, bypassing the freshness window and the throttle
// (the in-flight lock still applies)
func (r *Resource) Refetch() {
	if r.terminal {
		return
	}
	r.fetch(true)
}

// StopAutoRefresh cancels any scheduled refresh. Safe to call repeatedly.
func (r *Resource) StopAutoRefresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refreshTimer != nil {
		r.refreshTimer.Stop()
		r.refreshTimer = nil
	}
}

// Wait blocks until the first fetch attempt settles
func (r *Resource) Wait() {
	<-r.settled
}

// Close unregisters this consumer. When the last consumer for the URL
// closes, the URL's lock is force-released so an aborted in-flight call
// cannot wedge future fetches.
func (r *Resource) Close() {
	r.mu.Lock()
	if r.terminal || r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.refreshTimer != nil {
		r.refreshTimer.Stop()
		r.refreshTimer = nil
	}
	r.mu.Unlock()
	r.markSettled()

	c := r.ctx
	c.mu.Lock()
	if c.refCount[r.url] > 0 {
		c.refCount[r.url]--
	}
	if c.refCount[r.url] == 0 {
		delete(c.refCount, r.url)
		c.locks[r.url] = false
	}
	c.mu.Unlock()
}

func (r *Resource) markSettled() {
	r.settledOnce.Do(func() { close(r.settled) })
}

func (r *Resource) fetch(force bool) {
	defer r.markSettled()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.attempted && !force {
		r.mu.Unlock()
		return
	}
	initial := r.initialLoad
	r.mu.Unlock()

	c := r.ctx
	now := c.now()

	c.mu.Lock()
	// Another consumer's in-flight request will populate the cache.
	if c.locks[r.url] {
		c.mu.Unlock()
		return
	}
	// Throttle non-forced, non-initial calls.
	if !force && !initial && now.Sub(c.lastCall[r.url]) < minCallInterval {
		c.mu.Unlock()
		return
	}
	c.locks[r.url] = true
	c.lastCall[r.url] = now

	// A fresh cache entry serves non-forced calls without a network trip.
	if !force {
		if entry, ok := c.cache[r.url]; ok && now.Sub(entry.timestamp) < cacheDuration {
			c.locks[r.url] = false
			c.mu.Unlock()
			c.metrics.ClientCacheHits.Inc()

			r.mu.Lock()
			r.attempted = true
			r.data = entry.data
			r.err = nil
			r.loading = false
			r.mu.Unlock()
			return
		}
	}
	c.mu.Unlock()

	r.mu.Lock()
	r.attempted = true
	if r.data == nil {
		r.loading = true
	}
	r.err = nil
	hadData := r.data != nil
	r.mu.Unlock()

	c.metrics.ClientCacheMisses.Inc()
	data, err := c.doFetch(r.url, r.opts)

	r.mu.Lock()
	if err != nil {
		if hadData {
			// stale-while-error: keep serving the old payload
			r.err = ErrStaleData
		} else {
			r.err = err
		}
	} else {
		r.data = data
		r.err = nil
		r.initialLoad = false
	}
	r.mu.Unlock()

	// The lock outlives the call while other consumers still hold the URL;
	// the last Close force-releases it.
	c.mu.Lock()
	if c.refCount[r.url] <= 1 {
		c.locks[r.url] = false
	}
	c.mu.Unlock()

	r.mu.Lock()
	r.loading = false
	if !r.closed && r.opts.RefreshInterval > 0 {
		if r.refreshTimer != nil {
			r.refreshTimer.Stop()
		}
		r.refreshTimer = c.after(r.opts.RefreshInterval, func() {
			r.mu.Lock()
			closed := r.closed
			r.mu.Unlock()
			if !closed {
				r.fetch(true)
			}
		})
	}
	r.mu.Unlock()
}

// doFetch performs the HTTP call with the retry loop: transport failures
// and 5xx responses retry with a linearly growing delay.
func (c *Context) doFetch(url string, opts Options) (json.RawMessage, error) {
	maxRetries := opts.Retries
	if maxRetries <= 0 {
		maxRetries = defaultRetries
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	for retry := 0; ; retry++ {
		data, err := c.attempt(url, opts)
		if err == nil {
			c.setCache(url, data)
			c.metrics.ClientFetches.Inc()
			return data, nil
		}
		if !retryable(err) || retry >= maxRetries {
			c.log.Error().Str("url", url).Err(err).Msg("fetch failed")
			return nil, err
		}
		if retry == 0 {
			c.log.Warn().Str("url", url).Msg("fetch attempt failed, retrying")
		}
		c.metrics.ClientRetries.Inc()
		c.sleep(retryDelay * time.Duration(retry+1))
	}
}

func (c *Context) attempt(url string, opts Options) (json.RawMessage, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if opts.Body != nil && method != http.MethodGet {
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrConnection
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrConnection
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, serverError(resp.StatusCode, payload)
	}

	return payload, nil
}

// serverError extracts the server's {error} message or builds a generic one
func serverError(status int, payload []byte) error {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error != "" {
		return &httpError{status: status, message: envelope.Error}
	}
	if status >= 500 {
		return &httpError{status: status, message: fmt.Sprintf("Erreur serveur %d", status)}
	}
	return &httpError{status: status, message: fmt.Sprintf("Erreur %d: %s", status, http.StatusText(status))}
}
