// Package apiclient implements the read-path fetch controller and the
// write-path mutation controller used by UI surfaces against the ticket
// API. All shared state (cache, locks, throttle stamps, reference counts)
// lives in an explicit Context so callers get one instance per application
// root instead of hidden package globals.
package apiclient

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Agalaxie/shadesupport/internal/metrics"
)

const (
	// cacheDuration is the freshness window: entries older than this are
	// not served without revalidation.
	cacheDuration = 60 * time.Second

	// minCallInterval is the minimum spacing between non-forced calls to
	// the same URL.
	minCallInterval = 10 * time.Second

	// initialDelay absorbs rapid open/close cycles during navigation
	// before the first fetch.
	initialDelay = time.Second

	fetchTimeout    = 15 * time.Second
	mutationTimeout = 10 * time.Second

	defaultRetries     = 1
	defaultRetryDelay  = 2 * time.Second
	mutationRetryDelay = time.Second
)

// ticketsCollectionURL is the cache key invalidated after ticket mutations
const ticketsCollectionURL = "/api/tickets"

type cacheEntry struct {
	data      []byte
	timestamp time.Time
}

// Context holds the per-URL cache, lock, throttle and reference-count
// tables shared by every Resource and Mutation it creates.
type Context struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
	metrics *metrics.Metrics

	// injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
	after func(time.Duration, func()) *time.Timer

	mu       sync.Mutex // guards the four tables below
	cache    map[string]cacheEntry
	locks    map[string]bool
	lastCall map[string]time.Time
	refCount map[string]int
}

// NewContext creates a cache context. baseURL prefixes every resource URL;
// resource URLs themselves ("/api/tickets", ...) are the table keys.
func NewContext(baseURL string, log zerolog.Logger, m *metrics.Metrics) *Context {
	return &Context{
		client:   &http.Client{},
		baseURL:  baseURL,
		log:      log,
		metrics:  m,
		now:      time.Now,
		sleep:    time.Sleep,
		after:    time.AfterFunc,
		cache:    map[string]cacheEntry{},
		locks:    map[string]bool{},
		lastCall: map[string]time.Time{},
		refCount: map[string]int{},
	}
}

// CachedData returns the cached payload for a URL if present and fresh
func (c *Context) CachedData(url string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[url]
	if !ok || c.now().Sub(entry.timestamp) >= cacheDuration {
		return nil, false
	}
	return entry.data, true
}

// Invalidate removes a cache entry so the next read revalidates
func (c *Context) Invalidate(url string) {
	c.mu.Lock()
	delete(c.cache, url)
	c.mu.Unlock()
}

func (c *Context) setCache(url string, data []byte) {
	c.mu.Lock()
	c.cache[url] = cacheEntry{data: data, timestamp: c.now()}
	c.mu.Unlock()
}

// Locked reports whether a request is in flight for the URL
func (c *Context) Locked(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locks[url]
}
