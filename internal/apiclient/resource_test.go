package apiclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agalaxie/shadesupport/internal/metrics"
)

func newTestContext(baseURL string) *Context {
	c := NewContext(baseURL, zerolog.Nop(), metrics.NewUnregistered())
	c.sleep = func(time.Duration) {} // skip initial/retry delays in tests
	return c
}

func TestOpenEmptyURL(t *testing.T) {
	calls := int32(0)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	c := newTestContext(ts.URL)
	r := c.Open("", Options{})

	// Terminal state, synchronously.
	assert.Nil(t, r.Data())
	assert.Equal(t, ErrInvalidURL, r.Err())
	assert.False(t, r.Loading())

	// No side effects on the shared tables, no network calls.
	r.Refetch()
	r.StopAutoRefresh()
	r.Close()
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.refCount)
	assert.Empty(t, c.locks)
}

func TestFetchSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"t1","title":"Hello"}`))
	}))
	defer ts.Close()

	c := newTestContext(ts.URL)
	r := c.Open("/api/tickets/t1", Options{})
	defer r.Close()
	r.Wait()

	require.NoError(t, r.Err())
	assert.False(t, r.Loading())
	assert.JSONEq(t, `{"id":"t1","title":"Hello"}`, string(r.Data()))
}

func TestConcurrentConsumersSingleCall(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	calls := int32(0)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	c := newTestContext(ts.URL)

	r1 := c.Open("/api/tickets", Options{})
	<-started

	// Second consumer mounts while the first's call is in flight: it must
	// abort silently without issuing its own request.
	r2 := c.Open("/api/tickets", Options{})
	r2.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	close(release)
	r1.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.NoError(t, r1.Err())

	r1.Close()
	r2.Close()
}

func TestCacheServesSecondConsumer(t *testing.T) {
	calls := int32(0)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"n":1}`))
	}))
	defer ts.Close()

	c := newTestContext(ts.URL)

	r1 := c.Open("/api/tickets", Options{})
	r1.Wait()
	require.NoError(t, r1.Err())

	r2 := c.Open("/api/tickets", Options{})
	r2.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second mount should be served from cache")
	assert.JSONEq(t, `{"n":1}`, string(r2.Data()))
	assert.False(t, r2.Loading())

	r1.Close()
	r2.Close()
}

func TestCacheHitClearsPreviousError(t *testing.T) {
	c := newTestContext("http://unreachable.invalid")
	c.setCache("/api/tickets", []byte(`{"n":1}`))
	c.mu.Lock()
	c.refCount["/api/tickets"]++
	c.mu.Unlock()

	// A consumer carrying a leftover error must come out of a cache hit
	// as healthy as one served by the network.
	r := &Resource{
		ctx:     c,
		url:     "/api/tickets",
		err:     ErrConnection,
		loading: true,
		settled: make(chan struct{}),
	}
	r.fetch(false)

	require.NoError(t, r.Err())
	assert.JSONEq(t, `{"n":1}`, string(r.Data()))
	assert.False(t, r.Loading())
	r.Close()
}

func TestRefetchBypassesCache(t *testing.T) {
	calls := int32(0)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(map[string]int32{"n": n})
	}))
	defer ts.Close()

	c := newTestContext(ts.URL)
	r := c.Open("/api/tickets", Options{})
	defer r.Close()
	r.Wait()
	require.NoError(t, r.Err())

	r.Refetch()

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "refetch must hit the network despite a fresh cache entry")
	assert.JSONEq(t, `{"n":2}`, string(r.Data()))
}

func TestStaleWhileError(t *testing.T) {
	calls := int32(0)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Write([]byte(`{"n":1}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer ts.Close()

	c := newTestContext(ts.URL)
	r := c.Open("/api/tickets", Options{})
	defer r.Close()
	r.Wait()
	require.NoError(t, r.Err())

	r.Refetch()

	// Previous data survives; the failure surfaces as the stale notice.
	assert.JSONEq(t, `{"n":1}`, string(r.Data()))
	assert.Equal(t, ErrStaleData, r.Err())
	// 1 initial + 1 refetch attempt + 1 retry of the 5xx
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestUnauthorizedNoRetry(t *testing.T) {
	calls := int32(0)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := newTestContext(ts.URL)
	r := c.Open("/api/tickets", Options{})
	defer r.Close()
	r.Wait()

	assert.Equal(t, ErrUnauthorized, r.Err())
	assert.Nil(t, r.Data())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "401 must not be retried")
}

func TestServerErrorMessageSurfaced(t *testing.T) {
	calls := int32(0)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Ticket non trouvé"}`))
	}))
	defer ts.Close()

	c := newTestContext(ts.URL)
	r := c.Open("/api/tickets/nope", Options{})
	defer r.Close()
	r.Wait()

	require.Error(t, r.Err())
	assert.Equal(t, "Ticket non trouvé", r.Err().Error())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "404 must not be retried")
}

func TestServerErrorRetried(t *testing.T) {
	calls := int32(0)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"recovered":true}`))
	}))
	defer ts.Close()

	c := newTestContext(ts.URL)
	r := c.Open("/api/tickets", Options{})
	defer r.Close()
	r.Wait()

	require.NoError(t, r.Err())
	assert.JSONEq(t, `{"recovered":true}`, string(r.Data()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestStopAutoRefreshIdempotent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	c := newTestContext(ts.URL)
	r := c.Open("/api/tickets", Options{RefreshInterval: time.Hour})
	defer r.Close()
	r.Wait()

	r.StopAutoRefresh()
	r.StopAutoRefresh() // second call must be a no-op, not a fault
}

func TestAutoRefreshSchedulesForcedFetch(t *testing.T) {
	calls := int32(0)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	c := newTestContext(ts.URL)
	r := c.Open("/api/tickets", Options{RefreshInterval: 10 * time.Millisecond})
	defer r.Close()
	r.Wait()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, 2*time.Second, 5*time.Millisecond, "refresh interval should trigger a forced refetch")
}

func TestLastCloseReleasesStuckLock(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()
	defer close(release)

	c := newTestContext(ts.URL)

	r1 := c.Open("/api/tickets", Options{})
	<-started
	r2 := c.Open("/api/tickets", Options{})
	r2.Wait()

	assert.True(t, c.Locked("/api/tickets"))

	// Both consumers unmount while the call is still in flight: the last
	// close must force-release the lock so future fetches are not wedged.
	r2.Close()
	assert.True(t, c.Locked("/api/tickets"))
	r1.Close()
	assert.False(t, c.Locked("/api/tickets"))
}
