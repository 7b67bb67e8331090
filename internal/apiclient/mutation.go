package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Mutation is the write-path controller for one URL and method. Unlike the
// read path it never de-duplicates: every Mutate call issues its own
// request.
type Mutation struct {
	ctx    *Context
	url    string
	method string

	mu      sync.Mutex
	data    json.RawMessage
	err     error
	loading bool
}

// Mutation creates a write controller. method is POST, PUT, PATCH or DELETE.
func (c *Context) Mutation(url, method string) *Mutation {
	if method == "" {
		method = http.MethodPost
	}
	return &Mutation{ctx: c, url: url, method: method}
}

// Data returns the last successful response payload
func (m *Mutation) Data() json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

// Err returns the last mutation error
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Loading reports whether a mutation is in progress
func (m *Mutation) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Mutate issues the request with the configured method. A 5xx response is
// retried once after a fixed delay. On success the ticket-collection cache
// entry is invalidated when the URL touches the tickets path, so the next
// read revalidates.
func (m *Mutation) Mutate(ctx context.Context, body any) (json.RawMessage, error) {
	m.mu.Lock()
	m.loading = true
	m.err = nil
	m.mu.Unlock()

	result, err := m.do(ctx, body)

	m.mu.Lock()
	m.loading = false
	if err != nil {
		m.err = err
	} else {
		m.data = result
	}
	m.mu.Unlock()

	return result, err
}

func (m *Mutation) do(ctx context.Context, body any) (json.RawMessage, error) {
	c := m.ctx

	for retry := 0; ; retry++ {
		result, err := m.attempt(ctx, body)
		if err == nil {
			if strings.Contains(m.url, "/tickets") {
				c.Invalidate(ticketsCollectionURL)
			}
			return result, nil
		}

		var he *httpError
		if errors.As(err, &he) && he.status >= 500 && retry < 1 {
			c.log.Warn().Str("url", m.url).Msg("mutation attempt failed, retrying")
			c.sleep(mutationRetryDelay)
			continue
		}

		c.log.Error().Str("url", m.url).Err(err).Msg("mutation failed")
		return nil, err
	}
}

func (m *Mutation) attempt(ctx context.Context, body any) (json.RawMessage, error) {
	c := m.ctx

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	callCtx, cancel := context.WithTimeout(ctx, mutationTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, m.method, c.baseURL+m.url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
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
