package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPGateway talks to a PostgREST-style REST endpoint: one route per table,
// upsert via POST with merge-duplicates resolution, row filters in the query
// string.
type HTTPGateway struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewHTTP creates an HTTP gateway with a 30s request timeout. The timeout is
// the only network-level deadline wrapping a push; a timed-out push surfaces
// as an ordinary failure to the processor.
func NewHTTP(baseURL, apiKey string) *HTTPGateway {
	return &HTTPGateway{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Health hits the /healthz endpoint to verify server reachability.
func (g *HTTPGateway) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: HTTP %d", resp.StatusCode)
	}
	return nil
}

// Upsert writes a record keyed by its id. Replay-safe: repeating the same
// record merges into the existing row.
func (g *HTTPGateway) Upsert(ctx context.Context, table string, record json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.BaseURL+"/rest/v1/"+url.PathEscape(table), bytes.NewReader(record))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates")
	g.auth(req)
	return g.check(req, table)
}

// Delete removes a record by id. An already-absent id is success.
func (g *HTTPGateway) Delete(ctx context.Context, table, id string) error {
	u := fmt.Sprintf("%s/rest/v1/%s?id=eq.%s", g.BaseURL, url.PathEscape(table), url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	g.auth(req)
	err = g.check(req, table)
	if err == ErrNotFound {
		return nil
	}
	return err
}

// SelectAll pulls the full table contents.
func (g *HTTPGateway) SelectAll(ctx context.Context, table string) ([]json.RawMessage, error) {
	u := g.BaseURL + "/rest/v1/" + url.PathEscape(table) + "?select=*"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	g.auth(req)

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := classify(resp.StatusCode, body); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", table, err)
	}
	return records, nil
}

func (g *HTTPGateway) auth(req *http.Request) {
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
		req.Header.Set("apikey", g.APIKey)
	}
}

// check executes a request whose body we do not need, mapping the status to
// a sentinel or verbatim error.
func (g *HTTPGateway) check(req *http.Request, table string) error {
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := classify(resp.StatusCode, body); err != nil {
		if err == ErrNotFound {
			return err
		}
		return fmt.Errorf("%s %s: %w", req.Method, table, err)
	}
	return nil
}

func classify(status int, body []byte) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("HTTP %d: %s", status, bytes.TrimSpace(body))
	}
}
