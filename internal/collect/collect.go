// Package collect implements the source adapters. Each collector turns
// one upstream API into canonical artifacts.
//
// Collectors receive their previous checkpoint state and return the next
// one; they never persist it themselves. The orchestrator commits the
// returned state only after the whole pass for that collector succeeded,
// so a failing pass resumes from the prior checkpoint.
package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/happycoding7/signal-extract/internal/canon"
)

// userAgent is sent on every upstream request.
const userAgent = "signal-extract/1.0"

// Collector is one source adapter.
type Collector interface {
	// Name is the stable checkpoint key for this collector.
	Name() string
	// Collect fetches new artifacts. state is the previous checkpoint
	// (nil on first run); the returned state becomes the next checkpoint
	// if the caller decides the pass succeeded.
	Collect(ctx context.Context, state json.RawMessage) ([]*canon.Artifact, json.RawMessage, error)
}

// httpError is a non-200 upstream response.
type httpError struct {
	URL    string
	Status int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("get %s: http %d", e.URL, e.Status)
}

// isHTTPStatus reports whether err is an upstream response with the given
// status code.
func isHTTPStatus(err error, status int) bool {
	var he *httpError
	return errors.As(err, &he) && he.Status == status
}

// getJSON performs a GET and decodes the JSON response into out.
func getJSON(ctx context.Context, client *http.Client, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &httpError{URL: url, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// truncate caps s at max runes, appending a marker when cut. Upstream
// bodies get a per-source cap here; canon.Normalize applies the global
// ceiling later.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "\n[truncated]"
}
