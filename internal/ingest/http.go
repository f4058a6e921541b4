package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrTransport marks failures to obtain a payload from an upstream: network
// errors, non-2xx statuses and bodies that are not JSON.
var ErrTransport = errors.New("transport error")

const userAgent = "market-ingest/1.0"

// maxBody caps upstream responses.
const maxBody = 32 << 20

// GetJSON performs a GET and returns the body if it is valid JSON.
func GetJSON(ctx context.Context, client *http.Client, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	res, err := client.Do(req) //nolint:gosec // URL comes from source configuration
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrTransport, url, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrTransport, url, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrTransport, url, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s returned invalid JSON", ErrTransport, url)
	}
	return body, nil
}
