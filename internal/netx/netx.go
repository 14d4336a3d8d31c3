// Package netx performs the raw byte transfers to object storage via
// presigned URLs. It knows nothing about the metadata service.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avetisov/docpilot/internal/common"
)

type Client struct {
	hc      *http.Client
	timeout time.Duration
}

func New(timeout time.Duration) *Client {
	return &Client{hc: &http.Client{}, timeout: timeout}
}

// Put writes size bytes from body to a presigned URL. The returned tag is
// the storage backend's ETag header, unquoted; multipart completion requires
// it verbatim. Non-2xx responses come back as *common.StatusError.
func (c *Client) Put(ctx context.Context, url, contentType string, body io.Reader, size int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// An unknown-length reader would force chunked transfer encoding,
	// which presigned storage endpoints reject. Zero-byte files send an
	// explicit empty body so Content-Length: 0 survives.
	if size == 0 {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return "", err
	}
	req.ContentLength = size
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage put: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("storage put: %w",
			&common.StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))})
	}

	return strings.Trim(resp.Header.Get("ETag"), `"`), nil
}
