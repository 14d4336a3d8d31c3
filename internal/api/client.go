// Package api is the JSON/HTTPS client for the metadata service: folder
// records, presigned upload URLs, document placeholders and multipart
// coordination. Every call is bearer-authenticated and carries an explicit
// timeout.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avetisov/docpilot/internal/common"
	"github.com/avetisov/docpilot/internal/logging"
)

const maxErrorBody = 512

type Client struct {
	baseURL string
	token   string
	hc      *http.Client
	timeout time.Duration
	log     logging.Logger
}

func New(baseURL, token string, timeout time.Duration, log logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{},
		timeout: timeout,
		log:     log,
	}
}

// do executes one JSON round trip. A non-2xx response becomes a
// *common.StatusError so callers can classify it for retry.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s: %w", method, path,
			&common.StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))})
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
