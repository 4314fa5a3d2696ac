// Package httpjson is the transport contract of the protocol: every request
// and response body is exactly one JSON object with an application/json
// content type, checked before any parsing happens.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// maxBody caps response bodies; protocol messages are small.
const maxBody = 1 << 20

type Client struct {
	HTTP *http.Client
}

// New builds a client with an explicit overall timeout. Calls additionally
// honor their context deadline.
func New(timeout time.Duration) *Client {
	return &Client{HTTP: &http.Client{Timeout: timeout}}
}

// Post sends one JSON object and returns the one JSON object of the reply.
func (c *Client) Post(ctx context.Context, url string, body json.RawMessage) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// Get fetches one JSON object.
func (c *Client) Get(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%s %s: status=%d body=%s",
			req.Method, req.URL, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := CheckContentType(resp.Header.Get("Content-Type")); err != nil {
		return nil, err
	}
	if err := checkOneObject(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// CheckContentType rejects anything but application/json. Servers apply it
// to inbound protocol messages, the client to every response.
func CheckContentType(header string) error {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("content type %q is not application/json", header)
	}
	return nil
}

// checkOneObject rejects bodies that are not a single JSON object before any
// message-level parsing sees them.
func checkOneObject(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var probe json.RawMessage
	if err := dec.Decode(&probe); err != nil {
		return fmt.Errorf("body is not JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("body holds more than one JSON value")
	}
	trimmed := bytes.TrimSpace(probe)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("body is not a JSON object")
	}
	return nil
}
