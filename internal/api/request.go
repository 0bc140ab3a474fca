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
	"unicode/utf8"

	"github.com/prbarcelon/astrbotctl/internal/protocol"
)

const maxResponseBody = 32 << 20

// TokenPreview shows the first eight characters of a token followed by an
// ellipsis. Tokens shorter than eight characters are shown in full.
func TokenPreview(token string) string {
	if utf8.RuneCountInString(token) < 8 {
		return token
	}
	count := 0
	for i := range token {
		if count == 8 {
			return token[:i] + "…"
		}
		count++
	}
	return token + "…"
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) endpoint(path string) string {
	return joinURL(c.baseURL, path)
}

// newRequest builds a request against the configured server with the
// bearer token attached. body may be nil.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := c.newUnauthenticatedRequest(ctx, method, path, body, contentType)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("api token", "token", TokenPreview(c.token))
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

func (c *Client) newUnauthenticatedRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	url := c.endpoint(path)
	c.logger.Debug("api request", "method", method, "url", url)

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return c.newRequest(ctx, method, path, bytes.NewReader(encoded), "application/json")
}

// send performs req and returns the status code and (size-limited) body.
// Connection failures come back as *TransportError with StatusCode 0.
func (c *Client) send(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response body: %w", err)}
	}
	return resp.StatusCode, body, nil
}

// roundTrip sends req, decodes the envelope and records the outcome.
func roundTrip[T any](c *Client, req *http.Request) (*Envelope[T], error) {
	started := time.Now().UTC()
	statusCode, body, err := c.send(req)
	var env *Envelope[T]
	if err == nil {
		env, err = DecodeEnvelope[T](statusCode, body)
	}
	if env != nil {
		c.logger.Debug("api response", "status", env.Status, "message", env.Message)
	}
	c.record(req, started, statusCode, err)
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (c *Client) record(req *http.Request, started time.Time, statusCode int, err error) {
	if c.recorder == nil {
		return
	}
	item := protocol.HistoryItem{
		At:         started,
		Method:     req.Method,
		Path:       req.URL.Path,
		StatusCode: statusCode,
		Success:    err == nil,
		DurationMs: int64(time.Since(started) / time.Millisecond),
	}
	if err != nil {
		item.Error = err.Error()
	}
	if recErr := c.recorder.InsertHistory(item); recErr != nil {
		c.logger.Warn("failed to record request history", "error", recErr)
	}
}
