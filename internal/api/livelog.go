package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prbarcelon/astrbotctl/internal/livelog"
)

// StreamLiveLog tails /api/live-log into out until the server ends the
// stream, the stream breaks, or ctx is cancelled. Failing to open the
// stream is an error; a stream that breaks later is logged and treated as
// the end of the tail. A malformed event fails with *DecodeError.
func (c *Client) StreamLiveLog(ctx context.Context, out io.Writer, flush bool) error {
	consumer := livelog.NewConsumer(out, flush, c.logger)
	err := consumer.Run(ctx, c.openLiveLog)
	var perr *livelog.PayloadError
	if errors.As(err, &perr) {
		return &DecodeError{What: "live log event", Err: perr}
	}
	return err
}

func (c *Client) openLiveLog(ctx context.Context) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/live-log", nil, "")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	started := time.Now().UTC()
	resp, err := c.streamClient.Do(req)
	if err != nil {
		terr := &TransportError{Err: err}
		c.record(req, started, 0, terr)
		return nil, terr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorSnippet*4))
		terr := &TransportError{StatusCode: resp.StatusCode, Body: truncateRunes(string(body), maxErrorSnippet)}
		c.record(req, started, resp.StatusCode, terr)
		return nil, terr
	}
	c.record(req, started, resp.StatusCode, nil)
	return resp.Body, nil
}
