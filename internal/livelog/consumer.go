package livelog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prbarcelon/astrbotctl/internal/protocol"
)

// ClearScreen clears the terminal and moves the cursor home.
const ClearScreen = "\x1b[2J\x1b[H"

type State int

const (
	StateConnecting State = iota
	StateStreaming
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// OpenFunc opens the event stream. An error here means the stream never
// started.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// PayloadError is an event whose data is not a valid log record.
type PayloadError struct {
	Data string
	Err  error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("malformed live log event %q: %v", e.Data, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// Consumer drains one live log stream into an output writer.
//
// A stream that breaks after it started is reported on the logger and
// ends the tail without an error. An event whose payload does not decode
// fails Run. Both leave the consumer in StateClosed; Err keeps whatever
// ended the stream.
type Consumer struct {
	out    io.Writer
	flush  bool
	logger *slog.Logger

	state State
	err   error
}

// NewConsumer writes each event's data to out. With flush set the screen
// is cleared before every line so only the newest message stays visible.
func NewConsumer(out io.Writer, flush bool, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{out: out, flush: flush, logger: logger, state: StateConnecting}
}

func (c *Consumer) State() State {
	return c.state
}

func (c *Consumer) Err() error {
	return c.err
}

func (c *Consumer) Run(ctx context.Context, open OpenFunc) error {
	c.state = StateConnecting
	body, err := open(ctx)
	if err != nil {
		c.fail(err)
		c.state = StateClosed
		return err
	}
	defer body.Close()

	c.state = StateStreaming
	c.logger.Info("live log stream started")

	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	scanner := NewScanner(body)
	for scanner.Next() {
		ev := scanner.Event()
		if strings.TrimSpace(ev.Data) == "" {
			continue
		}
		var msg protocol.LiveLogEvent
		if err := json.Unmarshal([]byte(ev.Data), &msg); err != nil {
			perr := &PayloadError{Data: ev.Data, Err: err}
			c.fail(perr)
			c.state = StateClosed
			return perr
		}
		if err := c.render(msg); err != nil {
			c.fail(err)
			c.state = StateClosed
			return err
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.fail(err)
		c.logger.Error("live log stream interrupted", "error", err)
	}
	c.state = StateClosed
	return nil
}

func (c *Consumer) render(msg protocol.LiveLogEvent) error {
	if c.flush {
		if _, err := io.WriteString(c.out, ClearScreen); err != nil {
			return fmt.Errorf("write live log: %w", err)
		}
	}
	if _, err := io.WriteString(c.out, msg.Data+"\n"); err != nil {
		return fmt.Errorf("write live log: %w", err)
	}
	return nil
}

func (c *Consumer) fail(err error) {
	c.state = StateError
	c.err = err
}
