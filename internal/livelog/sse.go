package livelog

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Event is one server-sent event.
type Event struct {
	// Type is the "event:" field, empty for the default message type.
	Type string
	ID   string
	// Data joins multiple "data:" lines with "\n".
	Data string
}

// Scanner reads server-sent events from a stream. Blank lines end an
// event; comment lines (leading ':') and unknown fields are skipped. A
// trailing event cut off before its blank line is discarded.
//
//	scanner := NewScanner(body)
//	for scanner.Next() {
//	    ev := scanner.Event()
//	}
//	if err := scanner.Err(); err != nil { ... }
type Scanner struct {
	reader  *bufio.Reader
	current Event
	err     error
	done    bool
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next reads the next event. It returns false at end of stream or on a
// read error; Err distinguishes the two.
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}
	s.current = Event{}

	var data []string
	var pending Event
	hasData := false

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.done = true
			if !errors.Is(err, io.EOF) {
				s.err = err
				return false
			}
			// An event without its closing blank line is incomplete.
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if hasData {
				pending.Data = strings.Join(data, "\n")
				s.current = pending
				return true
			}
			pending = Event{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}
		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			pending.Type = value
		case "id":
			pending.ID = value
		}
	}
}

func (s *Scanner) Event() Event {
	return s.current
}

// Err returns the read error that stopped the scanner, or nil after a
// clean end of stream.
func (s *Scanner) Err() error {
	return s.err
}
