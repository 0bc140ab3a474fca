package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
)

// LogRecordKind tells which shape a log-history entry had on the wire.
type LogRecordKind int

const (
	LogRecordText LogRecordKind = iota
	LogRecordObject
)

// LogRecord is one log-history entry. The backend sends either a bare
// string or an arbitrary JSON value per entry; both render to one line.
type LogRecord struct {
	Kind LogRecordKind
	Text string
	Raw  json.RawMessage
}

func TextRecord(text string) LogRecord {
	return LogRecord{Kind: LogRecordText, Text: text}
}

func ObjectRecord(raw json.RawMessage) LogRecord {
	return LogRecord{Kind: LogRecordObject, Raw: raw}
}

// RenderLine returns the string verbatim for text records and the
// compact JSON text for everything else.
func (r LogRecord) RenderLine() string {
	if r.Kind == LogRecordText {
		return r.Text
	}
	return CompactJSON(r.Raw)
}

func (r *LogRecord) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = ObjectRecord(json.RawMessage("null"))
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*r = TextRecord(text)
		return nil
	}
	if !json.Valid(data) {
		return errors.New("log record is not valid json")
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	*r = ObjectRecord(raw)
	return nil
}

func (r LogRecord) MarshalJSON() ([]byte, error) {
	if r.Kind == LogRecordText {
		return json.Marshal(r.Text)
	}
	if len(r.Raw) == 0 {
		return []byte("null"), nil
	}
	return r.Raw, nil
}

// CompactJSON strips insignificant whitespace from raw. Invalid input is
// returned as-is.
func CompactJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
