package api

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/prbarcelon/astrbotctl/internal/protocol"
)

const maxErrorSnippet = 256

// Envelope is the service's uniform {status, message, data} wrapper with
// message already normalized to plain text.
type Envelope[T any] struct {
	Status  string
	Message string
	Data    *T
}

type wireEnvelope struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// DecodeEnvelope classifies a response. Non-2xx statuses fail with
// *TransportError before any parsing; a non-ok status field fails with
// *APIError; a body that is not an envelope fails with *DecodeError. Data
// is nil when the payload is absent or JSON null.
func DecodeEnvelope[T any](statusCode int, body []byte) (*Envelope[T], error) {
	if statusCode < 200 || statusCode > 299 {
		return nil, &TransportError{StatusCode: statusCode, Body: truncateRunes(string(body), maxErrorSnippet)}
	}

	var wire wireEnvelope
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &DecodeError{What: "response envelope", Err: err}
	}

	env := &Envelope[T]{
		Status:  wire.Status,
		Message: NormalizeMessage(wire.Message),
	}
	if !env.OK() {
		return env, &APIError{Message: env.Message}
	}

	if isAbsent(wire.Data) {
		return env, nil
	}
	var data T
	if err := json.Unmarshal(wire.Data, &data); err != nil {
		return env, &DecodeError{What: "response data", Err: err}
	}
	env.Data = &data
	return env, nil
}

func (e *Envelope[T]) OK() bool {
	return strings.EqualFold(e.Status, "ok")
}

// NormalizeMessage turns the message field into plain text: null becomes
// "", strings are used verbatim and any other JSON value becomes its
// compact JSON text.
func NormalizeMessage(raw json.RawMessage) string {
	if isAbsent(raw) {
		return ""
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return protocol.CompactJSON(trimmed)
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func truncateRunes(s string, limit int) string {
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
