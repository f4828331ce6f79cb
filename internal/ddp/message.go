// Package ddp implements a minimal DDP realtime session over WebSocket:
// the connect handshake, remote method calls, stream subscriptions, and
// delivery of changed events.
package ddp

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DDP message types exchanged with the backend.
const (
	msgConnect   = "connect"
	msgConnected = "connected"
	msgFailed    = "failed"
	msgPing      = "ping"
	msgPong      = "pong"
	msgMethod    = "method"
	msgResult    = "result"
	msgSub       = "sub"
	msgReady     = "ready"
	msgNoSub     = "nosub"
	msgChanged   = "changed"
)

// protocolVersion is the DDP protocol version spoken and supported.
const protocolVersion = "1"

// envelope is the wire shape of every DDP message. Fields are a union
// across message types; Msg discriminates.
type envelope struct {
	Msg string `json:"msg"`

	// connect
	Version string   `json:"version,omitempty"`
	Support []string `json:"support,omitempty"`

	// connected / failed
	Session string `json:"session,omitempty"`

	// method / sub / result / nosub / pong
	ID     string `json:"id,omitempty"`
	Method string `json:"method,omitempty"`
	Name   string `json:"name,omitempty"`
	Params []any  `json:"params,omitempty"`

	// result
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`

	// ready
	Subs []string `json:"subs,omitempty"`

	// changed
	Collection string          `json:"collection,omitempty"`
	Fields     json.RawMessage `json:"fields,omitempty"`
}

// changedFields is the fields payload of a changed message.
type changedFields struct {
	EventName string            `json:"eventName"`
	Args      []json.RawMessage `json:"args"`
}

// ChangedEvent is a push event delivered on a subscription stream.
type ChangedEvent struct {
	Collection string
	EventName  string
	Args       []json.RawMessage
}

// RemoteError is an error returned by the backend for a method call or
// subscription. The backend sends the code as either a string (e.g.
// "error-invalid-room") or a bare number (e.g. 403).
type RemoteError struct {
	Code    string `json:"-"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Type    string `json:"errorType,omitempty"`
}

// remoteErrorWire mirrors RemoteError with the raw error code for decoding.
type remoteErrorWire struct {
	Code    json.RawMessage `json:"error"`
	Reason  string          `json:"reason"`
	Message string          `json:"message"`
	Type    string          `json:"errorType"`
}

// UnmarshalJSON normalizes the error code to a string.
func (e *RemoteError) UnmarshalJSON(data []byte) error {
	var w remoteErrorWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Reason = w.Reason
	e.Message = w.Message
	e.Type = w.Type

	if len(w.Code) > 0 {
		var s string
		if err := json.Unmarshal(w.Code, &s); err == nil {
			e.Code = s
		} else {
			var n float64
			if err := json.Unmarshal(w.Code, &n); err == nil {
				e.Code = strconv.FormatFloat(n, 'f', -1, 64)
			}
		}
	}
	return nil
}

func (e *RemoteError) Error() string {
	switch {
	case e.Reason != "":
		return e.Reason
	case e.Message != "":
		return e.Message
	default:
		return fmt.Sprintf("remote error %s", e.Code)
	}
}
