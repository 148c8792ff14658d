package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rhuss/weft/pkg/api"
)

// Outbound frame event names.
const (
	// EventData carries the payload of a Send or JSON call.
	EventData = "data"

	// EventError carries a rejection produced before the pipeline ran.
	EventError = "error"
)

var (
	// ErrMissingEvent is returned for inbound frames without an event name.
	ErrMissingEvent = errors.New("frame has no event name")

	// ErrReservedEvent is returned for inbound frames naming connect or
	// disconnect, which only the transport may synthesize.
	ErrReservedEvent = errors.New("event name is reserved")
)

// Frame is one inbound message: {"event": "...", "data": ..., "id": "..."}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    string          `json:"id,omitempty"`
}

// outFrame is one outbound message.
type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
	ID    string `json:"id,omitempty"`
}

// DecodeFrame parses and validates an inbound frame. When the frame is
// well-formed JSON but invalid, the returned Frame still carries its ID so
// the rejection can be correlated by the client.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	switch f.Event {
	case "":
		return f, ErrMissingEvent
	case api.EventConnect, api.EventDisconnect:
		return f, fmt.Errorf("%w: %q", ErrReservedEvent, f.Event)
	}
	return f, nil
}

// Payload decodes the frame data into a generic value: objects become
// map[string]any, arrays []any, and so on. Absent or null data yields nil.
func (f Frame) Payload() (any, error) {
	if len(f.Data) == 0 || bytes.Equal(f.Data, []byte("null")) {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(f.Data, &v); err != nil {
		return nil, fmt.Errorf("decoding frame data: %w", err)
	}
	return v, nil
}

// tagStatus adds a "status" field holding status to payloads that encode
// as a JSON object without one. A status already present and not null is
// left alone, even 0 or false. Non-object payloads and a zero response
// status are left alone too. data itself is never modified.
func tagStatus(data any, status int) any {
	if status == 0 || data == nil {
		return data
	}

	if m, ok := data.(map[string]any); ok {
		if v, has := m["status"]; has && v != nil {
			return data
		}
		tagged := make(map[string]any, len(m)+1)
		for k, v := range m {
			tagged[k] = v
		}
		tagged["status"] = status
		return tagged
	}

	raw, err := json.Marshal(data)
	if err != nil || len(raw) == 0 || raw[0] != '{' {
		return data
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return data
	}
	if v, has := fields["status"]; has && !bytes.Equal(v, []byte("null")) {
		return data
	}
	fields["status"] = json.RawMessage(fmt.Sprintf("%d", status))
	return fields
}
