package transport

import (
	"encoding/json"
	"fmt"

	"github.com/electromart/chatlink/chat"
)

// frame is the envelope for every message on the socket.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// encodeFrame wraps an outbound payload in the event envelope.
func encodeFrame(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		raw = b
	}
	b, err := json.Marshal(frame{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", event, err)
	}
	return b, nil
}

// decodeFrame parses an inbound frame into its typed event. Unknown
// events decode to nil so newer backend notices are skipped rather than
// killing the connection.
func decodeFrame(b []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}

	unmarshal := func(v any) (Event, error) {
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, v); err != nil {
				return nil, fmt.Errorf("unmarshal %s payload: %w", f.Event, err)
			}
		}
		return deref(v), nil
	}

	switch f.Event {
	case chat.EventConnected:
		return unmarshal(&chat.ConnectedPayload{})
	case chat.EventQueued:
		return unmarshal(&chat.QueuedAck{})
	case chat.EventTyping:
		return unmarshal(&chat.TypingSignal{})
	case chat.EventResponse:
		return unmarshal(&chat.Reply{})
	case chat.EventAgentSwitch:
		return unmarshal(&chat.AgentSwitch{})
	case chat.EventHumanHandoff:
		return unmarshal(&chat.HumanHandoff{})
	case chat.EventError:
		return unmarshal(&chat.ServerError{})
	case chat.EventCancelled:
		return unmarshal(&chat.Cancelled{})
	case chat.EventAllCancelled:
		return unmarshal(&chat.AllCancelled{})
	case chat.EventDuplicate:
		return unmarshal(&chat.Duplicate{})
	case chat.EventPong:
		return unmarshal(&chat.Pong{})
	default:
		return nil, nil
	}
}

// deref unwraps the pointer so events are delivered by value.
func deref(v any) Event {
	switch p := v.(type) {
	case *chat.ConnectedPayload:
		return *p
	case *chat.QueuedAck:
		return *p
	case *chat.TypingSignal:
		return *p
	case *chat.Reply:
		return *p
	case *chat.AgentSwitch:
		return *p
	case *chat.HumanHandoff:
		return *p
	case *chat.ServerError:
		return *p
	case *chat.Cancelled:
		return *p
	case *chat.AllCancelled:
		return *p
	case *chat.Duplicate:
		return *p
	case *chat.Pong:
		return *p
	default:
		return v
	}
}
