package transport

import (
	"testing"

	"github.com/electromart/chatlink/chat"
)

func TestDecodeFrame_Reply(t *testing.T) {
	raw := []byte(`{"event":"response","data":{"message":"it shipped","agent":"logistics","message_id":"m1","metadata":{"intent":"order_status"}}}`)

	ev, err := decodeFrame(raw)
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}

	reply, ok := ev.(chat.Reply)
	if !ok {
		t.Fatalf("expected chat.Reply, got %T", ev)
	}
	if reply.Message != "it shipped" {
		t.Errorf("Message mismatch: got %q", reply.Message)
	}
	if reply.Agent != "logistics" {
		t.Errorf("Agent mismatch: got %q", reply.Agent)
	}
	if reply.MessageID != "m1" {
		t.Errorf("MessageID mismatch: got %q", reply.MessageID)
	}
	if reply.Metadata["intent"] != "order_status" {
		t.Errorf("Metadata mismatch: got %v", reply.Metadata)
	}
}

func TestDecodeFrame_ConnectionAndCancellation(t *testing.T) {
	ev, err := decodeFrame([]byte(`{"event":"connected","data":{"session_id":"s1","restored":true}}`))
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}
	conn, ok := ev.(chat.ConnectedPayload)
	if !ok || conn.SessionID != "s1" || !conn.Restored {
		t.Fatalf("unexpected connected payload: %#v", ev)
	}

	ev, err = decodeFrame([]byte(`{"event":"all_messages_cancelled","data":{"cancelled_count":3,"reason":"interruption_detected"}}`))
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}
	all, ok := ev.(chat.AllCancelled)
	if !ok || all.CancelledCount != 3 {
		t.Fatalf("unexpected all-cancelled payload: %#v", ev)
	}
}

func TestDecodeFrame_UnknownEventSkipped(t *testing.T) {
	ev, err := decodeFrame([]byte(`{"event":"sentiment_update","data":{"polarity":0.4}}`))
	if err != nil {
		t.Fatalf("unknown event should not error: %v", err)
	}
	if ev != nil {
		t.Fatalf("unknown event should decode to nil, got %#v", ev)
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	if _, err := decodeFrame([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestEncodeFrame_RoundTrip(t *testing.T) {
	b, err := encodeFrame(chat.EventMessage, chat.Submit{Message: "hello", Type: "text"})
	if err != nil {
		t.Fatalf("encodeFrame failed: %v", err)
	}

	// The envelope must carry the event name; payload shape is checked
	// by the backend integration test.
	ev, err := decodeFrame(b)
	if err != nil {
		t.Fatalf("decode of own frame failed: %v", err)
	}
	// Outbound "message" is not an inbound event: decode skips it.
	if ev != nil {
		t.Fatalf("outbound event should not decode inbound, got %#v", ev)
	}
}
