package chatlink

import (
	"context"
	"sync"

	"github.com/electromart/chatlink/chat"
	"github.com/electromart/chatlink/pkg/transport"
)

// FakeTransport is an in-memory Transport for tests: the test script
// drives inbound events with Deliver and inspects what the engine sent
// outbound.
type FakeTransport struct {
	mu        sync.Mutex
	events    chan transport.Event
	state     transport.State
	attempt   int
	sessionID string
	closed    bool

	submitted  []chat.Submit
	cancelled  []string
	cancelAlls int
	failSubmit error
}

var _ transport.Transport = (*FakeTransport)(nil)

// NewFakeTransport creates a disconnected fake. Deliver a
// transport.Connected event to bring it up.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		events: make(chan transport.Event, 64),
	}
}

// Deliver feeds an inbound event to the engine, updating the fake's
// connection state the way the websocket transport would.
func (f *FakeTransport) Deliver(ev transport.Event) {
	f.mu.Lock()
	switch e := ev.(type) {
	case transport.Connected:
		f.state = transport.StateConnected
		f.attempt = 0
		f.sessionID = e.SessionID
	case transport.Disconnected:
		if e.Retrying {
			f.state = transport.StateReconnecting
		} else {
			f.state = transport.StateDisconnected
		}
	case transport.Reconnecting:
		f.state = transport.StateReconnecting
		f.attempt = e.Attempt
	case transport.Exhausted:
		f.state = transport.StateDisconnected
		f.attempt = 0
	}
	f.mu.Unlock()
	f.events <- ev
}

// FailNextSubmits makes Submit return err until reset with nil.
func (f *FakeTransport) FailNextSubmits(err error) {
	f.mu.Lock()
	f.failSubmit = err
	f.mu.Unlock()
}

// Submitted returns a copy of all outbound message frames.
func (f *FakeTransport) Submitted() []chat.Submit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Submit(nil), f.submitted...)
}

// Cancelled returns the message IDs the engine asked to cancel.
func (f *FakeTransport) Cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

// CancelAllCount returns how many bulk cancellations were requested.
func (f *FakeTransport) CancelAllCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelAlls
}

func (f *FakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrClosed
	}
	return nil
}

func (f *FakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.state = transport.StateDisconnected
	f.sessionID = ""
	close(f.events)
	return nil
}

func (f *FakeTransport) Submit(messageID, content, msgType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubmit != nil {
		return f.failSubmit
	}
	if f.state != transport.StateConnected {
		return transport.ErrNotConnected
	}
	f.submitted = append(f.submitted, chat.Submit{
		Message:   content,
		Type:      msgType,
		MessageID: messageID,
	})
	return nil
}

func (f *FakeTransport) Cancel(messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != transport.StateConnected {
		return transport.ErrNotConnected
	}
	f.cancelled = append(f.cancelled, messageID)
	return nil
}

func (f *FakeTransport) CancelAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != transport.StateConnected {
		return transport.ErrNotConnected
	}
	f.cancelAlls++
	return nil
}

func (f *FakeTransport) Typing(isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != transport.StateConnected {
		return transport.ErrNotConnected
	}
	return nil
}

func (f *FakeTransport) Events() <-chan transport.Event { return f.events }

func (f *FakeTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FakeTransport) Attempt() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempt
}

func (f *FakeTransport) SessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionID
}
