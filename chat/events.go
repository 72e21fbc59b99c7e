package chat

// Wire event names, matching the backend's socket protocol.
const (
	EventConnected     = "connected"
	EventQueued        = "message_queued"
	EventTyping        = "typing"
	EventResponse      = "response"
	EventAgentSwitch   = "agent_switch"
	EventHumanHandoff  = "human_handoff"
	EventError         = "error"
	EventCancelled     = "message_cancelled"
	EventAllCancelled  = "all_messages_cancelled"
	EventDuplicate     = "message_duplicate"
	EventPong          = "pong"
	EventMessage       = "message"
	EventCancelMessage = "cancel_message"
	EventCancelAll     = "cancel_all_messages"
	EventPing          = "ping"
)

// ConnectedPayload confirms a connection and carries the session ID the
// client must present on subsequent reconnects.
type ConnectedPayload struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message,omitempty"`
	Restored  bool   `json:"restored,omitempty"`
}

// QueuedAck acknowledges that a submitted message entered the backend's
// processing queue.
type QueuedAck struct {
	MessageID     string `json:"message_id"`
	QueuePosition int    `json:"queue_position"`
	Status        string `json:"status,omitempty"`
}

// TypingSignal reports that an agent started or stopped working on a
// message. MessageID may be empty for a global indicator.
type TypingSignal struct {
	IsTyping  bool   `json:"is_typing"`
	Agent     string `json:"agent,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Reply is an assistant answer, correlated to the triggering user message
// by MessageID when the backend knows it.
type Reply struct {
	Message   string         `json:"message"`
	Agent     string         `json:"agent"`
	Timestamp string         `json:"timestamp,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AgentSwitch announces that a different specialized responder now owns
// the conversation.
type AgentSwitch struct {
	FromAgent string `json:"from_agent"`
	ToAgent   string `json:"to_agent"`
	Reason    string `json:"reason,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// HumanHandoff announces escalation to a human operator.
type HumanHandoff struct {
	HandoffID         string `json:"handoff_id"`
	QueuePosition     int    `json:"queue_position"`
	EstimatedWaitTime string `json:"estimated_wait_time,omitempty"`
	Reason            string `json:"reason,omitempty"`
	Priority          string `json:"priority,omitempty"`
	Message           string `json:"message,omitempty"`
	MessageID         string `json:"message_id,omitempty"`
}

// ServerError is a backend-reported error, optionally tied to a message.
type ServerError struct {
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
}

// Cancelled confirms cancellation of a single message.
type Cancelled struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status,omitempty"`
}

// AllCancelled confirms a bulk cancellation.
type AllCancelled struct {
	CancelledCount int    `json:"cancelled_count"`
	Reason         string `json:"reason,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Duplicate reports that the backend dropped a repeat submission.
type Duplicate struct {
	Message         string `json:"message,omitempty"`
	Reason          string `json:"reason,omitempty"`
	OriginalMessage string `json:"original_message,omitempty"`
}

// Pong answers a keep-alive ping.
type Pong struct {
	Timestamp string `json:"timestamp,omitempty"`
}

// Submit is the outbound user message event. MessageID is generated
// client-side so backend acks and replies can be correlated to the
// local pending entry.
type Submit struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	MessageID string `json:"message_id,omitempty"`
}

// CancelRequest asks the backend to cancel one in-flight message.
type CancelRequest struct {
	MessageID string `json:"message_id"`
}
