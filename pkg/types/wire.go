package types

import (
	"encoding/json"
	"time"
)

// Envelope type tags for everything crossing a WebSocket. Payloads are
// decoded into the matching struct at the channel boundary; nothing dynamic
// is handed to business logic.
const (
	EnvelopeChatMessage      = "chat.message"
	EnvelopeCommunityMessage = "community.message"
	EnvelopeSystem           = "system"
)

// Inbound is the only client-to-server payload: the text to publish on the
// channel the socket is attached to.
type Inbound struct {
	Content string `json:"content"`
}

// DecodeInbound parses a client frame. Content validation happens later on
// the publish path where the configured maximum is known.
func DecodeInbound(data []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// ChatEvent is the delivery event fanned out to the other participant after
// a chat message has been durably appended.
type ChatEvent struct {
	Type      string    `json:"type"`
	MessageID int64     `json:"messageId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChatEvent builds the delivery event for an appended message.
func NewChatEvent(m *Message) *ChatEvent {
	return &ChatEvent{
		Type:      EnvelopeChatMessage,
		MessageID: m.ID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}

// CommunityEvent is the fan-out event for discussion channels. It carries a
// server-stamped timestamp; there is no message ID because community
// messages are never persisted.
type CommunityEvent struct {
	Type        string    `json:"type"`
	CommunityID string    `json:"communityId"`
	Content     string    `json:"content"`
	SenderID    string    `json:"senderId"`
	SenderRole  string    `json:"senderRole"`
	Timestamp   time.Time `json:"timestamp"`
}

// SystemEvent reports membership and status changes, and delivery errors
// back to the offending client only.
type SystemEvent struct {
	Type      string    `json:"type"`
	Event     string    `json:"event,omitempty"`
	Message   string    `json:"message"`
	Attendees []string  `json:"attendees,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSystemEvent stamps a system envelope with the server clock.
func NewSystemEvent(event, message string) *SystemEvent {
	return &SystemEvent{
		Type:      EnvelopeSystem,
		Event:     event,
		Message:   message,
		Timestamp: time.Now(),
	}
}
