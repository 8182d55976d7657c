package types

import (
	"time"
)

// Connection is a durable pairing between two participants. The conversation
// is created lazily on first resolution, so ConversationID stays nil until a
// participant sends or fetches history for the first time.
type Connection struct {
	ID             string    `json:"connectionId"`
	ConversationID *string   `json:"conversationId"`
	ParticipantA   string    `json:"participantA"`
	ParticipantB   string    `json:"participantB"`
	CreatedAt      time.Time `json:"acceptedAt"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Connection) HasParticipant(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Counterpart returns the other participant for userID. Callers are expected
// to have checked HasParticipant; an unknown user gets the empty string.
func (c *Connection) Counterpart(userID string) string {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	}
	return ""
}

// ConnectionSummary is a connection annotated for one requesting user: the
// counterpart is resolved and the most recent message (if any) is attached
// for preview rendering.
type ConnectionSummary struct {
	ConnectionID   string    `json:"connectionId"`
	ConversationID *string   `json:"conversationId"`
	AcceptedAt     time.Time `json:"acceptedAt"`
	Counterpart    string    `json:"counterpart"`
	LastMessage    *Message  `json:"lastMessage,omitempty"`
}

// Message belongs to exactly one conversation. IDs are dense and
// monotonically increasing within a conversation and double as the
// pagination cursor; timestamp ordering always agrees with ID ordering.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"-"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
}

// MessagePage is one backward page of a conversation: messages in descending
// ID order, NextCursor pointing at the oldest ID returned. NextCursor is nil
// when no older messages remain.
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	NextCursor *int64     `json:"nextCursor"`
}

// Community is a discussion channel with arbitrary membership. Community
// messages are fan-out only and never persisted.
type Community struct {
	ID   string `json:"communityId"`
	Name string `json:"name"`
}
