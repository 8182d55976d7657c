package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestIsValidUserID(t *testing.T) {
	cases := []struct {
		name   string
		userID string
		valid  bool
	}{
		{"simple", "alice", true},
		{"with digits", "user123", true},
		{"with underscore and dash", "mentor_a-1", true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", 51), false},
		{"max length", strings.Repeat("a", 50), true},
		{"spaces", "alice smith", false},
		{"special characters", "alice@example", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidUserID(tc.userID); got != tc.valid {
				t.Errorf("IsValidUserID(%q) = %v, want %v", tc.userID, got, tc.valid)
			}
		})
	}
}

func TestValidateContent(t *testing.T) {
	if err := ValidateContent("hello", 100); err != nil {
		t.Errorf("valid content rejected: %v", err)
	}
	if err := ValidateContent("", 100); err != ErrEmptyContent {
		t.Errorf("empty content: got %v, want ErrEmptyContent", err)
	}
	if err := ValidateContent("   ", 100); err != ErrEmptyContent {
		t.Errorf("whitespace content: got %v, want ErrEmptyContent", err)
	}
	if err := ValidateContent(strings.Repeat("x", 101), 100); err != ErrContentTooLong {
		t.Errorf("oversized content: got %v, want ErrContentTooLong", err)
	}
	if err := ValidateContent(strings.Repeat("x", 100), 100); err != nil {
		t.Errorf("content at limit rejected: %v", err)
	}
}

func TestConnectionParticipants(t *testing.T) {
	conn := &Connection{ID: "c1", ParticipantA: "alice", ParticipantB: "bob"}

	if !conn.HasParticipant("alice") || !conn.HasParticipant("bob") {
		t.Error("participants not recognized")
	}
	if conn.HasParticipant("carol") {
		t.Error("non-participant recognized")
	}

	if got := conn.Counterpart("alice"); got != "bob" {
		t.Errorf("Counterpart(alice) = %q, want bob", got)
	}
	if got := conn.Counterpart("bob"); got != "alice" {
		t.Errorf("Counterpart(bob) = %q, want alice", got)
	}
	if got := conn.Counterpart("carol"); got != "" {
		t.Errorf("Counterpart(carol) = %q, want empty", got)
	}
}

func TestDecodeInbound(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"content":"hello"}`))
	if err != nil {
		t.Fatalf("DecodeInbound failed: %v", err)
	}
	if in.Content != "hello" {
		t.Errorf("content = %q, want hello", in.Content)
	}

	if _, err := DecodeInbound([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed frame")
	}
}

func TestNewChatEvent(t *testing.T) {
	ts := time.Now().UTC()
	msg := &Message{ID: 7, ConversationID: "conv1", SenderID: "alice", Content: "hi", Timestamp: ts}

	event := NewChatEvent(msg)
	if event.Type != EnvelopeChatMessage {
		t.Errorf("type = %q, want %q", event.Type, EnvelopeChatMessage)
	}
	if event.MessageID != 7 || event.SenderID != "alice" || event.Content != "hi" {
		t.Errorf("event fields not copied: %+v", event)
	}
	if !event.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", event.Timestamp, ts)
	}

	// The conversation ID must never leak onto the wire.
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), "conv1") {
		t.Errorf("conversation ID leaked into wire payload: %s", data)
	}
}

func TestNewSystemEvent(t *testing.T) {
	event := NewSystemEvent("participant_joined", "alice joined")
	if event.Type != EnvelopeSystem {
		t.Errorf("type = %q, want %q", event.Type, EnvelopeSystem)
	}
	if event.Event != "participant_joined" || event.Message != "alice joined" {
		t.Errorf("event fields wrong: %+v", event)
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestMessageWireFormat(t *testing.T) {
	msg := &Message{ID: 1, ConversationID: "secret", SenderID: "alice", Content: "hi", Timestamp: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := decoded["conversationId"]; ok {
		t.Error("conversation ID should not be serialized")
	}
	if decoded["senderId"] != "alice" {
		t.Errorf("senderId = %v, want alice", decoded["senderId"])
	}
	if decoded["message"] != "hi" {
		t.Errorf("message = %v, want hi", decoded["message"])
	}
}
