package client

import (
	"sync"

	"mentorchat/pkg/types"
)

// MessageView is the client-side picture of one conversation: messages in
// ascending ID order plus the cursor for loading older history. Live
// delivery appends at the tail, history loading prepends at the head.
type MessageView struct {
	mu         sync.RWMutex
	messages   []*types.Message
	nextCursor *int64
	hasEarlier bool
}

func NewMessageView() *MessageView {
	return &MessageView{messages: []*types.Message{}}
}

// SetInitial replaces the view with the first history page. The page arrives
// newest first and is reversed into display order.
func (v *MessageView) SetInitial(page *types.MessagePage) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.messages = reversed(page.Messages)
	v.nextCursor = page.NextCursor
	v.hasEarlier = page.NextCursor != nil
}

// AppendLive adds a message delivered over the socket. Messages at or below
// the current tail ID are duplicates from reconnect overlap and are
// discarded, so replay is idempotent.
func (v *MessageView) AppendLive(m *types.Message) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if n := len(v.messages); n > 0 && m.ID <= v.messages[n-1].ID {
		return false
	}
	v.messages = append(v.messages, m)
	return true
}

// PrependEarlier adds an older history page in front of the current window
// and advances the cursor.
func (v *MessageView) PrependEarlier(page *types.MessagePage) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.messages = append(reversed(page.Messages), v.messages...)
	v.nextCursor = page.NextCursor
	v.hasEarlier = page.NextCursor != nil
}

// Snapshot returns a copy of the messages in ascending ID order.
func (v *MessageView) Snapshot() []*types.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]*types.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// LastID returns the newest message ID in the view, or zero when empty.
func (v *MessageView) LastID() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(v.messages) == 0 {
		return 0
	}
	return v.messages[len(v.messages)-1].ID
}

// NextCursor returns the cursor for the next older page, nil when the full
// history is loaded.
func (v *MessageView) NextCursor() *int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.nextCursor
}

// HasEarlier reports whether older messages remain on the server.
func (v *MessageView) HasEarlier() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.hasEarlier
}

func reversed(messages []*types.Message) []*types.Message {
	out := make([]*types.Message, len(messages))
	for i, m := range messages {
		out[len(messages)-1-i] = m
	}
	return out
}
