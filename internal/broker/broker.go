package broker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"mentorchat/pkg/interfaces"
	"mentorchat/pkg/types"
)

// Stats is a point-in-time view of broker load.
type Stats struct {
	Channels int `json:"channels"`
	Peers    int `json:"peers"`
}

// Broker owns the live channels and routes published messages. Chat
// publishes persist through the store before fan-out; community publishes
// fan out without persistence. Each channel serializes its own publishes,
// channels never block each other.
type Broker struct {
	store            interfaces.MessageStore
	directory        interfaces.ConnectionDirectory
	limiter          *RateLimiter
	maxContentLength int

	mu       sync.RWMutex
	channels map[string]*channel
	closed   bool

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New creates a broker. rateLimitPerMinute of zero disables rate limiting.
func New(store interfaces.MessageStore, directory interfaces.ConnectionDirectory, maxContentLength, rateLimitPerMinute int) *Broker {
	b := &Broker{
		store:            store,
		directory:        directory,
		limiter:          NewRateLimiter(rateLimitPerMinute),
		maxContentLength: maxContentLength,
		channels:         make(map[string]*channel),
		shutdown:         make(chan struct{}),
	}

	b.wg.Add(1)
	go b.cleanupLoop()

	return b
}

func chatKey(conversationID string) string   { return "chat:" + conversationID }
func communityKey(communityID string) string { return "community:" + communityID }

// AuthorizeChat verifies userID may join the conversation behind
// connectionID and returns the conversation ID. Called before the WebSocket
// upgrade so failures surface as proper HTTP status codes.
func (b *Broker) AuthorizeChat(ctx context.Context, connectionID, userID string) (string, error) {
	return b.directory.ResolveConversation(ctx, connectionID, userID)
}

// AuthorizeCommunity verifies userID is a member of the community and
// returns their role.
func (b *Broker) AuthorizeCommunity(ctx context.Context, communityID, userID string) (string, error) {
	return b.directory.MemberRole(ctx, communityID, userID)
}

// JoinChat attaches a peer to a conversation channel. A newer attachment for
// the same user supersedes the previous one: the old peer is closed before
// the new one is visible to fan-out, so a user never receives a message
// twice across two sockets.
func (b *Broker) JoinChat(conversationID, userID string, peer interfaces.Peer) (*Attachment, error) {
	return b.join(chatKey(conversationID), kindChat, conversationID, userID, "", peer)
}

// JoinCommunity attaches a peer to a community channel and announces the
// arrival to every attendee, the new peer included.
func (b *Broker) JoinCommunity(communityID, userID, role string, peer interfaces.Peer) (*Attachment, error) {
	att, err := b.join(communityKey(communityID), kindCommunity, communityID, userID, role, peer)
	if err != nil {
		return nil, err
	}

	b.announce(att.channel, "participant_joined", fmt.Sprintf("%s joined the discussion", userID))
	return att, nil
}

func (b *Broker) join(key string, kind channelKind, targetID, userID, role string, peer interfaces.Peer) (*Attachment, error) {
	for {
		ch, err := b.getOrCreate(key, kind, targetID)
		if err != nil {
			return nil, err
		}

		att := &Attachment{userID: userID, role: role, peer: peer, channel: ch}
		prior, ok := ch.attach(att)
		if !ok {
			// Channel emptied out and was removed between lookup and
			// attach; retry against a fresh one.
			continue
		}

		if prior != nil {
			log.Printf("Superseding connection for user %s on %s", userID, key)
			if err := prior.peer.Close(); err != nil {
				log.Printf("Failed to close superseded peer for user %s: %v", userID, err)
			}
		}

		return att, nil
	}
}

func (b *Broker) getOrCreate(key string, kind channelKind, targetID string) (*channel, error) {
	b.mu.RLock()
	ch := b.channels[key]
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return nil, ErrBrokerClosed
	}
	if ch != nil {
		return ch, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}
	if ch = b.channels[key]; ch == nil {
		ch = newChannel(key, kind, targetID)
		b.channels[key] = ch
	}
	return ch, nil
}

// Publish sends content into the attachment's channel. Chat content is
// appended to the store first; fan-out happens only after a successful
// append and excludes the sender. Community content is validated locally and
// delivered to every attendee including the sender.
func (b *Broker) Publish(ctx context.Context, att *Attachment, content string) error {
	if !b.limiter.Allow(att.userID) {
		return fmt.Errorf("%w: %w", types.ErrChannelUnavailable, ErrRateLimited)
	}

	ch := att.channel
	ch.publishMu.Lock()
	defer ch.publishMu.Unlock()

	if !ch.contains(att) {
		return ErrNotAttached
	}

	switch ch.kind {
	case kindChat:
		return b.publishChat(ctx, ch, att, content)
	default:
		return b.publishCommunity(ch, att, content)
	}
}

func (b *Broker) publishChat(ctx context.Context, ch *channel, att *Attachment, content string) error {
	msg, err := b.store.AppendMessage(ctx, ch.targetID, att.userID, content)
	if err != nil {
		return err
	}

	event := types.NewChatEvent(msg)
	for _, recipient := range ch.snapshot() {
		if recipient.userID == att.userID {
			continue
		}
		if !recipient.peer.TrySend(event) {
			log.Printf("Dropped chat message %d for slow peer %s on %s", msg.ID, recipient.userID, ch.key)
		}
	}
	return nil
}

func (b *Broker) publishCommunity(ch *channel, att *Attachment, content string) error {
	if err := types.ValidateContent(content, b.maxContentLength); err != nil {
		return err
	}

	event := &types.CommunityEvent{
		Type:        types.EnvelopeCommunityMessage,
		CommunityID: ch.targetID,
		Content:     content,
		SenderID:    att.userID,
		SenderRole:  att.role,
		Timestamp:   time.Now().UTC(),
	}
	for _, recipient := range ch.snapshot() {
		if !recipient.peer.TrySend(event) {
			log.Printf("Dropped community message for slow peer %s on %s", recipient.userID, ch.key)
		}
	}
	return nil
}

// Leave detaches an attachment. A superseded attachment leaving later is a
// no-op. Empty channels are removed; a community departure is announced to
// the remaining attendees.
func (b *Broker) Leave(att *Attachment) {
	ch := att.channel
	removed, empty := ch.detach(att)
	if !removed {
		return
	}

	if empty {
		b.mu.Lock()
		if b.channels[ch.key] == ch {
			delete(b.channels, ch.key)
		}
		b.mu.Unlock()
		return
	}

	if ch.kind == kindCommunity {
		b.announce(ch, "participant_left", fmt.Sprintf("%s left the discussion", att.userID))
	}
}

// announce fans a presence event with the current attendee list out to every
// attached peer.
func (b *Broker) announce(ch *channel, event, message string) {
	sysEvent := types.NewSystemEvent(event, message)
	sysEvent.Attendees = ch.attendees()

	for _, recipient := range ch.snapshot() {
		if !recipient.peer.TrySend(sysEvent) {
			log.Printf("Dropped %s event for slow peer %s on %s", event, recipient.userID, ch.key)
		}
	}
}

// Attendees returns the users currently attached to a community channel.
func (b *Broker) Attendees(communityID string) []string {
	b.mu.RLock()
	ch := b.channels[communityKey(communityID)]
	b.mu.RUnlock()

	if ch == nil {
		return []string{}
	}
	return ch.attendees()
}

// Stats reports current channel and peer counts.
func (b *Broker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{Channels: len(b.channels)}
	for _, ch := range b.channels {
		ch.mu.RLock()
		stats.Peers += len(ch.attachments)
		ch.mu.RUnlock()
	}
	return stats
}

// Close shuts the broker down and closes every attached peer.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	channels := make([]*channel, 0, len(b.channels))
	for _, ch := range b.channels {
		channels = append(channels, ch)
	}
	b.channels = make(map[string]*channel)
	b.mu.Unlock()

	close(b.shutdown)
	b.wg.Wait()

	for _, ch := range channels {
		for _, att := range ch.snapshot() {
			if err := att.peer.Close(); err != nil {
				log.Printf("Failed to close peer for user %s during shutdown: %v", att.userID, err)
			}
		}
	}

	log.Println("Broker stopped")
}

func (b *Broker) cleanupLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.limiter.Cleanup()
		case <-b.shutdown:
			return
		}
	}
}
