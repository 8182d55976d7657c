package broker

import (
	"sort"
	"sync"

	"mentorchat/pkg/interfaces"
)

type channelKind int

const (
	kindChat channelKind = iota
	kindCommunity
)

// Attachment is one peer's membership in a channel. It is the handle the
// transport layer holds between Join and Leave.
type Attachment struct {
	userID  string
	role    string
	peer    interfaces.Peer
	channel *channel
}

// UserID returns the attached user's ID.
func (a *Attachment) UserID() string { return a.userID }

// channel is one fan-out domain: a conversation or a community. attachments
// is guarded by mu; publishMu serializes publishes so message append and
// fan-out happen as one unit and delivery order matches message order.
type channel struct {
	key      string
	kind     channelKind
	targetID string

	mu          sync.RWMutex
	attachments map[string]*Attachment
	defunct     bool

	publishMu sync.Mutex
}

func newChannel(key string, kind channelKind, targetID string) *channel {
	return &channel{
		key:         key,
		kind:        kind,
		targetID:    targetID,
		attachments: make(map[string]*Attachment),
	}
}

// attach registers a peer, superseding any existing attachment for the same
// user. It returns the superseded attachment (nil if none) so the caller can
// close its peer, and false if the channel is already defunct and the caller
// must retry against a fresh channel.
func (ch *channel) attach(att *Attachment) (*Attachment, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.defunct {
		return nil, false
	}

	prior := ch.attachments[att.userID]
	ch.attachments[att.userID] = att
	return prior, true
}

// detach removes an attachment if it is still the current one for its user.
// A superseded attachment detaching later must not evict its replacement.
// Returns whether the attachment was removed and whether the channel became
// empty (and was marked defunct).
func (ch *channel) detach(att *Attachment) (removed, empty bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.attachments[att.userID] != att {
		return false, false
	}
	delete(ch.attachments, att.userID)

	if len(ch.attachments) == 0 {
		ch.defunct = true
		return true, true
	}
	return true, false
}

// snapshot returns the current attachments. Fan-out iterates the snapshot so
// slow sends never hold the channel lock.
func (ch *channel) snapshot() []*Attachment {
	ch.mu.RLock()
	defer ch.mu.RUnlock()

	atts := make([]*Attachment, 0, len(ch.attachments))
	for _, att := range ch.attachments {
		atts = append(atts, att)
	}
	return atts
}

// contains reports whether att is still the current attachment for its user.
func (ch *channel) contains(att *Attachment) bool {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.attachments[att.userID] == att
}

// attendees returns the attached user IDs in sorted order.
func (ch *channel) attendees() []string {
	ch.mu.RLock()
	users := make([]string, 0, len(ch.attachments))
	for userID := range ch.attachments {
		users = append(users, userID)
	}
	ch.mu.RUnlock()

	sort.Strings(users)
	return users
}
