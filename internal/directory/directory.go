package directory

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"mentorchat/pkg/interfaces"
	"mentorchat/pkg/types"
)

// Directory resolves connections to participants and conversations and
// answers community membership questions. Resolved conversations are cached
// in memory: a connection's conversation never changes once bound, so the
// cache needs no invalidation.
type Directory struct {
	store interfaces.MessageStore

	mu            sync.RWMutex
	conversations map[string]string // connectionID -> conversationID
}

// New creates a directory over the given store.
func New(store interfaces.MessageStore) *Directory {
	return &Directory{
		store:         store,
		conversations: make(map[string]string),
	}
}

// ListConnections returns the requesting user's connections with
// last-message previews, most-recently-active first.
func (d *Directory) ListConnections(ctx context.Context, userID string) ([]*types.ConnectionSummary, error) {
	summaries, err := d.store.ListConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return summaries, nil
}

// ResolveConversation maps a connection to its conversation, verifying the
// requesting user is a participant. The conversation is created lazily on
// first resolution; a concurrent first resolution is settled by the store,
// so every caller observes the same conversation ID.
func (d *Directory) ResolveConversation(ctx context.Context, connectionID, userID string) (string, error) {
	conn, err := d.store.GetConnection(ctx, connectionID)
	if err != nil {
		return "", err
	}
	if !conn.HasParticipant(userID) {
		return "", types.ErrForbidden
	}

	if conn.ConversationID != nil {
		d.remember(connectionID, *conn.ConversationID)
		return *conn.ConversationID, nil
	}

	d.mu.RLock()
	cached, ok := d.conversations[connectionID]
	d.mu.RUnlock()
	if ok {
		return cached, nil
	}

	candidate := uuid.New().String()
	winner, err := d.store.BindConversation(ctx, connectionID, candidate)
	if err != nil {
		return "", fmt.Errorf("failed to bind conversation: %w", err)
	}
	if winner == candidate {
		log.Printf("Created conversation %s for connection %s", winner, connectionID)
	}
	d.remember(connectionID, winner)

	return winner, nil
}

// MemberRole returns userID's role in a community.
func (d *Directory) MemberRole(ctx context.Context, communityID, userID string) (string, error) {
	return d.store.MemberRole(ctx, communityID, userID)
}

func (d *Directory) remember(connectionID, conversationID string) {
	d.mu.Lock()
	d.conversations[connectionID] = conversationID
	d.mu.Unlock()
}
