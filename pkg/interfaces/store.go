package interfaces

import (
	"context"

	"mentorchat/pkg/types"
)

// MessageStore handles all persistence: the append-only message log per
// conversation plus the durable connection and community tables behind the
// directory. A single interface keeps transaction handling in one place and
// lets tests substitute in-memory fakes.
type MessageStore interface {
	// AppendMessage validates content, assigns the next per-conversation ID
	// atomically with respect to concurrent appends, stamps a timestamp no
	// earlier than the previous message's, and persists the message.
	AppendMessage(ctx context.Context, conversationID, senderID, content string) (*types.Message, error)

	// FetchPage returns up to limit messages in descending ID order starting
	// strictly before cursor (most recent first when cursor is nil).
	// NextCursor is nil exactly when no older messages remain.
	FetchPage(ctx context.Context, conversationID string, cursor *int64, limit int) (*types.MessagePage, error)

	// GetConnection retrieves one connection by ID.
	GetConnection(ctx context.Context, connectionID string) (*types.Connection, error)

	// ListConnections returns every connection userID participates in,
	// annotated with the last message, most-recently-active first.
	ListConnections(ctx context.Context, userID string) ([]*types.ConnectionSummary, error)

	// BindConversation assigns conversationID to a connection that has none
	// yet. Returns the winning conversation ID, which may differ from the
	// argument if a concurrent resolution got there first.
	BindConversation(ctx context.Context, connectionID, conversationID string) (string, error)

	// MemberRole returns the role of userID in a community.
	// types.ErrNotFound when the community does not exist, types.ErrForbidden
	// when the user is not a member.
	MemberRole(ctx context.Context, communityID, userID string) (string, error)

	// HealthCheck verifies connectivity and basic read access.
	HealthCheck(ctx context.Context) error

	// Close drains pending writes and releases the database.
	Close() error
}
