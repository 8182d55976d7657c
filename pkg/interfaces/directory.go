package interfaces

import (
	"context"

	"mentorchat/pkg/types"
)

// ConnectionDirectory resolves logical mentorship connections to their
// participants and conversation, and answers community membership questions.
// The broker authorizes every channel attachment through this interface.
type ConnectionDirectory interface {
	// ListConnections returns the requesting user's connections with
	// last-message previews, most-recently-active first.
	ListConnections(ctx context.Context, userID string) ([]*types.ConnectionSummary, error)

	// ResolveConversation maps a connection to its conversation ID, creating
	// the conversation lazily on first resolution. types.ErrNotFound when the
	// connection does not exist, types.ErrForbidden when userID is not a
	// participant.
	ResolveConversation(ctx context.Context, connectionID, userID string) (string, error)

	// MemberRole returns userID's role in a community, types.ErrForbidden
	// when not a member, types.ErrNotFound when the community is unknown.
	MemberRole(ctx context.Context, communityID, userID string) (string, error)
}
