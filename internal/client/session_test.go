package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"mentorchat/internal/api"
	"mentorchat/internal/auth"
	"mentorchat/internal/broker"
	"mentorchat/internal/config"
	"mentorchat/internal/directory"
	"mentorchat/internal/store"
	ws "mentorchat/internal/websocket"
	"mentorchat/pkg/types"
)

type chatServer struct {
	url   string
	store *store.Store
	dir   *directory.Directory
	auth  *auth.Authenticator
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()

	s, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"), 4096)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	dir := directory.New(s)
	b := broker.New(s, dir, 4096, 0)
	authn := auth.New("test-secret", time.Hour)

	wsHandler := ws.NewHandler(b, authn, &config.WebSocketConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   16,
	}, 4096)

	mux := http.NewServeMux()
	api.NewServer(dir, s, b, authn, 50, 200).RegisterRoutes(mux)
	mux.HandleFunc("/ws/chat", wsHandler.HandleChat)
	mux.HandleFunc("/ws/discussions", wsHandler.HandleDiscussions)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		b.Close()
		if err := s.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})

	return &chatServer{url: server.URL, store: s, dir: dir, auth: authn}
}

func (cs *chatServer) seedConnection(t *testing.T, id, a, b string) {
	t.Helper()

	err := cs.store.CreateConnection(context.Background(), &types.Connection{
		ID:           id,
		ParticipantA: a,
		ParticipantB: b,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed connection: %v", err)
	}
}

func (cs *chatServer) session(t *testing.T, userID string) *Session {
	t.Helper()

	token, err := cs.auth.Issue(userID, "member")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	session := NewSession(cs.url, token)
	t.Cleanup(session.Close)
	return session
}

func waitForEvent(t *testing.T, session *Session, timeout time.Duration) interface{} {
	t.Helper()

	select {
	case event := <-session.Events():
		return event
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestSessionConnections(t *testing.T) {
	cs := newChatServer(t)
	cs.seedConnection(t, "conn1", "alice", "bob")

	session := cs.session(t, "alice")
	connections, err := session.Connections(context.Background())
	if err != nil {
		t.Fatalf("Connections failed: %v", err)
	}
	if len(connections) != 1 || connections[0].Counterpart != "bob" {
		t.Errorf("connections = %+v", connections)
	}
}

func TestSessionHistoryThenLive(t *testing.T) {
	cs := newChatServer(t)
	cs.seedConnection(t, "conn1", "alice", "bob")
	ctx := context.Background()

	// Pre-existing history.
	conversationID, err := cs.dir.ResolveConversation(ctx, "conn1", "bob")
	if err != nil {
		t.Fatalf("failed to resolve conversation: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := cs.store.AppendMessage(ctx, conversationID, "bob", "old"); err != nil {
			t.Fatalf("failed to seed message: %v", err)
		}
	}

	alice := cs.session(t, "alice")
	if err := alice.Open(ctx, "conn1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if alice.State() != StateLive {
		t.Errorf("state = %v, want live", alice.State())
	}

	view := alice.View()
	if got := len(view.Snapshot()); got != 3 {
		t.Errorf("history loaded %d messages, want 3", got)
	}

	// A counterpart message arrives live and lands after the history.
	bob := cs.session(t, "bob")
	if err := bob.Open(ctx, "conn1"); err != nil {
		t.Fatalf("bob Open failed: %v", err)
	}
	if err := bob.Send("fresh"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	event := waitForEvent(t, alice, 3*time.Second)
	chat, ok := event.(*types.ChatEvent)
	if !ok {
		t.Fatalf("got %T, want *types.ChatEvent", event)
	}
	if chat.MessageID != 4 || chat.Content != "fresh" {
		t.Errorf("event = %+v", chat)
	}

	snapshot := view.Snapshot()
	if len(snapshot) != 4 || snapshot[3].ID != 4 {
		t.Errorf("view after live delivery: %d messages, tail %v", len(snapshot), snapshot[len(snapshot)-1])
	}
}

func TestSessionLoadEarlier(t *testing.T) {
	cs := newChatServer(t)
	cs.seedConnection(t, "conn1", "alice", "bob")
	ctx := context.Background()

	conversationID, err := cs.dir.ResolveConversation(ctx, "conn1", "alice")
	if err != nil {
		t.Fatalf("failed to resolve conversation: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := cs.store.AppendMessage(ctx, conversationID, "alice", "old"); err != nil {
			t.Fatalf("failed to seed message: %v", err)
		}
	}

	alice := cs.session(t, "alice")
	alice.pageLimit = 2
	if err := alice.Open(ctx, "conn1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	view := alice.View()
	if got := len(view.Snapshot()); got != 2 {
		t.Fatalf("initial window = %d messages, want 2", got)
	}

	if err := alice.LoadEarlier(ctx); err != nil {
		t.Fatalf("LoadEarlier failed: %v", err)
	}
	if err := alice.LoadEarlier(ctx); err != nil {
		t.Fatalf("LoadEarlier failed: %v", err)
	}

	snapshot := view.Snapshot()
	if len(snapshot) != 5 || snapshot[0].ID != 1 {
		t.Errorf("full history: %d messages, head %v", len(snapshot), snapshot[0])
	}
	if err := alice.LoadEarlier(ctx); err != ErrNoEarlierMessages {
		t.Errorf("got %v, want ErrNoEarlierMessages", err)
	}
}

func TestSessionSwitchConversation(t *testing.T) {
	cs := newChatServer(t)
	cs.seedConnection(t, "conn1", "alice", "bob")
	cs.seedConnection(t, "conn2", "alice", "carol")
	ctx := context.Background()

	alice := cs.session(t, "alice")
	if err := alice.Open(ctx, "conn1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	firstView := alice.View()

	if err := alice.Open(ctx, "conn2"); err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	if alice.State() != StateLive {
		t.Errorf("state = %v, want live", alice.State())
	}
	if alice.View() == firstView {
		t.Error("switching conversations should reset the view")
	}

	// A message on the new conversation is delivered.
	carol := cs.session(t, "carol")
	if err := carol.Open(ctx, "conn2"); err != nil {
		t.Fatalf("carol Open failed: %v", err)
	}
	if err := carol.Send("hi on conn2"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	event := waitForEvent(t, alice, 3*time.Second)
	chat, ok := event.(*types.ChatEvent)
	if !ok || chat.Content != "hi on conn2" {
		t.Errorf("got %v", event)
	}
}

func TestSessionSendRequiresLive(t *testing.T) {
	cs := newChatServer(t)
	session := cs.session(t, "alice")

	if err := session.Send("hello"); err != ErrNotLive {
		t.Errorf("got %v, want ErrNotLive", err)
	}
}

func TestSessionOpenRejectsOutsider(t *testing.T) {
	cs := newChatServer(t)
	cs.seedConnection(t, "conn1", "alice", "bob")

	carol := cs.session(t, "carol")
	if err := carol.Open(context.Background(), "conn1"); err == nil {
		t.Error("expected error opening someone else's connection")
	}
	if carol.State() != StateIdle {
		t.Errorf("state = %v, want idle after failed open", carol.State())
	}
}

func TestSessionCloseIsTerminal(t *testing.T) {
	cs := newChatServer(t)
	cs.seedConnection(t, "conn1", "alice", "bob")

	session := cs.session(t, "alice")
	session.Close()
	if session.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", session.State())
	}
	if err := session.Open(context.Background(), "conn1"); err != ErrSessionClosed {
		t.Errorf("got %v, want ErrSessionClosed", err)
	}
}
