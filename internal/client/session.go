package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mentorchat/pkg/types"
)

// State tracks where a session is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateHistoryLoading
	StateLive
	StateReconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHistoryLoading:
		return "history_loading"
	case StateLive:
		return "live"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Session drives one user's view of the chat system: it lists connections,
// opens a conversation by loading recent history before going live, and
// keeps the socket alive across drops. Decoded server events are available
// on Events; chat deliveries are also folded into the conversation view.
type Session struct {
	baseURL    string
	wsURL      string
	token      string
	httpClient *http.Client
	dialer     *websocket.Dialer
	pageLimit  int

	mu           sync.Mutex
	state        State
	connectionID string
	view         *MessageView
	conn         *websocket.Conn
	cancelRead   context.CancelFunc

	events chan interface{}
}

// NewSession creates a session against baseURL (http:// or https://)
// authenticated by token.
func NewSession(baseURL, token string) *Session {
	return &Session{
		baseURL:    strings.TrimRight(baseURL, "/"),
		wsURL:      toWebSocketURL(strings.TrimRight(baseURL, "/")),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pageLimit:  50,
		state:      StateIdle,
		view:       NewMessageView(),
		events:     make(chan interface{}, 100),
	}
}

func toWebSocketURL(base string) string {
	if strings.HasPrefix(base, "https://") {
		return "wss://" + strings.TrimPrefix(base, "https://")
	}
	return "ws://" + strings.TrimPrefix(base, "http://")
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns the open conversation's message view.
func (s *Session) View() *MessageView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Events delivers decoded server events: *types.ChatEvent,
// *types.CommunityEvent, and *types.SystemEvent.
func (s *Session) Events() <-chan interface{} {
	return s.events
}

// Connections lists the user's accepted connections with previews.
func (s *Session) Connections(ctx context.Context) ([]*types.ConnectionSummary, error) {
	var response struct {
		Connections []*types.ConnectionSummary `json:"connections"`
	}
	if err := s.getJSON(ctx, "/chat/connections", nil, &response); err != nil {
		return nil, err
	}
	return response.Connections, nil
}

// Open switches the session to a connection: any previous socket is closed
// first, the latest history page is loaded, and only then does the socket go
// live. A message arriving during the gap is caught by the idempotent append
// on the view.
func (s *Session) Open(ctx context.Context, connectionID string) error {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.teardownLocked()
	s.state = StateHistoryLoading
	s.connectionID = connectionID
	s.view = NewMessageView()
	view := s.view
	s.mu.Unlock()

	page, err := s.fetchPage(ctx, connectionID, nil)
	if err != nil {
		s.setState(StateIdle)
		return fmt.Errorf("failed to load history: %w", err)
	}
	view.SetInitial(page)

	conn, err := s.dial(ctx, connectionID)
	if err != nil {
		s.setState(StateIdle)
		return fmt.Errorf("failed to open socket: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.conn = conn
	s.cancelRead = cancel
	s.state = StateLive
	s.mu.Unlock()

	go s.readLoop(readCtx, conn, connectionID, view)

	return nil
}

// Send publishes content on the open conversation.
func (s *Session) Send(content string) error {
	s.mu.Lock()
	conn := s.conn
	live := s.state == StateLive
	s.mu.Unlock()

	if !live || conn == nil {
		return ErrNotLive
	}
	return conn.WriteJSON(&types.Inbound{Content: content})
}

// LoadEarlier extends the view one page into the past.
func (s *Session) LoadEarlier(ctx context.Context) error {
	s.mu.Lock()
	connectionID := s.connectionID
	view := s.view
	s.mu.Unlock()

	if connectionID == "" {
		return ErrNotLive
	}
	cursor := view.NextCursor()
	if cursor == nil {
		return ErrNoEarlierMessages
	}

	page, err := s.fetchPage(ctx, connectionID, cursor)
	if err != nil {
		return fmt.Errorf("failed to load earlier messages: %w", err)
	}
	view.PrependEarlier(page)
	return nil
}

// Close ends the session. It is terminal; open a new session to resume.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return
	}
	s.teardownLocked()
	s.state = StateDisconnected
}

func (s *Session) teardownLocked() {
	if s.cancelRead != nil {
		s.cancelRead()
		s.cancelRead = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.connectionID = ""
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// readLoop pumps server events until the socket dies, then reconnects with
// bounded backoff as long as the session still points at the same
// conversation.
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn, connectionID string, view *MessageView) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || !s.isCurrent(connectionID, view) {
				return
			}
			conn = s.reconnect(ctx, connectionID, view)
			if conn == nil {
				return
			}
			continue
		}
		s.dispatch(data, view)
	}
}

func (s *Session) isCurrent(connectionID string, view *MessageView) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionID == connectionID && s.view == view && s.state != StateDisconnected
}

// reconnect re-dials the conversation socket and backfills whatever arrived
// while the socket was down. Delivery order stays ascending because the gap
// fill runs before the new socket's events are dispatched.
func (s *Session) reconnect(ctx context.Context, connectionID string, view *MessageView) *websocket.Conn {
	s.setState(StateReconnecting)

	delay := reconnectBaseDelay
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		if !s.isCurrent(connectionID, view) {
			return nil
		}

		conn, err := s.dial(ctx, connectionID)
		if err != nil {
			log.Printf("Reconnect attempt failed: %v", err)
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		if err := s.fillGap(ctx, connectionID, view); err != nil {
			log.Printf("Failed to backfill missed messages: %v", err)
		}

		s.mu.Lock()
		if s.connectionID != connectionID || s.view != view || s.state == StateDisconnected {
			s.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		s.conn = conn
		s.state = StateLive
		s.mu.Unlock()

		return conn
	}
}

// fillGap appends messages that landed while the socket was down. Pages walk
// backward from the latest message until the view's tail is reached.
func (s *Session) fillGap(ctx context.Context, connectionID string, view *MessageView) error {
	lastID := view.LastID()

	var missed []*types.Message
	var cursor *int64
	for {
		page, err := s.fetchPage(ctx, connectionID, cursor)
		if err != nil {
			return err
		}

		done := false
		for _, m := range page.Messages {
			if m.ID <= lastID {
				done = true
				break
			}
			missed = append(missed, m)
		}
		if done || page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}

	for i := len(missed) - 1; i >= 0; i-- {
		if view.AppendLive(missed[i]) {
			s.emit(types.NewChatEvent(missed[i]))
		}
	}
	return nil
}

// dispatch decodes one server frame by its envelope type.
func (s *Session) dispatch(data []byte, view *MessageView) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		log.Printf("Discarding malformed server frame: %v", err)
		return
	}

	switch probe.Type {
	case types.EnvelopeChatMessage:
		var event types.ChatEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return
		}
		accepted := view.AppendLive(&types.Message{
			ID:        event.MessageID,
			SenderID:  event.SenderID,
			Content:   event.Content,
			Timestamp: event.Timestamp,
		})
		if accepted {
			s.emit(&event)
		}

	case types.EnvelopeCommunityMessage:
		var event types.CommunityEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return
		}
		s.emit(&event)

	case types.EnvelopeSystem:
		var event types.SystemEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return
		}
		s.emit(&event)

	default:
		log.Printf("Discarding server frame with unknown type %q", probe.Type)
	}
}

func (s *Session) emit(event interface{}) {
	select {
	case s.events <- event:
	default:
		log.Printf("Event channel full, dropping event")
	}
}

func (s *Session) dial(ctx context.Context, connectionID string) (*websocket.Conn, error) {
	endpoint := fmt.Sprintf("%s/ws/chat?connectionId=%s&token=%s",
		s.wsURL, url.QueryEscape(connectionID), url.QueryEscape(s.token))

	conn, resp, err := s.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: HTTP %d", ErrUnexpectedResponse, resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

func (s *Session) fetchPage(ctx context.Context, connectionID string, cursor *int64) (*types.MessagePage, error) {
	query := url.Values{}
	query.Set("connectionId", connectionID)
	query.Set("limit", strconv.Itoa(s.pageLimit))
	if cursor != nil {
		query.Set("cursor", strconv.FormatInt(*cursor, 10))
	}

	var page types.MessagePage
	if err := s.getJSON(ctx, "/chat/messages", query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *Session) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: HTTP %d: %s", ErrUnexpectedResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
