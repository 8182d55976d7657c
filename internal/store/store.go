package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mentorchat/pkg/types"
)

const defaultPageLimit = 50

// Store persists connections, communities and the append-only message log.
// All writes flow through a single goroutine: SQLite allows one writer at a
// time, and funneling appends through one loop is also what makes
// per-conversation ID assignment atomic.
type Store struct {
	db               *sql.DB
	maxContentLength int

	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens (creating if needed) the database at path and applies
// pending migrations. maxContentLength bounds appended message content.
func NewStore(path string, maxContentLength int) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite pragmas: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &Store{
		db:               db,
		maxContentLength: maxContentLength,
		writeChannel:     make(chan writeOperation, 100),
		shutdown:         make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop processes all write operations in a single goroutine, retrying
// once after a short delay on transient failures.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(s.db)
			if err != nil && !isDomainError(err) {
				log.Printf("Database write failed, retrying: %v", err)
				time.Sleep(time.Second)
				err = op.operation(s.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

// isDomainError reports whether err is a terminal taxonomy error that a
// retry cannot fix.
func isDomainError(err error) bool {
	return errors.Is(err, types.ErrNotFound) ||
		errors.Is(err, types.ErrForbidden) ||
		errors.Is(err, types.ErrEmptyContent) ||
		errors.Is(err, types.ErrContentTooLong)
}

func (s *Store) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		select {
		case err := <-result:
			return err
		case <-s.shutdown:
			return ErrStoreClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return ErrStoreClosed
	}
}

// AppendMessage validates content, assigns the next ID for the conversation
// and a timestamp no earlier than the previous message's, and persists the
// message. Concurrent appends to the same conversation serialize through the
// write loop, so no two messages in one conversation ever share an ID.
func (s *Store) AppendMessage(ctx context.Context, conversationID, senderID, content string) (*types.Message, error) {
	if err := types.ValidateContent(content, s.maxContentLength); err != nil {
		return nil, err
	}
	if conversationID == "" || senderID == "" {
		return nil, types.ErrNotFound
	}

	// Existence is checked on the read path so an unknown conversation fails
	// fast instead of occupying the write loop.
	var known int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM connections WHERE conversation_id = ?`, conversationID,
	).Scan(&known)
	if err != nil {
		return nil, fmt.Errorf("failed to check conversation: %w", err)
	}
	if known == 0 {
		return nil, types.ErrNotFound
	}

	var msg *types.Message
	err = s.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var lastID int64
		var lastTS time.Time
		err = tx.QueryRow(
			`SELECT id, timestamp FROM messages WHERE conversation_id = ? ORDER BY id DESC LIMIT 1`,
			conversationID,
		).Scan(&lastID, &lastTS)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to read last message: %w", err)
		}

		ts := time.Now().UTC()
		if ts.Before(lastTS) {
			ts = lastTS
		}

		m := &types.Message{
			ID:             lastID + 1,
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        content,
			Timestamp:      ts,
		}

		_, err = tx.Exec(
			`INSERT INTO messages (conversation_id, id, sender_id, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
			m.ConversationID, m.ID, m.SenderID, m.Content, m.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit message: %w", err)
		}

		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// FetchPage walks the conversation backward: up to limit messages in
// descending ID order strictly before cursor, or the most recent limit when
// cursor is nil. One extra row is probed so NextCursor is nil exactly when
// no older messages remain.
func (s *Store) FetchPage(ctx context.Context, conversationID string, cursor *int64, limit int) (*types.MessagePage, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}

	query := `SELECT id, sender_id, content, timestamp FROM messages WHERE conversation_id = ?`
	args := []interface{}{conversationID}
	if cursor != nil {
		query += ` AND id < ?`
		args = append(args, *cursor)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query message page: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		m := &types.Message{ConversationID: conversationID}
		if err := rows.Scan(&m.ID, &m.SenderID, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	page := &types.MessagePage{}
	if len(messages) > limit {
		page.Messages = messages[:limit]
		oldest := page.Messages[limit-1].ID
		page.NextCursor = &oldest
	} else {
		page.Messages = messages
	}
	if page.Messages == nil {
		page.Messages = []*types.Message{}
	}

	return page, nil
}

// CreateConnection records a pairing produced by the external
// mentorship-acceptance workflow. ConversationID is normally nil; the
// conversation is bound lazily on first resolution.
func (s *Store) CreateConnection(ctx context.Context, conn *types.Connection) error {
	if conn.ID == "" || conn.ParticipantA == "" || conn.ParticipantB == "" {
		return fmt.Errorf("connection requires id and both participants")
	}
	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO connections (id, conversation_id, participant_a, participant_b, created_at) VALUES (?, ?, ?, ?, ?)`,
			conn.ID, conn.ConversationID, conn.ParticipantA, conn.ParticipantB, conn.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert connection: %w", err)
		}
		return nil
	})
}

// GetConnection retrieves one connection by ID.
func (s *Store) GetConnection(ctx context.Context, connectionID string) (*types.Connection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, participant_a, participant_b, created_at FROM connections WHERE id = ?`,
		connectionID,
	)

	conn := &types.Connection{}
	var conversationID sql.NullString
	err := row.Scan(&conn.ID, &conversationID, &conn.ParticipantA, &conn.ParticipantB, &conn.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query connection: %w", err)
	}
	if conversationID.Valid {
		conn.ConversationID = &conversationID.String
	}

	return conn, nil
}

// ListConnections returns every connection userID participates in, annotated
// with the most recent message. Ordering: most-recently-active first,
// connections with no messages last by creation time.
func (s *Store) ListConnections(ctx context.Context, userID string) ([]*types.ConnectionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.conversation_id, c.participant_a, c.participant_b, c.created_at,
		       m.id, m.sender_id, m.content, m.timestamp
		FROM connections c
		LEFT JOIN messages m ON m.conversation_id = c.conversation_id
		       AND m.id = (SELECT MAX(id) FROM messages WHERE conversation_id = c.conversation_id)
		WHERE c.participant_a = ? OR c.participant_b = ?
		ORDER BY CASE WHEN m.timestamp IS NULL THEN 1 ELSE 0 END, m.timestamp DESC, c.created_at DESC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []*types.ConnectionSummary
	for rows.Next() {
		conn := &types.Connection{}
		var conversationID sql.NullString
		var msgID sql.NullInt64
		var msgSender, msgContent sql.NullString
		var msgTS sql.NullTime

		err := rows.Scan(
			&conn.ID, &conversationID, &conn.ParticipantA, &conn.ParticipantB, &conn.CreatedAt,
			&msgID, &msgSender, &msgContent, &msgTS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection row: %w", err)
		}
		if conversationID.Valid {
			conn.ConversationID = &conversationID.String
		}

		summary := &types.ConnectionSummary{
			ConnectionID:   conn.ID,
			ConversationID: conn.ConversationID,
			AcceptedAt:     conn.CreatedAt,
			Counterpart:    conn.Counterpart(userID),
		}
		if msgID.Valid {
			summary.LastMessage = &types.Message{
				ID:             msgID.Int64,
				ConversationID: conversationID.String,
				SenderID:       msgSender.String,
				Content:        msgContent.String,
				Timestamp:      msgTS.Time,
			}
		}

		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connection rows: %w", err)
	}

	return summaries, nil
}

// BindConversation assigns conversationID to a connection that has none yet
// and returns the winning ID. A concurrent resolution may have bound a
// different conversation first; the stored value always wins so a connection
// never ends up with two conversations.
func (s *Store) BindConversation(ctx context.Context, connectionID, conversationID string) (string, error) {
	var winner string
	err := s.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.Exec(
			`UPDATE connections SET conversation_id = ? WHERE id = ? AND conversation_id IS NULL`,
			conversationID, connectionID,
		)
		if err != nil {
			return fmt.Errorf("failed to bind conversation: %w", err)
		}

		var bound sql.NullString
		err = tx.QueryRow(`SELECT conversation_id FROM connections WHERE id = ?`, connectionID).Scan(&bound)
		if err != nil {
			if err == sql.ErrNoRows {
				return types.ErrNotFound
			}
			return fmt.Errorf("failed to read bound conversation: %w", err)
		}
		if !bound.Valid {
			return fmt.Errorf("conversation binding did not take effect")
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit conversation binding: %w", err)
		}

		winner = bound.String
		return nil
	})
	if err != nil {
		return "", err
	}

	return winner, nil
}

// CreateCommunity registers a discussion community.
func (s *Store) CreateCommunity(ctx context.Context, community *types.Community) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`INSERT INTO communities (id, name) VALUES (?, ?)`, community.ID, community.Name)
		if err != nil {
			return fmt.Errorf("failed to insert community: %w", err)
		}
		return nil
	})
}

// AddCommunityMember grants userID membership with the given role.
func (s *Store) AddCommunityMember(ctx context.Context, communityID, userID, role string) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT OR REPLACE INTO community_members (community_id, user_id, role) VALUES (?, ?, ?)`,
			communityID, userID, role,
		)
		if err != nil {
			return fmt.Errorf("failed to insert community member: %w", err)
		}
		return nil
	})
}

// MemberRole returns userID's role in a community.
func (s *Store) MemberRole(ctx context.Context, communityID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM community_members WHERE community_id = ? AND user_id = ?`,
		communityID, userID,
	).Scan(&role)
	if err == nil {
		return role, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to query member role: %w", err)
	}

	var known int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM communities WHERE id = ?`, communityID,
	).Scan(&known); err != nil {
		return "", fmt.Errorf("failed to check community: %w", err)
	}
	if known == 0 {
		return "", types.ErrNotFound
	}
	return "", types.ErrForbidden
}

// HealthCheck validates connectivity and basic read access.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM connections`).Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close drains the write loop and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}
