package store

import (
	"database/sql"
	"time"
)

// UpsertConversation inserts or overwrites a conversation snapshot. The
// in-memory index is authoritative during a session; this table is its
// warm copy for the next cold start.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	var pairKey any
	if pk := c.PairKey(); pk != "" {
		pairKey = pk
	}
	_, err := db.Exec(`
		INSERT INTO conversations (conversation_id, kind, participants, pair_key, display_name, last_message_preview, last_message_at, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			kind = excluded.kind,
			participants = excluded.participants,
			pair_key = excluded.pair_key,
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE conversations.display_name END,
			last_message_preview = excluded.last_message_preview,
			last_message_at = excluded.last_message_at,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`,
		c.ConversationID, string(c.Kind), joinParticipants(c.ParticipantIDs), pairKey,
		c.DisplayName, c.LastMessagePreview, c.LastMessageAt, c.UnreadCount, now)
	return err
}

// ListConversations returns the warm conversation cache ordered the same
// way the live index orders its view.
func (db *DB) ListConversations() ([]Conversation, error) {
	rows, err := db.Query(`
		SELECT conversation_id, kind, participants, display_name, last_message_preview, last_message_at, unread_count
		FROM conversations
		ORDER BY last_message_at DESC, conversation_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}

// GetConversation returns a conversation by id, or nil if unknown.
func (db *DB) GetConversation(conversationID string) (*Conversation, error) {
	rows, err := db.Query(`
		SELECT conversation_id, kind, participants, display_name, last_message_preview, last_message_at, unread_count
		FROM conversations WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanConversation(rows)
}

// ConversationCount returns the total number of cached conversations.
func (db *DB) ConversationCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}

func scanConversation(rows *sql.Rows) (*Conversation, error) {
	var c Conversation
	var kind, participants string
	if err := rows.Scan(&c.ConversationID, &kind, &participants, &c.DisplayName, &c.LastMessagePreview, &c.LastMessageAt, &c.UnreadCount); err != nil {
		return nil, err
	}
	c.Kind = ConversationKind(kind)
	c.ParticipantIDs = splitParticipants(participants)
	return &c, nil
}
