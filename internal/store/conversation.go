package store

import (
	"fmt"
	"time"

	"github.com/homedhq/hmsg/internal/cache"
)

// SaveConversations replaces the conversation snapshot in a transaction.
// The caches hold a full platform-ordered view, so a replace mirrors
// them exactly instead of merging.
func (db *DB) SaveConversations(convs []cache.Conversation) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, c := range convs {
		if _, err := tx.Exec(`
			INSERT INTO conversations (id, participant_name, participant_role, subject, last_message_preview, last_message_at, unread_count, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.ParticipantName, c.ParticipantRole, c.Subject, c.LastMessagePreview, c.LastMessageAt, c.UnreadCount, now); err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadConversations returns the snapshotted conversations sorted by
// last message timestamp descending.
func (db *DB) LoadConversations() ([]cache.Conversation, error) {
	rows, err := db.Query(`
		SELECT id, participant_name, participant_role, subject, last_message_preview, last_message_at, unread_count
		FROM conversations
		ORDER BY last_message_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []cache.Conversation
	for rows.Next() {
		var c cache.Conversation
		if err := rows.Scan(&c.ID, &c.ParticipantName, &c.ParticipantRole, &c.Subject, &c.LastMessagePreview, &c.LastMessageAt, &c.UnreadCount); err != nil {
			return nil, err
		}
		if c.UnreadCount > 0 {
			c.Status = cache.StatusUnread
		} else {
			c.Status = cache.StatusRead
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}
