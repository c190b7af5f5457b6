package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/homedhq/hmsg/internal/cache"
)

// SaveNotifications replaces the notification snapshot and records the
// platform-wide unread aggregate alongside it.
func (db *DB) SaveNotifications(records []cache.Notification, unreadCount int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM notifications`); err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}

	for _, n := range records {
		if _, err := tx.Exec(`
			INSERT INTO notifications (id, title, body, type, priority, read, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.Title, n.Body, n.Type, n.Priority, n.Read, n.CreatedAt); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO snapshot_state (key, value) VALUES ('unread_count', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(unreadCount)); err != nil {
		return fmt.Errorf("save unread count: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO snapshot_state (key, value) VALUES ('saved_at', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
		return fmt.Errorf("save timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadNotifications returns the snapshotted notifications (newest first)
// and the saved unread aggregate.
func (db *DB) LoadNotifications() ([]cache.Notification, int, error) {
	rows, err := db.Query(`
		SELECT id, title, body, type, priority, read, created_at
		FROM notifications
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	var records []cache.Notification
	for rows.Next() {
		var n cache.Notification
		if err := rows.Scan(&n.ID, &n.Title, &n.Body, &n.Type, &n.Priority, &n.Read, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		records = append(records, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var raw string
	err = db.QueryRow(`SELECT value FROM snapshot_state WHERE key = 'unread_count'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return records, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		count = 0
	}
	return records, count, nil
}
