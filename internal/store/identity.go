package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertIdentity inserts or refreshes a cached identity. Empty name or
// avatar values never clobber previously known ones.
func (db *DB) UpsertIdentity(id *Identity) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO identities (user_id, display_name, avatar_url, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE identities.display_name END,
			avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE identities.avatar_url END,
			updated_at = excluded.updated_at`,
		id.UserID, id.DisplayName, id.AvatarURL, now)
	return err
}

// GetIdentity returns a cached identity by user id, or nil if unknown.
func (db *DB) GetIdentity(userID string) (*Identity, error) {
	var id Identity
	err := db.QueryRow(`SELECT user_id, display_name, avatar_url FROM identities WHERE user_id = ?`, userID).
		Scan(&id.UserID, &id.DisplayName, &id.AvatarURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// BulkUpsertIdentities refreshes multiple identities in one transaction.
func (db *DB) BulkUpsertIdentities(ids []Identity) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, id := range ids {
		if _, err := tx.Exec(`
			INSERT INTO identities (user_id, display_name, avatar_url, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE identities.display_name END,
				avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE identities.avatar_url END,
				updated_at = excluded.updated_at`,
			id.UserID, id.DisplayName, id.AvatarURL, now); err != nil {
			return fmt.Errorf("upsert identity %q: %w", id.UserID, err)
		}
	}
	return tx.Commit()
}
