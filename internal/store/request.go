package store

import (
	"database/sql"
	"time"
)

// UpsertFriendRequest inserts or updates a friend request record keyed by
// its server-assigned list id. Status, message, and timestamps are taken
// from the incoming record.
func (db *DB) UpsertFriendRequest(r *FriendRequest) error {
	now := time.Now().UnixMilli()
	created := r.CreatedAt
	if created == 0 {
		created = now
	}
	_, err := db.Exec(`
		INSERT INTO friend_requests (list_id, requester_id, approver_id, pair_key, status, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(list_id) DO UPDATE SET
			status = excluded.status,
			message = CASE WHEN excluded.message != '' THEN excluded.message ELSE friend_requests.message END,
			updated_at = excluded.updated_at`,
		r.ListID, r.RequesterID, r.ApproverID, r.PairKey(), string(r.Status), r.Message, created, now)
	return err
}

// GetFriendRequest returns the request with the given list id, or nil.
func (db *DB) GetFriendRequest(listID string) (*FriendRequest, error) {
	row := db.QueryRow(`
		SELECT list_id, requester_id, approver_id, status, message, created_at, updated_at
		FROM friend_requests WHERE list_id = ?`, listID)
	return scanRequest(row)
}

// PendingRequestForPair returns the single pending request between the two
// identities in either direction, or nil if none exists.
func (db *DB) PendingRequestForPair(a, b string) (*FriendRequest, error) {
	row := db.QueryRow(`
		SELECT list_id, requester_id, approver_id, status, message, created_at, updated_at
		FROM friend_requests WHERE pair_key = ? AND status = 'pending'`, PairKey(a, b))
	return scanRequest(row)
}

// ListFriendRequests returns requests where selfID is the requester
// (outgoing=true) or the approver (outgoing=false), optionally filtered by
// status (empty = all), in creation order.
func (db *DB) ListFriendRequests(selfID string, outgoing bool, status RequestStatus) ([]FriendRequest, error) {
	side := "approver_id"
	if outgoing {
		side = "requester_id"
	}
	query := `
		SELECT list_id, requester_id, approver_id, status, message, created_at, updated_at
		FROM friend_requests WHERE ` + side + ` = ?`
	args := []any{selfID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, list_id`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var reqs []FriendRequest
	for rows.Next() {
		var r FriendRequest
		if err := rows.Scan(&r.ListID, &r.RequesterID, &r.ApproverID, &r.Status, &r.Message, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// AcceptedCounterparts projects the accepted-friend set for selfID out of
// the request log: one identity per accepted request, from whichever side
// is not self. There is no separately maintained friend table.
func (db *DB) AcceptedCounterparts(selfID string) ([]Identity, error) {
	rows, err := db.Query(`
		SELECT peer.peer_id,
			COALESCE(NULLIF(i.display_name, ''), peer.peer_id) AS display_name,
			COALESCE(i.avatar_url, '') AS avatar_url
		FROM (
			SELECT CASE WHEN requester_id = ? THEN approver_id ELSE requester_id END AS peer_id,
				updated_at
			FROM friend_requests
			WHERE status = 'accepted' AND (requester_id = ? OR approver_id = ?)
		) AS peer
		LEFT JOIN identities i ON i.user_id = peer.peer_id
		ORDER BY peer.updated_at, peer.peer_id`,
		selfID, selfID, selfID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var peers []Identity
	for rows.Next() {
		var id Identity
		if err := rows.Scan(&id.UserID, &id.DisplayName, &id.AvatarURL); err != nil {
			return nil, err
		}
		peers = append(peers, id)
	}
	return peers, rows.Err()
}

func scanRequest(row *sql.Row) (*FriendRequest, error) {
	var r FriendRequest
	err := row.Scan(&r.ListID, &r.RequesterID, &r.ApproverID, &r.Status, &r.Message, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
