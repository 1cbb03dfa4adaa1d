package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Delivery statuses.
const (
	StatusQueued = "queued"
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Entry is one outbound delivery attempt.
type Entry struct {
	ID           string `json:"id"`
	SessionID    string `json:"sessionId"`
	JobID        string `json:"jobId,omitempty"`
	Recipient    string `json:"recipient"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	ServerMsgID  string `json:"messageId,omitempty"`
	ErrorMessage string `json:"error,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// Record inserts a queued delivery and returns its generated id.
func (db *DB) Record(ctx context.Context, sessionID, jobID, recipient, kind string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO deliveries (id, session_id, job_id, recipient, kind, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'queued', ?, ?)`,
		id, sessionID, jobID, recipient, kind, now, now)
	if err != nil {
		return "", err
	}
	return id, nil
}

// MarkSent updates a delivery to 'sent' with the server message ID.
func (db *DB) MarkSent(ctx context.Context, id, serverMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `UPDATE deliveries SET status = 'sent', server_msg_id = ?, updated_at = ? WHERE id = ?`, serverMsgID, now, id)
	return err
}

// MarkFailed updates a delivery to 'failed' with an error message.
func (db *DB) MarkFailed(ctx context.Context, id, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `UPDATE deliveries SET status = 'failed', error_message = ?, updated_at = ? WHERE id = ?`, errMsg, now, id)
	return err
}

// List returns the most recent deliveries for a session, newest first.
func (db *DB) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, job_id, recipient, kind, status, server_msg_id, error_message, created_at, updated_at
		FROM deliveries WHERE session_id = ? ORDER BY created_at DESC, id LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.JobID, &e.Recipient, &e.Kind, &e.Status,
			&e.ServerMsgID, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// JobCounts returns how many deliveries of a bulk job ended in each status.
func (db *DB) JobCounts(ctx context.Context, jobID string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM deliveries WHERE job_id = ? GROUP BY status`, jobID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// PurgeSession deletes every delivery recorded for a session.
func (db *DB) PurgeSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM deliveries WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
