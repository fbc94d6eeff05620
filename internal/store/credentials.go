package store

import (
	"database/sql"
	"time"
)

// SaveCredentials stores the credential blob for a session, replacing
// any previous blob. The upsert makes the write atomic from the
// caller's perspective: a concurrent load sees either the old blob or
// the new one, never a partial write.
func (db *DB) SaveCredentials(sessionID string, blob []byte) error {
	_, err := db.Exec(`
		INSERT INTO credentials (session_id, blob, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			blob = excluded.blob,
			updated_at = excluded.updated_at`,
		sessionID, blob, time.Now().UnixMilli())
	return err
}

// LoadCredentials returns the stored blob for a session. Absence is a
// normal outcome (first run, or after logout) and is reported via the
// second return value, not an error.
func (db *DB) LoadCredentials(sessionID string) ([]byte, bool, error) {
	var blob []byte
	err := db.QueryRow(`SELECT blob FROM credentials WHERE session_id = ?`, sessionID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

// DeleteCredentials removes the stored blob for a session. Deleting a
// session that has no stored blob is not an error.
func (db *DB) DeleteCredentials(sessionID string) error {
	_, err := db.Exec(`DELETE FROM credentials WHERE session_id = ?`, sessionID)
	return err
}
