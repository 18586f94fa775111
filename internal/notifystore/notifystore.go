// Package notifystore is the Notification Recorder (spec.md §4.4.2): it
// inserts rows into a missed-call ledger. The pushed callback that wakes
// external subscribers is invoked by the correlator after Insert, not by
// this package. Grounded on internal/database's
// connection/repository SQL style and on original_source's
// db_manager.insert_call_notification semantics.
package notifystore

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

// Store backs the missed-call ledger with MySQL via go-sql-driver.
type Store struct {
	db *sql.DB
}

// New wraps an already-open *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the notification table if it does not already
// exist. The core owns this table exclusively; it is not part of any
// out-of-scope settings/ACL schema.
func (s *Store) EnsureSchema() error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS callcore_call_notifications (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			extension VARCHAR(32) NOT NULL,
			caller VARCHAR(64) NOT NULL,
			queue VARCHAR(64) NOT NULL DEFAULT '',
			call_id VARCHAR(64) NOT NULL,
			reason VARCHAR(32) NOT NULL,
			created_at DATETIME NOT NULL
		)
	`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("creating notification table: %w", err)
	}
	return nil
}

// Insert implements correlator.NotificationRecorder: one row per missed
// call (spec.md §4.4.2: "extension, caller (external number), queue (if
// any), call-id (uniqueid), reason").
func (s *Store) Insert(extension, caller, queue, callID, reason string) {
	query := `
		INSERT INTO callcore_call_notifications
			(extension, caller, queue, call_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, extension, caller, queue, callID, reason, time.Now())
	if err != nil {
		log.Printf("[Notify] error inserting notification for extension %s: %v", extension, err)
	}
}

// Recent returns the most recent notifications, newest first, for an
// operator dashboard's initial load.
func (s *Store) Recent(limit int) ([]Notification, error) {
	query := `
		SELECT id, extension, caller, queue, call_id, reason, created_at
		FROM callcore_call_notifications
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Extension, &n.Caller, &n.Queue, &n.CallID, &n.Reason, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Notification is one missed-call ledger row.
type Notification struct {
	ID        int64
	Extension string
	Caller    string
	Queue     string
	CallID    string
	Reason    string
	CreatedAt time.Time
}
