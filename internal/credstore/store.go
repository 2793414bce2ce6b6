// Package credstore implements the embedded SQL store for pending
// credential requests and ticketbooks (§4.4, §6). It is the "(a)" half of
// the Credential & Key Store; the mnemonic and device keypair flat files
// are "(b)", implemented in internal/account/storage.
package credstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"mistveil-core/internal/model"
)

// StalePendingRequestAge is the sweep threshold from §4.4: rows older than
// this are removed on every RequestZkNym invocation.
const StalePendingRequestAge = 60 * 24 * time.Hour

// Store wraps the pending_credential_requests.db SQLite file (§6) in
// WAL mode, holding both the pending_requests table and the ticketbooks
// table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite file at path and ensures the
// schema exists. File permissions are the caller's responsibility (§4.4:
// "per-user file permissions 0600 on Unix" — enforced by the caller
// creating the parent directory/file before Open, since database/sql has
// no portable chmod hook).
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: serialize writes ourselves

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS pending_requests (
	id TEXT PRIMARY KEY,
	expiration_date TEXT,
	request_info BLOB,
	created_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS ticketbooks (
	id TEXT PRIMARY KEY,
	type INTEGER NOT NULL,
	expiration_date TEXT NOT NULL,
	issued_tickets INTEGER NOT NULL,
	claimed_tickets INTEGER NOT NULL,
	ticket_size INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS verification_keys (
	epoch INTEGER NOT NULL,
	gateway_type INTEGER NOT NULL,
	key_material BLOB NOT NULL,
	PRIMARY KEY (epoch, gateway_type)
);
`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("migrate credential store: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
