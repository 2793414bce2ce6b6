package credstore

import (
	"context"
	"fmt"
	"time"
)

// PendingRequest is a zk-nym request that was started (a blinded
// withdrawal request built and POSTed) but not yet completed into a
// ticketbook (§4.2 RequestZkNym pipeline step 2: "resume any previously
// pending requests").
type PendingRequest struct {
	ID             string
	ExpirationDate string
	RequestInfo    []byte
	CreatedAt      time.Time
}

// InsertPendingRequest persists a pending request row.
func (s *Store) InsertPendingRequest(ctx context.Context, req PendingRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_requests (id, expiration_date, request_info, created_at) VALUES (?, ?, ?, ?)`,
		req.ID, req.ExpirationDate, req.RequestInfo, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pending request: %w", err)
	}
	return nil
}

// GetPendingRequests returns every pending request row.
func (s *Store) GetPendingRequests(ctx context.Context) ([]PendingRequest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, expiration_date, request_info, created_at FROM pending_requests`)
	if err != nil {
		return nil, fmt.Errorf("query pending requests: %w", err)
	}
	defer rows.Close()

	var out []PendingRequest
	for rows.Next() {
		var r PendingRequest
		if err := rows.Scan(&r.ID, &r.ExpirationDate, &r.RequestInfo, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RemovePendingRequest deletes a pending request row once it has been
// resolved into a ticketbook (§4.2 step 3h).
func (s *Store) RemovePendingRequest(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove pending request: %w", err)
	}
	return nil
}

// CleanUpStaleRequests removes pending request rows older than
// StalePendingRequestAge, as of now. Called on every RequestZkNym
// invocation (§4.4).
func (s *Store) CleanUpStaleRequests(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-StalePendingRequestAge)
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_requests WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clean up stale pending requests: %w", err)
	}
	return res.RowsAffected()
}
