package credstore

import (
	"context"
	"fmt"
	"time"

	"mistveil-core/internal/model"
)

// InsertIssuedTicketbook records a newly-issued ticketbook (§4.2 step 3g).
func (s *Store) InsertIssuedTicketbook(ctx context.Context, tb model.Ticketbook) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticketbooks (id, type, expiration_date, issued_tickets, claimed_tickets, ticket_size)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tb.ID, int(tb.Type), tb.ExpirationDate.Format(time.RFC3339), tb.IssuedTickets, tb.ClaimedTickets, tb.TicketSize,
	)
	if err != nil {
		return fmt.Errorf("insert ticketbook: %w", err)
	}
	return nil
}

// GetTicketbooksInfo returns every stored ticketbook.
func (s *Store) GetTicketbooksInfo(ctx context.Context) ([]model.Ticketbook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, expiration_date, issued_tickets, claimed_tickets, ticket_size FROM ticketbooks`)
	if err != nil {
		return nil, fmt.Errorf("query ticketbooks: %w", err)
	}
	defer rows.Close()

	var out []model.Ticketbook
	for rows.Next() {
		var (
			tb         model.Ticketbook
			typ        int
			expiration string
		)
		if err := rows.Scan(&tb.ID, &typ, &expiration, &tb.IssuedTickets, &tb.ClaimedTickets, &tb.TicketSize); err != nil {
			return nil, fmt.Errorf("scan ticketbook: %w", err)
		}
		tb.Type = model.TicketbookType(typ)
		parsed, err := time.Parse(time.RFC3339, expiration)
		if err != nil {
			return nil, fmt.Errorf("parse ticketbook expiration: %w", err)
		}
		tb.ExpirationDate = parsed
		out = append(out, tb)
	}
	return out, rows.Err()
}

// AvailableTicketbooks computes per-type remaining counts as of now,
// excluding expired ticketbooks (§3: "A ticketbook with expiration <= today
// is expired and does not count toward the threshold").
func (s *Store) AvailableTicketbooks(ctx context.Context, now time.Time) (model.AvailableTicketbooks, error) {
	all, err := s.GetTicketbooksInfo(ctx)
	if err != nil {
		return model.AvailableTicketbooks{}, err
	}
	result := model.AvailableTicketbooks{Remaining: make(map[model.TicketbookType]uint32)}
	for _, tb := range all {
		if tb.Expired(now) {
			continue
		}
		result.Remaining[tb.Type] += tb.Remaining()
	}
	return result, nil
}

// DeleteAll removes every ticketbook and pending request row, used by
// ForgetAccount's credential-storage reset. The database stays open, its
// file is not deleted, and the verification_keys table is left as it is.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ticketbooks`); err != nil {
		return fmt.Errorf("delete ticketbooks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_requests`); err != nil {
		return fmt.Errorf("delete pending requests: %w", err)
	}
	return nil
}
