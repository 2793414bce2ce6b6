package credstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mistveil-core/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "pending_credential_requests.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTicketbookRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tb := model.Ticketbook{
		ID:             "tb-1",
		Type:           model.TicketbookV1WireguardEntry,
		ExpirationDate: time.Now().Add(30 * 24 * time.Hour),
		IssuedTickets:  50,
		ClaimedTickets: 10,
		TicketSize:     1024,
	}
	require.NoError(t, s.InsertIssuedTicketbook(ctx, tb))

	all, err := s.GetTicketbooksInfo(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "tb-1", all[0].ID)
	assert.Equal(t, uint32(40), all[0].Remaining())
}

func TestPendingRequestStaleSweep(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.InsertPendingRequest(ctx, PendingRequest{
		ID: "old", CreatedAt: now.Add(-61 * 24 * time.Hour),
	}))
	require.NoError(t, s.InsertPendingRequest(ctx, PendingRequest{
		ID: "fresh", CreatedAt: now.Add(-1 * time.Hour),
	}))

	removed, err := s.CleanUpStaleRequests(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	remaining, err := s.GetPendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "fresh", remaining[0].ID)
}

func TestAvailableTicketbooksExcludesExpired(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.InsertIssuedTicketbook(ctx, model.Ticketbook{
		ID: "valid", Type: model.TicketbookV1MixnetEntry,
		ExpirationDate: now.Add(24 * time.Hour), IssuedTickets: 40,
	}))
	require.NoError(t, s.InsertIssuedTicketbook(ctx, model.Ticketbook{
		ID: "expired", Type: model.TicketbookV1MixnetEntry,
		ExpirationDate: now.Add(-24 * time.Hour), IssuedTickets: 40,
	}))

	avail, err := s.AvailableTicketbooks(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, uint32(40), avail.Remaining[model.TicketbookV1MixnetEntry])
}
