package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectedGatewaysRejectsSameID(t *testing.T) {
	g := Gateway{ID: "same"}
	_, err := NewSelectedGateways(g, g)
	require.ErrorIs(t, err, ErrSameEntryAndExitGateway)
}

func TestNewSelectedGatewaysAllowsDistinctIDs(t *testing.T) {
	entry := Gateway{ID: "entry"}
	exit := Gateway{ID: "exit"}
	sel, err := NewSelectedGateways(entry, exit)
	require.NoError(t, err)
	assert.Equal(t, entry, sel.Entry)
	assert.Equal(t, exit, sel.Exit)
}

func TestTicketbookRemaining(t *testing.T) {
	tb := Ticketbook{IssuedTickets: 50, ClaimedTickets: 20}
	assert.Equal(t, uint32(30), tb.Remaining())

	overclaimed := Ticketbook{IssuedTickets: 10, ClaimedTickets: 15}
	assert.Equal(t, uint32(0), overclaimed.Remaining())
}

func TestTicketbookExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expired := Ticketbook{ExpirationDate: now.Add(-time.Hour)}
	assert.True(t, expired.Expired(now))

	valid := Ticketbook{ExpirationDate: now.Add(time.Hour)}
	assert.False(t, valid.Expired(now))
}

func TestAvailableTicketbooksRunningLowBoundary(t *testing.T) {
	at30 := AvailableTicketbooks{Remaining: map[TicketbookType]uint32{TicketbookV1MixnetEntry: 30}}
	assert.True(t, at30.RunningLow(TicketbookV1MixnetEntry), "exactly 30 must count as running low")

	at31 := AvailableTicketbooks{Remaining: map[TicketbookType]uint32{TicketbookV1MixnetEntry: 31}}
	assert.False(t, at31.RunningLow(TicketbookV1MixnetEntry), "31 must not count as running low")
}

func TestAvailableTicketbooksAllAboveThreshold(t *testing.T) {
	sufficient := AvailableTicketbooks{Remaining: map[TicketbookType]uint32{
		TicketbookV1MixnetEntry:    31,
		TicketbookV1WireguardEntry: 31,
		TicketbookV1WireguardExit:  31,
	}}
	assert.True(t, sufficient.AllAboveThreshold())

	lacking := sufficient
	lacking.Remaining = map[TicketbookType]uint32{
		TicketbookV1MixnetEntry:    31,
		TicketbookV1WireguardEntry: 5,
		TicketbookV1WireguardExit:  31,
	}
	assert.False(t, lacking.AllAboveThreshold())
}

func TestConnectedRequiresConnectedAt(t *testing.T) {
	now := time.Now()
	cd := ConnectionData{ConnectedAt: &now}
	state := Connected(cd)
	require.Equal(t, StateConnected, state.Kind)
	require.NotNil(t, state.ConnectionData.ConnectedAt)
}
