package main

import (
	"context"
	"fmt"

	"mistveil-core/internal/account"
	"mistveil-core/internal/model"
)

// commanderCredentialSource adapts account.Commander to
// wireguard.CredentialSource: redeeming a ticket is, at this layer, a
// local availability check against the credential store (the actual
// gateway-authenticator exchange that consumes the ticket is out of
// scope, per spec.md §1 "the ecash scheme").
type commanderCredentialSource struct {
	commander *account.Commander
}

func newCommanderCredentialSource(c *account.Commander) *commanderCredentialSource {
	return &commanderCredentialSource{commander: c}
}

func (c *commanderCredentialSource) RedeemTicket(ctx context.Context, gatewayID string, typ model.TicketbookType) error {
	avail, err := c.commander.GetAvailableTickets(ctx)
	if err != nil {
		return fmt.Errorf("credential source: %w", err)
	}
	if avail.Remaining[typ] == 0 {
		return fmt.Errorf("credential source: no %s tickets available for %s", typ, gatewayID)
	}
	return nil
}
