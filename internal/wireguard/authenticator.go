package wireguard

import (
	"context"
	"fmt"
	"time"

	"mistveil-core/internal/model"
)

// CredentialSource redeems one ticketbook ticket for bandwidth on a given
// gateway. The real exchange (a zk-nym shown to the gateway's authenticator
// service) is out of scope (spec.md §1 "the ecash scheme"); this is the
// seam the account controller's Commander is wired into at daemon startup.
type CredentialSource interface {
	RedeemTicket(ctx context.Context, gatewayID string, typ model.TicketbookType) error
}

// freeCredentialSource is used when EnableCredentialsMode is off: every
// gateway grants bandwidth without a ticket (§4.6 "free variants if
// credentials mode is off").
type freeCredentialSource struct{}

func (freeCredentialSource) RedeemTicket(ctx context.Context, gatewayID string, typ model.TicketbookType) error {
	return nil
}

// wgGatewayClient requests and tops up bandwidth on one gateway through its
// authenticator service (§4.6 step 3-5).
type wgGatewayClient struct {
	gatewayID  string
	ticketType model.TicketbookType
	credential CredentialSource
}

func newWgGatewayClient(gatewayID string, typ model.TicketbookType, credentialsMode bool, cred CredentialSource) *wgGatewayClient {
	if !credentialsMode || cred == nil {
		cred = freeCredentialSource{}
	}
	return &wgGatewayClient{gatewayID: gatewayID, ticketType: typ, credential: cred}
}

// requestInitialBandwidth performs the gateway's first bandwidth grant
// (§4.6 step 5 "requests initial bandwidth on both gateways concurrently").
func (w *wgGatewayClient) requestInitialBandwidth(ctx context.Context) error {
	if err := w.credential.RedeemTicket(ctx, w.gatewayID, w.ticketType); err != nil {
		return fmt.Errorf("wireguard: initial bandwidth request to %s: %w", w.gatewayID, err)
	}
	return nil
}

// topUp redeems one more ticket for bandwidth; BandwidthController calls it
// on every poll tick without checking the remaining allowance first.
func (w *wgGatewayClient) topUp(ctx context.Context) error {
	return w.credential.RedeemTicket(ctx, w.gatewayID, w.ticketType)
}

// BandwidthPollInterval is how often the background controller tops up
// both gateways.
const BandwidthPollInterval = 30 * time.Second
