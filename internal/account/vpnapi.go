package account

import (
	"context"
	"fmt"

	"mistveil-core/internal/model"
)

// VpnApi is the remote account/device/credential backend (§1: "the gateway
// directory query format" and the vpn-api wire protocol are out of scope;
// we specify only how the core consumes it). A concrete implementation
// would POST/GET against the nym-vpn-api; tests and the daemon wiring in
// this repo supply their own.
type VpnApi interface {
	SyncAccountState(ctx context.Context, mnemonic string) (model.AccountSummary, error)
	SyncDeviceState(ctx context.Context, deviceIdentity string) (model.DeviceState, error)
	RegisterDevice(ctx context.Context, deviceIdentity string) error
	UnregisterDevice(ctx context.Context, deviceIdentity string) error
	GetUsage(ctx context.Context) (model.AccountSummary, error)
	GetDevices(ctx context.Context) ([]string, error)
	GetActiveDevices(ctx context.Context) ([]string, error)

	// RequestTicketbook runs one zk-nym issuance round-trip for typ: POST
	// the blinded request, poll for issuance, fetch partial verification
	// keys, and aggregate the wallet (§4.2 step 3 (b)-(f) collapsed into one
	// call since the real protocol is out of scope here).
	RequestTicketbook(ctx context.Context, req BlindedWithdrawalRequest, typ model.TicketbookType) (model.Ticketbook, error)
}

// vpnApiError wraps a VpnApi failure as the tagged payload the rest of the
// system expects to see on AccountCommandError.Endpoint (§7 "VpnApi{message,
// message_id, code_reference_id}").
func vpnApiError(err error) *model.VpnApiEndpointFailure {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &model.VpnApiEndpointFailure{Message: msg}
}

func wrapEndpointFailure(kind model.AccountCommandErrorKind, err error) *model.AccountCommandError {
	return &model.AccountCommandError{Kind: kind, Endpoint: vpnApiError(err), Message: fmt.Sprintf("%v", err)}
}
