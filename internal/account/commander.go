package account

import (
	"context"
	"fmt"

	"mistveil-core/internal/model"
)

// Commander is the public handle to a running Controller: every method
// dispatches a command onto the controller's single task and waits for its
// reply (or ctx cancellation). It satisfies statemachine.AccountReadyChecker
// without the statemachine package importing internal/account.
type Commander struct {
	ctrl *Controller
}

// NewCommander wraps ctrl. ctrl.Run must already be scheduled in its own
// goroutine.
func NewCommander(ctrl *Controller) *Commander {
	return &Commander{ctrl: ctrl}
}

func (m *Commander) submit(ctx context.Context, cmd *command) (commandResult, error) {
	select {
	case m.ctrl.cmds <- cmd:
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res, nil
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	}
}

// WaitForAccountReadyToConnect satisfies statemachine.AccountReadyChecker
// (§4.1 step 1).
func (m *Commander) WaitForAccountReadyToConnect(ctx context.Context, credentialsMode bool) error {
	cmd := newCommand(kindWaitForAccountReady)
	cmd.credentialsMode = credentialsMode
	res, err := m.submit(ctx, cmd)
	if err != nil {
		return err
	}
	return res.Err
}

// SetStaticAPIAddresses satisfies statemachine.AccountReadyChecker; it is
// fire-and-forget on the wire but the local dispatch still waits for
// acknowledgement so callers can rely on ordering against a following
// SetStaticAPIAddresses(nil) on Disconnecting.
func (m *Commander) SetStaticAPIAddresses(ctx context.Context, addrs []string) error {
	cmd := newCommand(kindSetStaticApiAddresses)
	cmd.staticAddrs = addrs
	_, err := m.submit(ctx, cmd)
	return err
}

// StoreAccount persists a recovery mnemonic and runs the login pipeline.
func (m *Commander) StoreAccount(ctx context.Context, mnemonic string) error {
	cmd := newCommand(kindStoreAccount)
	cmd.mnemonic = mnemonic
	res, err := m.submit(ctx, cmd)
	if err != nil {
		return err
	}
	return res.Err
}

// ForgetAccount wipes the local account (§4.2, §8 scenario 6).
func (m *Commander) ForgetAccount(ctx context.Context) error {
	res, err := m.submit(ctx, newCommand(kindForgetAccount))
	if err != nil {
		return err
	}
	return res.Err
}

// RegisterDevice registers the device identity with the remote vpn-api.
func (m *Commander) RegisterDevice(ctx context.Context) error {
	res, err := m.submit(ctx, newCommand(kindRegisterDevice))
	if err != nil {
		return err
	}
	return res.Err
}

// RequestZkNym runs the zk-nym issuance pipeline explicitly (§4.2 step 1-4).
func (m *Commander) RequestZkNym(ctx context.Context) (successes []string, failed []error, err error) {
	res, err := m.submit(ctx, newCommand(kindRequestZkNym))
	if err != nil {
		return nil, nil, err
	}
	return res.Successes, res.Failed, res.Err
}

// GetDeviceIdentity returns the device's identity string, or "" if no
// device keypair exists yet.
func (m *Commander) GetDeviceIdentity(ctx context.Context) (string, error) {
	res, err := m.submit(ctx, newCommand(kindGetDeviceIdentity))
	if err != nil {
		return "", err
	}
	return res.DeviceIdentity, nil
}

// GetUsage fetches the account's fair-usage summary.
func (m *Commander) GetUsage(ctx context.Context) (model.AccountSummary, error) {
	res, err := m.submit(ctx, newCommand(kindGetUsage))
	if err != nil {
		return model.AccountSummary{}, err
	}
	if res.Err != nil {
		return model.AccountSummary{}, res.Err
	}
	if res.AccountSummary == nil {
		return model.AccountSummary{}, fmt.Errorf("account: empty usage reply")
	}
	return *res.AccountSummary, nil
}

// GetDevices lists every device registered to the account.
func (m *Commander) GetDevices(ctx context.Context) ([]string, error) {
	res, err := m.submit(ctx, newCommand(kindGetDevices))
	if err != nil {
		return nil, err
	}
	return res.Devices, res.Err
}

// GetActiveDevices lists devices currently connected.
func (m *Commander) GetActiveDevices(ctx context.Context) ([]string, error) {
	res, err := m.submit(ctx, newCommand(kindGetActiveDevices))
	if err != nil {
		return nil, err
	}
	return res.Devices, res.Err
}

// GetAvailableTickets reports per-type remaining, non-expired ticket counts.
func (m *Commander) GetAvailableTickets(ctx context.Context) (model.AvailableTicketbooks, error) {
	res, err := m.submit(ctx, newCommand(kindGetAvailableTickets))
	if err != nil {
		return model.AvailableTicketbooks{}, err
	}
	return res.AvailableTickets, res.Err
}

// GetZkNymsAvailableForDownload lists every stored ticketbook.
func (m *Commander) GetZkNymsAvailableForDownload(ctx context.Context) ([]model.Ticketbook, error) {
	res, err := m.submit(ctx, newCommand(kindGetZkNymsForDownload))
	if err != nil {
		return nil, err
	}
	return res.Ticketbooks, res.Err
}

// GetDeviceZkNym lists the ticketbooks associated with this device.
func (m *Commander) GetDeviceZkNym(ctx context.Context) ([]model.Ticketbook, error) {
	res, err := m.submit(ctx, newCommand(kindGetDeviceZkNym))
	if err != nil {
		return nil, err
	}
	return res.Ticketbooks, res.Err
}

// GetZkNymByID fetches a single stored ticketbook by id.
func (m *Commander) GetZkNymByID(ctx context.Context, id string) (model.Ticketbook, error) {
	cmd := newCommand(kindGetZkNymByID)
	cmd.ticketbookID = id
	res, err := m.submit(ctx, cmd)
	if err != nil {
		return model.Ticketbook{}, err
	}
	if res.Err != nil {
		return model.Ticketbook{}, res.Err
	}
	return *res.Ticketbook, nil
}

// ConfirmZkNymIdDownloaded acknowledges a ticketbook was fetched by the
// caller, for telemetry/logging purposes.
func (m *Commander) ConfirmZkNymIdDownloaded(ctx context.Context, id string) error {
	cmd := newCommand(kindConfirmZkNymDownloaded)
	cmd.ticketbookID = id
	_, err := m.submit(ctx, cmd)
	return err
}
