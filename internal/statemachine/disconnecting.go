package statemachine

import (
	"context"

	"mistveil-core/internal/model"
)

// runDisconnecting tears the tunnel down and then executes the queued
// after-disconnect action. A further Connect/Disconnect arriving mid-
// teardown mutates that queued action rather than starting a second
// teardown; SetTunnelSettings is buffered (applied at the next Connecting
// entry via SharedState, already stored when the command is accepted).
//
// Teardown always runs to completion even if ctx is already cancelled
// (§9: "Disconnecting proceeds to completion on shutdown regardless").
func (m *Machine) runDisconnecting(ctx context.Context, after model.AfterDisconnect, retryAttempt int, reason model.ErrorStateReason) transition {
	doneCh := make(chan struct{})
	go func() {
		m.teardown(context.Background())
		close(doneCh)
	}()

	for {
		select {
		case cmd := <-m.Cmds:
			switch c := cmd.(type) {
			case ConnectCommand:
				reply(c.Reply, nil)
				after = model.AfterDisconnectReconnect
			case DisconnectCommand:
				reply(c.Reply, nil)
				after = model.AfterDisconnectNothing
			case SetTunnelSettingsCommand:
				m.Shared.SetTunnelSettings(c.Settings)
				reply(c.Reply, nil)
			}

		case <-doneCh:
			return m.executeAfterDisconnect(after, retryAttempt, reason)
		}
	}
}

// teardown resets DNS (before the interface disappears), removes routes,
// closes the tunnel session, resets the firewall to its neutral policy,
// and unsets any static gateway addresses held by the account controller
// — in that order, matching the restored Disconnecting algorithm (§5.1).
func (m *Machine) teardown(ctx context.Context) {
	if m.Shared.DNSMonitor != nil {
		m.Shared.DNSMonitor.ResetBeforeInterfaceRemoval(ctx)
	}
	if m.Shared.RouteHandler != nil {
		m.Shared.RouteHandler.RemoveRoutes(ctx)
	}
	if session := m.Shared.currentSession(); session != nil {
		session.Close(ctx)
		m.Shared.clearSession()
	}
	if m.Shared.Firewall != nil {
		m.Shared.Firewall.ResetPolicy(ctx)
	}
	if m.Shared.Account != nil {
		m.Shared.Account.SetStaticAPIAddresses(ctx, nil)
	}
}

func (m *Machine) executeAfterDisconnect(after model.AfterDisconnect, retryAttempt int, reason model.ErrorStateReason) transition {
	switch after {
	case model.AfterDisconnectReconnect:
		return toConnecting(retryAttempt)
	case model.AfterDisconnectOffline:
		return toOffline(true)
	case model.AfterDisconnectError:
		return toError(reason)
	default:
		m.Shared.clearSelectedGateways()
		return toDisconnected()
	}
}
