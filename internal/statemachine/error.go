package statemachine

import (
	"context"

	"mistveil-core/internal/model"
	"mistveil-core/internal/platform"
)

// runError is the sticky terminal state entered after an unrecoverable
// failure. It installs a Blocked firewall policy (reproducing the reason
// a Connected session's routes/DNS/firewall were just torn down) and waits
// for an explicit Connect or Disconnect; SetTunnelSettings is buffered
// (§4.1: "Error(r) ... SetTunnelSettings: buffer").
func (m *Machine) runError(ctx context.Context, reason model.ErrorStateReason) transition {
	if m.Shared.Firewall != nil {
		m.Shared.Firewall.ApplyBlockedPolicy(ctx, platform.BlockedFirewallPolicy{AllowLAN: m.Shared.TunnelSettings().AllowLAN})
	}

	for {
		select {
		case <-ctx.Done():
			return toDisconnected()

		case cmd := <-m.Cmds:
			switch c := cmd.(type) {
			case ConnectCommand:
				reply(c.Reply, nil)
				if m.Shared.Firewall != nil {
					m.Shared.Firewall.ResetPolicy(ctx)
				}
				m.Shared.clearSelectedGateways()
				if m.isOnline(ctx) {
					return toConnecting(0)
				}
				return toOffline(true)

			case DisconnectCommand:
				reply(c.Reply, nil)
				if m.Shared.Firewall != nil {
					m.Shared.Firewall.ResetPolicy(ctx)
				}
				m.Shared.clearSelectedGateways()
				if m.isOnline(ctx) {
					return toDisconnected()
				}
				return toOffline(false)

			case SetTunnelSettingsCommand:
				m.Shared.SetTunnelSettings(c.Settings)
				reply(c.Reply, nil)
			}
		}
	}
}
