package statemachine

import "context"

// runOffline waits for connectivity to return. If reconnect is true, an
// Online transition moves straight to Connecting (preserving any gateways
// remembered from the session that just dropped); otherwise it returns to
// Disconnected (§4.1: "Online↑: if rc →Connecting else →Disconnected").
func (m *Machine) runOffline(ctx context.Context, reconnect bool) transition {
	for {
		select {
		case <-ctx.Done():
			return toDisconnected()

		case cmd := <-m.Cmds:
			switch c := cmd.(type) {
			case ConnectCommand:
				reply(c.Reply, nil)
				reconnect = true
			case DisconnectCommand:
				reply(c.Reply, nil)
				reconnect = false
			case SetTunnelSettingsCommand:
				m.Shared.SetTunnelSettings(c.Settings)
				reply(c.Reply, nil)
			}

		case conn, ok := <-m.offlineCh:
			if !ok {
				continue
			}
			if !conn.Offline() {
				if reconnect {
					return toConnecting(0)
				}
				return toDisconnected()
			}
		}
	}
}
