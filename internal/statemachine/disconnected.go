package statemachine

import "context"

// runDisconnected is the idle state: it waits for Connect, an offline
// transition, or a settings update.
func (m *Machine) runDisconnected(ctx context.Context) transition {
	for {
		select {
		case <-ctx.Done():
			return toDisconnected()

		case cmd := <-m.Cmds:
			switch c := cmd.(type) {
			case ConnectCommand:
				reply(c.Reply, nil)
				if m.isOnline(ctx) {
					return toConnecting(0)
				}
				return toOffline(true)
			case DisconnectCommand:
				reply(c.Reply, nil)
			case SetTunnelSettingsCommand:
				m.Shared.SetTunnelSettings(c.Settings)
				reply(c.Reply, nil)
			}

		case conn, ok := <-m.offlineCh:
			if ok && conn.Offline() {
				return toOffline(false)
			}
		}
	}
}
