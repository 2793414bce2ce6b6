package statemachine

import (
	"context"

	"mistveil-core/internal/model"
)

// runConnected holds the live tunnel and reacts to Disconnect, a settings
// change, a monitor-down event, or a loss of connectivity.
func (m *Machine) runConnected(ctx context.Context, cd model.ConnectionData) transition {
	session := m.Shared.currentSession()
	settings := m.Shared.TunnelSettings()

	var monitorEvents <-chan MonitorEvent
	if session != nil {
		monitorEvents = session.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return toDisconnected()

		case cmd := <-m.Cmds:
			switch c := cmd.(type) {
			case ConnectCommand:
				reply(c.Reply, nil) // already connected, no-op

			case DisconnectCommand:
				reply(c.Reply, nil)
				return toDisconnecting(model.AfterDisconnectNothing, 0)

			case SetTunnelSettingsCommand:
				changed := settingsChanged(settings, c.Settings)
				m.Shared.SetTunnelSettings(c.Settings)
				reply(c.Reply, nil)
				if changed {
					m.Shared.clearSelectedGateways()
					return toDisconnecting(model.AfterDisconnectReconnect, 0)
				}
			}

		case ev, ok := <-monitorEvents:
			if !ok {
				return toDisconnecting(model.AfterDisconnectReconnect, 0)
			}
			if ev.Kind == MonitorDown {
				reason := classifyConnectError(ev.Reason)
				if isRetryable(reason) {
					return toDisconnecting(model.AfterDisconnectReconnect, 0)
				}
				return toDisconnectingWithReason(0, reason)
			}

		case conn, ok := <-m.offlineCh:
			if ok && conn.Offline() {
				return toDisconnecting(model.AfterDisconnectOffline, 0)
			}
		}
	}
}

// settingsChanged reports whether a new TunnelSettings value requires
// tearing the tunnel down and reconnecting (§4.1: "reconnect if changed").
// Fields that only take effect on the next Connecting entry regardless
// (e.g. EnableCredentialsMode, which is consulted fresh by the ready-gate)
// still count, since a live tunnel's identity depends on all of them.
func settingsChanged(old, updated model.TunnelSettings) bool {
	if old.TunnelType != updated.TunnelType {
		return true
	}
	if old.EntryPoint != updated.EntryPoint {
		return true
	}
	if old.ExitPoint != updated.ExitPoint {
		return true
	}
	if old.EnableCredentialsMode != updated.EnableCredentialsMode {
		return true
	}
	return false
}
