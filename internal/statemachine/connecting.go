package statemachine

import (
	"context"

	"mistveil-core/internal/model"
)

// runConnecting runs the Connecting algorithm (§4.1) in a cancellable
// goroutine while remaining responsive to Disconnect, SetTunnelSettings,
// and offline transitions arriving mid-attempt.
func (m *Machine) runConnecting(ctx context.Context, retryAttempt int) transition {
	connectCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan connectResult, 1)
	go func() {
		resultCh <- m.connect(connectCtx)
	}()

	for {
		select {
		case <-ctx.Done():
			cancel()
			<-resultCh
			return toDisconnected()

		case cmd := <-m.Cmds:
			switch c := cmd.(type) {
			case ConnectCommand:
				reply(c.Reply, nil) // already connecting, no-op

			case DisconnectCommand:
				reply(c.Reply, nil)
				cancel()
				<-resultCh
				return toDisconnecting(model.AfterDisconnectNothing, 0)

			case SetTunnelSettingsCommand:
				m.Shared.SetTunnelSettings(c.Settings)
				reply(c.Reply, nil)
				cancel()
				<-resultCh
				m.Shared.clearSelectedGateways()
				return toDisconnecting(model.AfterDisconnectReconnect, 0)
			}

		case conn, ok := <-m.offlineCh:
			if ok && conn.Offline() {
				cancel()
				<-resultCh
				return toDisconnecting(model.AfterDisconnectOffline, retryAttempt)
			}

		case res := <-resultCh:
			if res.err != nil {
				reason := classifyConnectError(res.err)
				if isRetryable(reason) {
					next := retryAttempt + 1
					if next >= m.Shared.retryCap() {
						return toError(reason)
					}
					return toDisconnecting(model.AfterDisconnectReconnect, next)
				}
				// OS-integration failures may have already installed routes,
				// firewall rules, or a DNS override; route through
				// Disconnecting so teardown reverts them before Error.
				return toDisconnectingWithReason(retryAttempt, reason)
			}
			m.Shared.preserveSelectedGateways(res.selected)
			m.Shared.setSession(res.session)
			return toConnected(res.session.ConnectionData())
		}
	}
}
