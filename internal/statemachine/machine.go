package statemachine

import (
	"context"

	"mistveil-core/internal/model"
	"mistveil-core/internal/platform"
)

// Machine drives tunnel lifecycle transitions on a single goroutine (§4.1,
// §5: "the state machine is a single task with exclusive access to
// SharedState; it never parks on a lock held elsewhere").
type Machine struct {
	Shared *SharedState
	Cmds   <-chan Command

	offlineCh chan platform.Connectivity
}

// NewMachine constructs a Machine. Run must be called to drive it.
func NewMachine(shared *SharedState, cmds <-chan Command) *Machine {
	return &Machine{Shared: shared, Cmds: cmds}
}

// Run executes the transition loop until ctx is cancelled, publishing one
// TunnelState per distinct state reached (§4.1).
func (m *Machine) Run(ctx context.Context) {
	if m.Shared.OfflineMonitor != nil {
		m.offlineCh = make(chan platform.Connectivity)
		go m.forwardOffline(ctx)
	}

	t := toDisconnected()
	for {
		m.publish(t)
		if ctx.Err() != nil {
			return
		}
		switch t.kind {
		case model.StateDisconnected:
			t = m.runDisconnected(ctx)
		case model.StateConnecting:
			t = m.runConnecting(ctx, t.retryAttempt)
		case model.StateConnected:
			t = m.runConnected(ctx, *t.connectionData)
		case model.StateDisconnecting:
			t = m.runDisconnecting(ctx, t.after, t.retryAttempt, t.reason)
		case model.StateError:
			t = m.runError(ctx, t.reason)
		case model.StateOffline:
			t = m.runOffline(ctx, t.offlineReconnect)
		default:
			return
		}
	}
}

func (m *Machine) publish(t transition) {
	if m.Shared.Events == nil {
		return
	}
	state := t.toTunnelState()
	m.Shared.Events.Publish(model.TunnelEvent{Kind: model.TunnelEventNewState, State: state})
}

func (m *Machine) forwardOffline(ctx context.Context) {
	for {
		c, ok := m.Shared.OfflineMonitor.Next(ctx)
		if !ok {
			return
		}
		select {
		case m.offlineCh <- c:
		case <-ctx.Done():
			return
		}
	}
}

func (m *Machine) isOnline(ctx context.Context) bool {
	if m.Shared.OfflineMonitor == nil {
		return true
	}
	return !m.Shared.OfflineMonitor.Connectivity(ctx).Offline()
}
