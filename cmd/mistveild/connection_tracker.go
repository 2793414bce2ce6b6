package main

import (
	"sync/atomic"

	"mistveil-core/internal/corelog"
	"mistveil-core/internal/model"
)

// connectionTracker subscribes to the event bus and keeps a lock-free flag
// of whether the tunnel is currently up, backing account.Controller's
// ForgetAccount guard (§8 scenario 6: "Forget while connected" refuses with
// IsConnected). It treats Connecting/Connected/Disconnecting as "connected"
// so a forget mid-teardown is still refused.
type connectionTracker struct {
	connected atomic.Bool
}

func newConnectionTracker(events *corelog.EventBus) *connectionTracker {
	t := &connectionTracker{}
	sub := events.Subscribe(16)
	go func() {
		for raw := range sub.Events {
			ev, ok := raw.(model.TunnelEvent)
			if !ok || ev.Kind != model.TunnelEventNewState {
				continue
			}
			switch ev.State.Kind {
			case model.StateConnecting, model.StateConnected, model.StateDisconnecting:
				t.connected.Store(true)
			default:
				t.connected.Store(false)
			}
		}
	}()
	return t
}

func (t *connectionTracker) isConnected() bool { return t.connected.Load() }
