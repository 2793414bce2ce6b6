package statemachine

import (
	"time"

	"mistveil-core/internal/model"
)

// transition is the internal representation of "what state to run next",
// carrying whatever extra data that state needs (retry counters, the
// queued after-disconnect action, the error reason, connection data).
type transition struct {
	kind model.TunnelStateKind

	retryAttempt int // valid for StateConnecting

	after model.AfterDisconnect // valid for StateDisconnecting

	reason model.ErrorStateReason // valid for StateError

	offlineReconnect bool // valid for StateOffline

	connectionData *model.ConnectionData // valid for StateConnecting/StateConnected
}

func toDisconnected() transition { return transition{kind: model.StateDisconnected} }

func toConnecting(retryAttempt int) transition {
	return transition{kind: model.StateConnecting, retryAttempt: retryAttempt}
}

// toConnected stamps ConnectedAt, the single point where the machine
// actually enters Connected (model.ConnectionData's contract: "set exactly
// once, when the machine enters Connected").
func toConnected(cd model.ConnectionData) transition {
	now := time.Now()
	cd.ConnectedAt = &now
	return transition{kind: model.StateConnected, connectionData: &cd}
}

func toDisconnecting(after model.AfterDisconnect, retryAttempt int) transition {
	return transition{kind: model.StateDisconnecting, after: after, retryAttempt: retryAttempt}
}

// toDisconnectingWithReason is toDisconnecting for after == AfterDisconnectError,
// carrying the reason Disconnecting must hand to the Error state once
// teardown completes.
func toDisconnectingWithReason(retryAttempt int, reason model.ErrorStateReason) transition {
	return transition{kind: model.StateDisconnecting, after: model.AfterDisconnectError, retryAttempt: retryAttempt, reason: reason}
}

func toError(reason model.ErrorStateReason) transition {
	return transition{kind: model.StateError, reason: reason}
}

func toOffline(reconnect bool) transition {
	return transition{kind: model.StateOffline, offlineReconnect: reconnect}
}

func (t transition) toTunnelState() model.TunnelState {
	switch t.kind {
	case model.StateDisconnected:
		return model.Disconnected()
	case model.StateConnecting:
		return model.Connecting(t.connectionData)
	case model.StateConnected:
		return model.Connected(*t.connectionData)
	case model.StateDisconnecting:
		return model.Disconnecting(t.after)
	case model.StateError:
		return model.ErrorState(t.reason)
	case model.StateOffline:
		return model.Offline(t.offlineReconnect)
	default:
		return model.Disconnected()
	}
}
