package statemachine

import (
	"sync"

	"mistveil-core/internal/corelog"
	"mistveil-core/internal/model"
	"mistveil-core/internal/platform"
)

// SharedState is the machine's mutable state, exclusively owned by the
// single state-machine task (§4.1, §5). No other goroutine ever mutates
// it; reads from outside happen only through the command channel or the
// published event stream.
type SharedState struct {
	mu       sync.Mutex
	settings model.TunnelSettings

	RouteHandler   platform.RouteHandler
	DNSMonitor     platform.DNSMonitor
	Firewall       platform.Firewall
	OfflineMonitor platform.OfflineMonitor

	Account  AccountReadyChecker
	Gateways GatewaySelector

	MixnetConstructor    TunnelConstructor
	WireguardConstructor TunnelConstructor

	Events *corelog.EventBus
	Log    *corelog.Logger

	// RetryCap bounds the number of consecutive Reconnect attempts (§4.1
	// retry policy); defaults to DefaultRetryCap if zero. Each Reconnect
	// re-enters Connecting immediately, with no delay between attempts.
	RetryCap int

	// session and selected are only touched from the machine's own
	// goroutine but kept behind the same struct for locality; the mutex
	// only guards Settings, which SetTunnelSettings may update from the
	// command-dispatch path concurrently with a read in Connecting.
	session  TunnelSession
	selected *model.SelectedGateways
}

// DefaultRetryCap is applied when SharedState.RetryCap is left at zero.
const DefaultRetryCap = 10

// TunnelSettings returns a copy of the current settings.
func (s *SharedState) TunnelSettings() model.TunnelSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// SetTunnelSettings installs new settings, consulted on the next
// Connecting entry.
func (s *SharedState) SetTunnelSettings(v model.TunnelSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = v.Clone()
}

func (s *SharedState) retryCap() int {
	if s.RetryCap <= 0 {
		return DefaultRetryCap
	}
	return s.RetryCap
}

// preserveSelectedGateways remembers the gateways used by the session just
// torn down, so a later reconnect (Offline->Online, a retry, or a dropped
// tunnel) can reuse them to stabilize the observable identity (§4.1 retry
// policy). A settings change that forces a reconnect clears them, as does a
// plain Disconnect.
func (s *SharedState) preserveSelectedGateways(sel model.SelectedGateways) {
	s.selected = &sel
}

func (s *SharedState) clearSelectedGateways() {
	s.selected = nil
}

func (s *SharedState) preservedGateways() *model.SelectedGateways {
	return s.selected
}

func (s *SharedState) setSession(sess TunnelSession) { s.session = sess }

func (s *SharedState) currentSession() TunnelSession { return s.session }

func (s *SharedState) clearSession() { s.session = nil }

func (s *SharedState) constructorFor(tunnelType model.TunnelType) TunnelConstructor {
	if tunnelType == model.TunnelTypeMixnet {
		return s.MixnetConstructor
	}
	return s.WireguardConstructor
}
