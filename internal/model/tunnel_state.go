package model

// TunnelStateKind discriminates the six externally observable machine
// states from §3/§4.1.
type TunnelStateKind int

const (
	StateDisconnected TunnelStateKind = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateError
	StateOffline
)

func (k TunnelStateKind) String() string {
	switch k {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	case StateError:
		return "Error"
	case StateOffline:
		return "Offline"
	default:
		return "Unknown"
	}
}

// AfterDisconnect enumerates what the machine does once Disconnecting's
// teardown sequence finishes.
type AfterDisconnect int

const (
	AfterDisconnectNothing AfterDisconnect = iota
	AfterDisconnectReconnect
	AfterDisconnectOffline
	AfterDisconnectError
)

// ErrorStateReasonKind enumerates §3's ErrorStateReason variants.
type ErrorStateReasonKind int

const (
	ErrFirewall ErrorStateReasonKind = iota
	ErrRouting
	ErrDNS
	ErrTunDevice
	ErrTunnelProvider
	ErrResolveGatewayAddrs
	ErrStartLocalDNSResolver
	ErrSameEntryAndExitGateway
	ErrInvalidEntryGatewayCountry
	ErrInvalidExitGatewayCountry
	ErrBadBandwidthIncrease
	ErrDuplicateTunFd
	ErrSyncAccount
	ErrSyncDevice
	ErrRegisterDevice
	ErrRequestZkNym
	ErrRequestZkNymBundle
	ErrInternal
)

// ErrorStateReason carries the classified cause landing the machine in
// Error, with the underlying error preserved where the source variant
// wraps one.
type ErrorStateReason struct {
	Kind  ErrorStateReasonKind
	Cause error // set for SyncAccount/SyncDevice/RegisterDevice/RequestZkNym/Internal

	// Successes/Failed are set only for ErrRequestZkNymBundle, restoring
	// the partial-success payload from the RequestZkNym pipeline (§4.2).
	Successes []string
	Failed    []error

	// Message carries the free-form text for ErrInternal.
	Message string
}

func (r ErrorStateReason) Error() string {
	if r.Cause != nil {
		return r.Cause.Error()
	}
	if r.Message != "" {
		return r.Message
	}
	return r.Kind.String()
}

func (k ErrorStateReasonKind) String() string {
	names := [...]string{
		"Firewall", "Routing", "Dns", "TunDevice", "TunnelProvider",
		"ResolveGatewayAddrs", "StartLocalDnsResolver", "SameEntryAndExitGateway",
		"InvalidEntryGatewayCountry", "InvalidExitGatewayCountry",
		"BadBandwidthIncrease", "DuplicateTunFd", "SyncAccount", "SyncDevice",
		"RegisterDevice", "RequestZkNym", "RequestZkNymBundle", "Internal",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// TunnelState is the externally observable state, broadcast once per
// transition reached (§4.1: "one state update per distinct state reached").
type TunnelState struct {
	Kind TunnelStateKind

	// ConnectionData is set for Connecting (optionally) and Connected
	// (always, with ConnectedAt non-nil).
	ConnectionData *ConnectionData

	// AfterDisconnect is valid when Kind == StateDisconnecting.
	AfterDisconnect AfterDisconnect

	// Reason is valid when Kind == StateError.
	Reason ErrorStateReason

	// OfflineReconnect is valid when Kind == StateOffline: whether the
	// machine should auto-transition to Connecting once connectivity
	// returns.
	OfflineReconnect bool
}

// Disconnected builds the Disconnected state.
func Disconnected() TunnelState { return TunnelState{Kind: StateDisconnected} }

// Connecting builds a Connecting state, optionally carrying partial
// connection data gathered so far.
func Connecting(cd *ConnectionData) TunnelState {
	return TunnelState{Kind: StateConnecting, ConnectionData: cd}
}

// Connected builds the Connected state; cd.ConnectedAt must be non-nil.
func Connected(cd ConnectionData) TunnelState {
	return TunnelState{Kind: StateConnected, ConnectionData: &cd}
}

// Disconnecting builds the Disconnecting state with its queued follow-up.
func Disconnecting(after AfterDisconnect) TunnelState {
	return TunnelState{Kind: StateDisconnecting, AfterDisconnect: after}
}

// ErrorState builds the Error state for the given reason.
func ErrorState(reason ErrorStateReason) TunnelState {
	return TunnelState{Kind: StateError, Reason: reason}
}

// Offline builds the Offline state.
func Offline(reconnect bool) TunnelState {
	return TunnelState{Kind: StateOffline, OfflineReconnect: reconnect}
}
