package model

import "time"

// TunnelKind discriminates which protocol-specific payload ConnectionData
// carries.
type TunnelKind int

const (
	TunnelKindMixnet TunnelKind = iota
	TunnelKindWireguard
)

// MixnetConnectionData is ConnectionData's Mixnet-tunnel payload.
//
// TunIPv4/TunIPv6 restore the assigned-IP fields the distilled spec omitted
// from ConnectionData but which connected_tunnel.rs assigns on every
// successful mixnet connect.
type MixnetConnectionData struct {
	NymAddress string
	ExitIPR    string
	IPv4       string
	IPv6       string
	TunIPv4    string
	TunIPv6    string
}

// WireguardNode describes one end of a WireGuard two-hop tunnel.
type WireguardNode struct {
	Endpoint     string
	PublicKey    string
	PrivateIPv4  string
	PrivateIPv6  string
}

// WireguardConnectionData is ConnectionData's WireGuard-tunnel payload.
type WireguardConnectionData struct {
	Entry WireguardNode
	Exit  WireguardNode
}

// ConnectionData is the public contract of a live tunnel, surfaced once a
// connect attempt reaches Connected.
type ConnectionData struct {
	EntryGateway Gateway
	ExitGateway  Gateway
	// ConnectedAt is set exactly once, when the machine enters Connected.
	ConnectedAt *time.Time

	Kind      TunnelKind
	Mixnet    *MixnetConnectionData
	Wireguard *WireguardConnectionData
}

// TunnelEventKind discriminates the richer TunnelEvent stream restored from
// the original nym-vpn-lib-types tunnel_event.rs, which the distilled spec
// compresses into bare TunnelState broadcasts.
type TunnelEventKind int

const (
	TunnelEventNewState TunnelEventKind = iota
	TunnelEventMixnetState
	TunnelEventBandwidth
)

// BandwidthStatus mirrors BandwidthStatusMessage from §4.6.
type BandwidthStatus struct {
	NoBandwidth        bool
	RemainingBandwidth int64 // valid when NoBandwidth == false
}

// MixnetSubState carries auxiliary mixnet connection-status events (entry/
// exit gateway reachability, routing errors) that ride alongside but
// outside of the six-state TunnelState enum.
type MixnetSubState struct {
	EntryGatewayDown       bool
	ExitGatewayDownIPv4    bool
	ExitGatewayDownIPv6    bool
	ExitGatewayRoutingIPv4 bool
	ExitGatewayRoutingIPv6 bool
}

// TunnelEvent is the event-stream element published alongside TunnelState,
// restored from the original's richer tunnel_event enum.
type TunnelEvent struct {
	Kind      TunnelEventKind
	State     TunnelState      // valid when Kind == TunnelEventNewState
	Mixnet    MixnetSubState   // valid when Kind == TunnelEventMixnetState
	Bandwidth BandwidthStatus  // valid when Kind == TunnelEventBandwidth
}
