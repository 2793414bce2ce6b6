// Package wireguard implements the two-hop WireGuard tunnel constructor: a
// netstack-based entry device wrapping a kernel TUN exit device, joined by a loopback UDP forwarder (spec.md §4.1 WireGuard
// two-hop branch, §4.6).
package wireguard

// MTU constants restored verbatim from the original's two_hop_config.rs
// (SPEC_FULL.md §5.2); spec.md names the formula but not these literals.
const (
	EthernetV2MTU    = 1500
	MinIPv6MTU       = 1280
	WGTunnelOverhead = 80
)

// Fixed ports restored from the original (SPEC_FULL.md §5.2).
const (
	DefaultUDPForwarderPort = 34001
	DefaultExitWGClientPort = 54001
)

// WgInterface names one hop's virtual interface.
type WgInterface struct {
	Name string
	MTU  int
}

// WgPeer is a configured WireGuard peer (the gateway on the far side of one
// hop).
type WgPeer struct {
	PublicKey  string
	Endpoint   string
	AllowedIPs []string
}

// TwoHopConfig derives the outer/inner MTU and interface/peer configuration
// for a two-hop WireGuard tunnel (§4.1: "outer MTU = ETHERNET_V2_MTU - 80
// (or MIN_IPV6_MTU + 80 on mobile), inner MTU = outer - 80").
type TwoHopConfig struct {
	Entry WgInterface
	Exit  WgInterface

	// ForwarderPort is the loopback UDP forwarder's fixed local port, which
	// the inner (exit) WireGuard device's peer endpoint is configured to.
	ForwarderPort int
	// ExitClientPort is the fixed source port the inner tunnel's client
	// socket binds to, so the forwarder can recognize its datagrams.
	ExitClientPort int
}

// NewTwoHopConfig computes MTUs per §4.1 and §8 invariant 7 (outer - inner
// == WGTunnelOverhead).
func NewTwoHopConfig(mobile bool) TwoHopConfig {
	outer := EthernetV2MTU - WGTunnelOverhead
	if mobile {
		outer = MinIPv6MTU + WGTunnelOverhead
	}
	inner := outer - WGTunnelOverhead
	return TwoHopConfig{
		Entry:          WgInterface{Name: "mv-wg-entry", MTU: outer},
		Exit:           WgInterface{Name: "mv-wg-exit", MTU: inner},
		ForwarderPort:  DefaultUDPForwarderPort,
		ExitClientPort: DefaultExitWGClientPort,
	}
}
