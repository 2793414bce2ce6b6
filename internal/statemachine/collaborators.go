package statemachine

import (
	"context"

	"mistveil-core/internal/model"
	"mistveil-core/internal/platform"
)

// AccountReadyChecker is the subset of the account controller's command
// surface the state machine needs during Connecting (§4.1 step 1) and
// Disconnecting (§4.1: "unset static gateway IPs in the account
// controller").
type AccountReadyChecker interface {
	WaitForAccountReadyToConnect(ctx context.Context, credentialsMode bool) error
	SetStaticAPIAddresses(ctx context.Context, addrs []string) error
}

// GatewaySelector resolves EntryPoint/ExitPoint into concrete gateways
// (§4.1 step 2, §4.2 Gateway Directory Client).
type GatewaySelector interface {
	SelectGateways(
		ctx context.Context,
		tunnelType model.TunnelType,
		entry model.EntryPoint,
		exit model.ExitPoint,
		perf model.GatewayPerformanceOptions,
	) (model.SelectedGateways, error)
}

// TunnelSession is a live tunnel (mixnet session or WireGuard two-hop).
// Close tears down everything Connect brought up, in reverse order.
type TunnelSession interface {
	ConnectionData() model.ConnectionData

	// RoutingConfig describes the interfaces RouteHandler must route
	// through; PeerEndpoints lists the outer gateway addresses the
	// firewall must always permit.
	RoutingConfig() platform.RoutingConfig
	PeerEndpoints() []platform.AllowedEndpoint

	// Events delivers Up/Down/InterfaceUpdate events for as long as the
	// session is alive; it is closed when the session stops.
	Events() <-chan MonitorEvent
	Close(ctx context.Context) error
}

// TunnelConstructor builds one connected tunnel given selected gateways
// and settings. internal/mixnet and internal/wireguard each provide one,
// chosen by TunnelSettings.TunnelType.
type TunnelConstructor interface {
	Connect(ctx context.Context, sel model.SelectedGateways, settings model.TunnelSettings) (TunnelSession, error)
}
