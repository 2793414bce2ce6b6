package statemachine

import (
	"context"
	"errors"

	"mistveil-core/internal/gatewaydir"
	"mistveil-core/internal/model"
	"mistveil-core/internal/platform"
)

// connectResult is the outcome of running the Connecting algorithm (§4.1)
// in a cancellable goroutine.
type connectResult struct {
	selected model.SelectedGateways
	session  TunnelSession
	err      error
}

// connect runs the full Connecting algorithm: wait for account readiness,
// select gateways (or reuse gateways preserved across an Offline->Online
// reconnect), construct the tunnel, then install routes, firewall, and DNS
// in that order before the machine is allowed to announce Connected.
func (m *Machine) connect(ctx context.Context) connectResult {
	settings := m.Shared.TunnelSettings()

	if err := m.Shared.Account.WaitForAccountReadyToConnect(ctx, settings.EnableCredentialsMode); err != nil {
		return connectResult{err: classifyConnectError(err)}
	}

	sel, err := m.resolveGateways(ctx, settings)
	if err != nil {
		return connectResult{err: err}
	}

	constructor := m.Shared.constructorFor(settings.TunnelType)
	session, err := constructor.Connect(ctx, sel, settings)
	if err != nil {
		return connectResult{err: model.ErrorStateReason{Kind: model.ErrTunnelProvider, Cause: err}}
	}

	if err := m.bringUpOSIntegration(ctx, session, settings); err != nil {
		session.Close(ctx)
		return connectResult{err: err}
	}

	return connectResult{selected: sel, session: session}
}

func (m *Machine) resolveGateways(ctx context.Context, settings model.TunnelSettings) (model.SelectedGateways, error) {
	if preserved := m.Shared.preservedGateways(); preserved != nil {
		return *preserved, nil
	}
	sel, err := m.Shared.Gateways.SelectGateways(
		ctx, settings.TunnelType, settings.EntryPoint, settings.ExitPoint, settings.GatewayPerformanceOptions,
	)
	if err != nil {
		return model.SelectedGateways{}, classifyGatewayError(err)
	}
	return sel, nil
}

// classifyGatewayError maps a gateway-selection failure to its
// ErrorStateReason, recognizing the SameEntryAndExitGateway invariant
// violation explicitly and defaulting unclassified failures to
// ResolveGatewayAddrs (retryable, per §4.1's failure semantics for
// gateway/mixnet bring-up).
func classifyGatewayError(err error) model.ErrorStateReason {
	if errors.Is(err, model.ErrSameEntryAndExitGateway) {
		return model.ErrorStateReason{Kind: model.ErrSameEntryAndExitGateway, Cause: err}
	}
	var invalidEntry *gatewaydir.ErrInvalidEntryGatewayCountry
	if errors.As(err, &invalidEntry) {
		return model.ErrorStateReason{Kind: model.ErrInvalidEntryGatewayCountry, Cause: err}
	}
	var invalidExit *gatewaydir.ErrInvalidExitGatewayCountry
	if errors.As(err, &invalidExit) {
		return model.ErrorStateReason{Kind: model.ErrInvalidExitGatewayCountry, Cause: err}
	}
	var reason model.ErrorStateReason
	if errors.As(err, &reason) {
		return reason
	}
	return model.ErrorStateReason{Kind: model.ErrResolveGatewayAddrs, Cause: err}
}

// bringUpOSIntegration installs routes, then firewall, then DNS, matching
// the restored Connected-entry ordering (§5.1: "Connected applies
// firewall-then-DNS before announcing Connected", itself preceded by route
// installation in the Connecting algorithm's step 4).
func (m *Machine) bringUpOSIntegration(ctx context.Context, session TunnelSession, settings model.TunnelSettings) error {
	if m.Shared.RouteHandler != nil {
		if err := m.Shared.RouteHandler.AddRoutes(ctx, session.RoutingConfig()); err != nil {
			return model.ErrorStateReason{Kind: model.ErrRouting, Cause: err}
		}
	}

	if m.Shared.Firewall != nil {
		policy := platform.ConnectedFirewallPolicy{
			PeerEndpoints: session.PeerEndpoints(),
			TunnelIface:   session.RoutingConfig().TunName,
			DNSServers:    settings.DNSOptions.Servers,
			AllowLAN:      settings.AllowLAN,
		}
		if policy.TunnelIface == "" {
			policy.TunnelIface = session.RoutingConfig().ExitTunName
		}
		if err := m.Shared.Firewall.ApplyConnectedPolicy(ctx, policy); err != nil {
			return model.ErrorStateReason{Kind: model.ErrFirewall, Cause: err}
		}
	}

	if m.Shared.DNSMonitor != nil {
		iface := session.RoutingConfig().TunName
		if iface == "" {
			iface = session.RoutingConfig().ExitTunName
		}
		cfg := platform.ResolvedDNSConfig{Servers: settings.DNSOptions.Servers}
		if err := m.Shared.DNSMonitor.Set(ctx, iface, cfg); err != nil {
			return model.ErrorStateReason{Kind: model.ErrDNS, Cause: err}
		}
	}

	return nil
}

// classifyConnectError maps WaitForAccountReadyToConnect's failures onto
// their precise Error sub-reason, preserving the zk-nym bundle's
// Successes/Failed when the account was only partially provisioned.
func classifyConnectError(err error) model.ErrorStateReason {
	var acctErr *model.AccountCommandError
	if errors.As(err, &acctErr) {
		switch acctErr.Kind {
		case model.ErrSyncAccountEndpointFailure:
			return model.ErrorStateReason{Kind: model.ErrSyncAccount, Cause: err}
		case model.ErrSyncDeviceEndpointFailure:
			return model.ErrorStateReason{Kind: model.ErrSyncDevice, Cause: err}
		case model.ErrRegisterDeviceEndpointFailure:
			return model.ErrorStateReason{Kind: model.ErrRegisterDevice, Cause: err}
		case model.ErrRequestZkNymGeneral:
			return model.ErrorStateReason{Kind: model.ErrRequestZkNym, Cause: err}
		case model.ErrRequestZkNymPartial:
			return model.ErrorStateReason{
				Kind:      model.ErrRequestZkNymBundle,
				Cause:     err,
				Successes: acctErr.Successes,
				Failed:    acctErr.Failed,
			}
		}
	}

	var reason model.ErrorStateReason
	if errors.As(err, &reason) {
		return reason
	}
	return model.ErrorStateReason{Kind: model.ErrInternal, Cause: err}
}

// isRetryable reports whether reason belongs to the "gateway/mixnet
// bring-up" class that triggers an immediate Reconnect (up to the retry
// cap) rather than a terminal Error (§4.1 failure semantics). OS integration
// failures (routing/DNS/firewall/tun) and credential failures are
// deliberately excluded: the former are fatal-for-this-session, the
// latter are mapped 1:1 to Error.
func isRetryable(reason model.ErrorStateReason) bool {
	switch reason.Kind {
	case model.ErrResolveGatewayAddrs, model.ErrTunnelProvider, model.ErrBadBandwidthIncrease:
		return true
	default:
		return false
	}
}
