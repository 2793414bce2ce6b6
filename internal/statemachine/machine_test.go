package statemachine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mistveil-core/internal/corelog"
	"mistveil-core/internal/model"
	"mistveil-core/internal/platform"
)

type fakeAccount struct {
	err error
}

func (f *fakeAccount) WaitForAccountReadyToConnect(ctx context.Context, credentialsMode bool) error {
	return f.err
}

func (f *fakeAccount) SetStaticAPIAddresses(ctx context.Context, addrs []string) error { return nil }

type fakeSelector struct {
	sel model.SelectedGateways
	err error
}

func (f *fakeSelector) SelectGateways(ctx context.Context, tt model.TunnelType, entry model.EntryPoint, exit model.ExitPoint, perf model.GatewayPerformanceOptions) (model.SelectedGateways, error) {
	return f.sel, f.err
}

type fakeSession struct {
	cd     model.ConnectionData
	events chan MonitorEvent
	closed chan struct{}
}

func newFakeSession(cd model.ConnectionData) *fakeSession {
	return &fakeSession{cd: cd, events: make(chan MonitorEvent, 1), closed: make(chan struct{})}
}

func (s *fakeSession) ConnectionData() model.ConnectionData          { return s.cd }
func (s *fakeSession) RoutingConfig() platform.RoutingConfig         { return platform.RoutingConfig{} }
func (s *fakeSession) PeerEndpoints() []platform.AllowedEndpoint     { return nil }
func (s *fakeSession) Events() <-chan MonitorEvent                   { return s.events }
func (s *fakeSession) Close(ctx context.Context) error {
	close(s.closed)
	return nil
}

type fakeConstructor struct {
	session TunnelSession
	err     error
}

func (f *fakeConstructor) Connect(ctx context.Context, sel model.SelectedGateways, settings model.TunnelSettings) (TunnelSession, error) {
	return f.session, f.err
}

type fakeFirewall struct {
	applyErr   error
	resetCalls int
}

func (f *fakeFirewall) ApplyConnectedPolicy(ctx context.Context, policy platform.ConnectedFirewallPolicy) error {
	return f.applyErr
}
func (f *fakeFirewall) ApplyBlockedPolicy(ctx context.Context, policy platform.BlockedFirewallPolicy) error {
	return nil
}
func (f *fakeFirewall) ResetPolicy(ctx context.Context) error {
	f.resetCalls++
	return nil
}

type fakeRouteHandler struct {
	addCalls    int
	removeCalls int
}

func (f *fakeRouteHandler) AddRoutes(ctx context.Context, cfg platform.RoutingConfig) error {
	f.addCalls++
	return nil
}
func (f *fakeRouteHandler) RemoveRoutes(ctx context.Context) error {
	f.removeCalls++
	return nil
}
func (f *fakeRouteHandler) RefreshRoutes(ctx context.Context) error { return nil }
func (f *fakeRouteHandler) Stop(ctx context.Context) error          { return nil }

func newTestShared(selector GatewaySelector, constructor TunnelConstructor) *SharedState {
	return &SharedState{
		Account:              &fakeAccount{},
		Gateways:              selector,
		MixnetConstructor:     constructor,
		WireguardConstructor:  constructor,
		Events:                corelog.NewEventBus(),
	}
}

func waitForState(t *testing.T, sub *corelog.Subscription, kind model.TunnelStateKind, timeout time.Duration) model.TunnelState {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-sub.Events:
			te, ok := ev.(model.TunnelEvent)
			if !ok {
				continue
			}
			if te.State.Kind == kind {
				return te.State
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", kind)
			return model.TunnelState{}
		}
	}
}

func TestHappyPathMixnetConnect(t *testing.T) {
	entry := model.Gateway{ID: "entry"}
	exit := model.Gateway{ID: "exit"}
	sel, err := model.NewSelectedGateways(entry, exit)
	require.NoError(t, err)

	now := time.Now()
	cd := model.ConnectionData{EntryGateway: entry, ExitGateway: exit, ConnectedAt: &now}
	session := newFakeSession(cd)

	shared := newTestShared(&fakeSelector{sel: sel}, &fakeConstructor{session: session})
	cmds := make(chan Command, 1)
	m := NewMachine(shared, cmds)

	sub := shared.Events.Subscribe(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	replyCh := make(chan error, 1)
	cmds <- ConnectCommand{Reply: replyCh}
	require.NoError(t, <-replyCh)

	waitForState(t, sub, model.StateConnecting, time.Second)
	connected := waitForState(t, sub, model.StateConnected, time.Second)
	require.NotNil(t, connected.ConnectionData.ConnectedAt)
}

func TestSameGatewaySelectionGoesToError(t *testing.T) {
	shared := newTestShared(&fakeSelector{err: model.ErrSameEntryAndExitGateway}, &fakeConstructor{})
	cmds := make(chan Command, 1)
	m := NewMachine(shared, cmds)

	sub := shared.Events.Subscribe(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	replyCh := make(chan error, 1)
	cmds <- ConnectCommand{Reply: replyCh}
	require.NoError(t, <-replyCh)

	errState := waitForState(t, sub, model.StateError, time.Second)
	require.ErrorIs(t, errState.Reason.Cause, model.ErrSameEntryAndExitGateway)
}

// TestOSIntegrationFailureTearsDownBeforeError covers the maintainer fix to
// runConnecting: a firewall failure during bringUpOSIntegration must revert
// the routes it already installed (via Disconnecting teardown) before the
// machine lands in Error, rather than leaking them.
func TestOSIntegrationFailureTearsDownBeforeError(t *testing.T) {
	entry := model.Gateway{ID: "entry"}
	exit := model.Gateway{ID: "exit"}
	sel, err := model.NewSelectedGateways(entry, exit)
	require.NoError(t, err)

	session := newFakeSession(model.ConnectionData{EntryGateway: entry, ExitGateway: exit})
	shared := newTestShared(&fakeSelector{sel: sel}, &fakeConstructor{session: session})
	routes := &fakeRouteHandler{}
	firewall := &fakeFirewall{applyErr: errors.New("nft: permission denied")}
	shared.RouteHandler = routes
	shared.Firewall = firewall

	cmds := make(chan Command, 1)
	m := NewMachine(shared, cmds)

	sub := shared.Events.Subscribe(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	replyCh := make(chan error, 1)
	cmds <- ConnectCommand{Reply: replyCh}
	require.NoError(t, <-replyCh)

	waitForState(t, sub, model.StateDisconnecting, time.Second)
	errState := waitForState(t, sub, model.StateError, time.Second)

	require.Equal(t, model.ErrFirewall, errState.Reason.Kind)
	require.Equal(t, 1, routes.addCalls)
	require.Equal(t, 1, routes.removeCalls)
}

// TestAccountZkNymPartialFailureMapsToBundleReason covers the maintainer fix
// to classifyConnectError: a partial zk-nym failure from account readiness
// must land in Error with the precise RequestZkNymBundle reason, carrying
// the Successes/Failed payload through, not the generic Internal reason.
func TestAccountZkNymPartialFailureMapsToBundleReason(t *testing.T) {
	acctErr := &model.AccountCommandError{
		Kind:      model.ErrRequestZkNymPartial,
		Successes: []string{"small"},
		Failed:    []error{errors.New("medium: quota exhausted")},
	}
	shared := newTestShared(&fakeSelector{}, &fakeConstructor{})
	shared.Account = &fakeAccount{err: acctErr}

	cmds := make(chan Command, 1)
	m := NewMachine(shared, cmds)

	sub := shared.Events.Subscribe(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	replyCh := make(chan error, 1)
	cmds <- ConnectCommand{Reply: replyCh}
	require.NoError(t, <-replyCh)

	errState := waitForState(t, sub, model.StateError, time.Second)
	require.Equal(t, model.ErrRequestZkNymBundle, errState.Reason.Kind)
	require.Equal(t, acctErr.Successes, errState.Reason.Successes)
	require.Len(t, errState.Reason.Failed, 1)
}
