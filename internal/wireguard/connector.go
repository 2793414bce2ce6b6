package wireguard

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"mistveil-core/internal/corelog"
	"mistveil-core/internal/mixnet"
	"mistveil-core/internal/model"
	"mistveil-core/internal/platform"
	"mistveil-core/internal/statemachine"
)

// Constructor builds one connected two-hop WireGuard tunnel (§4.1 step 4
// WireGuard branch, §4.6), satisfying statemachine.TunnelConstructor.
type Constructor struct {
	Log        *corelog.Logger
	Events     *corelog.EventBus
	Credential CredentialSource // nil uses the free variant unconditionally
}

// Connect creates the authenticator mixnet client, constructs the two
// wg-gateway-clients, requests initial bandwidth on both concurrently, and
// builds the two-hop device chain. It does not resolve authenticator
// addresses and starts no authentication listener on that client.
func (c *Constructor) Connect(ctx context.Context, sel model.SelectedGateways, settings model.TunnelSettings) (statemachine.TunnelSession, error) {
	cfg := NewTwoHopConfig(settings.WireguardOptions.Mobile)

	authClient, err := mixnet.NewSharedClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("wireguard: start authenticator mixnet client: %w", err)
	}

	entryClient := newWgGatewayClient(sel.Entry.ID, model.TicketbookV1WireguardEntry, settings.EnableCredentialsMode, c.Credential)
	exitClient := newWgGatewayClient(sel.Exit.ID, model.TicketbookV1WireguardExit, settings.EnableCredentialsMode, c.Credential)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return entryClient.requestInitialBandwidth(gctx) })
	g.Go(func() error { return exitClient.requestInitialBandwidth(gctx) })
	if err := g.Wait(); err != nil {
		authClient.Disconnect()
		return nil, fmt.Errorf("wireguard: initial bandwidth request: %w", err)
	}

	entryPriv, err := generatePrivateKey()
	if err != nil {
		return nil, err
	}
	exitPriv, err := generatePrivateKey()
	if err != nil {
		return nil, err
	}

	entryDev, err := newEntryNetstackDevice(cfg.Entry, "10.71.0.2", "", entryPriv,
		WgPeer{PublicKey: sel.Entry.Identity, Endpoint: net4(sel.Entry.IPv4, 51820), AllowedIPs: []string{"0.0.0.0/0", "::/0"}}, c.Log)
	if err != nil {
		return nil, err
	}

	forwarder, err := NewForwarder(cfg, net4(sel.Entry.IPv4, 51820), c.Log)
	if err != nil {
		entryDev.Close()
		return nil, err
	}

	exitDev, err := newExitKernelDevice(cfg.Exit, exitPriv,
		WgPeer{PublicKey: sel.Exit.Identity, Endpoint: net4("127.0.0.1", cfg.ForwarderPort), AllowedIPs: []string{"0.0.0.0/0", "::/0"}}, c.Log)
	if err != nil {
		forwarder.Close()
		entryDev.Close()
		return nil, err
	}

	bw := newBandwidthController(entryClient, exitClient, c.Events)

	sess := &Session{
		log:       c.Log,
		authClient: authClient,
		entryDev:  entryDev,
		exitDev:   exitDev,
		forwarder: forwarder,
		bandwidth: bw,
		entry:     sel.Entry,
		exit:      sel.Exit,
		cfg:       cfg,
		events:    make(chan statemachine.MonitorEvent, 8),
		connData: model.WireguardConnectionData{
			Entry: model.WireguardNode{Endpoint: net4(sel.Entry.IPv4, 51820), PublicKey: sel.Entry.Identity, PrivateIPv4: "10.71.0.2"},
			Exit:  model.WireguardNode{Endpoint: net4(sel.Exit.IPv4, 51820), PublicKey: sel.Exit.Identity, PrivateIPv4: "10.72.0.2"},
		},
	}

	sess.ctx, sess.cancel = context.WithCancel(context.Background())
	sess.wg.Add(1)
	go func() { defer sess.wg.Done(); bw.run(sess.ctx) }()
	sess.wg.Add(1)
	go func() { defer sess.wg.Done(); forwarder.Run(sess.ctx, cfg.ExitClientPort) }()

	return sess, nil
}

func net4(ip string, port int) string { return fmt.Sprintf("%s:%d", ip, port) }

// Session is a live two-hop WireGuard tunnel (statemachine.TunnelSession).
type Session struct {
	log *corelog.Logger

	authClient *mixnet.SharedClient
	entryDev   *netDevice
	exitDev    *netDevice
	forwarder  *Forwarder
	bandwidth  *BandwidthController

	entry, exit model.Gateway
	cfg         TwoHopConfig
	connData    model.WireguardConnectionData

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events chan statemachine.MonitorEvent
}

func (s *Session) ConnectionData() model.ConnectionData {
	return model.ConnectionData{
		EntryGateway: s.entry,
		ExitGateway:  s.exit,
		Kind:         model.TunnelKindWireguard,
		Wireguard:    &s.connData,
	}
}

func (s *Session) RoutingConfig() platform.RoutingConfig {
	return platform.RoutingConfig{
		Kind:           platform.RoutingWireguardNetstack,
		ExitTunName:    s.cfg.Exit.Name,
		EntryGatewayIP: s.entry.IPv4,
	}
}

func (s *Session) PeerEndpoints() []platform.AllowedEndpoint {
	return []platform.AllowedEndpoint{{Address: s.entry.IPv4, Protocol: "udp"}}
}

func (s *Session) Events() <-chan statemachine.MonitorEvent { return s.events }

// Close tears down the device chain in reverse construction order: stop
// the bandwidth controller and forwarder, close the exit device, close the
// entry device, disconnect the authenticator mixnet client.
func (s *Session) Close(ctx context.Context) error {
	s.cancel()
	s.wg.Wait()
	close(s.events)
	s.forwarder.Close()
	s.exitDev.Close()
	s.entryDev.Close()
	return s.authClient.Disconnect()
}
