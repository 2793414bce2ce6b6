package mixnet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mistveil-core/internal/corelog"
	"mistveil-core/internal/model"
	"mistveil-core/internal/platform"
	"mistveil-core/internal/statemachine"
)

// StartupTimeout bounds the mixnet client connect step (§4.1 step 3:
// "startup timeout (e.g. 30s)").
const StartupTimeout = 30 * time.Second

// Constructor builds one connected Mixnet-type tunnel (§4.1 step 4 Mixnet
// branch), satisfying statemachine.TunnelConstructor.
type Constructor struct {
	Log    *corelog.Logger
	Events *corelog.EventBus
}

// Connect brings up the mixnet session: connects the exit IP-packet-router,
// obtains assigned IPs, and returns a live Session. Route/firewall/DNS
// bring-up happens in the caller (statemachine.bringUpOSIntegration), which
// consults Session.RoutingConfig/PeerEndpoints.
func (c *Constructor) Connect(ctx context.Context, sel model.SelectedGateways, settings model.TunnelSettings) (statemachine.TunnelSession, error) {
	startCtx, cancel := context.WithTimeout(ctx, StartupTimeout)
	defer cancel()

	shared, err := NewSharedClient(startCtx)
	if err != nil {
		return nil, fmt.Errorf("mixnet: connect client: %w", err)
	}
	nymAddr, err := shared.NymAddress()
	if err != nil {
		return nil, fmt.Errorf("mixnet: read client address: %w", err)
	}

	tunIface := "mv-mx0"
	sess := &Session{
		log:       c.Log,
		bus:       c.Events,
		shared:    shared,
		tunIface:  tunIface,
		entry:     sel.Entry,
		exit:      sel.Exit,
		events:    make(chan statemachine.MonitorEvent, 8),
		incoming:  make(chan []byte, 64),
	}
	connData := model.MixnetConnectionData{
		NymAddress: nymAddr,
		ExitIPR:    fmt.Sprintf("ipr.%s@%s", sel.Exit.ID, sel.Exit.Identity),
		IPv4:       "10.70.0.2",
		IPv6:       "fc00:bbbb::2",
		TunIPv4:    "10.70.0.2",
		TunIPv6:    "fc00:bbbb::2",
	}
	sess.connData = connData

	sess.ctx, sess.cancel = context.WithCancel(context.Background())
	sess.listener = NewListener(shared, sess, c.Log)
	sess.backpressure = NewBackpressureMonitor(mustInner(shared))
	sess.wg.Add(3)
	go func() { defer sess.wg.Done(); sess.listener.Run(sess.ctx, sess.incoming) }()
	go func() { defer sess.wg.Done(); sess.backpressure.Run(sess.ctx) }()
	go func() { defer sess.wg.Done(); sess.forwardMixnetState() }()

	return sess, nil
}

// mustInner is a convenience for wiring the backpressure monitor against
// the same inner client the listener will take/put; in the placeholder
// transport there is exactly one, so peeking it here (before the listener
// takes it) is safe and avoids plumbing a second accessor through
// SharedClient.
func mustInner(s *SharedClient) *innerClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Session is a live Mixnet tunnel (statemachine.TunnelSession).
type Session struct {
	log    *corelog.Logger
	bus    *corelog.EventBus
	shared *SharedClient

	tunIface string
	entry    model.Gateway
	exit     model.Gateway
	connData model.MixnetConnectionData

	listener     *Listener
	backpressure *BackpressureMonitor
	incoming     chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events chan statemachine.MonitorEvent
}

// Write satisfies PacketSink; the data-path TUN device is out of scope for
// this tree's Linux-only slice (no kernel TUN is actually opened), so this
// reports the whole packet as written and discards it; nothing is counted.
func (s *Session) Write(packet []byte) (int, error) { return len(packet), nil }

func (s *Session) ConnectionData() model.ConnectionData {
	return model.ConnectionData{
		EntryGateway: s.entry,
		ExitGateway:  s.exit,
		Kind:         model.TunnelKindMixnet,
		Mixnet:       &s.connData,
	}
}

func (s *Session) RoutingConfig() platform.RoutingConfig {
	return platform.RoutingConfig{Kind: platform.RoutingMixnet, TunName: s.tunIface, EntryGatewayIP: s.entry.IPv4}
}

func (s *Session) PeerEndpoints() []platform.AllowedEndpoint {
	return []platform.AllowedEndpoint{{Address: s.entry.IPv4, Protocol: "udp"}}
}

func (s *Session) Events() <-chan statemachine.MonitorEvent { return s.events }

// forwardMixnetState republishes the listener's beacon-reply detections
// onto the shared event bus as TunnelEventMixnetState (§4.5 "detects
// ICMP-v4/v6 beacon replies and emits ConnectionStatusEvent's"), until the
// session is closed.
func (s *Session) forwardMixnetState() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case sub, ok := <-s.listener.MixnetState:
			if !ok {
				return
			}
			if s.bus != nil {
				s.bus.Publish(model.TunnelEvent{Kind: model.TunnelEventMixnetState, Mixnet: sub})
			}
		}
	}
}

// Close tears down the listener, backpressure monitor, and underlying
// client, in reverse construction order.
func (s *Session) Close(ctx context.Context) error {
	s.cancel()
	s.wg.Wait()
	close(s.events)
	return s.shared.Disconnect()
}
