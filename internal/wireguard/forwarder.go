package wireguard

import (
	"context"
	"fmt"
	"net"
	"sync"

	"mistveil-core/internal/corelog"
)

// Forwarder splices datagrams between the inner (exit-hop) WireGuard
// client's fixed source port and the outer (entry-hop) tunnel's peer
// endpoint, so the inner tunnel's packets ride inside the outer one without
// either hop needing to know about the other (§4.1, §6 "WireGuard two-hop
// on-the-wire shape").
type Forwarder struct {
	log *corelog.Logger

	localConn  *net.UDPConn // bound to loopback:ForwarderPort
	outerPeer  *net.UDPAddr // the entry gateway's public endpoint
	innerAddr  *net.UDPAddr // the inner client's loopback:ExitClientPort, learned from first packet

	mu sync.Mutex
}

// NewForwarder binds the loopback forwarder socket at cfg.ForwarderPort and
// resolves outerPeerEndpoint (the entry gateway's address).
func NewForwarder(cfg TwoHopConfig, outerPeerEndpoint string, log *corelog.Logger) (*Forwarder, error) {
	local, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: cfg.ForwarderPort})
	if err != nil {
		return nil, fmt.Errorf("wireguard: bind udp forwarder: %w", err)
	}
	peer, err := net.ResolveUDPAddr("udp", outerPeerEndpoint)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("wireguard: resolve outer peer endpoint: %w", err)
	}
	return &Forwarder{log: log, localConn: local, outerPeer: peer}, nil
}

// Run reads datagrams on the loopback socket until ctx is cancelled. A
// datagram from the inner client (source port == ExitClientPort) is relayed
// to the outer peer; a reply from the outer peer is relayed back to
// whichever inner address last sent one.
func (f *Forwarder) Run(ctx context.Context, exitClientPort int) error {
	go func() {
		<-ctx.Done()
		f.localConn.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, addr, err := f.localConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("wireguard: forwarder read: %w", err)
		}
		payload := append([]byte(nil), buf[:n]...)

		if addr.Port == exitClientPort {
			f.mu.Lock()
			f.innerAddr = addr
			f.mu.Unlock()
			if _, err := f.localConn.WriteToUDP(payload, f.outerPeer); err != nil {
				f.log.Warnf("wireguard", "forward inner->outer: %v", err)
			}
			continue
		}

		f.mu.Lock()
		inner := f.innerAddr
		f.mu.Unlock()
		if inner == nil {
			continue // no inner client has registered yet
		}
		if _, err := f.localConn.WriteToUDP(payload, inner); err != nil {
			f.log.Warnf("wireguard", "forward outer->inner: %v", err)
		}
	}
}

// Close releases the forwarder socket.
func (f *Forwarder) Close() error { return f.localConn.Close() }
