package linux

import (
	"context"
	"net"
	"time"

	"github.com/vishvananda/netlink"

	"mistveil-core/internal/platform"
)

// probeTargets mirror §4.3's offline-detection probes: a well-known
// anycast resolver per address family, queried over UDP/53 — a successful
// dial (not a successful resolve) is evidence the family is reachable.
var probeTargets = struct {
	v4 string
	v6 string
}{v4: "1.1.1.1:53", v6: "[2606:4700:4700::1111]:53"}

const probeTimeout = 2 * time.Second

// OfflineMonitor watches netlink route-table changes and re-probes
// reachability on every change, satisfying platform.OfflineMonitor.
type OfflineMonitor struct {
	updates chan netlink.RouteUpdate
	done    chan struct{}
	changed chan platform.Connectivity
}

// NewOfflineMonitor subscribes to route-table changes and starts the probe
// loop in the background.
func NewOfflineMonitor(ctx context.Context) (*OfflineMonitor, error) {
	m := &OfflineMonitor{
		updates: make(chan netlink.RouteUpdate),
		done:    make(chan struct{}),
		changed: make(chan platform.Connectivity, 1),
	}
	if err := netlink.RouteSubscribe(m.updates, m.done); err != nil {
		return nil, err
	}
	go m.run(ctx)
	return m, nil
}

func (m *OfflineMonitor) run(ctx context.Context) {
	defer close(m.changed)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-m.updates:
			select {
			case m.changed <- m.Connectivity(ctx):
			default:
			}
		}
	}
}

// Connectivity probes both address families by dialing UDP sockets to a
// fixed resolver anycast address; a successful dial indicates the kernel
// was able to route a packet toward that family (§4.3).
func (m *OfflineMonitor) Connectivity(ctx context.Context) platform.Connectivity {
	return platform.Connectivity{
		IPv4: probe(probeTargets.v4),
		IPv6: probe(probeTargets.v6),
	}
}

// Next blocks until a route-table change triggers a re-probe.
func (m *OfflineMonitor) Next(ctx context.Context) (platform.Connectivity, bool) {
	select {
	case c, ok := <-m.changed:
		return c, ok
	case <-ctx.Done():
		return platform.Connectivity{}, false
	}
}

// Stop unsubscribes from route-table updates.
func (m *OfflineMonitor) Stop(ctx context.Context) error {
	close(m.done)
	return nil
}

func probe(addr string) bool {
	conn, err := net.DialTimeout("udp", addr, probeTimeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	return true
}
