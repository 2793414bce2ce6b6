package linux

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"mistveil-core/internal/platform"
)

// systemdResolvedDest and the link-DNS/link-defaultroute method names mirror
// the org.freedesktop.resolve1.Manager/Link D-Bus interface (§4.3 Linux
// backend: "auto-detects among {systemd-resolved, NetworkManager,
// resolvconf, static /etc/resolv.conf}" — this backend implements the
// systemd-resolved case; NYM_DNS_MODULE selects among backends at the
// daemon-wiring layer).
const (
	systemdResolvedDest = "org.freedesktop.resolve1"
	systemdResolvedPath = "/org/freedesktop/resolve1"
)

// DNSMonitor is the systemd-resolved-over-dbus backend.
type DNSMonitor struct {
	conn     *dbus.Conn
	linkName string
}

// NewDNSMonitor connects to the system bus.
func NewDNSMonitor() (*DNSMonitor, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("linux dns: connect system bus: %w", err)
	}
	return &DNSMonitor{conn: conn}, nil
}

// Set configures iface's DNS servers via resolve1.Manager.SetLinkDNS and
// marks it the default route for DNS so queries go to those servers.
func (m *DNSMonitor) Set(ctx context.Context, iface string, cfg platform.ResolvedDNSConfig) error {
	m.linkName = iface
	idx, err := linkIndex(iface)
	if err != nil {
		return fmt.Errorf("linux dns: resolve link index for %s: %w", iface, err)
	}

	obj := m.conn.Object(systemdResolvedDest, systemdResolvedPath)
	addrs := make([][]any, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		family, bytes, err := parseDNSAddr(s)
		if err != nil {
			return err
		}
		addrs = append(addrs, []any{int32(family), bytes})
	}

	call := obj.CallWithContext(ctx, systemdResolvedDest+".Manager.SetLinkDNS", 0, idx, addrs)
	if call.Err != nil {
		return fmt.Errorf("linux dns: SetLinkDNS: %w", call.Err)
	}
	if call := obj.CallWithContext(ctx, systemdResolvedDest+".Manager.SetLinkDefaultRoute", 0, idx, true); call.Err != nil {
		return fmt.Errorf("linux dns: SetLinkDefaultRoute: %w", call.Err)
	}
	return nil
}

// Reset clears the DNS configuration systemd-resolved holds for the tunnel
// interface.
func (m *DNSMonitor) Reset(ctx context.Context) error {
	if m.linkName == "" {
		return nil
	}
	idx, err := linkIndex(m.linkName)
	if err != nil {
		return nil // interface already gone; nothing to reset
	}
	obj := m.conn.Object(systemdResolvedDest, systemdResolvedPath)
	call := obj.CallWithContext(ctx, systemdResolvedDest+".Manager.RevertLink", 0, idx)
	if call.Err != nil {
		return fmt.Errorf("linux dns: RevertLink: %w", call.Err)
	}
	return nil
}

// ResetBeforeInterfaceRemoval performs the same revert as Reset; on Linux
// systemd-resolved needs the link reverted before it disappears or the
// daemon logs (harmlessly) about a dangling link (§4.1 Disconnecting
// algorithm).
func (m *DNSMonitor) ResetBeforeInterfaceRemoval(ctx context.Context) error {
	return m.Reset(ctx)
}

func linkIndex(name string) (int32, error) {
	iface, err := netInterfaceByName(name)
	if err != nil {
		return 0, err
	}
	return int32(iface), nil
}
