// Package linux provides the Linux backends for the four OS integration
// traits declared in internal/platform (§4.3, §5.4): netlink-based routing
// with a dedicated table and fwmark, systemd-resolved DNS over dbus,
// nftables firewalling, and route-change/resolution-probe offline
// detection.
package linux

import (
	"context"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"mistveil-core/internal/platform"
)

// RoutingTable and FwMark are restored from the original's Linux routing
// backend (§4.3: "a dedicated routing table (0x14d) with a matching
// fwmark").
const (
	RoutingTable = 0x14d
	FwMark       = 0x14d
)

// RouteHandler is the Linux RouteHandler backend.
type RouteHandler struct {
	linkNames []string
}

// NewRouteHandler builds an unconfigured handler; AddRoutes populates it.
func NewRouteHandler() *RouteHandler { return &RouteHandler{} }

// AddRoutes installs routes in RoutingTable for the tunnel interfaces named
// in cfg, plus a rule sending fwmark-ed traffic through that table.
func (h *RouteHandler) AddRoutes(ctx context.Context, cfg platform.RoutingConfig) error {
	ifaces := routingConfigInterfaces(cfg)
	for _, name := range ifaces {
		link, err := netlink.LinkByName(name)
		if err != nil {
			return fmt.Errorf("linux routing: lookup link %s: %w", name, err)
		}
		for _, dst := range []string{"0.0.0.0/0", "::/0"} {
			_, ipnet, err := net.ParseCIDR(dst)
			if err != nil {
				return fmt.Errorf("linux routing: parse %s: %w", dst, err)
			}
			route := &netlink.Route{LinkIndex: link.Attrs().Index, Dst: ipnet, Table: RoutingTable}
			if err := netlink.RouteAdd(route); err != nil {
				return fmt.Errorf("linux routing: add route %s via %s: %w", dst, name, err)
			}
		}
	}

	rule := netlink.NewRule()
	rule.Mark = FwMark
	rule.Table = RoutingTable
	if err := netlink.RuleAdd(rule); err != nil {
		return fmt.Errorf("linux routing: add fwmark rule: %w", err)
	}

	h.linkNames = ifaces
	return nil
}

// RemoveRoutes tears down the routes and rule AddRoutes installed.
func (h *RouteHandler) RemoveRoutes(ctx context.Context) error {
	rule := netlink.NewRule()
	rule.Mark = FwMark
	rule.Table = RoutingTable
	if err := netlink.RuleDel(rule); err != nil {
		return fmt.Errorf("linux routing: remove fwmark rule: %w", err)
	}

	for _, name := range h.linkNames {
		link, err := netlink.LinkByName(name)
		if err != nil {
			continue // interface already gone
		}
		routes, err := netlink.RouteList(link, netlink.FAMILY_ALL)
		if err != nil {
			continue
		}
		for _, r := range routes {
			if r.Table == RoutingTable {
				_ = netlink.RouteDel(&r)
			}
		}
	}
	h.linkNames = nil
	return nil
}

// RefreshRoutes is a macOS-only concern (§4.3); a no-op on Linux.
func (h *RouteHandler) RefreshRoutes(ctx context.Context) error { return nil }

// Stop releases any resources; routes should already be removed by the
// caller via RemoveRoutes first.
func (h *RouteHandler) Stop(ctx context.Context) error { return nil }

func routingConfigInterfaces(cfg platform.RoutingConfig) []string {
	switch cfg.Kind {
	case platform.RoutingMixnet:
		return []string{cfg.TunName}
	case platform.RoutingWireguard:
		return []string{cfg.EntryTunName, cfg.ExitTunName}
	case platform.RoutingWireguardNetstack:
		return []string{cfg.ExitTunName}
	default:
		return nil
	}
}
