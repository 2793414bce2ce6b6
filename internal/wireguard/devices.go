package wireguard

import (
	"fmt"
	"net/netip"

	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun"
	"golang.zx2c4.com/wireguard/tun/netstack"

	"mistveil-core/internal/corelog"
)

// wgLogger adapts corelog.Logger to wireguard-go's device.Logger.
func wgLogger(log *corelog.Logger, tag string) *device.Logger {
	return &device.Logger{
		Verbosef: func(format string, args ...any) { log.Debugf(tag, format, args...) },
		Errorf:   func(format string, args ...any) { log.Errorf(tag, format, args...) },
	}
}

// netDevice is one WireGuard hop: a tun.Device plus the device.Device
// driving handshakes and data over it. The entry hop's tun.Device is a
// netstack-backed virtual TUN (Glossary "Netstack WireGuard": "a userspace
// WireGuard implementation that exposes a virtual TCP/IP stack"); the exit
// hop's is kernel-backed. Both are closed identically through dev.Close.
type netDevice struct {
	tunDev tun.Device
	dev    *device.Device
}

// newEntryNetstackDevice builds the entry hop as a netstack-backed virtual
// TUN (§4.1 "a netstack WireGuard for entry wraps UDP datagrams..."). It
// never touches the kernel, so it needs no elevated privileges on its own;
// outbound packets leave via the device's own UDP bind, not a kernel
// interface.
func newEntryNetstackDevice(cfg WgInterface, localIPv4, localIPv6 string, privKey string, peer WgPeer, log *corelog.Logger) (*netDevice, error) {
	addrs := []netip.Addr{}
	if localIPv4 != "" {
		a, err := netip.ParseAddr(localIPv4)
		if err != nil {
			return nil, fmt.Errorf("wireguard: parse entry ipv4: %w", err)
		}
		addrs = append(addrs, a)
	}
	if localIPv6 != "" {
		a, err := netip.ParseAddr(localIPv6)
		if err != nil {
			return nil, fmt.Errorf("wireguard: parse entry ipv6: %w", err)
		}
		addrs = append(addrs, a)
	}

	tunDev, _, err := netstack.CreateNetTUN(addrs, []netip.Addr{}, cfg.MTU)
	if err != nil {
		return nil, fmt.Errorf("wireguard: create entry netstack tun: %w", err)
	}

	dev := device.NewDevice(tunDev, conn.NewDefaultBind(), wgLogger(log, "wg-entry"))
	if err := dev.IpcSet(ipcConfig(privKey, peer)); err != nil {
		dev.Close()
		return nil, fmt.Errorf("wireguard: configure entry device: %w", err)
	}
	if err := dev.Up(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("wireguard: bring up entry device: %w", err)
	}
	return &netDevice{tunDev: tunDev, dev: dev}, nil
}

// newExitKernelDevice builds the exit hop as a kernel TUN device (§4.1: the
// "inner" WireGuard instance whose traffic the entry hop tunnels).
func newExitKernelDevice(cfg WgInterface, privKey string, peer WgPeer, log *corelog.Logger) (*netDevice, error) {
	tunDev, err := tun.CreateTUN(cfg.Name, cfg.MTU)
	if err != nil {
		return nil, fmt.Errorf("wireguard: create exit tun %s: %w", cfg.Name, err)
	}

	dev := device.NewDevice(tunDev, conn.NewDefaultBind(), wgLogger(log, "wg-exit"))
	if err := dev.IpcSet(ipcConfig(privKey, peer)); err != nil {
		dev.Close()
		return nil, fmt.Errorf("wireguard: configure exit device: %w", err)
	}
	if err := dev.Up(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("wireguard: bring up exit device: %w", err)
	}
	return &netDevice{tunDev: tunDev, dev: dev}, nil
}

func (d *netDevice) Close() {
	if d.dev != nil {
		d.dev.Close()
	}
}

// ipcConfig builds the userspace wg(8) "set" IPC config string device.Device
// expects: private_key, then one peer block per allowed-ip/endpoint.
func ipcConfig(privKeyHex string, peer WgPeer) string {
	cfg := fmt.Sprintf("private_key=%s\npublic_key=%s\nendpoint=%s\n", privKeyHex, peer.PublicKey, peer.Endpoint)
	for _, ip := range peer.AllowedIPs {
		cfg += fmt.Sprintf("allowed_ip=%s\n", ip)
	}
	return cfg
}

// generatePrivateKey creates a fresh WireGuard private key, hex-encoded for
// IpcSet.
func generatePrivateKey() (string, error) {
	key, err := device.NewPrivateKey()
	if err != nil {
		return "", fmt.Errorf("wireguard: generate private key: %w", err)
	}
	return fmt.Sprintf("%x", key[:]), nil
}
