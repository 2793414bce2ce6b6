package linux

import (
	"context"
	"fmt"
	"net"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"mistveil-core/internal/platform"
)

// tableName and chainName are the single inet table/output-hook chain this
// backend owns; ApplyConnectedPolicy/ApplyBlockedPolicy fully replace its
// rule set rather than diffing against whatever was there before (§4.3:
// "firewall policy is replaced wholesale on every transition").
const (
	tableName = "mistveil"
	chainName = "output"
)

// Firewall is the Linux nftables backend.
type Firewall struct {
	conn *nftables.Conn
}

// NewFirewall opens a netlink-backed nftables connection.
func NewFirewall() (*Firewall, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("linux firewall: open nftables conn: %w", err)
	}
	return &Firewall{conn: conn}, nil
}

// ApplyConnectedPolicy installs a default-drop output chain that allows the
// peer endpoints, the allowed endpoints, the tunnel interface, optionally
// the LAN ranges, and UDP traffic to the policy's DNS servers (§4.3
// Connected firewall policy). DNSRedirectPort and RedirectIface are not
// read: no DNS redirect rule is installed.
func (f *Firewall) ApplyConnectedPolicy(ctx context.Context, policy platform.ConnectedFirewallPolicy) error {
	table, chain, err := f.resetChain()
	if err != nil {
		return err
	}

	for _, ep := range policy.PeerEndpoints {
		f.acceptEndpoint(table, chain, ep)
	}
	for _, ep := range policy.AllowedEndpoints {
		f.acceptEndpoint(table, chain, ep)
	}
	if policy.TunnelIface != "" {
		f.acceptOif(table, chain, policy.TunnelIface)
	}
	if policy.AllowLAN {
		for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fe80::/10"} {
			f.acceptCIDR(table, chain, cidr)
		}
	}
	for _, s := range policy.DNSServers {
		f.acceptEndpoint(table, chain, platform.AllowedEndpoint{Address: s, Protocol: "udp"})
	}

	return f.conn.Flush()
}

// ApplyBlockedPolicy installs a default-drop chain allowing only explicitly
// permitted endpoints and (optionally) LAN — used in Error states to
// contain all traffic (§4.3 Blocked firewall policy).
func (f *Firewall) ApplyBlockedPolicy(ctx context.Context, policy platform.BlockedFirewallPolicy) error {
	table, chain, err := f.resetChain()
	if err != nil {
		return err
	}
	for _, ep := range policy.AllowedEndpoints {
		f.acceptEndpoint(table, chain, ep)
	}
	if policy.AllowLAN {
		for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fe80::/10"} {
			f.acceptCIDR(table, chain, cidr)
		}
	}
	return f.conn.Flush()
}

// ResetPolicy removes the managed table entirely, restoring unrestricted
// traffic.
func (f *Firewall) ResetPolicy(ctx context.Context) error {
	table := &nftables.Table{Name: tableName, Family: nftables.TableFamilyINet}
	f.conn.DelTable(table)
	return f.conn.Flush()
}

// resetChain deletes and recreates the managed table/chain with a default
// drop policy, so every Apply* call starts from a clean slate.
func (f *Firewall) resetChain() (*nftables.Table, *nftables.Chain, error) {
	old := &nftables.Table{Name: tableName, Family: nftables.TableFamilyINet}
	f.conn.DelTable(old)
	if err := f.conn.Flush(); err != nil {
		// table may not have existed yet; proceed
		_ = err
	}

	table := f.conn.AddTable(&nftables.Table{Name: tableName, Family: nftables.TableFamilyINet})
	policy := nftables.ChainPolicyDrop
	chain := f.conn.AddChain(&nftables.Chain{
		Name:     chainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookOutput,
		Priority: nftables.ChainPriorityFilter,
		Policy:   &policy,
	})
	return table, chain, nil
}

func (f *Firewall) acceptOif(table *nftables.Table, chain *nftables.Chain, iface string) {
	ifnameBytes := ifname(iface)
	f.conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{
			&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifnameBytes},
			&expr.Verdict{Kind: expr.VerdictAccept},
		},
	})
}

func (f *Firewall) acceptEndpoint(table *nftables.Table, chain *nftables.Chain, ep platform.AllowedEndpoint) {
	ip := net.ParseIP(ep.Address)
	if ip == nil {
		return
	}
	if v4 := ip.To4(); v4 != nil {
		f.conn.AddRule(&nftables.Rule{
			Table: table,
			Chain: chain,
			Exprs: []expr.Any{
				&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: 16, Len: 4},
				&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: v4},
				&expr.Verdict{Kind: expr.VerdictAccept},
			},
		})
		return
	}
	f.conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{
			&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: 24, Len: 16},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ip.To16()},
			&expr.Verdict{Kind: expr.VerdictAccept},
		},
	})
}

func (f *Firewall) acceptCIDR(table *nftables.Table, chain *nftables.Chain, cidr string) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return
	}
	offset := uint32(16)
	length := uint32(4)
	if ipnet.IP.To4() == nil {
		offset, length = 24, 16
	}
	f.conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{
			&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: offset, Len: length},
			&expr.Bitwise{SourceRegister: 1, DestRegister: 1, Len: length, Mask: ipnet.Mask, Xor: make([]byte, length)},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ipnet.IP.Mask(ipnet.Mask)},
			&expr.Verdict{Kind: expr.VerdictAccept},
		},
	})
}

// ifname pads/truncates an interface name to the fixed IFNAMSIZ width
// nftables meta expressions compare against.
func ifname(name string) []byte {
	b := make([]byte, unix.IFNAMSIZ)
	copy(b, name)
	return b
}
