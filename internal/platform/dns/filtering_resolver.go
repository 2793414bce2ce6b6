// Package dns implements the loopback filtering resolver (§5.3 Glossary:
// "a local DNS server bound to loopback that forwards only permitted
// queries; used to keep the OS's captive-portal probes from leaking").
// It is optional: the Linux/Windows DNS backends point the interface
// straight at the upstream resolvers and never start this server, while a
// backend that wants interception-proofing against captive-portal probes
// can point the OS at 127.0.0.1 and run this in front of the real
// upstreams.
package dns

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/miekg/dns"

	"mistveil-core/internal/corelog"
)

// AllowedSuffix matches a query name if it equals suffix or is a strict
// subdomain of it. An empty suffix matches everything.
type AllowedSuffix string

func (s AllowedSuffix) matches(qname string) bool {
	if s == "" {
		return true
	}
	suffix := dns.Fqdn(string(s))
	qname = dns.Fqdn(qname)
	return qname == suffix || (len(qname) > len(suffix) && qname[len(qname)-len(suffix):] == suffix)
}

// FilteringResolver answers DNS queries on loopback, forwarding only
// queries that match one of Allow to Upstreams and answering REFUSED for
// everything else. An empty Allow permits every name; a permitted query
// that no upstream answers gets SERVFAIL.
type FilteringResolver struct {
	Upstreams []string // host:port, tried in order
	Allow     []AllowedSuffix
	Log       *corelog.Logger

	srv *dns.Server
	mu  sync.Mutex
}

// NewFilteringResolver binds addr (normally "127.0.0.1:53") and starts
// serving in the background. Call Close to stop.
func NewFilteringResolver(addr string, upstreams []string, allow []AllowedSuffix, log *corelog.Logger) (*FilteringResolver, error) {
	r := &FilteringResolver{Upstreams: upstreams, Allow: allow, Log: log}
	mux := dns.NewServeMux()
	mux.HandleFunc(".", r.handle)

	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("filtering resolver: listen %s: %w", addr, err)
	}
	r.srv = &dns.Server{PacketConn: pc, Handler: mux}
	go func() {
		if err := r.srv.ActivateAndServe(); err != nil && r.Log != nil {
			r.Log.Errorf("dns", "filtering resolver stopped: %v", err)
		}
	}()
	return r, nil
}

func (r *FilteringResolver) handle(w dns.ResponseWriter, req *dns.Msg) {
	if len(req.Question) == 0 || !r.permitted(req.Question[0].Name) {
		deny := new(dns.Msg)
		deny.SetRcode(req, dns.RcodeRefused)
		_ = w.WriteMsg(deny)
		return
	}

	for _, up := range r.Upstreams {
		client := new(dns.Client)
		resp, _, err := client.Exchange(req, up)
		if err != nil || resp == nil {
			continue
		}
		_ = w.WriteMsg(resp)
		return
	}

	fail := new(dns.Msg)
	fail.SetRcode(req, dns.RcodeServerFailure)
	_ = w.WriteMsg(fail)
}

func (r *FilteringResolver) permitted(qname string) bool {
	if len(r.Allow) == 0 {
		return true
	}
	for _, a := range r.Allow {
		if a.matches(qname) {
			return true
		}
	}
	return false
}

// Close shuts the server down.
func (r *FilteringResolver) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.srv == nil {
		return nil
	}
	return r.srv.ShutdownContext(ctx)
}
