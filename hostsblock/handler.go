package hostsblock

import (
	"context"
	"strings"

	"github.com/coredns/coredns/plugin"
	"github.com/miekg/dns"

	"github.com/ipshipyard/hostrep/hostlist"
)

// hostsBlock answers NXDOMAIN for names on the block list and passes every
// other query down the chain.
type hostsBlock struct {
	Next    plugin.Handler
	Service *hostlist.Service
}

// ServeDNS implements the plugin.Handler interface.
func (h *hostsBlock) ServeDNS(ctx context.Context, w dns.ResponseWriter, r *dns.Msg) (int, error) {
	var blocked string
	for _, q := range r.Question {
		name := strings.TrimSuffix(strings.ToLower(q.Name), ".")
		if name == "" {
			continue
		}
		if h.Service.IsBlocked(ctx, name) {
			blocked = name
			break
		}
	}

	if blocked == "" {
		dnsResponseCount.WithLabelValues("PASS").Add(1)
		return plugin.NextOrFailure(h.Name(), h.Next, ctx, w, r)
	}

	log.Debugf("%s is on the %s block list", blocked, hostlist.ListName)
	dnsResponseCount.WithLabelValues("NXDOMAIN").Add(1)

	var m dns.Msg
	m.SetRcode(r, dns.RcodeNameError)
	m.Authoritative = true
	if err := w.WriteMsg(&m); err != nil {
		return dns.RcodeServerFailure, err
	}
	return dns.RcodeNameError, nil
}

// Name implements the Handler interface.
func (h *hostsBlock) Name() string { return pluginName }
