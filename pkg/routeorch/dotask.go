package routeorch

import (
	"strings"

	"github.com/sonic-net/go-orchagent/pkg/neighorch"
	"github.com/sonic-net/go-orchagent/pkg/orch"
	"github.com/sonic-net/go-orchagent/pkg/util"
)

// resyncKey is the sentinel ROUTE_TABLE key that drives the resync protocol
// (spec.md §4.5).
const resyncKey = "resync"

// Handler returns a doTask for ROUTE_TABLE. Keys are destination prefixes;
// "nexthop" and "ifname" fields are parallel comma-separated lists.
func (o *Orch) Handler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Key == resyncKey {
				if e.Op.String() == "DEL" {
					n := o.EndResync()
					util.WithField("removed", n).Info("routeorch: resync complete")
				} else {
					o.StartResync()
					util.Logger.Info("routeorch: resync started")
				}
				results[e.Key] = orch.Consumed
				continue
			}

			if e.Op.String() == "DEL" {
				if err := o.RemoveRoute(e.Key); err != nil {
					results[e.Key] = orch.Retry
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}

			nexthops, ok := parseNextHops(e)
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}
			if err := o.AddRoute(e.Key, nexthops); err != nil {
				results[e.Key] = orch.Retry
				continue
			}
			results[e.Key] = orch.Consumed
		}
		return results
	}
}

func parseNextHops(e orch.PendingEntry) ([]neighorch.Key, bool) {
	nhField, ok := e.Fields.Get("nexthop")
	if !ok {
		return nil, false
	}
	ifField, _ := e.Fields.Get("ifname")

	ips := strings.Split(nhField, ",")
	ifaces := strings.Split(ifField, ",")
	if ifField == "" {
		ifaces = make([]string, len(ips))
	}
	if len(ifaces) != len(ips) {
		return nil, false
	}

	out := make([]neighorch.Key, len(ips))
	for i, ip := range ips {
		out[i] = neighorch.Key{Interface: strings.TrimSpace(ifaces[i]), IP: strings.TrimSpace(ip)}
	}
	return out, true
}
