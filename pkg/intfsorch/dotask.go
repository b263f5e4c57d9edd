package intfsorch

import (
	"net"
	"strings"

	"github.com/sonic-net/go-orchagent/pkg/orch"
)

// Handler returns a doTask for INTF_TABLE, whose keys have the
// "alias|prefix" shape. A bare "alias" key with no "|prefix" suffix just binds the VRF/
// NAT-zone attributes and is consumed as a no-op here (those fields are not
// part of this subsystem's scope).
func (o *Orch) Handler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			alias, prefix, ok := splitKey(e.Key)
			if !ok {
				results[e.Key] = orch.Consumed
				continue
			}
			ipnet, err := parsePrefix(prefix)
			if err != nil {
				results[e.Key] = orch.Invalid
				continue
			}

			if e.Op.String() == "DEL" {
				if err := o.Remove(alias, ipnet); err != nil {
					results[e.Key] = orch.Retry
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}

			if err := o.Add(alias, ipnet); err != nil {
				if err == ErrRetry {
					results[e.Key] = orch.Retry
					continue
				}
				results[e.Key] = orch.Retry
				continue
			}
			results[e.Key] = orch.Consumed
		}
		return results
	}
}

func splitKey(key string) (alias, prefix string, ok bool) {
	parts := strings.SplitN(key, "|", 2)
	if len(parts) != 2 {
		return key, "", false
	}
	return parts[0], parts[1], true
}

func parsePrefix(s string) (*net.IPNet, error) {
	if !strings.Contains(s, "/") {
		if strings.Contains(s, ":") {
			s += "/128"
		} else {
			s += "/32"
		}
	}
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return nil, err
	}
	ipnet.IP = ip
	return ipnet, nil
}
