package neighorch

import (
	"errors"
	"strings"

	"github.com/sonic-net/go-orchagent/pkg/orch"
	"github.com/sonic-net/go-orchagent/pkg/util"
)

// Handler returns a doTask for NEIGH_TABLE. Keys are "ifname:ip" — split on
// the first ':' only, since the IP half may itself contain colons (IPv6),
// matching the original orchagent's tokenize-then-substr approach.
func (o *Orch) Handler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			k, ok := parseKey(e.Key)
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}

			if e.Op.String() == "DEL" {
				if err := o.RemoveNeighbor(k); err != nil {
					results[e.Key] = orch.Retry
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}

			mac, ok := e.Fields.Get("neigh")
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}
			if err := o.AddNeighbor(k, mac); err != nil {
				if errors.Is(err, util.ErrParse) {
					results[e.Key] = orch.Invalid
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

func parseKey(key string) (Key, bool) {
	idx := strings.IndexByte(key, ':')
	if idx <= 0 || idx == len(key)-1 {
		return Key{}, false
	}
	return Key{Interface: key[:idx], IP: key[idx+1:]}, true
}
