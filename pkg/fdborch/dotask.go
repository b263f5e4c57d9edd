package fdborch

import (
	"strconv"
	"strings"

	"github.com/sonic-net/go-orchagent/pkg/orch"
)

// Handler returns a doTask for FDB_TABLE. Keys are "VlanX:mac"; fields are
// "port" and "type" (dynamic|static).
func (o *Orch) Handler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			vlan, mac, ok := parseKey(e.Key)
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}

			if e.Op.String() == "DEL" {
				o.RemoveFdb(vlan, mac)
				results[e.Key] = orch.Consumed
				continue
			}

			port, ok := e.Fields.Get("port")
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}
			typ, _ := e.Fields.Get("type")

			if err := o.AddFdb(vlan, mac, port, typ != "static"); err != nil {
				results[e.Key] = orch.Retry
				continue
			}
			results[e.Key] = orch.Consumed
		}
		return results
	}
}

// parseKey splits "VlanX:mac" into a VLAN id and a MAC address. Only the
// first colon is significant, which is safe because "VlanX" itself never
// contains one.
func parseKey(key string) (int, string, bool) {
	idx := strings.IndexByte(key, ':')
	if idx < 0 {
		return 0, "", false
	}
	vlanPart, mac := key[:idx], key[idx+1:]
	if !strings.HasPrefix(vlanPart, "Vlan") {
		return 0, "", false
	}
	vlan, err := strconv.Atoi(strings.TrimPrefix(vlanPart, "Vlan"))
	if err != nil {
		return 0, "", false
	}
	return vlan, mac, true
}
