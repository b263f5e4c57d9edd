package mirrororch

import (
	"strconv"

	"github.com/sonic-net/go-orchagent/pkg/orch"
)

// Handler returns a doTask for MIRROR_SESSION_TABLE. Keys are the session
// name; fields are src_ip, dst_ip, gre_type, dscp, ttl, queue (spec.md §6).
// The written-back "status" field is never read here — it's this
// subsystem's own output, set via the store.Writer passed to SetWriter.
func (o *Orch) Handler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Op.String() == "DEL" {
				if err := o.RemoveSession(e.Key); err != nil {
					results[e.Key] = orch.Retry
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}

			srcIP, ok := e.Fields.Get("src_ip")
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}
			dstIP, ok := e.Fields.Get("dst_ip")
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}
			greStr, _ := e.Fields.Get("gre_type")
			if greStr == "" {
				greStr = "0x88be"
			}
			greType, err := strconv.ParseUint(greStr, 0, 32)
			if err != nil {
				results[e.Key] = orch.Invalid
				continue
			}
			dscp, err := parseIntField(e, "dscp", 0)
			if err != nil {
				results[e.Key] = orch.Invalid
				continue
			}
			ttl, err := parseIntField(e, "ttl", 255)
			if err != nil {
				results[e.Key] = orch.Invalid
				continue
			}
			queue, err := parseIntField(e, "queue", 0)
			if err != nil {
				results[e.Key] = orch.Invalid
				continue
			}
			addVlanTag := false
			if v, ok := e.Fields.Get("add_vlan_tag"); ok {
				addVlanTag = v == "true"
			}

			switch err := o.AddSession(e.Key, srcIP, dstIP, uint32(greType), dscp, ttl, queue, addVlanTag); err {
			case nil:
				results[e.Key] = orch.Consumed
			case ErrExists, ErrInvalid:
				results[e.Key] = orch.Invalid
			default:
				results[e.Key] = orch.Invalid
			}
		}
		return results
	}
}

func parseIntField(e orch.PendingEntry, name string, def int) (int, error) {
	v, ok := e.Fields.Get(name)
	if !ok || v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
