package copporch

import (
	"strings"

	"github.com/sonic-net/go-orchagent/pkg/orch"
)

// PolicerHandler returns a doTask for POLICER_TABLE.
func (o *Orch) PolicerHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Op.String() == "DEL" {
				if err := o.RemovePolicer(e.Key); err != nil {
					results[e.Key] = orch.Retry
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}
			if err := o.AddPolicer(e.Key, e.Fields.ToMap()); err != nil {
				results[e.Key] = orch.Invalid
				continue
			}
			results[e.Key] = orch.Consumed
		}
		return results
	}
}

// TrapGroupHandler returns a doTask for COPP_TABLE, keyed by trap group
// name. Fields: trap_ids (csv), policer ("[POLICER_TABLE:name]" or "").
func (o *Orch) TrapGroupHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Op.String() == "DEL" {
				if err := o.RemoveTrapGroup(e.Key); err != nil {
					results[e.Key] = orch.Invalid
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}

			trapIDs := splitCSV(firstOf(e, "trap_ids"))
			policerRef := firstOf(e, "policer")
			var policerName string
			if policerRef != "" {
				_, name, err := orch.ParseReference(policerRef)
				if err != nil {
					results[e.Key] = orch.Invalid
					continue
				}
				policerName = name
			}

			switch err := o.AddTrapGroup(e.Key, trapIDs, policerName); err {
			case nil:
				results[e.Key] = orch.Consumed
			case ErrRetry:
				results[e.Key] = orch.Retry
			default:
				results[e.Key] = orch.Invalid
			}
		}
		return results
	}
}

func firstOf(e orch.PendingEntry, name string) string {
	v, _ := e.Fields.Get(name)
	return v
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
