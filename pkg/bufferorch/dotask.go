package bufferorch

import (
	"strconv"
	"strings"

	"github.com/sonic-net/go-orchagent/pkg/orch"
)

// PoolHandler returns a doTask for BUFFER_POOL.
func (o *Orch) PoolHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Op.String() == "DEL" {
				if err := o.RemovePool(e.Key); err != nil {
					results[e.Key] = orch.Retry
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}
			typ, _ := e.Fields.Get("type")
			mode, _ := e.Fields.Get("mode")
			sizeStr, _ := e.Fields.Get("size")
			size, err := strconv.Atoi(sizeStr)
			if err != nil {
				results[e.Key] = orch.Invalid
				continue
			}
			if err := o.AddPool(e.Key, typ, mode, size); err != nil {
				results[e.Key] = orch.Invalid
				continue
			}
			results[e.Key] = orch.Consumed
		}
		return results
	}
}

// ProfileHandler returns a doTask for BUFFER_PROFILE.
func (o *Orch) ProfileHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Op.String() == "DEL" {
				if err := o.RemoveProfile(e.Key); err != nil {
					results[e.Key] = orch.Retry
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}

			pool, ok := e.Fields.Get("pool")
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}
			xon, _ := atoiOr0(e.Fields, "xon")
			xoff, _ := atoiOr0(e.Fields, "xoff")
			dynamicTh, _ := atoiOr0(e.Fields, "dynamic_th")
			staticThStr, staticThSet := e.Fields.Get("static_th")
			staticTh := 0
			if staticThSet {
				var err error
				staticTh, err = strconv.Atoi(staticThStr)
				if err != nil {
					results[e.Key] = orch.Invalid
					continue
				}
			}

			switch err := o.AddProfile(e.Key, pool, xon, xoff, dynamicTh, staticTh, staticThSet); err {
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

// QueueHandler returns a doTask for the buffer view of QUEUE, keyed by
// "port:index" with a "profile" field.
func (o *Orch) QueueHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			portName, idx, ok := splitIndexKey(e.Key)
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}
			if e.Op.String() == "DEL" {
				results[e.Key] = orch.Consumed
				continue
			}
			profile, ok := e.Fields.Get("profile")
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}
			switch err := o.SetQueueProfile(portName, idx, profile); err {
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

// PgHandler returns a doTask for PG, keyed by "port:index" with a "profile"
// field.
func (o *Orch) PgHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			portName, idx, ok := splitIndexKey(e.Key)
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}
			if e.Op.String() == "DEL" {
				results[e.Key] = orch.Consumed
				continue
			}
			profile, ok := e.Fields.Get("profile")
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}
			switch err := o.SetPgProfile(portName, idx, profile); err {
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

// PortProfileListHandler returns a doTask for either
// BUFFER_PORT_INGRESS_PROFILE_LIST or BUFFER_PORT_EGRESS_PROFILE_LIST, keyed
// by port alias with a "profile_list" csv field.
func (o *Orch) PortProfileListHandler(ingress bool) orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Op.String() == "DEL" {
				results[e.Key] = orch.Consumed
				continue
			}
			list, _ := e.Fields.Get("profile_list")
			refs := splitCSV(list)
			switch err := o.SetPortProfileList(e.Key, ingress, refs); err {
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

func atoiOr0(fields interface{ Get(string) (string, bool) }, name string) (int, error) {
	v, ok := fields.Get(name)
	if !ok || v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
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
