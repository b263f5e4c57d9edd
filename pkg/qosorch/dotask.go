package qosorch

import (
	"strconv"

	"github.com/sonic-net/go-orchagent/pkg/orch"
)

// MapHandler returns a doTask for one of the five QoS map tables (spec.md
// §4.8): every field on the entry is an index -> value pair.
func (o *Orch) MapHandler(mapType string) orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Op.String() == "DEL" {
				if err := o.RemoveMap(mapType, e.Key); err != nil {
					results[e.Key] = orch.Invalid
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}

			fieldsMap := map[string]string{}
			for _, f := range e.Fields {
				fieldsMap[f.Name] = f.Value
			}
			if err := o.AddMap(mapType, e.Key, fieldsMap); err != nil {
				results[e.Key] = orch.Invalid
				continue
			}
			results[e.Key] = orch.Consumed
		}
		return results
	}
}

// SchedulerHandler returns a doTask for SCHEDULER. Fields: type, weight,
// priority.
func (o *Orch) SchedulerHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Op.String() == "DEL" {
				if err := o.RemoveScheduler(e.Key); err != nil {
					results[e.Key] = orch.Invalid
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}

			algo, _ := e.Fields.Get("type")
			weight, err1 := atoiOr0(e.Fields, "weight")
			priority, err2 := atoiOr0(e.Fields, "priority")
			if err1 != nil || err2 != nil {
				results[e.Key] = orch.Invalid
				continue
			}
			if err := o.AddScheduler(e.Key, algo, weight, priority); err != nil {
				results[e.Key] = orch.Invalid
				continue
			}
			results[e.Key] = orch.Consumed
		}
		return results
	}
}

// WredProfileHandler returns a doTask for WRED_PROFILE.
func (o *Orch) WredProfileHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Op.String() == "DEL" {
				if err := o.RemoveWredProfile(e.Key); err != nil {
					results[e.Key] = orch.Invalid
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}
			results[e.Key] = orch.Consumed
			if err := o.AddWredProfile(e.Key, e.Fields.ToMap()); err != nil {
				results[e.Key] = orch.Invalid
			}
		}
		return results
	}
}

// PortQosMapHandler returns a doTask for PORT_QOS_MAP, keyed by port alias.
func (o *Orch) PortQosMapHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Op.String() == "DEL" {
				results[e.Key] = orch.Consumed
				continue
			}

			dscpToTc, _ := e.Fields.Get("dscp_to_tc_map")
			tcToQueue, _ := e.Fields.Get("tc_to_queue_map")
			tcToPg, _ := e.Fields.Get("tc_to_pg_map")
			pfcToPg, _ := e.Fields.Get("pfc_to_pg_map")
			pfcToQueue, _ := e.Fields.Get("pfc_to_queue_map")
			pfcEnable, _ := e.Fields.Get("pfc_enable")

			switch err := o.SetPortQosMap(e.Key, dscpToTc, tcToQueue, tcToPg, pfcToPg, pfcToQueue, pfcEnable); err {
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

// QueueHandler returns a doTask for QUEUE, keyed by "port:index".
func (o *Orch) QueueHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			portName, idx, ok := splitQueueKey(e.Key)
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}
			if e.Op.String() == "DEL" {
				results[e.Key] = orch.Consumed
				continue
			}

			scheduler, schedSet := e.Fields.Get("scheduler")
			wred, wredSet := e.Fields.Get("wred_profile")

			switch err := o.SetQueue(portName, idx, scheduler, schedSet, wred, wredSet); err {
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
