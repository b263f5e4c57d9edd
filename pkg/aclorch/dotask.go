package aclorch

import (
	"strconv"
	"strings"

	"github.com/sonic-net/go-orchagent/pkg/orch"
	"github.com/sonic-net/go-orchagent/pkg/util"
)

// matchFieldNames lists the ACL_RULE_TABLE field names treated as match
// fields rather than priority/action fields (spec.md §6).
var matchFieldNames = []string{
	"SRC_IP", "DST_IP", "L4_SRC_PORT", "L4_DST_PORT", "ETHER_TYPE",
	"IP_PROTOCOL", "TCP_FLAGS", "IP_TYPE", "DSCP", "TC",
	"L4_SRC_PORT_RANGE", "L4_DST_PORT_RANGE",
}

// TableHandler returns a doTask for ACL_TABLE. Keys are the table id; fields
// are TYPE, PORTS (csv), POLICY_DESC (spec.md §6).
func (o *Orch) TableHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Op.String() == "DEL" {
				if err := o.RemoveTable(e.Key); err != nil {
					results[e.Key] = orch.Retry
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}

			var typ TableType
			switch strings.ToUpper(firstOf(e, "TYPE")) {
			case "MIRROR":
				typ = TableMirror
			case "L3", "":
				typ = TableL3
			default:
				results[e.Key] = orch.Invalid
				continue
			}
			desc := firstOf(e, "POLICY_DESC")
			ports := util.SplitCommaSeparated(firstOf(e, "PORTS"))

			switch err := o.AddTable(e.Key, typ, desc, ports); err {
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

// RuleHandler returns a doTask for ACL_RULE_TABLE. Keys are "table_id:rule_id"
// composite keys (spec.md §6).
func (o *Orch) RuleHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			tableID, ruleID, ok := splitRuleKey(e.Key)
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}

			if e.Op.String() == "DEL" {
				o.RemoveRule(tableID, ruleID)
				results[e.Key] = orch.Consumed
				continue
			}

			prioStr, ok := e.Fields.Get("PRIORITY")
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}
			priority, err := strconv.Atoi(prioStr)
			if err != nil {
				results[e.Key] = orch.Invalid
				continue
			}

			matches := map[string]string{}
			for _, name := range matchFieldNames {
				if v, ok := e.Fields.Get(name); ok && v != "" {
					matches[name] = v
				}
			}
			packetAction, _ := e.Fields.Get("PACKET_ACTION")
			mirrorAction, _ := e.Fields.Get("MIRROR_ACTION")

			switch err := o.AddRule(tableID, ruleID, priority, matches, packetAction, mirrorAction); err {
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

func splitRuleKey(key string) (tableID, ruleID string, ok bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
