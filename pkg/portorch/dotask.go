package portorch

import (
	"errors"
	"strconv"
	"strings"

	"github.com/sonic-net/go-orchagent/pkg/orch"
	"github.com/sonic-net/go-orchagent/pkg/store"
	"github.com/sonic-net/go-orchagent/pkg/util"
)

// PortHandler returns a doTask for PORT_TABLE: admin_status/mtu/speed SETs
// apply directly; DEL is a no-op (physical ports cannot be deleted).
func (c *Catalog) PortHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Op.String() == "DEL" {
				results[e.Key] = orch.Consumed
				continue
			}
			results[e.Key] = c.applyPortFields(e.Key, e.Fields)
		}
		return results
	}
}

func (c *Catalog) applyPortFields(name string, fields store.FieldList) orch.TaskResult {
	if v, ok := fields.Get("admin_status"); ok {
		up := v == "up"
		if err := c.SetPortAdminStatus(name, up); err != nil {
			util.WithFields(map[string]interface{}{"port": name, "error": err}).Warn("portorch: admin_status")
			return orch.Retry
		}
	}
	if v, ok := fields.Get("mtu"); ok {
		mtu, err := strconv.Atoi(v)
		if err != nil {
			return orch.Invalid
		}
		if err := c.SetPortMtu(name, mtu); err != nil {
			if errors.Is(err, util.ErrParse) {
				return orch.Invalid
			}
			return orch.Retry
		}
	}
	if v, ok := fields.Get("speed"); ok {
		speed, err := strconv.Atoi(v)
		if err != nil {
			return orch.Invalid
		}
		if err := c.SetPortSpeed(name, speed); err != nil {
			return orch.Retry
		}
	}
	return orch.Consumed
}

// VlanHandler returns a doTask for VLAN_TABLE: key is "VlanNNNN".
func (c *Catalog) VlanHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Op.String() == "DEL" {
				if err := c.RemoveVlan(e.Key); err != nil {
					results[e.Key] = orch.Retry
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}
			idStr, ok := e.Fields.Get("vlanid")
			if !ok {
				idStr = strings.TrimPrefix(e.Key, "Vlan")
			}
			vlanID, err := strconv.Atoi(idStr)
			if err != nil {
				results[e.Key] = orch.Invalid
				continue
			}
			if _, err := c.AddVlan(e.Key, vlanID); err != nil {
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

// VlanMemberHandler returns a doTask for VLAN_MEMBER_TABLE: key is
// "VlanNNNN|Ethernet0".
func (c *Catalog) VlanMemberHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			vlan, port, ok := splitCompositeKey(e.Key)
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}
			if e.Op.String() == "DEL" {
				if err := c.RemoveVlanMember(vlan, port); err != nil {
					results[e.Key] = orch.Retry
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}
			tagged := true
			if v, ok := e.Fields.Get("tagging_mode"); ok {
				tagged = v == "tagged"
			}
			if err := c.AddVlanMember(vlan, port, tagged); err != nil {
				results[e.Key] = orch.Retry
				continue
			}
			results[e.Key] = orch.Consumed
		}
		return results
	}
}

// LagHandler returns a doTask for LAG_TABLE: key is the LAG name.
func (c *Catalog) LagHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			if e.Op.String() == "DEL" {
				if err := c.RemoveLag(e.Key); err != nil {
					results[e.Key] = orch.Retry
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}
			if _, err := c.AddLag(e.Key); err != nil {
				results[e.Key] = orch.Retry
				continue
			}
			if v, ok := e.Fields.Get("mtu"); ok {
				if mtu, err := strconv.Atoi(v); err == nil {
					c.SetPortMtu(e.Key, mtu)
				}
			}
			results[e.Key] = orch.Consumed
		}
		return results
	}
}

// LagMemberHandler returns a doTask for LAG_MEMBER_TABLE: key is
// "PortChannel0001|Ethernet0".
func (c *Catalog) LagMemberHandler() orch.Handler {
	return func(entries []orch.PendingEntry) map[string]orch.TaskResult {
		results := make(map[string]orch.TaskResult, len(entries))
		for _, e := range entries {
			lag, port, ok := splitCompositeKey(e.Key)
			if !ok {
				results[e.Key] = orch.Invalid
				continue
			}
			if e.Op.String() == "DEL" {
				if err := c.RemoveLagMember(lag, port); err != nil {
					results[e.Key] = orch.Retry
					continue
				}
				results[e.Key] = orch.Consumed
				continue
			}
			if err := c.AddLagMember(lag, port); err != nil {
				results[e.Key] = orch.Retry
				continue
			}
			results[e.Key] = orch.Consumed
		}
		return results
	}
}

func splitCompositeKey(key string) (a, b string, ok bool) {
	parts := strings.SplitN(key, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
