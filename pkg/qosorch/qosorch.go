// Package qosorch implements the QoS map/scheduler/WRED/port-QoS subsystem
// (spec.md §4.8, C11): DSCP-to-TC, TC-to-queue, TC-to-PG, and PFC-to-PG/queue
// maps; scheduler and WRED profile objects; their assignment to ports and
// individual queues; and the startup ECN color-marking ACL bootstrap.
// Grounded on original_source/sonic-swss/orchagent/qosorch.{h,cpp} for the
// map/scheduler/WRED field vocabulary, the scheduler-group child-list walk
// (findQueueSchedGroup/applySchedulerToQueueSchedulerGroup), and the
// initColorAcl/initAclEntryForEcn bootstrap; and on pkg/model/qos.go for the
// DSCP/queue/policer constant vocabulary carried over from the teacher's own
// QoS data model.
package qosorch

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sonic-net/go-orchagent/pkg/orch"
	"github.com/sonic-net/go-orchagent/pkg/portorch"
	"github.com/sonic-net/go-orchagent/pkg/sad"
	"github.com/sonic-net/go-orchagent/pkg/util"
)

// Map type names, matching the CONFIG_DB table names they are addressed by
// in "[TABLE:NAME]" references (spec.md §4.8).
const (
	MapDscpToTc   = "DSCP_TO_TC_MAP"
	MapTcToQueue  = "TC_TO_QUEUE_MAP"
	MapTcToPg     = "TC_TO_PRIORITY_GROUP_MAP"
	MapPfcToPg    = "PFC_PRIORITY_TO_PRIORITY_GROUP_MAP"
	MapPfcToQueue = "PFC_PRIORITY_TO_QUEUE_MAP"
)

var validMapTypes = map[string]bool{
	MapDscpToTc:   true,
	MapTcToQueue:  true,
	MapTcToPg:     true,
	MapPfcToPg:    true,
	MapPfcToQueue: true,
}

// ErrRetry marks an entry as waiting on a dependency not yet installed.
var ErrRetry = fmt.Errorf("qosorch: unresolved dependency")

// portAssign is the set of map/scheduler references currently applied to a
// port via SetPortQosMapAttr (spec.md §6 PORT_QOS_MAP).
type portAssign struct {
	dscpToTc   string
	tcToQueue  string
	tcToPg     string
	pfcToPg    string
	pfcToQueue string
	pfcEnable  string
}

// queueAssign is the scheduler/WRED currently applied to one port queue.
type queueAssign struct {
	scheduler string
	wred      string
}

// Orch is the QoS subsystem instance.
type Orch struct {
	mu sync.Mutex

	driver sad.Driver
	ports  *portorch.Catalog

	maps         map[string]map[string]sad.Handle // mapType -> name -> handle
	schedulers   map[string]sad.Handle
	wredProfiles map[string]sad.Handle

	portAssigns  map[string]portAssign
	queueAssigns map[string]queueAssign

	colorAclBootstrapped bool
}

// New constructs the QoS subsystem and runs the ECN color-ACL bootstrap
// unless the platform reports it can't match DSCP+ECN (spec.md §4.8).
func New(driver sad.Driver, ports *portorch.Catalog) *Orch {
	o := &Orch{
		driver:       driver,
		ports:        ports,
		maps:         make(map[string]map[string]sad.Handle),
		schedulers:   make(map[string]sad.Handle),
		wredProfiles: make(map[string]sad.Handle),
		portAssigns:  make(map[string]portAssign),
		queueAssigns: make(map[string]queueAssign),
	}
	for t := range validMapTypes {
		o.maps[t] = make(map[string]sad.Handle)
	}
	if driver.SupportsDscpEcnMatch() {
		o.initColorAcl()
	}
	return o
}

// initColorAcl creates the system-internal ingress ACL table and the two
// low-priority ECN=0/DSCP={0,8} coloring rules, bound to every physical
// port. This table is a QoS-bootstrap internal — it is never exposed
// through pkg/aclorch's CONFIG_DB-facing table registry, matching the
// original's separate one-off use of the ACL API from QosOrch.
func (o *Orch) initColorAcl() {
	tableAttrs := sad.Attrs{
		"match_dscp": true,
		"match_ecn":  true,
		"stage":      "ingress",
	}
	table, err := o.driver.CreateAclTable(tableAttrs)
	if err != nil {
		util.WithField("call", "CreateAclTable").Warn("qosorch: failed to create ECN color ACL table, skipping bootstrap")
		return
	}
	o.colorAclBootstrapped = true

	o.addColorRule(table, 999, 0x00, 0x00)
	o.addColorRule(table, 1000, 0x00, 0x08)

	for _, name := range o.ports.PhysicalPorts() {
		if _, err := o.ports.BindAclTable(name, table); err != nil {
			util.WithFields(map[string]interface{}{"port": name, "call": "BindAclTable"}).
				Warn("qosorch: failed to bind ECN color ACL table to port")
		}
	}
}

func (o *Orch) addColorRule(table sad.Handle, priority int, ecn, dscp int) {
	attrs := sad.Attrs{
		"priority":      priority,
		"match_ecn":     ecn,
		"match_dscp":    dscp,
		"packet_color":  "yellow",
		"packet_action": "set_color",
	}
	if _, err := o.driver.CreateAclRule(table, attrs); err != nil {
		util.WithField("call", "CreateAclRule").Warn("qosorch: failed to create ECN color ACL rule")
	}
}

// AddMap creates or replaces a QoS map object. entries maps string-encoded
// indices (DSCP, TC, or PFC priority) to their mapped value. The driver
// surface has no in-place map-update call, so an update removes the old
// object and creates a new one (spec.md §4.8 "set-attribute on update" —
// here, recreate, since CreateQosMap is the only mutation primitive QoS
// maps expose).
func (o *Orch) AddMap(mapType, name string, entries map[string]string) error {
	if !validMapTypes[mapType] {
		return util.NewParseError(mapType, name, "type", mapType, "a known QoS map type")
	}
	attrs := sad.Attrs{}
	for k, v := range entries {
		if _, err := strconv.Atoi(k); err != nil {
			return util.NewParseError(mapType, name, k, k, "an integer index")
		}
		if _, err := strconv.Atoi(v); err != nil {
			return util.NewParseError(mapType, name, k, v, "an integer value")
		}
		attrs[k] = v
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if old, ok := o.maps[mapType][name]; ok {
		if err := o.driver.RemoveQosMap(old); err != nil {
			return sad.Call("RemoveQosMap", err)
		}
	}
	h, err := o.driver.CreateQosMap(mapType, attrs)
	if err != nil {
		return sad.Call("CreateQosMap", err)
	}
	o.maps[mapType][name] = h
	return nil
}

// RemoveMap destroys a QoS map object.
func (o *Orch) RemoveMap(mapType, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.maps[mapType][name]
	if !ok {
		return nil
	}
	if err := o.driver.RemoveQosMap(h); err != nil {
		return sad.Call("RemoveQosMap", err)
	}
	delete(o.maps[mapType], name)
	return nil
}

func (o *Orch) resolveMap(mapType, ref string) (sad.Handle, bool) {
	if ref == "" {
		return "", true
	}
	table, name, err := orch.ParseReference(ref)
	if err != nil || table != mapType {
		return "", false
	}
	h, ok := o.maps[mapType][name]
	return h, ok
}

// AddScheduler creates or replaces a scheduler profile. algo is one of
// DWRR/WRR/STRICT (qosorch.h scheduler_algo_type_field_name).
func (o *Orch) AddScheduler(name, algo string, weight, priority int) error {
	attrs := sad.Attrs{"type": algo}
	if weight > 0 {
		attrs["weight"] = weight
	}
	if priority > 0 {
		attrs["priority"] = priority
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if old, ok := o.schedulers[name]; ok {
		if err := o.driver.RemoveScheduler(old); err != nil {
			return sad.Call("RemoveScheduler", err)
		}
	}
	h, err := o.driver.CreateScheduler(attrs)
	if err != nil {
		return sad.Call("CreateScheduler", err)
	}
	o.schedulers[name] = h
	return nil
}

// RemoveScheduler destroys a scheduler profile.
func (o *Orch) RemoveScheduler(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.schedulers[name]
	if !ok {
		return nil
	}
	if err := o.driver.RemoveScheduler(h); err != nil {
		return sad.Call("RemoveScheduler", err)
	}
	delete(o.schedulers, name)
	return nil
}

// AddWredProfile creates or replaces a WRED profile.
func (o *Orch) AddWredProfile(name string, attrs map[string]string) error {
	a := sad.Attrs{}
	for k, v := range attrs {
		a[k] = v
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if old, ok := o.wredProfiles[name]; ok {
		if err := o.driver.RemoveWredProfile(old); err != nil {
			return sad.Call("RemoveWredProfile", err)
		}
	}
	h, err := o.driver.CreateWredProfile(a)
	if err != nil {
		return sad.Call("CreateWredProfile", err)
	}
	o.wredProfiles[name] = h
	return nil
}

// RemoveWredProfile destroys a WRED profile.
func (o *Orch) RemoveWredProfile(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.wredProfiles[name]
	if !ok {
		return nil
	}
	if err := o.driver.RemoveWredProfile(h); err != nil {
		return sad.Call("RemoveWredProfile", err)
	}
	delete(o.wredProfiles, name)
	return nil
}

// SetPortQosMap applies the named maps to a port. Each ref is either empty
// or a "[TABLE:NAME]" reference that must already resolve (spec.md §4.8:
// "must resolve before an operation proceeds, otherwise Retry").
func (o *Orch) SetPortQosMap(portName string, dscpToTc, tcToQueue, tcToPg, pfcToPg, pfcToQueue, pfcEnable string) error {
	port, ok := o.ports.GetPort(portName)
	if !ok {
		return ErrRetry
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	attrs := sad.Attrs{}
	if h, ok := o.resolveMap(MapDscpToTc, dscpToTc); !ok {
		return ErrRetry
	} else if h != "" {
		attrs["dscp_to_tc_map"] = h
	}
	if h, ok := o.resolveMap(MapTcToQueue, tcToQueue); !ok {
		return ErrRetry
	} else if h != "" {
		attrs["tc_to_queue_map"] = h
	}
	if h, ok := o.resolveMap(MapTcToPg, tcToPg); !ok {
		return ErrRetry
	} else if h != "" {
		attrs["tc_to_pg_map"] = h
	}
	if h, ok := o.resolveMap(MapPfcToPg, pfcToPg); !ok {
		return ErrRetry
	} else if h != "" {
		attrs["pfc_to_pg_map"] = h
	}
	if h, ok := o.resolveMap(MapPfcToQueue, pfcToQueue); !ok {
		return ErrRetry
	} else if h != "" {
		attrs["pfc_to_queue_map"] = h
	}
	if pfcEnable != "" {
		attrs["pfc_enable"] = pfcEnable
	}
	if len(attrs) == 0 {
		return nil
	}

	if err := o.driver.SetPortQosMapAttr(port.SadPort, attrs); err != nil {
		return sad.Call("SetPortQosMapAttr", err)
	}
	o.portAssigns[portName] = portAssign{dscpToTc, tcToQueue, tcToPg, pfcToPg, pfcToQueue, pfcEnable}
	return nil
}

// queueHandle synthesizes the queue handle for a port/index pair. The
// driver surface has no GetPortQueue call (SAI normally returns the queue
// OID list as a port attribute read once at port creation); since nothing
// here needs the real OID beyond identity and tree-walk matching, the
// handle is derived deterministically the same way portorch derives
// SadPort from a bare port name.
func queueHandle(port sad.Handle, idx int) sad.Handle {
	return sad.Handle(fmt.Sprintf("%s:queue%d", port, idx))
}

// SetQueue applies a scheduler and/or WRED profile to one port queue.
// schedulerSet/wredSet indicate whether that field was present in the
// entry at all — an explicit empty value clears the assignment
// (SAI_NULL_OBJECT_ID in the original), while an absent field leaves the
// existing assignment untouched. scheduler is applied to whichever
// scheduler group owns the queue (findQueueSchedGroup walk, spec.md §4.8);
// wred is applied directly to the queue object.
func (o *Orch) SetQueue(portName string, idx int, scheduler string, schedulerSet bool, wred string, wredSet bool) error {
	port, ok := o.ports.GetPort(portName)
	if !ok {
		return ErrRetry
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	qh := queueHandle(port.SadPort, idx)
	key := portName + ":" + strconv.Itoa(idx)
	current := o.queueAssigns[key]

	if schedulerSet {
		var schedHandle sad.Handle
		if scheduler != "" {
			h, ok := o.schedulers[scheduler]
			if !ok {
				return ErrRetry
			}
			schedHandle = h
		}
		if err := o.applySchedulerToQueue(port.SadPort, qh, schedHandle); err != nil {
			return err
		}
		current.scheduler = scheduler
	}
	if wredSet {
		var wredHandle sad.Handle
		if wred != "" {
			h, ok := o.wredProfiles[wred]
			if !ok {
				return ErrRetry
			}
			wredHandle = h
		}
		if err := o.driver.SetQueueAttr(qh, sad.Attrs{"wred_profile_id": wredHandle}); err != nil {
			return sad.Call("SetQueueAttr", err)
		}
		current.wred = wred
	}

	o.queueAssigns[key] = current
	return nil
}

// applySchedulerToQueue walks the port's scheduler-group tree to find the
// group whose child list contains qh, then sets that group's profile
// attribute (original: QosOrch::applySchedulerToQueueSchedulerGroup). The
// walk is redone on every assignment, no caching, per spec.md §4.8.
func (o *Orch) applySchedulerToQueue(port, qh, schedHandle sad.Handle) error {
	groups, err := o.driver.GetPortSchedulerGroups(port)
	if err != nil {
		return sad.Call("GetPortSchedulerGroups", err)
	}
	for _, g := range groups {
		for _, child := range g.Children {
			if child != qh {
				continue
			}
			if err := o.driver.SetSchedGroupAttr(g.Handle, sad.Attrs{"scheduler_profile_id": schedHandle}); err != nil {
				return sad.Call("SetSchedGroupAttr", err)
			}
			return nil
		}
	}
	return fmt.Errorf("qosorch: no scheduler group on port %s owns queue %s", port, qh)
}

// splitQueueKey parses a "port:index" QUEUE_TABLE key.
func splitQueueKey(key string) (port string, idx int, ok bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, false
	}
	return parts[0], n, true
}
