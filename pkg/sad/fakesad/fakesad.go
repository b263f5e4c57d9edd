// Package fakesad is an in-memory sad.Driver used by every *orch package's
// unit tests. It records every call it receives (for assertions) and keeps
// just enough state to make refcount/lifecycle tests meaningful — it does
// not attempt to model real forwarding behavior.
package fakesad

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sonic-net/go-orchagent/pkg/sad"
)

// Call records one driver invocation for test assertions.
type Call struct {
	Name string
	Args []interface{}
}

// Driver is the fake sad.Driver implementation.
type Driver struct {
	mu sync.Mutex

	Calls []Call

	// FailNext, keyed by method name, makes the next call to that method
	// fail with the given error instead of succeeding. Consumed on use.
	FailNext map[string]error

	maxGroups        int
	maxGroupsDivBy32 bool
	swh              sad.Handle
	defaultVR        sad.Handle
	switchMAC        string
	cpuPort          sad.Handle
	dscpEcnMatch     bool

	objects map[sad.Handle]bool // every live handle, for existence checks

	lagMembers     map[sad.Handle]sad.Handle // member handle -> lag handle
	vlanMembers    map[sad.Handle]sad.Handle // member handle -> vlan handle
	nhgMembers     map[sad.Handle]sad.Handle // member handle -> group handle
	aclCounters    map[sad.Handle]struct{ Packets, Bytes uint64 }
	schedGroups    map[sad.Handle][]sad.SchedGroup // port -> groups
}

// New constructs a fake driver with plausible defaults: a switch handle, a
// default virtual router, a synthetic switch MAC, a CPU port handle, and an
// ECMP group ceiling of 128 (a typical Broadcom Tomahawk-class value).
func New() *Driver {
	return &Driver{
		FailNext:    make(map[string]error),
		maxGroups:   128,
		swh:         "switch-0",
		defaultVR:   "vr-default",
		switchMAC:   "52:54:00:00:00:01",
		cpuPort:     "port-cpu",
		dscpEcnMatch: true,
		objects:     map[sad.Handle]bool{"switch-0": true, "vr-default": true, "port-cpu": true},
		lagMembers:  make(map[sad.Handle]sad.Handle),
		vlanMembers: make(map[sad.Handle]sad.Handle),
		nhgMembers:  make(map[sad.Handle]sad.Handle),
		aclCounters: make(map[sad.Handle]struct{ Packets, Bytes uint64 }),
		schedGroups: make(map[sad.Handle][]sad.SchedGroup),
	}
}

// SetMaxNextHopGroups overrides the ECMP group ceiling a test cares about
// (e.g. to exercise spec.md §4.5's backoff path with a tiny ceiling).
func (d *Driver) SetMaxNextHopGroups(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxGroups = n
}

// SetMaxNextHopGroupsDivideBy32 marks this driver as belonging to the
// platform class (e.g. Mellanox) that reports MaxNextHopGroups() already
// scaled to a per-member-slot count, requiring the /32 correction spec.md
// §4.5 describes.
func (d *Driver) SetMaxNextHopGroupsDivideBy32(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxGroupsDivBy32 = v
}

func (d *Driver) MaxNextHopGroupsDivideBy32() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxGroupsDivBy32
}

// SetSchedGroups seeds the scheduler-group tree reported for a port, for
// qosorch tests that walk it.
func (d *Driver) SetSchedGroups(port sad.Handle, groups []sad.SchedGroup) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schedGroups[port] = groups
}

func (d *Driver) record(name string, args ...interface{}) {
	d.Calls = append(d.Calls, Call{Name: name, Args: args})
}

// failure pops and returns a configured failure for name, if one is queued.
func (d *Driver) failure(name string) error {
	if err, ok := d.FailNext[name]; ok {
		delete(d.FailNext, name)
		return errors.Wrapf(err, "fakesad: %s", name)
	}
	return nil
}

func (d *Driver) newHandle(prefix string) sad.Handle {
	h := sad.Handle(fmt.Sprintf("%s-%s", prefix, uuid.New().String()))
	d.objects[h] = true
	return h
}

func (d *Driver) exists(h sad.Handle) bool { return d.objects[h] }

func (d *Driver) remove(h sad.Handle) {
	delete(d.objects, h)
}

// --- PortDriver ---

func (d *Driver) SetPortAttr(port sad.Handle, attrs sad.Attrs) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetPortAttr", port, attrs)
	if err := d.failure("SetPortAttr"); err != nil {
		return err
	}
	if !d.exists(port) {
		d.objects[port] = true // physical ports pre-exist; bind on first touch
	}
	return nil
}

func (d *Driver) CreateLag(attrs sad.Attrs) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateLag", attrs)
	if err := d.failure("CreateLag"); err != nil {
		return "", err
	}
	return d.newHandle("lag"), nil
}

func (d *Driver) RemoveLag(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveLag", h)
	if err := d.failure("RemoveLag"); err != nil {
		return err
	}
	if !d.exists(h) {
		return errors.Errorf("fakesad: RemoveLag: unknown handle %s", h)
	}
	d.remove(h)
	return nil
}

func (d *Driver) AddLagMember(lag, port sad.Handle, attrs sad.Attrs) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("AddLagMember", lag, port, attrs)
	if err := d.failure("AddLagMember"); err != nil {
		return "", err
	}
	h := d.newHandle("lagmember")
	d.lagMembers[h] = lag
	return h, nil
}

func (d *Driver) RemoveLagMember(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveLagMember", h)
	if err := d.failure("RemoveLagMember"); err != nil {
		return err
	}
	delete(d.lagMembers, h)
	d.remove(h)
	return nil
}

func (d *Driver) CreateVlan(vlanID int) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateVlan", vlanID)
	if err := d.failure("CreateVlan"); err != nil {
		return "", err
	}
	return d.newHandle(fmt.Sprintf("vlan%d", vlanID)), nil
}

func (d *Driver) RemoveVlan(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveVlan", h)
	if err := d.failure("RemoveVlan"); err != nil {
		return err
	}
	if !d.exists(h) {
		return errors.Errorf("fakesad: RemoveVlan: unknown handle %s", h)
	}
	d.remove(h)
	return nil
}

func (d *Driver) AddVlanMember(vlan, port sad.Handle, tagged bool) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("AddVlanMember", vlan, port, tagged)
	if err := d.failure("AddVlanMember"); err != nil {
		return "", err
	}
	h := d.newHandle("vlanmember")
	d.vlanMembers[h] = vlan
	return h, nil
}

func (d *Driver) RemoveVlanMember(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveVlanMember", h)
	if err := d.failure("RemoveVlanMember"); err != nil {
		return err
	}
	delete(d.vlanMembers, h)
	d.remove(h)
	return nil
}

// --- InterfaceDriver ---

func (d *Driver) CreateRouterInterface(attrs sad.Attrs) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateRouterInterface", attrs)
	if err := d.failure("CreateRouterInterface"); err != nil {
		return "", err
	}
	return d.newHandle("rif"), nil
}

func (d *Driver) RemoveRouterInterface(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveRouterInterface", h)
	if err := d.failure("RemoveRouterInterface"); err != nil {
		return err
	}
	if !d.exists(h) {
		return errors.Errorf("fakesad: RemoveRouterInterface: unknown handle %s", h)
	}
	d.remove(h)
	return nil
}

// --- NeighborDriver ---

func (d *Driver) CreateNeighbor(rif sad.Handle, ip string, mac string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateNeighbor", rif, ip, mac)
	return d.failure("CreateNeighbor")
}

func (d *Driver) SetNeighborMac(rif sad.Handle, ip string, mac string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetNeighborMac", rif, ip, mac)
	return d.failure("SetNeighborMac")
}

func (d *Driver) RemoveNeighbor(rif sad.Handle, ip string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveNeighbor", rif, ip)
	return d.failure("RemoveNeighbor")
}

func (d *Driver) CreateNextHop(rif sad.Handle, ip string) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateNextHop", rif, ip)
	if err := d.failure("CreateNextHop"); err != nil {
		return "", err
	}
	return d.newHandle("nh"), nil
}

func (d *Driver) RemoveNextHop(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveNextHop", h)
	if err := d.failure("RemoveNextHop"); err != nil {
		return err
	}
	if !d.exists(h) {
		return errors.Errorf("fakesad: RemoveNextHop: unknown handle %s", h)
	}
	d.remove(h)
	return nil
}

// --- RouteDriver ---

func (d *Driver) MaxNextHopGroups() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxGroups
}

func (d *Driver) CreateNextHopGroup() (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateNextHopGroup")
	if err := d.failure("CreateNextHopGroup"); err != nil {
		return "", err
	}
	return d.newHandle("nhg"), nil
}

func (d *Driver) AddNextHopGroupMember(group, nh sad.Handle) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("AddNextHopGroupMember", group, nh)
	if err := d.failure("AddNextHopGroupMember"); err != nil {
		return "", err
	}
	h := d.newHandle("nhgmember")
	d.nhgMembers[h] = group
	return h, nil
}

func (d *Driver) RemoveNextHopGroupMember(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveNextHopGroupMember", h)
	if err := d.failure("RemoveNextHopGroupMember"); err != nil {
		return err
	}
	delete(d.nhgMembers, h)
	d.remove(h)
	return nil
}

func (d *Driver) RemoveNextHopGroup(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveNextHopGroup", h)
	if err := d.failure("RemoveNextHopGroup"); err != nil {
		return err
	}
	if !d.exists(h) {
		return errors.Errorf("fakesad: RemoveNextHopGroup: unknown handle %s", h)
	}
	d.remove(h)
	return nil
}

func (d *Driver) CreateRoute(vr sad.Handle, prefix string, nh sad.Handle, action sad.RouteAction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateRoute", vr, prefix, nh, action)
	return d.failure("CreateRoute")
}

func (d *Driver) SetRouteNextHop(vr sad.Handle, prefix string, nh sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetRouteNextHop", vr, prefix, nh)
	return d.failure("SetRouteNextHop")
}

func (d *Driver) SetRouteAction(vr sad.Handle, prefix string, action sad.RouteAction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetRouteAction", vr, prefix, action)
	return d.failure("SetRouteAction")
}

func (d *Driver) RemoveRoute(vr sad.Handle, prefix string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveRoute", vr, prefix)
	return d.failure("RemoveRoute")
}

// --- MirrorDriver ---

func (d *Driver) CreateMirrorSession(attrs sad.Attrs) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateMirrorSession", attrs)
	if err := d.failure("CreateMirrorSession"); err != nil {
		return "", err
	}
	return d.newHandle("mirror"), nil
}

func (d *Driver) SetMirrorSessionAttr(h sad.Handle, attrs sad.Attrs) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetMirrorSessionAttr", h, attrs)
	return d.failure("SetMirrorSessionAttr")
}

func (d *Driver) RemoveMirrorSession(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveMirrorSession", h)
	if err := d.failure("RemoveMirrorSession"); err != nil {
		return err
	}
	d.remove(h)
	return nil
}

// --- FdbDriver ---

func (d *Driver) CreateFdbEntry(vlan int, mac string, port sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateFdbEntry", vlan, mac, port)
	return d.failure("CreateFdbEntry")
}

func (d *Driver) RemoveFdbEntry(vlan int, mac string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveFdbEntry", vlan, mac)
	return d.failure("RemoveFdbEntry")
}

// --- AclDriver ---

func (d *Driver) AclPriorityRange() (int, int) { return 1, 999999 }

func (d *Driver) CreateAclTable(attrs sad.Attrs) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateAclTable", attrs)
	if err := d.failure("CreateAclTable"); err != nil {
		return "", err
	}
	return d.newHandle("acltable"), nil
}

func (d *Driver) RemoveAclTable(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveAclTable", h)
	if err := d.failure("RemoveAclTable"); err != nil {
		return err
	}
	d.remove(h)
	return nil
}

func (d *Driver) BindAclTableToPort(port, table sad.Handle) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("BindAclTableToPort", port, table)
	if err := d.failure("BindAclTableToPort"); err != nil {
		return "", err
	}
	return d.newHandle("aclbind"), nil
}

func (d *Driver) UnbindAclTableFromPort(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("UnbindAclTableFromPort", h)
	return d.failure("UnbindAclTableFromPort")
}

func (d *Driver) CreateAclRange(rangeType string, lo, hi int) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateAclRange", rangeType, lo, hi)
	if err := d.failure("CreateAclRange"); err != nil {
		return "", err
	}
	return d.newHandle(fmt.Sprintf("aclrange-%s", rangeType)), nil
}

func (d *Driver) RemoveAclRange(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveAclRange", h)
	if err := d.failure("RemoveAclRange"); err != nil {
		return err
	}
	d.remove(h)
	return nil
}

func (d *Driver) CreateAclRule(table sad.Handle, attrs sad.Attrs) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateAclRule", table, attrs)
	if err := d.failure("CreateAclRule"); err != nil {
		return "", err
	}
	h := d.newHandle("aclrule")
	d.aclCounters[h] = struct{ Packets, Bytes uint64 }{}
	return h, nil
}

func (d *Driver) SetAclRule(h sad.Handle, attrs sad.Attrs) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetAclRule", h, attrs)
	return d.failure("SetAclRule")
}

func (d *Driver) RemoveAclRule(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveAclRule", h)
	if err := d.failure("RemoveAclRule"); err != nil {
		return err
	}
	delete(d.aclCounters, h)
	d.remove(h)
	return nil
}

// BumpCounter lets a test simulate traffic hitting a rule between polls.
func (d *Driver) BumpCounter(h sad.Handle, packets, bytes uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.aclCounters[h]
	c.Packets += packets
	c.Bytes += bytes
	d.aclCounters[h] = c
}

func (d *Driver) GetAclCounterStats(rule sad.Handle) (packets, bytes uint64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("GetAclCounterStats", rule)
	if ferr := d.failure("GetAclCounterStats"); ferr != nil {
		return 0, 0, ferr
	}
	c, ok := d.aclCounters[rule]
	if !ok {
		return 0, 0, errors.Errorf("fakesad: GetAclCounterStats: unknown rule %s", rule)
	}
	return c.Packets, c.Bytes, nil
}

// --- QosDriver ---

// SetSupportsDscpEcnMatch overrides the platform's DSCP+ECN ACL-match
// capability for tests exercising the skip path.
func (d *Driver) SetSupportsDscpEcnMatch(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dscpEcnMatch = v
}

func (d *Driver) SupportsDscpEcnMatch() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dscpEcnMatch
}

func (d *Driver) CreateQosMap(mapType string, entries sad.Attrs) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateQosMap", mapType, entries)
	if err := d.failure("CreateQosMap"); err != nil {
		return "", err
	}
	return d.newHandle(fmt.Sprintf("qosmap-%s", mapType)), nil
}

func (d *Driver) RemoveQosMap(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveQosMap", h)
	if err := d.failure("RemoveQosMap"); err != nil {
		return err
	}
	d.remove(h)
	return nil
}

func (d *Driver) SetPortQosMapAttr(port sad.Handle, attrs sad.Attrs) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetPortQosMapAttr", port, attrs)
	return d.failure("SetPortQosMapAttr")
}

func (d *Driver) CreateScheduler(attrs sad.Attrs) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateScheduler", attrs)
	if err := d.failure("CreateScheduler"); err != nil {
		return "", err
	}
	return d.newHandle("scheduler"), nil
}

func (d *Driver) RemoveScheduler(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveScheduler", h)
	if err := d.failure("RemoveScheduler"); err != nil {
		return err
	}
	d.remove(h)
	return nil
}

func (d *Driver) CreateWredProfile(attrs sad.Attrs) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateWredProfile", attrs)
	if err := d.failure("CreateWredProfile"); err != nil {
		return "", err
	}
	return d.newHandle("wred"), nil
}

func (d *Driver) RemoveWredProfile(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveWredProfile", h)
	if err := d.failure("RemoveWredProfile"); err != nil {
		return err
	}
	d.remove(h)
	return nil
}

func (d *Driver) SetQueueAttr(queue sad.Handle, attrs sad.Attrs) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetQueueAttr", queue, attrs)
	return d.failure("SetQueueAttr")
}

func (d *Driver) GetPortSchedulerGroups(port sad.Handle) ([]sad.SchedGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("GetPortSchedulerGroups", port)
	if err := d.failure("GetPortSchedulerGroups"); err != nil {
		return nil, err
	}
	return d.schedGroups[port], nil
}

func (d *Driver) SetSchedGroupAttr(group sad.Handle, attrs sad.Attrs) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetSchedGroupAttr", group, attrs)
	return d.failure("SetSchedGroupAttr")
}

// --- BufferDriver ---

func (d *Driver) CreateBufferPool(attrs sad.Attrs) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateBufferPool", attrs)
	if err := d.failure("CreateBufferPool"); err != nil {
		return "", err
	}
	return d.newHandle("bufferpool"), nil
}

func (d *Driver) RemoveBufferPool(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveBufferPool", h)
	if err := d.failure("RemoveBufferPool"); err != nil {
		return err
	}
	d.remove(h)
	return nil
}

func (d *Driver) CreateBufferProfile(attrs sad.Attrs) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateBufferProfile", attrs)
	if err := d.failure("CreateBufferProfile"); err != nil {
		return "", err
	}
	return d.newHandle("bufferprofile"), nil
}

func (d *Driver) RemoveBufferProfile(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveBufferProfile", h)
	if err := d.failure("RemoveBufferProfile"); err != nil {
		return err
	}
	d.remove(h)
	return nil
}

func (d *Driver) SetQueueBufferProfile(queue, profile sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetQueueBufferProfile", queue, profile)
	return d.failure("SetQueueBufferProfile")
}

func (d *Driver) SetPgBufferProfile(pg, profile sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetPgBufferProfile", pg, profile)
	return d.failure("SetPgBufferProfile")
}

func (d *Driver) SetPortBufferProfileList(port sad.Handle, ingress bool, profiles []sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetPortBufferProfileList", port, ingress, profiles)
	return d.failure("SetPortBufferProfileList")
}

// --- CoppDriver ---

func (d *Driver) GetDefaultTrapGroup() sad.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return "trapgroup-default"
}

func (d *Driver) CreateTrapGroup(attrs sad.Attrs) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateTrapGroup", attrs)
	if err := d.failure("CreateTrapGroup"); err != nil {
		return "", err
	}
	return d.newHandle("trapgroup"), nil
}

func (d *Driver) RemoveTrapGroup(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemoveTrapGroup", h)
	if h == "trapgroup-default" {
		return errors.New("fakesad: cannot remove the default trap group")
	}
	if err := d.failure("RemoveTrapGroup"); err != nil {
		return err
	}
	d.remove(h)
	return nil
}

func (d *Driver) CreatePolicer(attrs sad.Attrs) (sad.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreatePolicer", attrs)
	if err := d.failure("CreatePolicer"); err != nil {
		return "", err
	}
	return d.newHandle("policer"), nil
}

func (d *Driver) RemovePolicer(h sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("RemovePolicer", h)
	if err := d.failure("RemovePolicer"); err != nil {
		return err
	}
	d.remove(h)
	return nil
}

func (d *Driver) SetTrapGroupPolicer(group, policer sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetTrapGroupPolicer", group, policer)
	return d.failure("SetTrapGroupPolicer")
}

func (d *Driver) SetTrapIDsGroup(trapIDs []string, group sad.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetTrapIDsGroup", trapIDs, group)
	return d.failure("SetTrapIDsGroup")
}

// --- ContextDriver ---

func (d *Driver) SwitchHandle() sad.Handle          { return d.swh }
func (d *Driver) DefaultVirtualRouter() sad.Handle  { return d.defaultVR }
func (d *Driver) SwitchMac() string                 { return d.switchMAC }
func (d *Driver) CpuPort() sad.Handle               { return d.cpuPort }

var _ sad.Driver = (*Driver)(nil)
