// Package sad defines the boundary to the Switch Abstraction Driver: the
// black-box capability provider that programs forwarding hardware (spec.md
// §1 Non-goals — its wire format is explicitly out of scope). Every
// subsystem orch talks to hardware only through this interface, never
// directly to whatever sits underneath it (a SAI library, a gRPC stub, a
// simulator). pkg/sad/fakesad provides an in-memory implementation that
// records every call, used by every *orch package's unit tests.
package sad

import "fmt"

// Handle is an opaque object reference returned by a create call — the Go
// analogue of a SAI object ID. Two handles are equal iff they name the same
// underlying object.
type Handle string

// Attrs is a generic attribute vector, mirroring the way SAI itself takes a
// list of (attribute id, value) pairs for create/set calls. Components
// build one per call from parsed table fields (spec.md §4.8 "per-entry
// parsing of attributes into a SAD attribute vector").
type Attrs map[string]interface{}

// RouteAction is the action installed for a route entry.
type RouteAction int

const (
	RouteActionForward RouteAction = iota
	RouteActionDrop
)

// SchedGroup describes one node in a port's scheduler-group tree, as
// returned by GetPortSchedulerGroups — qosorch walks this tree to find
// which group owns a given queue (spec.md §4.8).
type SchedGroup struct {
	Handle   Handle
	Children []Handle // child queues and/or child scheduler groups
}

// Driver is the full surface the core reconciliation engine calls into.
// Grouped by the subsystem that owns each concern; spec.md §1 treats the
// driver itself as a black box, so this interface only names operations,
// never a wire format.
type Driver interface {
	PortDriver
	InterfaceDriver
	NeighborDriver
	RouteDriver
	MirrorDriver
	FdbDriver
	AclDriver
	QosDriver
	BufferDriver
	CoppDriver
	ContextDriver
}

// PortDriver covers port/LAG/VLAN catalog operations (C4).
type PortDriver interface {
	SetPortAttr(port Handle, attrs Attrs) error
	CreateLag(attrs Attrs) (Handle, error)
	RemoveLag(h Handle) error
	AddLagMember(lag, port Handle, attrs Attrs) (Handle, error)
	RemoveLagMember(h Handle) error
	CreateVlan(vlanID int) (Handle, error)
	RemoveVlan(h Handle) error
	AddVlanMember(vlan, port Handle, tagged bool) (Handle, error)
	RemoveVlanMember(h Handle) error
}

// InterfaceDriver covers router-interface and bridge-port lifecycle (C5).
type InterfaceDriver interface {
	CreateRouterInterface(attrs Attrs) (Handle, error)
	RemoveRouterInterface(h Handle) error
}

// NeighborDriver covers neighbor/next-hop lifecycle (C6).
type NeighborDriver interface {
	CreateNeighbor(rif Handle, ip string, mac string) error
	SetNeighborMac(rif Handle, ip string, mac string) error
	RemoveNeighbor(rif Handle, ip string) error
	CreateNextHop(rif Handle, ip string) (Handle, error)
	RemoveNextHop(h Handle) error
}

// RouteDriver covers route and ECMP next-hop-group lifecycle (C7).
type RouteDriver interface {
	MaxNextHopGroups() int
	// MaxNextHopGroupsDivideBy32 reports whether this platform class
	// (e.g. Mellanox) reports MaxNextHopGroups() as a per-member-slot
	// count rather than a group count, read once at startup (spec.md
	// §4.5), matching the QosDriver.SupportsDscpEcnMatch() platform-
	// capability pattern.
	MaxNextHopGroupsDivideBy32() bool
	CreateNextHopGroup() (Handle, error)
	AddNextHopGroupMember(group, nh Handle) (Handle, error)
	RemoveNextHopGroupMember(h Handle) error
	RemoveNextHopGroup(h Handle) error
	CreateRoute(vr Handle, prefix string, nh Handle, action RouteAction) error
	SetRouteNextHop(vr Handle, prefix string, nh Handle) error
	SetRouteAction(vr Handle, prefix string, action RouteAction) error
	RemoveRoute(vr Handle, prefix string) error
}

// MirrorDriver covers mirror session lifecycle (C8).
type MirrorDriver interface {
	CreateMirrorSession(attrs Attrs) (Handle, error)
	SetMirrorSessionAttr(h Handle, attrs Attrs) error
	RemoveMirrorSession(h Handle) error
}

// FdbDriver covers the FDB table (C9).
type FdbDriver interface {
	CreateFdbEntry(vlan int, mac string, port Handle) error
	RemoveFdbEntry(vlan int, mac string) error
}

// AclDriver covers ACL tables/rules/ranges/counters (C10).
type AclDriver interface {
	// AclPriorityRange reports the platform's valid ACL rule priority
	// bounds, read once at startup (spec.md §4.7).
	AclPriorityRange() (min, max int)
	CreateAclTable(attrs Attrs) (Handle, error)
	RemoveAclTable(h Handle) error
	BindAclTableToPort(port, table Handle) (Handle, error)
	UnbindAclTableFromPort(h Handle) error
	CreateAclRange(rangeType string, lo, hi int) (Handle, error)
	RemoveAclRange(h Handle) error
	CreateAclRule(table Handle, attrs Attrs) (Handle, error)
	SetAclRule(h Handle, attrs Attrs) error
	RemoveAclRule(h Handle) error
	GetAclCounterStats(rule Handle) (packets, bytes uint64, err error)
}

// QosDriver covers DSCP/TC/queue/PG/WRED/scheduler maps (C11).
type QosDriver interface {
	// SupportsDscpEcnMatch reports whether the platform's ACL match
	// fields can key on DSCP+ECN together, read once at startup
	// (spec.md §4.8: "unless platform indicates the packet-engine cannot
	// match DSCP+ECN"). Platforms that can't skip the color-marking ACL
	// bootstrap entirely.
	SupportsDscpEcnMatch() bool
	CreateQosMap(mapType string, entries Attrs) (Handle, error)
	RemoveQosMap(h Handle) error
	SetPortQosMapAttr(port Handle, attrs Attrs) error
	CreateScheduler(attrs Attrs) (Handle, error)
	RemoveScheduler(h Handle) error
	CreateWredProfile(attrs Attrs) (Handle, error)
	RemoveWredProfile(h Handle) error
	SetQueueAttr(queue Handle, attrs Attrs) error
	GetPortSchedulerGroups(port Handle) ([]SchedGroup, error)
	SetSchedGroupAttr(group Handle, attrs Attrs) error
}

// BufferDriver covers buffer pool/profile/binding objects (C12).
type BufferDriver interface {
	CreateBufferPool(attrs Attrs) (Handle, error)
	RemoveBufferPool(h Handle) error
	CreateBufferProfile(attrs Attrs) (Handle, error)
	RemoveBufferProfile(h Handle) error
	SetQueueBufferProfile(queue, profile Handle) error
	SetPgBufferProfile(pg, profile Handle) error
	SetPortBufferProfileList(port Handle, ingress bool, profiles []Handle) error
}

// CoppDriver covers trap groups, trap IDs, and policers (C13).
type CoppDriver interface {
	GetDefaultTrapGroup() Handle
	CreateTrapGroup(attrs Attrs) (Handle, error)
	RemoveTrapGroup(h Handle) error
	CreatePolicer(attrs Attrs) (Handle, error)
	RemovePolicer(h Handle) error
	SetTrapGroupPolicer(group, policer Handle) error
	SetTrapIDsGroup(trapIDs []string, group Handle) error
}

// ContextDriver exposes the global, read-only-after-init singletons every
// component needs (spec.md §5/§9: switch handle, default VR, switch MAC,
// CPU port).
type ContextDriver interface {
	SwitchHandle() Handle
	DefaultVirtualRouter() Handle
	SwitchMac() string
	CpuPort() Handle
}

// Context bundles the singletons read once at startup (saihelper.cpp in the
// original) and threaded through every component constructor, per spec.md
// §9's "Global singletons ... declared as an explicit context struct".
type Context struct {
	Switch     Handle
	DefaultVR  Handle
	SwitchMAC  string
	CPUPort    Handle
	MaxGroups  int // §4.5: divided by 32 on platforms whose driver reports MaxNextHopGroupsDivideBy32()
}

// NewContext discovers the singleton values from a connected Driver.
func NewContext(d Driver) Context {
	maxGroups := d.MaxNextHopGroups()
	if d.MaxNextHopGroupsDivideBy32() {
		// This platform class reports its ECMP group ceiling already
		// scaled to a per-member-slot count; spec.md §4.5 says to divide
		// by 32 to get the real group count ceiling.
		maxGroups = maxGroups / 32
		if maxGroups == 0 {
			maxGroups = 1
		}
	}
	return Context{
		Switch:    d.SwitchHandle(),
		DefaultVR: d.DefaultVirtualRouter(),
		SwitchMAC: d.SwitchMac(),
		CPUPort:   d.CpuPort(),
		MaxGroups: maxGroups,
	}
}

// Call is a convenience error constructor for a failed driver call,
// producing the HardwareError shape spec.md §7 requires.
func Call(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("sad: %s: %w", name, err)
}
