// Package mirrororch implements the Mirror session subsystem (spec.md §4.6,
// C8): the Created -> NexthopResolved -> NeighborResolved -> Active state
// machine that resolves a mirror session's destination IP through
// routeorch's longest-prefix-match observer, then through neighorch and the
// port/LAG/FDB chain, before installing a SAD mirror session. Grounded on
// original_source/sonic-swss/orchagent/mirrororch.cpp for the resolution
// chain and on the teacher's FDBStateEntry/NeighStateEntry/PortStateEntry
// field shapes for the attributes resolved along it.
package mirrororch

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/sonic-net/go-orchagent/pkg/fdborch"
	"github.com/sonic-net/go-orchagent/pkg/neighorch"
	"github.com/sonic-net/go-orchagent/pkg/observer"
	"github.com/sonic-net/go-orchagent/pkg/portorch"
	"github.com/sonic-net/go-orchagent/pkg/routeorch"
	"github.com/sonic-net/go-orchagent/pkg/sad"
	"github.com/sonic-net/go-orchagent/pkg/store"
)

// Status is a mirror session's externally-visible state (spec.md §4.6: "the
// session state string is mirrored back to the store under status =
// active|inactive").
type Status int

const (
	Inactive Status = iota
	Active
)

func (s Status) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

// nextHopInfo tracks the route resolution half of the chain.
type nextHopInfo struct {
	resolved bool
	nextHop  string
	prefix   string
}

// neighborInfo tracks the neighbor/port resolution half of the chain.
type neighborInfo struct {
	resolved bool
	neighbor neighorch.Key
	mac      string
	port     string
	vlanID   int
	sadPort  sad.Handle
}

// Session is one mirror session (spec.md §3).
type Session struct {
	Name       string
	SrcIP      string
	DstIP      string
	GreType    uint32
	Dscp       int
	Ttl        int
	Queue      int
	AddVlanTag bool

	status Status
	nh     nextHopInfo
	neigh  neighborInfo
	sadH   sad.Handle

	// RefCount is held by aclorch's mirror-action ACL rules (spec.md
	// "Supplemented Features": a rule referencing an active session keeps
	// it alive even after its MIRROR_SESSION_TABLE row is removed).
	RefCount int

	detachRoute func()
}

// Status reports the session's current active/inactive state.
func (s *Session) Status() Status { return s.status }

// SadHandle returns the installed SAD mirror session handle, valid only
// while Status() == Active.
func (s *Session) SadHandle() sad.Handle { return s.sadH }

// Orch is the Mirror subsystem instance.
type Orch struct {
	mu sync.Mutex

	driver sad.Driver
	ctx    sad.Context
	ports  *portorch.Catalog
	neigh  *neighorch.Orch
	routes *routeorch.Orch
	fdb    *fdborch.Orch

	writer    store.Writer
	tableName string

	sessions map[string]*Session
	notifier observer.Registry[observer.MirrorSessionObserver]
}

// New constructs the Mirror subsystem.
func New(driver sad.Driver, ctx sad.Context, ports *portorch.Catalog, neigh *neighorch.Orch, routes *routeorch.Orch, fdb *fdborch.Orch) *Orch {
	return &Orch{
		driver:    driver,
		ctx:       ctx,
		ports:     ports,
		neigh:     neigh,
		routes:    routes,
		fdb:       fdb,
		tableName: "MIRROR_SESSION_TABLE",
		sessions:  make(map[string]*Session),
	}
}

// SetWriter lets the daemon supply the store.Writer used to write the
// session's status field back (spec.md §4.6). A nil writer (the default)
// makes status write-back a no-op, which is fine for tests that only assert
// on SAD calls.
func (o *Orch) SetWriter(w store.Writer) { o.writer = w }

// Get returns the synced session, if any — used by aclorch's mirror action
// rules.
func (o *Orch) Get(name string) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[name]
	return s, ok
}

// HoldSession increments a session's reference count, failing if the
// session does not exist (spec.md "Supplemented Features").
func (o *Orch) HoldSession(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[name]
	if !ok {
		return fmt.Errorf("mirrororch: unknown session %s", name)
	}
	s.RefCount++
	return nil
}

// ReleaseSession decrements a session's reference count.
func (o *Orch) ReleaseSession(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[name]
	if !ok || s.RefCount == 0 {
		return
	}
	s.RefCount--
}

// ErrExists is returned by AddSession for a name already syncd (spec.md
// §4.6: "session already exists" is a discard, never retried).
var ErrExists = fmt.Errorf("mirrororch: session already exists")

// ErrInvalid is returned for a malformed attribute (bad IP family, DSCP out
// of range) — also a discard, never retried.
var ErrInvalid = fmt.Errorf("mirrororch: invalid session attribute")

// ErrRetry signals the caller should leave the entry pending.
var ErrRetry = fmt.Errorf("mirrororch: retry")

// AddSession creates a new mirror session and attaches it to routeorch's
// next-hop-observer fabric for its destination IP (spec.md §4.6). It starts
// Inactive; the state machine advances asynchronously as routes, neighbors,
// ports, and FDB entries resolve.
func (o *Orch) AddSession(name, srcIP, dstIP string, greType uint32, dscp, ttl, queue int, addVlanTag bool) error {
	o.mu.Lock()
	if _, ok := o.sessions[name]; ok {
		o.mu.Unlock()
		return ErrExists
	}
	if dscp < 0 || dscp > 63 {
		o.mu.Unlock()
		return ErrInvalid
	}
	srcParsed := net.ParseIP(srcIP)
	dstParsed := net.ParseIP(dstIP)
	if srcParsed == nil || dstParsed == nil || (srcParsed.To4() == nil) != (dstParsed.To4() == nil) {
		o.mu.Unlock()
		return ErrInvalid
	}

	s := &Session{
		Name: name, SrcIP: srcIP, DstIP: dstIP, GreType: greType,
		Dscp: dscp, Ttl: ttl, Queue: queue, AddVlanTag: addVlanTag,
		status: Inactive,
	}
	o.sessions[name] = s
	o.mu.Unlock()

	s.detachRoute = o.routes.AttachNextHop(dstIP, &nhObserver{o: o, name: name})
	o.writeStatus(s)
	return nil
}

// RemoveSession tears a session down. It retries while the session is still
// referenced by a live ACL mirror rule (spec.md "Supplemented Features").
func (o *Orch) RemoveSession(name string) error {
	o.mu.Lock()
	s, ok := o.sessions[name]
	if !ok {
		o.mu.Unlock()
		return nil
	}
	if s.RefCount > 0 {
		o.mu.Unlock()
		return ErrRetry
	}
	delete(o.sessions, name)
	o.mu.Unlock()

	if s.detachRoute != nil {
		s.detachRoute()
	}
	o.deactivate(s)
	return nil
}

// nhObserver adapts one session's destination IP attachment to
// observer.NextHopObserver.
type nhObserver struct {
	o    *Orch
	name string
}

func (n *nhObserver) OnNextHopUpdate(u observer.NextHopUpdate) {
	n.o.onNextHopUpdate(n.name, u)
}

func (o *Orch) onNextHopUpdate(name string, u observer.NextHopUpdate) {
	o.mu.Lock()
	s, ok := o.sessions[name]
	if !ok {
		o.mu.Unlock()
		return
	}

	if s.nh.resolved && s.nh.prefix == u.Prefix && containsString(u.NextHops, s.nh.nextHop) {
		o.mu.Unlock()
		return
	}

	if len(u.NextHops) == 0 {
		s.nh = nextHopInfo{}
		o.mu.Unlock()
		o.resolveNeighbor(s)
		return
	}

	sorted := append([]string(nil), u.NextHops...)
	sort.Strings(sorted)
	s.nh = nextHopInfo{resolved: true, nextHop: sorted[0], prefix: u.Prefix}
	o.mu.Unlock()

	o.resolveNeighbor(s)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// resolveNeighbor runs the neighbor -> port -> LAG/VLAN/FDB chain for a
// session whose next-hop IP is known, and activates or deactivates the SAD
// mirror session accordingly (spec.md §4.6).
func (o *Orch) resolveNeighbor(s *Session) {
	o.mu.Lock()
	if !s.nh.resolved {
		s.neigh = neighborInfo{}
		o.mu.Unlock()
		o.deactivate(s)
		return
	}

	n, ok := o.neigh.GetByIP(s.nh.nextHop)
	if !ok {
		s.neigh = neighborInfo{}
		o.mu.Unlock()
		o.deactivate(s)
		return
	}

	port, ok := o.ports.GetPort(n.Key.Interface)
	if !ok {
		s.neigh = neighborInfo{}
		o.mu.Unlock()
		o.deactivate(s)
		return
	}

	var resolved *portorch.Port
	vlanID := 0
	switch port.Kind {
	case portorch.KindVlan:
		pname, ok := o.fdb.Get(n.Mac, port.VlanID)
		if !ok {
			s.neigh = neighborInfo{}
			o.mu.Unlock()
			o.deactivate(s)
			return
		}
		resolved, ok = o.ports.GetPort(pname)
		if !ok {
			s.neigh = neighborInfo{}
			o.mu.Unlock()
			o.deactivate(s)
			return
		}
	case portorch.KindLag:
		member := firstMember(port)
		if member == "" {
			s.neigh = neighborInfo{}
			o.mu.Unlock()
			o.deactivate(s)
			return
		}
		resolved, ok = o.ports.GetPort(member)
		if !ok {
			s.neigh = neighborInfo{}
			o.mu.Unlock()
			o.deactivate(s)
			return
		}
		if s.AddVlanTag {
			vlanID = port.VlanID
		}
	default:
		resolved = port
	}

	s.neigh = neighborInfo{
		resolved: true,
		neighbor: n.Key,
		mac:      n.Mac,
		port:     resolved.Name,
		vlanID:   vlanID,
		sadPort:  resolved.SadPort,
	}
	o.mu.Unlock()

	if err := o.activate(s); err != nil {
		o.deactivate(s)
	}
}

func firstMember(p *portorch.Port) string {
	if len(p.Members) == 0 {
		return ""
	}
	names := make([]string, 0, len(p.Members))
	for m := range p.Members {
		names = append(names, m)
	}
	sort.Strings(names)
	return names[0]
}

// activate creates the SAD mirror session on first resolution, or updates
// the monitor-port attribute in place if the session is already Active and
// only the resolved port changed (spec.md §4.6: "update the monitor port
// attribute in place rather than re-creating the session").
func (o *Orch) activate(s *Session) error {
	o.mu.Lock()
	attrs := s.buildAttrs(o.ctx)
	wasActive := s.status == Active
	handle := s.sadH
	o.mu.Unlock()

	if wasActive {
		if err := o.driver.SetMirrorSessionAttr(handle, attrs); err != nil {
			return sad.Call("SetMirrorSessionAttr", err)
		}
		return nil
	}

	h, err := o.driver.CreateMirrorSession(attrs)
	if err != nil {
		return sad.Call("CreateMirrorSession", err)
	}

	o.mu.Lock()
	s.sadH = h
	s.status = Active
	o.mu.Unlock()

	o.writeStatus(s)
	o.notifier.Each(func(obs observer.MirrorSessionObserver) {
		obs.OnMirrorSessionUpdate(observer.MirrorSessionUpdate{Name: s.Name, Active: true})
	})
	return nil
}

// deactivate tears down the SAD session if one is installed. It is
// idempotent: calling it on an already-Inactive session is a no-op.
func (o *Orch) deactivate(s *Session) {
	o.mu.Lock()
	if s.status != Active {
		o.mu.Unlock()
		return
	}
	h := s.sadH
	s.sadH = ""
	s.status = Inactive
	o.mu.Unlock()

	o.driver.RemoveMirrorSession(h)
	o.writeStatus(s)
	o.notifier.Each(func(obs observer.MirrorSessionObserver) {
		obs.OnMirrorSessionUpdate(observer.MirrorSessionUpdate{Name: s.Name, Active: false})
	})
}

// buildAttrs renders the SAD mirror-session attribute vector (spec.md
// §4.6): monitor port, enhanced-remote GRE L3 tunnel, optional VLAN tag
// fields, IPv4 header, TOS from DSCP, TTL, addresses, switch/neighbor MAC,
// GRE protocol, and an optional traffic class from queue.
func (s *Session) buildAttrs(ctx sad.Context) sad.Attrs {
	attrs := sad.Attrs{
		"type":             "enhanced_remote",
		"monitor_port":     s.neigh.sadPort,
		"tunnel_type":      "gre_l3",
		"ip_header_version": 4,
		"tos":              s.Dscp << 2,
		"ttl":              s.Ttl,
		"src_ip":           s.SrcIP,
		"dst_ip":           s.DstIP,
		"src_mac":          ctx.SwitchMAC,
		"dst_mac":          s.neigh.mac,
		"gre_protocol":     s.GreType,
	}
	if s.neigh.vlanID != 0 {
		attrs["vlan_tci"] = s.neigh.vlanID
		attrs["vlan_tpid"] = uint16(0x8100)
		attrs["add_vlan_tag"] = true
	}
	if s.Queue != 0 {
		attrs["traffic_class"] = s.Queue
	}
	return attrs
}

func (o *Orch) writeStatus(s *Session) {
	if o.writer == nil {
		return
	}
	o.writer.Set(s.Name, map[string]string{"status": s.status.String()})
}

// OnMirrorSessionUpdate registers obs for active/inactive transitions
// (consumed by aclorch's mirror rules).
func (o *Orch) OnMirrorSessionUpdate(obs observer.MirrorSessionObserver) { o.notifier.Attach(obs) }

// OnNeighborUpdate implements observer.NeighborObserver: any neighbor
// add/remove/MAC-change re-evaluates every session whose resolved next hop
// is that IP.
func (o *Orch) OnNeighborUpdate(u observer.NeighborUpdate) {
	for _, s := range o.affectedByNextHop(u.IP) {
		o.resolveNeighbor(s)
	}
}

// OnFdbUpdate implements observer.FdbObserver: a VLAN-backed session whose
// neighbor resolved through this (mac, vlan) pair re-resolves, picking up
// the new bridge port without recreating the SAD session when only the
// monitor port handle changed (spec.md §4.6).
func (o *Orch) OnFdbUpdate(u observer.FdbUpdate) {
	for _, s := range o.affectedByMac(u.Mac) {
		o.resolveNeighbor(s)
	}
}

// OnLagMemberUpdate implements observer.LagMemberObserver: a LAG-backed
// session whose neighbor resolves through this LAG re-resolves its first
// member.
func (o *Orch) OnLagMemberUpdate(u observer.LagMemberUpdate) {
	for _, s := range o.affectedByInterface(u.Lag) {
		o.resolveNeighbor(s)
	}
}

func (o *Orch) affectedByNextHop(ip string) []*Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*Session
	for _, s := range o.sessions {
		if s.nh.resolved && s.nh.nextHop == ip {
			out = append(out, s)
		}
	}
	return out
}

func (o *Orch) affectedByMac(mac string) []*Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*Session
	for _, s := range o.sessions {
		if s.nh.resolved && (s.neigh.mac == mac || !s.neigh.resolved) {
			out = append(out, s)
		}
	}
	return out
}

func (o *Orch) affectedByInterface(iface string) []*Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*Session
	for _, s := range o.sessions {
		if s.nh.resolved && (s.neigh.neighbor.Interface == iface || !s.neigh.resolved) {
			out = append(out, s)
		}
	}
	return out
}
