// Package aclorch implements the ACL engine (spec.md §4.7, C10): tables,
// L3/Mirror rules, a shared AclRange cache deduplicated by (type, low, high),
// REDIRECT target resolution (port, then LAG, then single IP, then IP set),
// mirror-rule staging coupled to mirrororch's active/inactive transitions,
// and a background counter poller. Grounded on
// original_source/sonic-swss/orchagent/aclorch.cpp for the counter thread's
// gMirrorOrch/gRouteOrch coupling and the REDIRECT target parser's
// first-match-wins order.
package aclorch

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sonic-net/go-orchagent/pkg/mirrororch"
	"github.com/sonic-net/go-orchagent/pkg/neighorch"
	"github.com/sonic-net/go-orchagent/pkg/observer"
	"github.com/sonic-net/go-orchagent/pkg/orch"
	"github.com/sonic-net/go-orchagent/pkg/portorch"
	"github.com/sonic-net/go-orchagent/pkg/routeorch"
	"github.com/sonic-net/go-orchagent/pkg/sad"
	"github.com/sonic-net/go-orchagent/pkg/store"
	"github.com/sonic-net/go-orchagent/pkg/util"
)

// TableType distinguishes the two ACL table flavors (spec.md §3).
type TableType int

const (
	TableL3 TableType = iota
	TableMirror
)

func (t TableType) String() string {
	if t == TableMirror {
		return "MIRROR"
	}
	return "L3"
}

// Table is one installed ACL table.
type Table struct {
	ID          string
	Type        TableType
	Description string
	Ports       []string

	sadHandle    sad.Handle
	groupMembers map[string]sad.Handle // port name -> bind handle
	rules        map[string]*Rule
}

// ActionKind is what an ACL rule does to matching traffic.
type ActionKind int

const (
	ActionForward ActionKind = iota
	ActionDrop
	ActionRedirect
	ActionMirror
)

type redirectKind int

const (
	redirectPort redirectKind = iota
	redirectLag
	redirectNextHop
	redirectGroup
)

// redirectTarget is the resolved form of a REDIRECT:<target> action, kept on
// the rule so removal can run the reverse operation (spec.md §4.7).
type redirectTarget struct {
	kind   redirectKind
	handle sad.Handle
	ip     string
	ips    []string
}

// Rule is one installed (or staged) ACL rule.
type Rule struct {
	ID       string
	TableID  string
	Type     TableType
	Priority int

	action        ActionKind
	redirect      *redirectTarget
	mirrorSession string

	rangeHandles []sad.Handle
	sadHandle    sad.Handle

	// staged is true for a Mirror-action rule whose session is currently
	// Inactive: the logical rule exists but has no SAD entry (spec.md
	// §4.7).
	staged bool

	// carryPackets/carryBytes accumulate counters observed before the SAD
	// entry was last torn down (mirror rule deactivation) so a poll right
	// after reactivation doesn't regress visible totals.
	carryPackets uint64
	carryBytes   uint64
}

// ErrRetry signals the caller should leave the entry pending.
var ErrRetry = fmt.Errorf("aclorch: retry")

// ErrInvalid signals a malformed entry that must never be retried.
var ErrInvalid = fmt.Errorf("aclorch: invalid rule")

type rangeKey struct {
	typ string
	lo  int
	hi  int
}

type aclRangeObj struct {
	handle   sad.Handle
	refCount int
}

// Orch is the ACL subsystem instance.
type Orch struct {
	mu sync.Mutex

	driver sad.Driver
	ports  *portorch.Catalog
	neigh  *neighorch.Orch
	routes *routeorch.Orch
	mirror *mirrororch.Orch

	minPriority, maxPriority int

	tables map[string]*Table
	ranges map[rangeKey]*aclRangeObj

	// countersMu serializes the background poller against every mutating
	// path (add/remove table, add/remove rule, mirror transition), mirroring
	// the single engine-wide counters_mutex of spec.md §5.
	countersMu sync.Mutex
	writer     store.Writer
}

// New constructs the ACL subsystem, reading the platform's ACL rule priority
// range from the switch at startup (spec.md §4.7), and attaches itself as a
// mirrororch.MirrorSessionObserver so staged mirror rules activate and
// deactivate alongside their session.
func New(driver sad.Driver, ports *portorch.Catalog, neigh *neighorch.Orch, routes *routeorch.Orch, mirror *mirrororch.Orch) *Orch {
	min, max := driver.AclPriorityRange()
	o := &Orch{
		driver:      driver,
		ports:       ports,
		neigh:       neigh,
		routes:      routes,
		mirror:      mirror,
		minPriority: min,
		maxPriority: max,
		tables:      make(map[string]*Table),
		ranges:      make(map[rangeKey]*aclRangeObj),
	}
	mirror.OnMirrorSessionUpdate(o)
	return o
}

// SetWriter lets the daemon supply the store.Writer used for the COUNTERS
// table write-back performed by the counter poller.
func (o *Orch) SetWriter(w store.Writer) { o.writer = w }

// AddTable installs an ACL table with a fixed superset of match fields and
// binds it to every named port (spec.md §4.7). It retries if any named port
// is not yet known to the catalog.
func (o *Orch) AddTable(id string, typ TableType, description string, ports []string) error {
	o.mu.Lock()
	if _, ok := o.tables[id]; ok {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	for _, p := range ports {
		if _, ok := o.ports.GetPort(p); !ok {
			return ErrRetry
		}
	}

	attrs := sad.Attrs{
		"type":              typ.String(),
		"match_src_ip":       true,
		"match_dst_ip":       true,
		"match_l4_src_port":  true,
		"match_l4_dst_port":  true,
		"match_ether_type":   true,
		"match_ip_type":      true,
		"match_ip_protocol":  true,
		"match_tcp_flags":    true,
		"match_tc":           true,
		"match_range":        true,
	}
	if typ == TableMirror {
		attrs["match_dscp"] = true
	}

	h, err := o.driver.CreateAclTable(attrs)
	if err != nil {
		return sad.Call("CreateAclTable", err)
	}

	table := &Table{
		ID: id, Type: typ, Description: description, Ports: ports,
		sadHandle:    h,
		groupMembers: make(map[string]sad.Handle),
		rules:        make(map[string]*Rule),
	}
	for _, p := range ports {
		gh, err := o.ports.BindAclTable(p, h)
		if err != nil {
			continue
		}
		table.groupMembers[p] = gh
	}

	o.mu.Lock()
	o.tables[id] = table
	o.mu.Unlock()
	return nil
}

// RemoveTable tears down an ACL table, unbinding it from every port it was
// bound to. It refuses while the table still has rules.
func (o *Orch) RemoveTable(id string) error {
	o.mu.Lock()
	table, ok := o.tables[id]
	if !ok {
		o.mu.Unlock()
		return nil
	}
	if len(table.rules) > 0 {
		o.mu.Unlock()
		return fmt.Errorf("aclorch: table %s still has %d rule(s)", id, len(table.rules))
	}
	delete(o.tables, id)
	o.mu.Unlock()

	for _, gh := range table.groupMembers {
		o.driver.UnbindAclTableFromPort(gh)
	}
	return sad.Call("RemoveAclTable", o.driver.RemoveAclTable(table.sadHandle))
}

// AddRule parses and installs one ACL rule (spec.md §4.7). Exactly one of
// packetAction/mirrorAction must be non-empty.
func (o *Orch) AddRule(tableID, ruleID string, priority int, matches map[string]string, packetAction, mirrorAction string) error {
	o.mu.Lock()
	table, ok := o.tables[tableID]
	if !ok {
		o.mu.Unlock()
		return ErrRetry
	}
	if _, exists := table.rules[ruleID]; exists {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	if priority < o.minPriority || priority > o.maxPriority {
		return ErrInvalid
	}
	if (packetAction == "") == (mirrorAction == "") {
		return ErrInvalid
	}

	attrs, rangeHandles, err := o.buildMatchAttrs(table.Type, matches)
	if err != nil {
		return ErrInvalid
	}

	rule := &Rule{ID: ruleID, TableID: tableID, Type: table.Type, Priority: priority, rangeHandles: rangeHandles}

	switch {
	case mirrorAction != "":
		if err := o.addMirrorRule(table, rule, attrs, mirrorAction); err != nil {
			o.releaseRanges(rangeHandles)
			return err
		}
	case strings.HasPrefix(packetAction, "REDIRECT:"):
		if err := o.addRedirectRule(table, rule, attrs, strings.TrimPrefix(packetAction, "REDIRECT:")); err != nil {
			o.releaseRanges(rangeHandles)
			return err
		}
	case packetAction == "FORWARD" || packetAction == "DROP":
		if packetAction == "FORWARD" {
			rule.action = ActionForward
		} else {
			rule.action = ActionDrop
		}
		attrs["packet_action"] = strings.ToLower(packetAction)
		h, err := o.driver.CreateAclRule(table.sadHandle, attrs)
		if err != nil {
			o.releaseRanges(rangeHandles)
			return sad.Call("CreateAclRule", err)
		}
		rule.sadHandle = h
	default:
		o.releaseRanges(rangeHandles)
		return ErrInvalid
	}

	o.mu.Lock()
	table.rules[ruleID] = rule
	o.mu.Unlock()
	return nil
}

func (o *Orch) addMirrorRule(table *Table, rule *Rule, attrs sad.Attrs, session string) error {
	if err := o.mirror.HoldSession(session); err != nil {
		return ErrRetry
	}
	rule.action = ActionMirror
	rule.mirrorSession = session

	sess, ok := o.mirror.Get(session)
	if !ok || sess.Status() != mirrororch.Active {
		rule.staged = true
		return nil
	}
	attrs["packet_action"] = "mirror"
	attrs["mirror_session"] = sess.SadHandle()
	h, err := o.driver.CreateAclRule(table.sadHandle, attrs)
	if err != nil {
		o.mirror.ReleaseSession(session)
		return sad.Call("CreateAclRule", err)
	}
	rule.sadHandle = h
	return nil
}

func (o *Orch) addRedirectRule(table *Table, rule *Rule, attrs sad.Attrs, target string) error {
	rt, err := o.resolveRedirect(target)
	if err != nil {
		return err
	}
	rule.action = ActionRedirect
	rule.redirect = rt
	attrs["packet_action"] = "redirect"
	attrs["redirect_target"] = rt.handle

	h, err := o.driver.CreateAclRule(table.sadHandle, attrs)
	if err != nil {
		o.releaseRedirect(rt)
		return sad.Call("CreateAclRule", err)
	}
	rule.sadHandle = h
	return nil
}

// resolveRedirect implements spec.md §4.7's REDIRECT target order: physical
// port, then LAG, then a single IP's NextHop, then an IP set's NHG.
func (o *Orch) resolveRedirect(target string) (*redirectTarget, error) {
	if p, ok := o.ports.GetPort(target); ok {
		switch p.Kind {
		case portorch.KindPhy:
			return &redirectTarget{kind: redirectPort, handle: p.SadPort}, nil
		case portorch.KindLag:
			return &redirectTarget{kind: redirectLag, handle: p.SadLag}, nil
		}
	}

	if !strings.Contains(target, ",") {
		if ip := net.ParseIP(target); ip != nil {
			n, ok := o.neigh.GetByIP(target)
			if !ok {
				return nil, ErrRetry
			}
			nh, ok := o.neigh.NextHop(n.Key)
			if !ok {
				return nil, ErrRetry
			}
			o.neigh.HoldNextHop(nh)
			return &redirectTarget{kind: redirectNextHop, handle: nh, ip: target}, nil
		}
		return nil, ErrInvalid
	}

	ips := util.SplitCommaSeparated(target)
	keys := make([]neighorch.Key, 0, len(ips))
	for _, ip := range ips {
		n, ok := o.neigh.GetByIP(ip)
		if !ok {
			return nil, ErrRetry
		}
		keys = append(keys, n.Key)
	}
	h, err := o.routes.EnsureGroup(keys)
	if err != nil {
		return nil, ErrRetry
	}
	return &redirectTarget{kind: redirectGroup, handle: h, ips: ips}, nil
}

func (o *Orch) releaseRedirect(rt *redirectTarget) {
	switch rt.kind {
	case redirectNextHop:
		o.neigh.ReleaseNextHop(rt.handle)
	case redirectGroup:
		o.routes.ReleaseGroup(rt.handle)
	}
}

// RemoveRule tears a rule down: removes its SAD entry (if installed),
// releases its range and redirect/mirror-session references, and forgets it.
func (o *Orch) RemoveRule(tableID, ruleID string) error {
	o.mu.Lock()
	table, ok := o.tables[tableID]
	if !ok {
		o.mu.Unlock()
		return nil
	}
	rule, ok := table.rules[ruleID]
	if !ok {
		o.mu.Unlock()
		return nil
	}
	delete(table.rules, ruleID)
	o.mu.Unlock()

	var errs *multierror.Error
	if rule.sadHandle != "" {
		if err := o.driver.RemoveAclRule(rule.sadHandle); err != nil {
			errs = multierror.Append(errs, sad.Call("RemoveAclRule", err))
		}
	}
	if err := o.releaseRanges(rule.rangeHandles); err != nil {
		errs = multierror.Append(errs, err)
	}

	switch rule.action {
	case ActionRedirect:
		o.releaseRedirect(rule.redirect)
	case ActionMirror:
		o.mirror.ReleaseSession(rule.mirrorSession)
	}
	return errs.ErrorOrNil()
}

// OnMirrorSessionUpdate implements observer.MirrorSessionObserver: every
// staged or active rule referencing u.Name creates or removes its SAD entry
// to track the session's transition (spec.md §4.7).
func (o *Orch) OnMirrorSessionUpdate(u observer.MirrorSessionUpdate) {
	o.mu.Lock()
	var affected []*Rule
	for _, t := range o.tables {
		for _, r := range t.rules {
			if r.action == ActionMirror && r.mirrorSession == u.Name {
				affected = append(affected, r)
			}
		}
	}
	o.mu.Unlock()

	for _, r := range affected {
		if u.Active {
			o.activateMirrorRule(r)
		} else {
			o.deactivateMirrorRule(r)
		}
	}
}

func (o *Orch) activateMirrorRule(r *Rule) {
	o.mu.Lock()
	table := o.findTableLocked(r.TableID)
	already := !r.staged
	o.mu.Unlock()
	if table == nil || already {
		return
	}
	sess, ok := o.mirror.Get(r.mirrorSession)
	if !ok || sess.Status() != mirrororch.Active {
		return
	}

	attrs := sad.Attrs{"packet_action": "mirror", "mirror_session": sess.SadHandle()}
	h, err := o.driver.CreateAclRule(table.sadHandle, attrs)
	if err != nil {
		return
	}
	o.mu.Lock()
	r.sadHandle = h
	r.staged = false
	o.mu.Unlock()
}

func (o *Orch) deactivateMirrorRule(r *Rule) {
	o.mu.Lock()
	if r.staged {
		o.mu.Unlock()
		return
	}
	h := r.sadHandle
	o.mu.Unlock()

	o.countersMu.Lock()
	if packets, bytes, err := o.driver.GetAclCounterStats(h); err == nil {
		o.mu.Lock()
		r.carryPackets += packets
		r.carryBytes += bytes
		o.mu.Unlock()
	}
	o.countersMu.Unlock()

	o.driver.RemoveAclRule(h)
	o.mu.Lock()
	r.sadHandle = ""
	r.staged = true
	o.mu.Unlock()
}

func (o *Orch) findTableLocked(tableID string) *Table {
	for _, t := range o.tables {
		if t.ID == tableID {
			return t
		}
	}
	return nil
}

// acquireRange returns the shared AclRange handle for (typ, lo, hi),
// creating it and seeding its refcount at 1 if this is the first rule to
// need it (spec.md §4.7).
func (o *Orch) acquireRange(typ string, lo, hi int) (sad.Handle, error) {
	o.mu.Lock()
	k := rangeKey{typ, lo, hi}
	if r, ok := o.ranges[k]; ok {
		r.refCount++
		h := r.handle
		o.mu.Unlock()
		return h, nil
	}
	o.mu.Unlock()

	h, err := o.driver.CreateAclRange(typ, lo, hi)
	if err != nil {
		return "", sad.Call("CreateAclRange", err)
	}

	o.mu.Lock()
	o.ranges[k] = &aclRangeObj{handle: h, refCount: 1}
	o.mu.Unlock()
	return h, nil
}

// releaseRanges implements the §9 Open Question resolution for removing a
// set of range handles a rule held: for each handle, find and decrement the
// first AclRange object that matches it, once per handle in the list. Errors
// from the underlying RemoveAclRange calls are aggregated rather than
// dropped, so a teardown that fails partway still reports every failure.
func (o *Orch) releaseRanges(handles []sad.Handle) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs *multierror.Error
	for _, h := range handles {
		for k, r := range o.ranges {
			if r.handle == h {
				r.refCount--
				if r.refCount <= 0 {
					if err := o.driver.RemoveAclRange(r.handle); err != nil {
						errs = multierror.Append(errs, sad.Call("RemoveAclRange", err))
					}
					delete(o.ranges, k)
				}
				break
			}
		}
	}
	return errs.ErrorOrNil()
}

var ipTypeEnum = map[string]int{
	"ANY": 0, "IP": 1, "IPV4ANY": 2, "NON_IPV4": 3, "IPV6ANY": 4,
	"NON_IPV6": 5, "ARP": 6, "ARP_REQUEST": 7, "ARP_REPLY": 8,
}

// buildMatchAttrs parses a rule's match fields into a SAD attribute vector,
// acquiring any shared AclRange objects referenced. On any parse failure it
// rolls back the ranges it had already acquired for this call before
// returning (spec.md §4.7 — "on any failure, roll back ... any range objects
// created during the attempt").
func (o *Orch) buildMatchAttrs(tableType TableType, matches map[string]string) (sad.Attrs, []sad.Handle, error) {
	attrs := sad.Attrs{}
	var rangeHandles []sad.Handle
	count := 0

	rollback := func() {
		o.releaseRanges(rangeHandles)
	}

	for name, value := range matches {
		switch name {
		case "SRC_IP", "DST_IP":
			cidr := value
			if !strings.Contains(cidr, "/") {
				if net.ParseIP(value).To4() != nil {
					cidr = value + "/32"
				} else {
					cidr = value + "/128"
				}
			}
			ip, ipnet, err := net.ParseCIDR(cidr)
			if err != nil {
				rollback()
				return nil, nil, err
			}
			key := strings.ToLower(name)
			attrs[key] = ip.String()
			attrs[key+"_mask"] = net.IP(ipnet.Mask).String()

		case "L4_SRC_PORT", "L4_DST_PORT":
			p, err := strconv.Atoi(value)
			if err != nil || p < 0 || p > 65535 {
				rollback()
				return nil, nil, fmt.Errorf("aclorch: invalid %s %q", name, value)
			}
			attrs[strings.ToLower(name)] = p

		case "ETHER_TYPE":
			n, err := strconv.ParseUint(value, 0, 32)
			if err != nil {
				rollback()
				return nil, nil, err
			}
			attrs["ether_type"] = uint32(n)

		case "IP_PROTOCOL":
			n, err := strconv.Atoi(value)
			if err != nil {
				rollback()
				return nil, nil, err
			}
			attrs["ip_protocol"] = n

		case "TCP_FLAGS":
			flags, mask, err := parseFlagsMask(value)
			if err != nil {
				rollback()
				return nil, nil, err
			}
			attrs["tcp_flags"] = flags
			attrs["tcp_flags_mask"] = mask

		case "IP_TYPE":
			enum, ok := ipTypeEnum[strings.ToUpper(value)]
			if !ok {
				rollback()
				return nil, nil, fmt.Errorf("aclorch: unknown IP_TYPE %q", value)
			}
			attrs["ip_type"] = enum

		case "DSCP":
			if tableType != TableMirror {
				rollback()
				return nil, nil, fmt.Errorf("aclorch: DSCP match only valid on Mirror tables")
			}
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 || n > 63 {
				rollback()
				return nil, nil, fmt.Errorf("aclorch: invalid DSCP %q", value)
			}
			attrs["dscp"] = n

		case "TC":
			n, err := strconv.Atoi(value)
			if err != nil {
				rollback()
				return nil, nil, err
			}
			attrs["tc"] = n

		case "L4_SRC_PORT_RANGE", "L4_DST_PORT_RANGE":
			lo, hi, err := orch.ParseIndexRange(value)
			if err != nil || lo < 0 || hi > 65535 {
				rollback()
				return nil, nil, fmt.Errorf("aclorch: invalid %s %q", name, value)
			}
			rtype := "src_port_range"
			if name == "L4_DST_PORT_RANGE" {
				rtype = "dst_port_range"
			}
			h, err := o.acquireRange(rtype, lo, hi)
			if err != nil {
				rollback()
				return nil, nil, err
			}
			rangeHandles = append(rangeHandles, h)
			attrs["range_type"] = true

		default:
			rollback()
			return nil, nil, fmt.Errorf("aclorch: unknown match field %s", name)
		}
		count++
	}

	if count == 0 {
		rollback()
		return nil, nil, fmt.Errorf("aclorch: rule has no matches")
	}
	if len(rangeHandles) > 0 {
		attrs["range_objects"] = rangeHandles
	}
	return attrs, rangeHandles, nil
}

// parseFlagsMask parses a "flags/mask" TCP_FLAGS value (spec.md §4.7).
func parseFlagsMask(value string) (flags, mask int, err error) {
	parts := strings.SplitN(value, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("aclorch: TCP_FLAGS %q missing '/'", value)
	}
	flags, err = strconv.Atoi(parts[0])
	if err != nil || flags < 0 || flags > 255 {
		return 0, 0, fmt.Errorf("aclorch: invalid TCP_FLAGS flags %q", parts[0])
	}
	mask, err = strconv.Atoi(parts[1])
	if err != nil || mask < 0 || mask > 255 {
		return 0, 0, fmt.Errorf("aclorch: invalid TCP_FLAGS mask %q", parts[1])
	}
	return flags, mask, nil
}

// StartCounterLoop runs the background counter poller until done is closed
// (spec.md §4.7/§5). pkg/orchdaemon launches it under an errgroup.Group so
// shutdown can join it.
func (o *Orch) StartCounterLoop(done <-chan struct{}, interval time.Duration) {
	for {
		start := time.Now()
		o.pollCounters()
		elapsed := time.Since(start)
		if elapsed > interval {
			util.WithField("elapsed", elapsed).Warn("aclorch: counter cycle exceeded interval, skipping sleep")
			select {
			case <-done:
				return
			default:
				continue
			}
		}
		select {
		case <-done:
			return
		case <-time.After(interval - elapsed):
		}
	}
}

func (o *Orch) pollCounters() {
	o.countersMu.Lock()
	defer o.countersMu.Unlock()

	o.mu.Lock()
	type target struct {
		tableID, ruleID string
		handle          sad.Handle
		carryPackets    uint64
		carryBytes      uint64
	}
	var targets []target
	for _, t := range o.tables {
		for _, r := range t.rules {
			if r.sadHandle == "" {
				continue
			}
			targets = append(targets, target{t.ID, r.ID, r.sadHandle, r.carryPackets, r.carryBytes})
		}
	}
	o.mu.Unlock()

	for _, tgt := range targets {
		packets, bytes, err := o.driver.GetAclCounterStats(tgt.handle)
		if err != nil || o.writer == nil {
			continue
		}
		key := fmt.Sprintf("%s:%s", tgt.tableID, tgt.ruleID)
		o.writer.Set(key, map[string]string{
			"Packets": strconv.FormatUint(packets+tgt.carryPackets, 10),
			"Bytes":   strconv.FormatUint(bytes+tgt.carryBytes, 10),
		})
	}
}
