// Package routeorch implements the Route/NHG subsystem (spec.md §4.5, C7):
// the heart of the reconciliation engine. It owns route and ECMP
// next-hop-group lifecycle, the maxGroups backoff with temporary
// single-nexthop routes, the default-route drop invariant, and the
// NextHop-observer attach/notify mechanism backed by a longest-prefix-match
// trie (github.com/hashicorp/go-immutable-radix/v2, contributed by the
// hashicorp-nomad example's go.mod).
package routeorch

import (
	"fmt"
	"math/rand"
	"net"
	"sort"
	"strings"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix/v2"

	"github.com/sonic-net/go-orchagent/pkg/neighorch"
	"github.com/sonic-net/go-orchagent/pkg/observer"
	"github.com/sonic-net/go-orchagent/pkg/sad"
)

// ErrRetry signals the caller should leave the entry pending.
var ErrRetry = fmt.Errorf("routeorch: retry")

// nhg is one installed ECMP next-hop group.
type nhg struct {
	handle    sad.Handle
	members   map[neighorch.Key]sad.Handle // neighbor key -> member handle
	refCount  int
}

// route is one installed route entry.
type route struct {
	prefix    string
	single    *neighorch.Key // set if pointing at a single nexthop (non-ECMP)
	group     *nhg           // set if pointing at an NHG
	temporary bool           // true if this is a maxGroups-backoff stand-in
	isDefault bool
}

// Orch is the Route/NHG subsystem instance.
type Orch struct {
	mu sync.Mutex

	driver sad.Driver
	ctx    sad.Context
	neigh  *neighorch.Orch

	routes   map[string]*route
	nhgByKey map[string]*nhg // canonical sorted-members key -> group

	trie        *iradix.Tree[*route]
	attachments map[string]*attachment // target IP -> attachment

	resyncActive  bool
	resyncPending map[string]bool // prefixes snapshotted at resync start, not yet reconfirmed
}

type attachment struct {
	ip        net.IP
	bestPfx   string
	observers []*observer.NextHopObserver
}

// New constructs the Route/NHG subsystem and installs the IPv4/IPv6 default
// drop routes (spec.md §4.5).
func New(driver sad.Driver, ctx sad.Context, neigh *neighorch.Orch) *Orch {
	o := &Orch{
		driver:      driver,
		ctx:         ctx,
		neigh:       neigh,
		routes:      make(map[string]*route),
		nhgByKey:    make(map[string]*nhg),
		trie:        iradix.New[*route](),
		attachments: make(map[string]*attachment),
	}
	o.installDefault("0.0.0.0/0")
	o.installDefault("::/0")
	return o
}

func (o *Orch) installDefault(prefix string) {
	if err := o.driver.CreateRoute(o.ctx.DefaultVR, prefix, "", sad.RouteActionDrop); err != nil {
		return
	}
	r := &route{prefix: prefix, isDefault: true}
	o.routes[prefix] = r
	o.insertTrie(prefix, r)
}

// Get returns the installed route for prefix, if any.
func (o *Orch) Get(prefix string) (*route, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.routes[prefix]
	return r, ok
}

// AddRoute installs or updates prefix with the given nexthop set (spec.md
// §4.5). nexthops is a list of neighbor keys; a single-element list is a
// plain route, a multi-element list is ECMP.
func (o *Orch) AddRoute(prefix string, nexthops []neighorch.Key) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var err error
	if len(nexthops) == 1 {
		err = o.addSingle(prefix, nexthops[0])
	} else {
		err = o.addEcmp(prefix, nexthops)
	}
	if err == nil {
		o.confirmResync(prefix)
	}
	return err
}

func (o *Orch) addSingle(prefix string, nh neighorch.Key) error {
	handle, ok := o.neigh.NextHop(nh)
	if !ok {
		return ErrRetry
	}

	existing, had := o.routes[prefix]
	if had && !existing.temporary && existing.single != nil && *existing.single == nh {
		// Re-publishing the same single nexthop is a no-op: releasing and
		// re-acquiring the same handle would needlessly churn its refcount.
		return nil
	}
	if err := o.installHandle(prefix, existing, handle); err != nil {
		return err
	}
	if had {
		o.releasePrevious(existing)
	}
	o.neigh.HoldNextHop(handle)

	r := &route{prefix: prefix, single: &nh}
	o.routes[prefix] = r
	o.insertTrie(prefix, r)
	o.renotify(prefix, []string{nh.IP})
	return nil
}

func (o *Orch) addEcmp(prefix string, nexthops []neighorch.Key) error {
	key := ecmpKey(nexthops)
	group, ok := o.nhgByKey[key]
	if !ok {
		var err error
		group, err = o.createGroup(key, nexthops)
		if err != nil {
			if err == errGroupCeiling {
				return o.installTemporary(prefix, nexthops)
			}
			return err
		}
	}

	existing, had := o.routes[prefix]
	if had && existing.group == group {
		// Re-publishing the same ECMP set is a no-op: the route already
		// holds a ref on this exact group.
		return nil
	}
	if err := o.installHandle(prefix, existing, group.handle); err != nil {
		return err
	}
	if had {
		o.releasePrevious(existing)
	}
	group.refCount++

	ips := make([]string, len(nexthops))
	for i, nh := range nexthops {
		ips[i] = nh.IP
	}
	r := &route{prefix: prefix, group: group}
	o.routes[prefix] = r
	o.insertTrie(prefix, r)
	o.renotify(prefix, ips)
	return nil
}

var errGroupCeiling = fmt.Errorf("routeorch: next-hop-group ceiling reached")

func (o *Orch) createGroup(key string, nexthops []neighorch.Key) (*nhg, error) {
	for _, nh := range nexthops {
		if _, ok := o.neigh.NextHop(nh); !ok {
			return nil, ErrRetry
		}
	}
	if o.liveGroupCount() >= o.ctx.MaxGroups {
		return nil, errGroupCeiling
	}

	handle, err := o.driver.CreateNextHopGroup()
	if err != nil {
		return nil, sad.Call("CreateNextHopGroup", err)
	}
	g := &nhg{handle: handle, members: make(map[neighorch.Key]sad.Handle)}
	for _, nh := range nexthops {
		nhHandle, _ := o.neigh.NextHop(nh)
		mh, err := o.driver.AddNextHopGroupMember(handle, nhHandle)
		if err != nil {
			return nil, sad.Call("AddNextHopGroupMember", err)
		}
		g.members[nh] = mh
	}
	o.nhgByKey[key] = g
	return g, nil
}

func (o *Orch) liveGroupCount() int { return len(o.nhgByKey) }

// installTemporary installs a single-member stand-in route while the ECMP
// group ceiling is reached (spec.md §4.5). The original request is left
// failing (Retry) so it is attempted again once a group slot frees up.
func (o *Orch) installTemporary(prefix string, nexthops []neighorch.Key) error {
	existing, had := o.routes[prefix]
	if had && existing.single != nil {
		if _, ok := o.neigh.NextHop(*existing.single); ok {
			for _, nh := range nexthops {
				if nh == *existing.single {
					// Already pointing at one live member of the set —
					// do not replace it with another arbitrary choice.
					return ErrRetry
				}
			}
		}
	}

	var live []neighorch.Key
	for _, nh := range nexthops {
		if _, ok := o.neigh.NextHop(nh); ok {
			live = append(live, nh)
		}
	}
	if len(live) == 0 {
		return ErrRetry
	}
	choice := live[rand.Intn(len(live))]
	handle, _ := o.neigh.NextHop(choice)

	if err := o.installHandle(prefix, existing, handle); err != nil {
		return err
	}
	if had {
		o.releasePrevious(existing)
	}
	o.neigh.HoldNextHop(handle)

	r := &route{prefix: prefix, single: &choice, temporary: true}
	o.routes[prefix] = r
	o.insertTrie(prefix, r)
	o.renotify(prefix, []string{choice.IP})
	return ErrRetry
}

// installHandle creates or mutates the SAD route entry.
func (o *Orch) installHandle(prefix string, existing *route, handle sad.Handle) error {
	if existing == nil {
		if err := o.driver.CreateRoute(o.ctx.DefaultVR, prefix, handle, sad.RouteActionForward); err != nil {
			return sad.Call("CreateRoute", err)
		}
		return nil
	}
	if existing.isDefault {
		if err := o.driver.SetRouteAction(o.ctx.DefaultVR, prefix, sad.RouteActionForward); err != nil {
			return sad.Call("SetRouteAction", err)
		}
	}
	if err := o.driver.SetRouteNextHop(o.ctx.DefaultVR, prefix, handle); err != nil {
		return sad.Call("SetRouteNextHop", err)
	}
	return nil
}

// releasePrevious decrements the refcount of whatever prefix's route used to
// point at, destroying a zero-ref NHG.
func (o *Orch) releasePrevious(existing *route) {
	switch {
	case existing.single != nil:
		if h, ok := o.neigh.NextHop(*existing.single); ok {
			o.neigh.ReleaseNextHop(h)
		}
	case existing.group != nil:
		existing.group.refCount--
		if existing.group.refCount <= 0 {
			o.destroyGroup(existing.group)
		}
	}
}

func (o *Orch) destroyGroup(g *nhg) {
	for key, mh := range g.members {
		o.driver.RemoveNextHopGroupMember(mh)
		if h, ok := o.neigh.NextHop(key); ok {
			o.neigh.ReleaseNextHop(h)
		}
	}
	o.driver.RemoveNextHopGroup(g.handle)
	for key, group := range o.nhgByKey {
		if group == g {
			delete(o.nhgByKey, key)
		}
	}
}

// EnsureGroup resolves or creates the ECMP next-hop group for the given set
// of next hops and bumps its reference count — the Route/NHG subsystem's
// group objects and refcount discipline shared with aclorch's
// "REDIRECT:ip-set" action (spec.md §4.7: "must match an existing NHG; if
// none exists, create one; bump its refcount").
func (o *Orch) EnsureGroup(nexthops []neighorch.Key) (sad.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := ecmpKey(nexthops)
	group, ok := o.nhgByKey[key]
	if !ok {
		var err error
		group, err = o.createGroup(key, nexthops)
		if err != nil {
			return "", err
		}
	}
	group.refCount++
	return group.handle, nil
}

// ReleaseGroup decrements a group's reference count, destroying it once it
// reaches zero — the reverse of EnsureGroup, called when an ACL rule
// referencing it is removed.
func (o *Orch) ReleaseGroup(handle sad.Handle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, g := range o.nhgByKey {
		if g.handle == handle {
			g.refCount--
			if g.refCount <= 0 {
				o.destroyGroup(g)
			}
			return
		}
	}
}

// RemoveRoute uninstalls prefix (spec.md §4.5). The default route is never
// actually removed — it reverts to its drop state.
func (o *Orch) RemoveRoute(prefix string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	existing, ok := o.routes[prefix]
	if !ok {
		return nil
	}

	if existing.isDefault {
		if err := o.driver.SetRouteAction(o.ctx.DefaultVR, prefix, sad.RouteActionDrop); err != nil {
			return sad.Call("SetRouteAction", err)
		}
		o.releasePrevious(existing)
		def := &route{prefix: prefix, isDefault: true}
		o.routes[prefix] = def
		o.insertTrie(prefix, def)
		o.renotify(prefix, nil)
		return nil
	}

	if err := o.driver.RemoveRoute(o.ctx.DefaultVR, prefix); err != nil {
		return sad.Call("RemoveRoute", err)
	}
	o.releasePrevious(existing)
	delete(o.routes, prefix)
	o.deleteTrie(prefix)
	o.renotify(prefix, nil)
	o.confirmResync(prefix)
	return nil
}

// BeginResync returns every currently-installed non-default prefix. The
// resync protocol itself does not use it: Handler drives a resync through
// StartResync/EndResync instead.
func (o *Orch) BeginResync() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var prefixes []string
	for p, r := range o.routes {
		if !r.isDefault {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

// StartResync snapshots every installed non-default prefix as "pending
// reconfirmation" (spec.md §4.5 resync protocol). It is idempotent: a
// second resync SET before the matching terminator just re-snapshots.
func (o *Orch) StartResync() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resyncActive = true
	o.resyncPending = make(map[string]bool, len(o.routes))
	for p, r := range o.routes {
		if !r.isDefault {
			o.resyncPending[p] = true
		}
	}
}

// confirmResync marks prefix as reconfirmed by the resync feed — it must
// not be removed when EndResync runs. Called internally whenever a route
// entry is successfully applied while a resync is in progress.
func (o *Orch) confirmResync(prefix string) {
	if o.resyncActive {
		delete(o.resyncPending, prefix)
	}
}

// EndResync drains every prefix from the snapshot that was never
// reconfirmed by a re-SET during the resync window and removes it — the net
// effect spec.md §4.5 describes: "any routes absent from the re-sent feed
// are deleted; routes re-sent identically are reconciled to no-ops;
// changed routes are updated in place." Returns the count removed, for
// logging/tests.
func (o *Orch) EndResync() int {
	o.mu.Lock()
	stale := make([]string, 0, len(o.resyncPending))
	for p := range o.resyncPending {
		stale = append(stale, p)
	}
	o.resyncActive = false
	o.resyncPending = nil
	o.mu.Unlock()

	sort.Strings(stale)
	for _, p := range stale {
		o.RemoveRoute(p)
	}
	return len(stale)
}

func ecmpKey(nexthops []neighorch.Key) string {
	parts := make([]string, len(nexthops))
	for i, nh := range nexthops {
		parts[i] = nh.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// AttachNextHop registers obs to be notified whenever the longest-prefix
// match for ip changes (spec.md §4.5, used by mirrororch to track a
// monitor-port IP's resolution chain). The returned func detaches it.
func (o *Orch) AttachNextHop(ip string, obs observer.NextHopObserver) func() {
	o.mu.Lock()
	a, ok := o.attachments[ip]
	if !ok {
		a = &attachment{ip: net.ParseIP(ip)}
		o.attachments[ip] = a
	}
	slot := &obs
	a.observers = append(a.observers, slot)

	var initial *observer.NextHopUpdate
	if r, found := o.lookupLPM(a.ip); found {
		a.bestPfx = r.prefix
		u := observer.NextHopUpdate{Prefix: r.prefix, NextHops: o.nextHopIPs(r)}
		initial = &u
	}
	o.mu.Unlock()

	if initial != nil {
		obs.OnNextHopUpdate(*initial)
	}

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		a, ok := o.attachments[ip]
		if !ok {
			return
		}
		for i, existing := range a.observers {
			if existing == slot {
				a.observers = append(a.observers[:i], a.observers[i+1:]...)
				break
			}
		}
		if len(a.observers) == 0 {
			delete(o.attachments, ip)
		}
	}
}

// renotify re-evaluates every attachment that could be affected by a change
// to prefix and fires updates for any whose LPM result changed.
func (o *Orch) renotify(prefix string, _ []string) {
	_, netw, err := net.ParseCIDR(prefix)
	if err != nil {
		return
	}
	for _, a := range o.attachments {
		if !netw.Contains(a.ip) && a.bestPfx != prefix {
			continue
		}
		r, found := o.lookupLPM(a.ip)
		newPfx := ""
		if found {
			newPfx = r.prefix
		}
		if newPfx == a.bestPfx {
			continue
		}
		a.bestPfx = newPfx
		var nhIPs []string
		if found {
			nhIPs = o.nextHopIPs(r)
		}
		for _, obs := range a.observers {
			(*obs).OnNextHopUpdate(observer.NextHopUpdate{Prefix: newPfx, NextHops: nhIPs})
		}
	}
}

func (o *Orch) nextHopIPs(r *route) []string {
	switch {
	case r.single != nil:
		return []string{r.single.IP}
	case r.group != nil:
		ips := make([]string, 0, len(r.group.members))
		for k := range r.group.members {
			ips = append(ips, k.IP)
		}
		sort.Strings(ips)
		return ips
	default:
		return nil
	}
}

func (o *Orch) insertTrie(prefix string, r *route) {
	key, ok := bitKey(prefix)
	if !ok {
		return
	}
	o.trie, _, _ = o.trie.Insert(key, r)
}

func (o *Orch) deleteTrie(prefix string) {
	key, ok := bitKey(prefix)
	if !ok {
		return
	}
	o.trie, _, _ = o.trie.Delete(key)
}

func (o *Orch) lookupLPM(ip net.IP) (*route, bool) {
	key := bitKeyForIP(ip)
	_, r, ok := o.trie.Root().LongestPrefix(key)
	return r, ok
}

// bitKey encodes a CIDR prefix as one byte per bit (0x00/0x01) so that
// go-immutable-radix's byte-prefix LongestPrefix performs true bitwise
// longest-prefix matching rather than byte-granular matching.
func bitKey(prefix string) ([]byte, bool) {
	_, ipnet, err := net.ParseCIDR(prefix)
	if err != nil {
		return nil, false
	}
	ones, _ := ipnet.Mask.Size()
	ip := ipnet.IP.To4()
	if ip == nil {
		ip = ipnet.IP.To16()
	}
	return bitsOf(ip, ones), true
}

func bitKeyForIP(ip net.IP) []byte {
	v4 := ip.To4()
	if v4 != nil {
		return bitsOf(v4, 32)
	}
	return bitsOf(ip.To16(), 128)
}

func bitsOf(ip net.IP, n int) []byte {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		byteIdx := i / 8
		bitIdx := 7 - (i % 8)
		if byteIdx >= len(ip) {
			out = append(out, 0)
			continue
		}
		if ip[byteIdx]&(1<<uint(bitIdx)) != 0 {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}
	return out
}
