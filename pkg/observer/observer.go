// Package observer implements the typed notification fabric described in
// spec.md §4.1/§9: subsystems notify each other about state changes without
// holding long-lived references into each other's tables. The original
// sonic-swss orchagent models this with a single C++ Observer base class and
// a void* payload (see original_source/sonic-swss/orchagent/observer.h);
// that has no honest Go analogue, so each subject gets its own typed
// interface and registry instead — a deliberate redesign that preserves the
// original's synchronous, same-thread delivery semantics.
package observer

import "sync"

// NextHopUpdate is delivered when the longest-prefix match for a previously
// attached destination IP changes (spec.md §4.5).
type NextHopUpdate struct {
	Prefix    string
	NextHops  []string
}

// NextHopObserver receives NextHopUpdate notifications for one attached
// destination IP.
type NextHopObserver interface {
	OnNextHopUpdate(u NextHopUpdate)
}

// NeighborUpdate is delivered on neighbor add/remove (spec.md §4.4).
type NeighborUpdate struct {
	IP        string
	Interface string
	Mac       string
	Add       bool
}

type NeighborObserver interface {
	OnNeighborUpdate(u NeighborUpdate)
}

// FdbUpdate is delivered on FDB entry add/remove (spec.md §4.6/§4.9).
type FdbUpdate struct {
	Mac         string
	Vlan        int
	BridgePort  string
	Add         bool
}

type FdbObserver interface {
	OnFdbUpdate(u FdbUpdate)
}

// LagMemberUpdate is delivered on LAG membership change (spec.md §4.2).
type LagMemberUpdate struct {
	Lag     string
	Member  string
	Added   bool
}

type LagMemberObserver interface {
	OnLagMemberUpdate(u LagMemberUpdate)
}

// VlanMemberUpdate is delivered on VLAN membership change (spec.md §4.2).
type VlanMemberUpdate struct {
	Vlan    int
	Member  string
	Added   bool
}

type VlanMemberObserver interface {
	OnVlanMemberUpdate(u VlanMemberUpdate)
}

// MirrorSessionUpdate is delivered when a mirror session transitions
// active/inactive (spec.md §4.6), consumed chiefly by aclorch's mirror
// rules.
type MirrorSessionUpdate struct {
	Name   string
	Active bool
}

type MirrorSessionObserver interface {
	OnMirrorSessionUpdate(u MirrorSessionUpdate)
}

// Registry is a fan-out point for one subject type, generic over the
// observer interface O. It is synchronous: notifications happen on the calling
// goroutine, inline with doTask, exactly as the original single-threaded
// orchagent delivers them (spec.md §5 "Suspension points").
type Registry[O any] struct {
	mu        sync.RWMutex
	observers []O
}

// Attach registers an observer. Observers are never deduplicated — the
// caller owns the lifetime of what it attaches.
func (r *Registry[O]) Attach(o O) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Detach removes an observer matching a predicate, returning whether one was
// removed.
func (r *Registry[O]) Detach(match func(O) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, o := range r.observers {
		if match(o) {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return true
		}
	}
	return false
}

// Each calls fn for every currently attached observer, under a read lock.
// fn must not call Attach/Detach on the same registry (no re-entrant
// locking) — none of this engine's notify paths do.
func (r *Registry[O]) Each(fn func(O)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.observers {
		fn(o)
	}
}

// Len reports the number of attached observers.
func (r *Registry[O]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers)
}
