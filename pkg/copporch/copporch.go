// Package copporch implements the control-plane policing subsystem (spec.md
// §4.8, C13): trap groups, the fixed set of trap IDs that can be bound to
// them, and the policers a trap group may carry. Grounded on
// original_source/sonic-swss/orchagent/copporch.{h,cpp} for the default
// trap-group/trap-ID bootstrap (`initDefaultTrapGroup`/
// `initDefaultTrapIds`), the default-group removal guard, and the
// rebind-to-default-before-destroy policy on non-default group removal.
package copporch

import (
	"fmt"
	"sync"

	"github.com/sonic-net/go-orchagent/pkg/sad"
	"github.com/sonic-net/go-orchagent/pkg/util"
)

const defaultTrapGroupName = "default"

// defaultTrapIDs is the fixed set of trap IDs bound to the default trap
// group at startup (original: default_trap_ids = {SAI_HOSTIF_TRAP_TYPE_TTL_ERROR}).
var defaultTrapIDs = []string{"ttl_error"}

// ErrRetry marks an entry as waiting on a referenced policer/trap group not
// yet installed.
var ErrRetry = fmt.Errorf("copporch: unresolved dependency")

// trapGroup is one CoPP trap group.
type trapGroup struct {
	handle  sad.Handle
	policer string // policer name currently bound, "" if none
	trapIDs map[string]bool
}

// Orch is the CoPP subsystem instance.
type Orch struct {
	mu sync.Mutex

	driver sad.Driver

	groups   map[string]*trapGroup
	policers map[string]sad.Handle

	trapOwner map[string]string // trap ID -> owning group name
}

// New constructs the CoPP subsystem, creating the default trap group (using
// the switch's own default handle, per spec.md §4.8) and binding the fixed
// default trap IDs to it.
func New(driver sad.Driver) *Orch {
	o := &Orch{
		driver:    driver,
		groups:    make(map[string]*trapGroup),
		policers:  make(map[string]sad.Handle),
		trapOwner: make(map[string]string),
	}
	def := &trapGroup{handle: driver.GetDefaultTrapGroup(), trapIDs: make(map[string]bool)}
	o.groups[defaultTrapGroupName] = def
	if err := o.driver.SetTrapIDsGroup(defaultTrapIDs, def.handle); err != nil {
		util.WithField("call", "SetTrapIDsGroup").Warn("copporch: failed to bind default trap IDs")
	} else {
		for _, id := range defaultTrapIDs {
			def.trapIDs[id] = true
			o.trapOwner[id] = defaultTrapGroupName
		}
	}
	return o
}

// AddPolicer creates or replaces a named policer.
func (o *Orch) AddPolicer(name string, attrs map[string]string) error {
	a := sad.Attrs{}
	for k, v := range attrs {
		a[k] = v
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if old, ok := o.policers[name]; ok {
		if err := o.driver.RemovePolicer(old); err != nil {
			return sad.Call("RemovePolicer", err)
		}
	}
	h, err := o.driver.CreatePolicer(a)
	if err != nil {
		return sad.Call("CreatePolicer", err)
	}
	o.policers[name] = h
	return nil
}

// RemovePolicer destroys a policer. Any trap group bound to it keeps
// running unpoliced — the original leaves the trap group's policer
// attribute as-is on policer removal; a new AddTrapGroup call is required
// to rebind.
func (o *Orch) RemovePolicer(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.policers[name]
	if !ok {
		return nil
	}
	if err := o.driver.RemovePolicer(h); err != nil {
		return sad.Call("RemovePolicer", err)
	}
	delete(o.policers, name)
	return nil
}

// AddTrapGroup creates a trap group on first sight, or updates its bound
// trap ID set and policer on subsequent calls (spec.md §4.8 "create on
// first sight, set-attribute on update"). policerName may be "" for none.
func (o *Orch) AddTrapGroup(name string, trapIDs []string, policerName string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var policerHandle sad.Handle
	if policerName != "" {
		h, ok := o.policers[policerName]
		if !ok {
			return ErrRetry
		}
		policerHandle = h
	}

	g, exists := o.groups[name]
	if !exists {
		h, err := o.driver.CreateTrapGroup(sad.Attrs{})
		if err != nil {
			return sad.Call("CreateTrapGroup", err)
		}
		g = &trapGroup{handle: h, trapIDs: make(map[string]bool)}
		o.groups[name] = g
	}

	if policerName != "" {
		if err := o.driver.SetTrapGroupPolicer(g.handle, policerHandle); err != nil {
			return sad.Call("SetTrapGroupPolicer", err)
		}
		g.policer = policerName
	}

	if len(trapIDs) > 0 {
		if err := o.driver.SetTrapIDsGroup(trapIDs, g.handle); err != nil {
			return sad.Call("SetTrapIDsGroup", err)
		}
		for _, id := range trapIDs {
			if owner, ok := o.trapOwner[id]; ok && owner != name {
				delete(o.groups[owner].trapIDs, id)
			}
			g.trapIDs[id] = true
			o.trapOwner[id] = name
		}
	}
	return nil
}

// RemoveTrapGroup destroys a non-default trap group. Removing the default
// group is prohibited. Every trap ID still bound to the group being removed
// is rebound to the default group first (spec.md §4.8).
func (o *Orch) RemoveTrapGroup(name string) error {
	if name == defaultTrapGroupName {
		return fmt.Errorf("copporch: cannot remove the default trap group")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	g, ok := o.groups[name]
	if !ok {
		return nil
	}

	if len(g.trapIDs) > 0 {
		ids := make([]string, 0, len(g.trapIDs))
		for id := range g.trapIDs {
			ids = append(ids, id)
		}
		def := o.groups[defaultTrapGroupName]
		if err := o.driver.SetTrapIDsGroup(ids, def.handle); err != nil {
			return sad.Call("SetTrapIDsGroup", err)
		}
		for _, id := range ids {
			def.trapIDs[id] = true
			o.trapOwner[id] = defaultTrapGroupName
		}
	}

	if err := o.driver.RemoveTrapGroup(g.handle); err != nil {
		return sad.Call("RemoveTrapGroup", err)
	}
	delete(o.groups, name)
	return nil
}
