// Package neighorch implements the Neighbor/NextHop subsystem (spec.md
// §4.4, C6): neighbor entries and their associated NextHop objects, both
// refcounted against the owning router interface.
package neighorch

import (
	"fmt"

	"github.com/sonic-net/go-orchagent/pkg/intfsorch"
	"github.com/sonic-net/go-orchagent/pkg/observer"
	"github.com/sonic-net/go-orchagent/pkg/sad"
	"github.com/sonic-net/go-orchagent/pkg/util"
)

// Key identifies a neighbor entry: an IP on a named interface.
type Key struct {
	Interface string
	IP        string
}

func (k Key) String() string { return fmt.Sprintf("%s:%s", k.Interface, k.IP) }

// Neighbor is one resolved L3 neighbor.
type Neighbor struct {
	Key Key
	Mac string
	Nh  sad.Handle
}

// Orch is the Neighbor/NextHop subsystem instance.
type Orch struct {
	driver sad.Driver
	intfs  *intfsorch.Orch

	byKey    map[Key]*Neighbor
	nhRefs   map[sad.Handle]int
	notifier observer.Registry[observer.NeighborObserver]
}

// New constructs the Neighbor/NextHop subsystem.
func New(driver sad.Driver, intfs *intfsorch.Orch) *Orch {
	return &Orch{
		driver: driver,
		intfs:  intfs,
		byKey:  make(map[Key]*Neighbor),
		nhRefs: make(map[sad.Handle]int),
	}
}

// Get looks up a synced neighbor.
func (o *Orch) Get(k Key) (*Neighbor, bool) {
	n, ok := o.byKey[k]
	return n, ok
}

// GetByIP looks up a synced neighbor by IP alone, regardless of interface —
// used by mirrororch, which only knows a resolved nexthop's IP (spec.md
// §4.6's "look up Neighbor by nexthop IP").
func (o *Orch) GetByIP(ip string) (*Neighbor, bool) {
	for _, n := range o.byKey {
		if n.Key.IP == ip {
			return n, true
		}
	}
	return nil, false
}

// NextHop returns the NextHop handle for an already-resolved neighbor, used
// by routeorch to resolve a route's next hops.
func (o *Orch) NextHop(k Key) (sad.Handle, bool) {
	n, ok := o.byKey[k]
	if !ok {
		return "", false
	}
	return n.Nh, true
}

// NhRefCount reports the live reference count held against a NextHop
// handle.
func (o *Orch) NhRefCount(h sad.Handle) int { return o.nhRefs[h] }

// HoldNextHop increments the refcount on an already-created NextHop (called
// by routeorch when a route starts pointing at it).
func (o *Orch) HoldNextHop(h sad.Handle) { o.nhRefs[h]++ }

// ReleaseNextHop decrements the refcount on a NextHop, used by routeorch
// when a route stops pointing at it. It does not destroy the NextHop —
// RemoveNeighbor is the only path that does, and only once its own refcount
// reaches zero.
func (o *Orch) ReleaseNextHop(h sad.Handle) {
	if o.nhRefs[h] > 0 {
		o.nhRefs[h]--
	}
}

// ErrRetry signals the caller should leave the entry pending.
var ErrRetry = fmt.Errorf("neighorch: retry")

// AddNeighbor resolves or updates a neighbor and its NextHop (spec.md
// §4.4).
func (o *Orch) AddNeighbor(k Key, mac string) error {
	normalized, err := util.NormalizeMACAddress(mac)
	if err != nil {
		return util.NewParseError("NEIGH_TABLE", k.String(), "neigh", mac, "aa:bb:cc:dd:ee:ff")
	}
	mac = normalized

	intf, ok := o.intfs.Get(k.Interface)
	if !ok {
		return ErrRetry
	}

	if n, ok := o.byKey[k]; ok {
		if n.Mac != mac {
			if err := o.driver.SetNeighborMac(intf.Rif, k.IP, mac); err != nil {
				return sad.Call("SetNeighborMac", err)
			}
			n.Mac = mac
		}
		o.notify(k, mac, true)
		return nil
	}

	if err := o.driver.CreateNeighbor(intf.Rif, k.IP, mac); err != nil {
		return sad.Call("CreateNeighbor", err)
	}
	intf.RefCount++

	nh, err := o.driver.CreateNextHop(intf.Rif, k.IP)
	if err != nil {
		return sad.Call("CreateNextHop", err)
	}
	o.byKey[k] = &Neighbor{Key: k, Mac: mac, Nh: nh}
	o.nhRefs[nh] = 0

	o.notify(k, mac, true)
	return nil
}

// RemoveNeighbor tears down a neighbor and its NextHop (spec.md §4.4). It
// retries if the NextHop is still referenced by a live route.
func (o *Orch) RemoveNeighbor(k Key) error {
	n, ok := o.byKey[k]
	if !ok {
		return nil
	}
	if o.nhRefs[n.Nh] > 0 {
		return ErrRetry
	}

	intf, ok := o.intfs.Get(k.Interface)
	if !ok {
		return fmt.Errorf("neighorch: interface %s vanished under neighbor %s", k.Interface, k.IP)
	}

	if err := o.driver.RemoveNextHop(n.Nh); err != nil {
		return sad.Call("RemoveNextHop", err)
	}
	if err := o.driver.RemoveNeighbor(intf.Rif, k.IP); err != nil {
		return sad.Call("RemoveNeighbor", err)
	}
	intf.RefCount--

	delete(o.byKey, k)
	delete(o.nhRefs, n.Nh)

	o.notify(k, "", false)
	return nil
}

func (o *Orch) notify(k Key, mac string, add bool) {
	o.notifier.Each(func(obs observer.NeighborObserver) {
		obs.OnNeighborUpdate(observer.NeighborUpdate{IP: k.IP, Interface: k.Interface, Mac: mac, Add: add})
	})
}

// OnNeighborUpdate registers obs for neighbor add/remove notifications.
func (o *Orch) OnNeighborUpdate(obs observer.NeighborObserver) { o.notifier.Attach(obs) }
