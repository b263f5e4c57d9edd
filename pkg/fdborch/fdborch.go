// Package fdborch implements the FDB subsystem (spec.md §4.?, C9): the
// MAC/VLAN forwarding table that backs VLAN-member mirror-session
// resolution in pkg/mirrororch. Grounded on the teacher's
// device.FDBStateEntry/FDBTable shape (pkg/device/statedb.go) and on
// original_source/sonic-swss/orchagent/fdborch.{h,cpp} for the
// (mac, vlan) -> bridge-port lookup and add/remove notification semantics.
package fdborch

import (
	"fmt"
	"sync"

	"github.com/sonic-net/go-orchagent/pkg/observer"
	"github.com/sonic-net/go-orchagent/pkg/portorch"
)

// Key identifies one FDB entry by VLAN id and MAC address.
type Key struct {
	Vlan int
	Mac  string
}

// Entry is one learned or statically configured FDB entry.
type Entry struct {
	Key
	Port    string // catalog port name the MAC was learned/configured on
	Dynamic bool
}

// Orch is the FDB subsystem instance.
type Orch struct {
	mu sync.Mutex

	ports *portorch.Catalog

	entries map[Key]*Entry

	notifier observer.Registry[observer.FdbObserver]
}

// New constructs an empty FDB table.
func New(ports *portorch.Catalog) *Orch {
	return &Orch{ports: ports, entries: make(map[Key]*Entry)}
}

// Get returns the catalog port name a (mac, vlan) pair resolves to.
func (o *Orch) Get(mac string, vlan int) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[Key{Vlan: vlan, Mac: mac}]
	if !ok {
		return "", false
	}
	return e.Port, true
}

// AddFdb records (or updates the port of) a learned MAC.
func (o *Orch) AddFdb(vlan int, mac, portName string, dynamic bool) error {
	o.mu.Lock()
	if _, ok := o.ports.GetPort(portName); !ok {
		o.mu.Unlock()
		return fmt.Errorf("fdborch: unknown port %s", portName)
	}
	k := Key{Vlan: vlan, Mac: mac}
	o.entries[k] = &Entry{Key: k, Port: portName, Dynamic: dynamic}
	o.mu.Unlock()

	o.notifier.Each(func(obs observer.FdbObserver) {
		obs.OnFdbUpdate(observer.FdbUpdate{Mac: mac, Vlan: vlan, BridgePort: portName, Add: true})
	})
	return nil
}

// RemoveFdb deletes a learned MAC.
func (o *Orch) RemoveFdb(vlan int, mac string) error {
	k := Key{Vlan: vlan, Mac: mac}
	o.mu.Lock()
	e, ok := o.entries[k]
	if !ok {
		o.mu.Unlock()
		return nil
	}
	delete(o.entries, k)
	o.mu.Unlock()

	o.notifier.Each(func(obs observer.FdbObserver) {
		obs.OnFdbUpdate(observer.FdbUpdate{Mac: e.Mac, Vlan: e.Vlan, BridgePort: e.Port, Add: false})
	})
	return nil
}

// OnFdbUpdate registers obs to be notified of FDB add/remove events.
func (o *Orch) OnFdbUpdate(obs observer.FdbObserver) { o.notifier.Attach(obs) }
