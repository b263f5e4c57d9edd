// Package portorch implements the Port catalog (spec.md §4.2, C4): the
// canonical name-keyed registry of physical, LAG, VLAN, and CPU ports. It
// binds SAD port/LAG/VLAN/router-interface/bridge-port handles to names and
// is the dependency every other subsystem resolves "[PORT_TABLE:Ethernet0]"
// style references against.
package portorch

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/sonic-net/go-orchagent/pkg/observer"
	"github.com/sonic-net/go-orchagent/pkg/sad"
	"github.com/sonic-net/go-orchagent/pkg/util"
)

// Kind identifies what a Port actually is underneath.
type Kind int

const (
	KindPhy Kind = iota
	KindLag
	KindVlan
	KindCpu
)

func (k Kind) String() string {
	switch k {
	case KindPhy:
		return "phy"
	case KindLag:
		return "lag"
	case KindVlan:
		return "vlan"
	case KindCpu:
		return "cpu"
	default:
		return "unknown"
	}
}

// Port is one entry in the catalog (spec.md §3).
type Port struct {
	Kind Kind
	Name string

	SadPort        sad.Handle
	SadLag         sad.Handle
	SadVlan        sad.Handle
	SadRif         sad.Handle
	SadBridgePort  sad.Handle
	AclBindHandle  sad.Handle

	Members map[string]bool // member port names, for Lag/Vlan kinds
	VlanID  int
	MTU     int
	AdminUp bool
	OperUp  bool
}

// Catalog is the live Port registry for one switch instance.
type Catalog struct {
	mu sync.Mutex

	driver sad.Driver

	byName       map[string]*Port
	byBridgePort map[sad.Handle]*Port
	cpu          *Port

	lagMembers  observer.Registry[observer.LagMemberObserver]
	vlanMembers observer.Registry[observer.VlanMemberObserver]

	seedPorts    map[string]bool
	seenPorts    map[string]bool
	initDone     chan struct{}
	initDoneOnce sync.Once
}

// NewCatalog builds an empty catalog seeded with the CPU port and the set of
// port names the initial config is expected to bring up — the "init done"
// signal fires once every name in seedPorts has been seen, i.e. has had an
// admin status applied, up or down (spec.md §4.2).
func NewCatalog(driver sad.Driver, seedPorts []string) *Catalog {
	cpu := &Port{Kind: KindCpu, Name: "CPU", SadPort: driver.CpuPort()}
	seed := make(map[string]bool, len(seedPorts))
	for _, n := range seedPorts {
		seed[n] = true
	}
	return &Catalog{
		driver:       driver,
		byName:       map[string]*Port{"CPU": cpu},
		byBridgePort: make(map[sad.Handle]*Port),
		cpu:          cpu,
		seedPorts:    seed,
		seenPorts:    make(map[string]bool),
		initDone:     make(chan struct{}),
	}
}

// InitDone signals once every seeded port has had an admin status applied.
func (c *Catalog) InitDone() <-chan struct{} { return c.initDone }

// GetPort looks a port up by name.
func (c *Catalog) GetPort(name string) (*Port, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byName[name]
	return p, ok
}

// GetBridgePort looks a port up by its SAD bridge-port handle.
func (c *Catalog) GetBridgePort(h sad.Handle) (*Port, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byBridgePort[h]
	return p, ok
}

// GetCpuPort returns the singleton CPU port.
func (c *Catalog) GetCpuPort() *Port { return c.cpu }

// bindPhy lazily creates the catalog entry for a physical port the first
// time any table references it — physical ports pre-exist in the driver,
// the catalog only needs to learn their name.
func (c *Catalog) bindPhy(name string) *Port {
	if p, ok := c.byName[name]; ok {
		return p
	}
	p := &Port{Kind: KindPhy, Name: name, SadPort: sad.Handle(name)}
	c.byName[name] = p
	return p
}

// SetPortAdminStatus applies an admin up/down change and marks the port
// seen for the init-done latch.
func (c *Catalog) SetPortAdminStatus(name string, up bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.bindPhy(name)
	if err := c.driver.SetPortAttr(p.SadPort, sad.Attrs{"admin_status": up}); err != nil {
		return sad.Call("SetPortAttr", err)
	}
	p.AdminUp = up
	c.markSeenLocked(name)
	return nil
}

// SetPortMtu applies an MTU change.
func (c *Catalog) SetPortMtu(name string, mtu int) error {
	if err := util.ValidateMTU(mtu); err != nil {
		return util.NewParseError("PORT_TABLE", name, "mtu", strconv.Itoa(mtu), "68-9216")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.bindPhy(name)
	if err := c.driver.SetPortAttr(p.SadPort, sad.Attrs{"mtu": mtu}); err != nil {
		return sad.Call("SetPortAttr", err)
	}
	p.MTU = mtu
	return nil
}

// SetPortSpeed applies a speed change.
func (c *Catalog) SetPortSpeed(name string, speedMbps int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.bindPhy(name)
	return sad.Call("SetPortAttr", c.driver.SetPortAttr(p.SadPort, sad.Attrs{"speed": speedMbps}))
}

// markSeenLocked records that name has had an admin status applied and
// fires InitDone once every seeded name has been seen. Caller holds c.mu.
func (c *Catalog) markSeenLocked(name string) {
	if !c.seedPorts[name] || c.seenPorts[name] {
		return
	}
	c.seenPorts[name] = true
	for n := range c.seedPorts {
		if !c.seenPorts[n] {
			return
		}
	}
	c.initDoneOnce.Do(func() { close(c.initDone) })
}

// AddVlan creates a new VLAN-kind port.
func (c *Catalog) AddVlan(name string, vlanID int) (*Port, error) {
	if err := util.ValidateVLANID(vlanID); err != nil {
		return nil, util.NewParseError("VLAN_TABLE", name, "vlanid", strconv.Itoa(vlanID), "1-4094")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.byName[name]; ok {
		return p, nil
	}
	h, err := c.driver.CreateVlan(vlanID)
	if err != nil {
		return nil, sad.Call("CreateVlan", err)
	}
	p := &Port{Kind: KindVlan, Name: name, SadVlan: h, VlanID: vlanID, Members: make(map[string]bool)}
	c.byName[name] = p
	return p, nil
}

// RemoveVlan destroys a VLAN-kind port; it must have no remaining members.
func (c *Catalog) RemoveVlan(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byName[name]
	if !ok {
		return nil
	}
	if len(p.Members) > 0 {
		return fmt.Errorf("portorch: vlan %s still has %d member(s)", name, len(p.Members))
	}
	if err := c.driver.RemoveVlan(p.SadVlan); err != nil {
		return sad.Call("RemoveVlan", err)
	}
	delete(c.byName, name)
	return nil
}

// AddVlanMember adds portName to vlanName, tagged or untagged, and notifies
// VlanMemberObservers (spec.md §4.2).
func (c *Catalog) AddVlanMember(vlanName, portName string, tagged bool) error {
	c.mu.Lock()
	vlan, ok := c.byName[vlanName]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("portorch: unknown vlan %s", vlanName)
	}
	member := c.bindPhy(portName)
	h, err := c.driver.AddVlanMember(vlan.SadVlan, member.SadPort, tagged)
	if err != nil {
		c.mu.Unlock()
		return sad.Call("AddVlanMember", err)
	}
	vlan.Members[portName] = true
	member.SadBridgePort = h
	c.byBridgePort[h] = member
	c.mu.Unlock()

	c.vlanMembers.Each(func(o observer.VlanMemberObserver) {
		o.OnVlanMemberUpdate(observer.VlanMemberUpdate{Vlan: vlan.VlanID, Member: portName, Added: true})
	})
	return nil
}

// RemoveVlanMember removes portName from vlanName.
func (c *Catalog) RemoveVlanMember(vlanName, portName string) error {
	c.mu.Lock()
	vlan, ok := c.byName[vlanName]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("portorch: unknown vlan %s", vlanName)
	}
	member, ok := c.byName[portName]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("portorch: unknown port %s", portName)
	}
	if err := c.driver.RemoveVlanMember(member.SadBridgePort); err != nil {
		c.mu.Unlock()
		return sad.Call("RemoveVlanMember", err)
	}
	delete(vlan.Members, portName)
	delete(c.byBridgePort, member.SadBridgePort)
	member.SadBridgePort = ""
	c.mu.Unlock()

	c.vlanMembers.Each(func(o observer.VlanMemberObserver) {
		o.OnVlanMemberUpdate(observer.VlanMemberUpdate{Vlan: vlan.VlanID, Member: portName, Added: false})
	})
	return nil
}

// AddLag creates a new LAG-kind port.
func (c *Catalog) AddLag(name string) (*Port, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.byName[name]; ok {
		return p, nil
	}
	h, err := c.driver.CreateLag(sad.Attrs{"name": name})
	if err != nil {
		return nil, sad.Call("CreateLag", err)
	}
	p := &Port{Kind: KindLag, Name: name, SadLag: h, Members: make(map[string]bool)}
	c.byName[name] = p
	return p, nil
}

// RemoveLag destroys a LAG-kind port; it must have no remaining members.
func (c *Catalog) RemoveLag(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byName[name]
	if !ok {
		return nil
	}
	if len(p.Members) > 0 {
		return fmt.Errorf("portorch: lag %s still has %d member(s)", name, len(p.Members))
	}
	if err := c.driver.RemoveLag(p.SadLag); err != nil {
		return sad.Call("RemoveLag", err)
	}
	delete(c.byName, name)
	return nil
}

// AddLagMember adds portName to lagName and notifies LagMemberObservers.
func (c *Catalog) AddLagMember(lagName, portName string) error {
	c.mu.Lock()
	lag, ok := c.byName[lagName]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("portorch: unknown lag %s", lagName)
	}
	member := c.bindPhy(portName)
	if _, err := c.driver.AddLagMember(lag.SadLag, member.SadPort, sad.Attrs{}); err != nil {
		c.mu.Unlock()
		return sad.Call("AddLagMember", err)
	}
	lag.Members[portName] = true
	c.mu.Unlock()

	c.lagMembers.Each(func(o observer.LagMemberObserver) {
		o.OnLagMemberUpdate(observer.LagMemberUpdate{Lag: lagName, Member: portName, Added: true})
	})
	return nil
}

// RemoveLagMember removes portName from lagName.
func (c *Catalog) RemoveLagMember(lagName, portName string) error {
	c.mu.Lock()
	lag, ok := c.byName[lagName]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("portorch: unknown lag %s", lagName)
	}
	if !lag.Members[portName] {
		c.mu.Unlock()
		return nil
	}
	delete(lag.Members, portName)
	c.mu.Unlock()

	c.lagMembers.Each(func(o observer.LagMemberObserver) {
		o.OnLagMemberUpdate(observer.LagMemberUpdate{Lag: lagName, Member: portName, Added: false})
	})
	return nil
}

// BindAclTable binds an ACL table to a port's ingress/egress stage. LAG
// ports bind via their LAG handle, not the (unset) underlying port handle.
func (c *Catalog) BindAclTable(portName string, table sad.Handle) (sad.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byName[portName]
	if !ok {
		return "", fmt.Errorf("portorch: unknown port %s", portName)
	}
	bindHandle := p.SadPort
	if p.Kind == KindLag {
		bindHandle = p.SadLag
	}
	h, err := c.driver.BindAclTableToPort(bindHandle, table)
	if err != nil {
		return "", sad.Call("BindAclTableToPort", err)
	}
	p.AclBindHandle = h
	return h, nil
}

// PhysicalPorts returns the names of every catalog entry of Kind Phy, in no
// particular order — used by bootstrap steps that must touch every
// physical port (e.g. the QoS ECN-color ACL table).
func (c *Catalog) PhysicalPorts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for name, p := range c.byName {
		if p.Kind == KindPhy {
			names = append(names, name)
		}
	}
	return names
}

// OnLagMemberUpdate registers o to be notified of LAG membership changes.
func (c *Catalog) OnLagMemberUpdate(o observer.LagMemberObserver) { c.lagMembers.Attach(o) }

// OnVlanMemberUpdate registers o to be notified of VLAN membership changes.
func (c *Catalog) OnVlanMemberUpdate(o observer.VlanMemberObserver) { c.vlanMembers.Attach(o) }
