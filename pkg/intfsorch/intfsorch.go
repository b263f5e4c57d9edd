// Package intfsorch implements the Interface/L3 subsystem (spec.md §4.3,
// C5): router interface lifecycle, subnet/IP2Me route install, and the
// overlap guard recovered from
// original_source/sonic-swss/orchagent/intfsorch.cpp (a host configurator
// can apply an IP address in two stages — first with a /8-ish netmask, then
// with the real one — and the async feed can reorder the two events).
package intfsorch

import (
	"fmt"
	"net"
	"strings"

	"github.com/sonic-net/go-orchagent/pkg/portorch"
	"github.com/sonic-net/go-orchagent/pkg/sad"
)

// managementAliases are sentinel names the original skips entirely; "lo" is
// special-cased to only install the IP2Me route (spec.md §4.3 step 1).
var managementAliases = map[string]bool{"eth0": true, "docker0": true}

// Interface tracks one router interface's installed prefixes and the
// lifecycle ref-count spread across its subnet/IP2Me routes.
type Interface struct {
	Alias    string
	Rif      sad.Handle
	Prefixes map[string]*net.IPNet
	RefCount int
}

// Orch is the Interface/L3 subsystem instance.
type Orch struct {
	driver  sad.Driver
	ports   *portorch.Catalog
	ctx     sad.Context
	syncd   map[string]*Interface
}

// New constructs the Interface/L3 subsystem.
func New(driver sad.Driver, ports *portorch.Catalog, ctx sad.Context) *Orch {
	return &Orch{driver: driver, ports: ports, ctx: ctx, syncd: make(map[string]*Interface)}
}

// Get returns the synced interface for alias, if any.
func (o *Orch) Get(alias string) (*Interface, bool) {
	i, ok := o.syncd[alias]
	return i, ok
}

// ErrRetry is returned by Add when the caller should leave the entry pending
// and retry later (missing port dependency or an overlapping prefix still
// mid-transition).
var ErrRetry = fmt.Errorf("intfsorch: retry")

// Add installs one IP prefix on port's router interface (spec.md §4.3).
func (o *Orch) Add(alias string, prefix *net.IPNet) error {
	if managementAliases[alias] {
		return nil
	}
	if alias == "lo" {
		return o.addIp2MeRoute(prefix)
	}

	port, ok := o.ports.GetPort(alias)
	if !ok {
		return ErrRetry
	}

	intf, ok := o.syncd[alias]
	if !ok {
		rif, err := o.createRouterIntfs(port)
		if err != nil {
			return ErrRetry
		}
		intf = &Interface{Alias: alias, Rif: rif, Prefixes: make(map[string]*net.IPNet)}
		o.syncd[alias] = intf
		port.SadRif = rif
	}

	key := prefix.String()
	if _, dup := intf.Prefixes[key]; dup {
		return nil
	}

	for _, existing := range intf.Prefixes {
		if existing.Contains(prefix.IP) || prefix.Contains(existing.IP) {
			return ErrRetry
		}
	}

	if err := o.addSubnetRoute(intf, prefix); err != nil {
		return err
	}
	if err := o.addIp2MeRoute(prefix); err != nil {
		return err
	}
	intf.RefCount++ // IP2Me route installation also bumps the rif ref_count

	intf.Prefixes[key] = prefix
	return nil
}

// Remove uninstalls prefix from alias's router interface, destroying the rif
// once both its ref_count and ip set are empty.
func (o *Orch) Remove(alias string, prefix *net.IPNet) error {
	if managementAliases[alias] || alias == "lo" {
		return nil
	}
	intf, ok := o.syncd[alias]
	if !ok {
		return nil
	}
	key := prefix.String()
	if _, ok := intf.Prefixes[key]; !ok {
		return nil
	}

	vr := o.ctx.DefaultVR
	if err := o.driver.RemoveRoute(vr, prefix.String()); err != nil {
		return sad.Call("RemoveRoute", err)
	}
	if err := o.driver.RemoveRoute(vr, hostRoute(prefix)); err != nil {
		return sad.Call("RemoveRoute", err)
	}
	intf.RefCount -= 2 // subnet route + IP2Me route each held one ref
	delete(intf.Prefixes, key)

	if intf.RefCount <= 0 && len(intf.Prefixes) == 0 {
		if err := o.driver.RemoveRouterInterface(intf.Rif); err != nil {
			return sad.Call("RemoveRouterInterface", err)
		}
		delete(o.syncd, alias)
		if p, ok := o.ports.GetPort(alias); ok {
			p.SadRif = ""
		}
	}
	return nil
}

func (o *Orch) createRouterIntfs(port *portorch.Port) (sad.Handle, error) {
	attrs := sad.Attrs{"virtual_router": o.ctx.DefaultVR}
	switch port.Kind {
	case portorch.KindVlan:
		attrs["type"] = "vlan"
		attrs["vlan"] = port.SadVlan
	case portorch.KindLag:
		attrs["type"] = "lag"
		attrs["port"] = port.SadLag
	default:
		attrs["type"] = "port"
		attrs["port"] = port.SadPort
	}
	h, err := o.driver.CreateRouterInterface(attrs)
	if err != nil {
		return "", sad.Call("CreateRouterInterface", err)
	}
	return h, nil
}

func (o *Orch) addSubnetRoute(intf *Interface, prefix *net.IPNet) error {
	if err := o.driver.CreateRoute(o.ctx.DefaultVR, prefix.String(), intf.Rif, sad.RouteActionForward); err != nil {
		return sad.Call("CreateRoute", err)
	}
	intf.RefCount++
	return nil
}

func (o *Orch) addIp2MeRoute(prefix *net.IPNet) error {
	host := hostRoute(prefix)
	if err := o.driver.CreateRoute(o.ctx.DefaultVR, host, o.ctx.CPUPort, sad.RouteActionForward); err != nil {
		return sad.Call("CreateRoute", err)
	}
	return nil
}

// hostRoute renders the /32 (or /128) host route for the interface's own
// address, as the IP2Me route (spec.md §4.3).
func hostRoute(prefix *net.IPNet) string {
	bits := 32
	if strings.Contains(prefix.IP.String(), ":") {
		bits = 128
	}
	return fmt.Sprintf("%s/%d", prefix.IP.String(), bits)
}
