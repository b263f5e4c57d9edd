package neighorch

import (
	"errors"
	"net"
	"testing"

	"github.com/sonic-net/go-orchagent/pkg/intfsorch"
	"github.com/sonic-net/go-orchagent/pkg/observer"
	"github.com/sonic-net/go-orchagent/pkg/portorch"
	"github.com/sonic-net/go-orchagent/pkg/sad"
	"github.com/sonic-net/go-orchagent/pkg/sad/fakesad"
	"github.com/sonic-net/go-orchagent/pkg/util"
)

func setup(t *testing.T) (*Orch, *intfsorch.Orch, *fakesad.Driver) {
	t.Helper()
	d := fakesad.New()
	ports := portorch.NewCatalog(d, nil)
	ports.SetPortAdminStatus("Ethernet0", true)
	ctx := sad.NewContext(d)
	intfs := intfsorch.New(d, ports, ctx)
	_, ipnet, _ := net.ParseCIDR("10.0.0.0/31")
	if err := intfs.Add("Ethernet0", ipnet); err != nil {
		t.Fatalf("intfs.Add: %v", err)
	}
	return New(d, intfs), intfs, d
}

func TestAddNeighborCreatesNextHop(t *testing.T) {
	o, _, _ := setup(t)
	k := Key{Interface: "Ethernet0", IP: "10.0.0.1"}
	if err := o.AddNeighbor(k, "aa:bb:cc:dd:ee:01"); err != nil {
		t.Fatalf("AddNeighbor: %v", err)
	}
	n, ok := o.Get(k)
	if !ok || n.Nh == "" {
		t.Fatalf("expected neighbor with a nexthop handle, got %+v ok=%v", n, ok)
	}
}

func TestAddNeighborUpdatesMacInPlace(t *testing.T) {
	o, _, d := setup(t)
	k := Key{Interface: "Ethernet0", IP: "10.0.0.1"}
	o.AddNeighbor(k, "aa:bb:cc:dd:ee:01")
	before := len(d.Calls)
	if err := o.AddNeighbor(k, "aa:bb:cc:dd:ee:02"); err != nil {
		t.Fatalf("AddNeighbor update: %v", err)
	}
	n, _ := o.Get(k)
	if n.Mac != "aa:bb:cc:dd:ee:02" {
		t.Fatalf("expected mac updated, got %s", n.Mac)
	}
	var setMac, createNh int
	for _, c := range d.Calls[before:] {
		if c.Name == "SetNeighborMac" {
			setMac++
		}
		if c.Name == "CreateNextHop" {
			createNh++
		}
	}
	if setMac != 1 || createNh != 0 {
		t.Fatalf("expected exactly one SetNeighborMac and no new CreateNextHop, got setMac=%d createNh=%d", setMac, createNh)
	}
}

func TestRemoveNeighborRetriesWhileNextHopReferenced(t *testing.T) {
	o, _, _ := setup(t)
	k := Key{Interface: "Ethernet0", IP: "10.0.0.1"}
	o.AddNeighbor(k, "aa:bb:cc:dd:ee:01")
	n, _ := o.Get(k)
	o.HoldNextHop(n.Nh)

	if err := o.RemoveNeighbor(k); err != ErrRetry {
		t.Fatalf("expected ErrRetry while nexthop referenced, got %v", err)
	}

	o.ReleaseNextHop(n.Nh)
	if err := o.RemoveNeighbor(k); err != nil {
		t.Fatalf("RemoveNeighbor after release: %v", err)
	}
	if _, ok := o.Get(k); ok {
		t.Fatal("expected neighbor to be removed")
	}
}

func TestNeighborObserverNotified(t *testing.T) {
	o, _, _ := setup(t)
	var got []observer.NeighborUpdate
	o.OnNeighborUpdate(neighborFunc(func(u observer.NeighborUpdate) { got = append(got, u) }))

	k := Key{Interface: "Ethernet0", IP: "10.0.0.1"}
	o.AddNeighbor(k, "aa:bb:cc:dd:ee:01")
	if len(got) != 1 || !got[0].Add {
		t.Fatalf("expected one add notification, got %+v", got)
	}

	o.RemoveNeighbor(k)
	if len(got) != 2 || got[1].Add {
		t.Fatalf("expected a remove notification, got %+v", got)
	}
}

func TestAddNeighborRejectsMalformedMac(t *testing.T) {
	o, _, _ := setup(t)
	k := Key{Interface: "Ethernet0", IP: "10.0.0.1"}
	err := o.AddNeighbor(k, "not-a-mac")
	if !errors.Is(err, util.ErrParse) {
		t.Fatalf("expected ErrParse for malformed mac, got %v", err)
	}
	if _, ok := o.Get(k); ok {
		t.Fatal("expected no neighbor to be created for a malformed mac")
	}
}

type neighborFunc func(observer.NeighborUpdate)

func (f neighborFunc) OnNeighborUpdate(u observer.NeighborUpdate) { f(u) }
