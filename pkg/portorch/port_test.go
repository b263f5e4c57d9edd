package portorch

import (
	"testing"

	"github.com/sonic-net/go-orchagent/pkg/observer"
	"github.com/sonic-net/go-orchagent/pkg/sad/fakesad"
)

func TestBindPhyAndSetAttrs(t *testing.T) {
	d := fakesad.New()
	c := NewCatalog(d, []string{"Ethernet0"})

	if err := c.SetPortAdminStatus("Ethernet0", true); err != nil {
		t.Fatalf("SetPortAdminStatus: %v", err)
	}
	p, ok := c.GetPort("Ethernet0")
	if !ok || !p.AdminUp {
		t.Fatalf("expected Ethernet0 admin up, got %+v ok=%v", p, ok)
	}

	select {
	case <-c.InitDone():
	default:
		t.Fatal("expected InitDone to fire once the only seeded port came up")
	}
}

func TestInitDoneWaitsForAllSeedPorts(t *testing.T) {
	d := fakesad.New()
	c := NewCatalog(d, []string{"Ethernet0", "Ethernet4"})

	c.SetPortAdminStatus("Ethernet0", true)
	select {
	case <-c.InitDone():
		t.Fatal("InitDone fired before all seed ports were seen")
	default:
	}

	c.SetPortAdminStatus("Ethernet4", true)
	select {
	case <-c.InitDone():
	default:
		t.Fatal("expected InitDone to fire once all seed ports came up")
	}
}

func TestVlanMembershipNotifiesObservers(t *testing.T) {
	d := fakesad.New()
	c := NewCatalog(d, nil)
	if _, err := c.AddVlan("Vlan100", 100); err != nil {
		t.Fatalf("AddVlan: %v", err)
	}

	var got []observer.VlanMemberUpdate
	c.OnVlanMemberUpdate(vlanMemberFunc(func(u observer.VlanMemberUpdate) { got = append(got, u) }))

	if err := c.AddVlanMember("Vlan100", "Ethernet0", true); err != nil {
		t.Fatalf("AddVlanMember: %v", err)
	}
	if len(got) != 1 || !got[0].Added || got[0].Vlan != 100 || got[0].Member != "Ethernet0" {
		t.Fatalf("unexpected notification: %+v", got)
	}

	bp, ok := c.GetPort("Ethernet0")
	if !ok || bp.SadBridgePort == "" {
		t.Fatalf("expected bridge port handle to be recorded, got %+v", bp)
	}
	if _, ok := c.GetBridgePort(bp.SadBridgePort); !ok {
		t.Fatal("expected GetBridgePort to resolve the member by handle")
	}

	if err := c.RemoveVlanMember("Vlan100", "Ethernet0"); err != nil {
		t.Fatalf("RemoveVlanMember: %v", err)
	}
	if len(got) != 2 || got[1].Added {
		t.Fatalf("expected a removal notification, got %+v", got)
	}
}

func TestLagMembershipLifecycle(t *testing.T) {
	d := fakesad.New()
	c := NewCatalog(d, nil)
	if _, err := c.AddLag("PortChannel0001"); err != nil {
		t.Fatalf("AddLag: %v", err)
	}
	if err := c.AddLagMember("PortChannel0001", "Ethernet0"); err != nil {
		t.Fatalf("AddLagMember: %v", err)
	}
	if err := c.RemoveLag("PortChannel0001"); err == nil {
		t.Fatal("expected RemoveLag to fail while a member remains")
	}
	if err := c.RemoveLagMember("PortChannel0001", "Ethernet0"); err != nil {
		t.Fatalf("RemoveLagMember: %v", err)
	}
	if err := c.RemoveLag("PortChannel0001"); err != nil {
		t.Fatalf("RemoveLag: %v", err)
	}
}

type vlanMemberFunc func(observer.VlanMemberUpdate)

func (f vlanMemberFunc) OnVlanMemberUpdate(u observer.VlanMemberUpdate) { f(u) }
