package orchdaemon

import (
	"testing"

	"github.com/sonic-net/go-orchagent/pkg/mirrororch"
	"github.com/sonic-net/go-orchagent/pkg/orchconfig"
	"github.com/sonic-net/go-orchagent/pkg/sad/fakesad"
	"github.com/sonic-net/go-orchagent/pkg/store"
	"github.com/sonic-net/go-orchagent/pkg/store/faketable"
)

func newTestDaemon(t *testing.T, seedPorts []string) (*Daemon, *fakesad.Driver, map[string]*faketable.Table) {
	t.Helper()
	driver := fakesad.New()
	cfg := orchconfig.Default()
	cfg.SeedPorts = seedPorts

	tables := make(map[string]*faketable.Table)
	factory := func(name string) store.Table {
		tbl := faketable.New(name)
		tables[name] = tbl
		return tbl
	}

	d, err := New(driver, cfg, factory, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, driver, tables
}

func TestBuildWiresEveryComponent(t *testing.T) {
	driver := fakesad.New()
	c := Build(driver, orchconfig.Default())
	if c.Ports == nil || c.Intfs == nil || c.Neigh == nil || c.Routes == nil ||
		c.Fdb == nil || c.Mirror == nil || c.Acl == nil || c.Qos == nil ||
		c.Buffer == nil || c.Copp == nil {
		t.Fatal("expected every subsystem component to be constructed")
	}
}

func TestNewRejectsUnknownHandler(t *testing.T) {
	driver := fakesad.New()
	cfg := &orchconfig.Config{Tables: []string{"NOT_A_TABLE"}}
	_, err := New(driver, cfg, func(name string) store.Table {
		return faketable.New(name)
	}, nil)
	if err == nil {
		t.Fatal("expected an error for a table with no registered handler")
	}
}

// TestMirrorEndToEnd walks spec.md §8's mirror scenario entirely through
// the daemon's wiring: a session with no route is inactive, gaining a route
// with no neighbor is still inactive, gaining the neighbor activates it,
// and removing the neighbor deactivates it again.
func TestMirrorEndToEnd(t *testing.T) {
	d, driver, tables := newTestDaemon(t, nil)
	c := d.Components()

	c.Ports.SetPortAdminStatus("Ethernet4", true)

	tables["MIRROR_SESSION_TABLE"].Push("s",
		faketable.Field("src_ip", "10.1.1.1"),
		faketable.Field("dst_ip", "20.1.1.1"),
		faketable.Field("gre_type", "0x88be"),
		faketable.Field("dscp", "8"),
		faketable.Field("ttl", "255"),
		faketable.Field("queue", "0"),
	)
	d.Tick("MIRROR_SESSION_TABLE")

	if s, ok := c.Mirror.Get("s"); !ok || s.Status() != mirrororch.Inactive {
		t.Fatalf("expected session inactive with no route, got %+v", s)
	}

	tables["INTF_TABLE"].Push("Ethernet4|10.0.0.1/24")
	d.Tick("INTF_TABLE")

	tables["ROUTE_TABLE"].Push("20.1.1.0/24",
		faketable.Field("nexthop", "10.0.0.2"),
		faketable.Field("ifname", "Ethernet4"))
	d.Tick("ROUTE_TABLE")

	if s, ok := c.Mirror.Get("s"); !ok || s.Status() != mirrororch.Inactive {
		t.Fatalf("expected session still inactive with no neighbor, got %+v", s)
	}

	tables["NEIGH_TABLE"].Push("Ethernet4:10.0.0.2", faketable.Field("neigh", "aa:bb:cc:dd:ee:ff"))
	d.Tick("NEIGH_TABLE")

	s, ok := c.Mirror.Get("s")
	if !ok || s.Status() != mirrororch.Active {
		t.Fatalf("expected session active once neighbor resolves, got %+v ok=%v", s, ok)
	}

	foundCreate := false
	for _, call := range driver.Calls {
		if call.Name == "CreateMirrorSession" {
			foundCreate = true
		}
	}
	if !foundCreate {
		t.Fatal("expected a CreateMirrorSession SAD call once the session activated")
	}

	committed, ok := tables["MIRROR_SESSION_TABLE"].Committed("s")
	if !ok || committed["status"] != "active" {
		t.Fatalf("expected status=active written back to the store, got %+v ok=%v", committed, ok)
	}

	tables["NEIGH_TABLE"].PushDel("Ethernet4:10.0.0.2")
	d.Tick("NEIGH_TABLE")

	s, ok = c.Mirror.Get("s")
	if !ok || s.Status() != mirrororch.Inactive {
		t.Fatalf("expected session inactive after neighbor removal, got %+v", s)
	}
}

func TestPortVlanLagWiringThroughDaemon(t *testing.T) {
	d, _, tables := newTestDaemon(t, nil)
	c := d.Components()

	tables["VLAN_TABLE"].Push("Vlan100", faketable.Field("vlanid", "100"))
	d.Tick("VLAN_TABLE")
	if _, ok := c.Ports.GetPort("Vlan100"); !ok {
		t.Fatal("expected Vlan100 to be created")
	}

	tables["LAG_TABLE"].Push("PortChannel0001")
	d.Tick("LAG_TABLE")
	if _, ok := c.Ports.GetPort("PortChannel0001"); !ok {
		t.Fatal("expected PortChannel0001 to be created")
	}

	tables["LAG_MEMBER_TABLE"].Push("PortChannel0001|Ethernet0")
	d.Tick("LAG_MEMBER_TABLE")
	port, ok := c.Ports.GetPort("PortChannel0001")
	if !ok || len(port.Members) != 1 {
		t.Fatalf("expected one LAG member, got %+v ok=%v", port, ok)
	}
}

func TestAclRedirectRetriesUntilNeighborResolves(t *testing.T) {
	d, _, tables := newTestDaemon(t, nil)
	c := d.Components()
	c.Ports.SetPortAdminStatus("Ethernet0", true)

	tables["ACL_TABLE"].Push("ACL1", faketable.Field("TYPE", "L3"), faketable.Field("PORTS", "Ethernet0"))
	d.Tick("ACL_TABLE")

	tables["ACL_RULE_TABLE"].Push("ACL1:1",
		faketable.Field("PRIORITY", "100"),
		faketable.Field("SRC_IP", "1.2.3.4/32"),
		faketable.Field("PACKET_ACTION", "REDIRECT:1.1.1.1"))
	d.Tick("ACL_RULE_TABLE")

	if d.consumers["ACL_RULE_TABLE"].PendingCount() == 0 {
		t.Fatal("expected the redirect rule to stay pending with no matching next hop")
	}

	tables["INTF_TABLE"].Push("Ethernet0|1.1.1.0/24")
	d.Tick("INTF_TABLE")
	tables["NEIGH_TABLE"].Push("Ethernet0:1.1.1.1", faketable.Field("neigh", "aa:bb:cc:dd:ee:01"))
	d.Tick("NEIGH_TABLE")

	if d.consumers["ACL_RULE_TABLE"].PendingCount() != 0 {
		t.Fatal("expected the redirect rule to resolve once the next hop exists")
	}
}
