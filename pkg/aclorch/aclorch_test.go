package aclorch

import (
	"net"
	"testing"

	"github.com/sonic-net/go-orchagent/pkg/fdborch"
	"github.com/sonic-net/go-orchagent/pkg/intfsorch"
	"github.com/sonic-net/go-orchagent/pkg/mirrororch"
	"github.com/sonic-net/go-orchagent/pkg/neighorch"
	"github.com/sonic-net/go-orchagent/pkg/portorch"
	"github.com/sonic-net/go-orchagent/pkg/routeorch"
	"github.com/sonic-net/go-orchagent/pkg/sad"
	"github.com/sonic-net/go-orchagent/pkg/sad/fakesad"
)

type fixture struct {
	o      *Orch
	ports  *portorch.Catalog
	intfs  *intfsorch.Orch
	neigh  *neighorch.Orch
	routes *routeorch.Orch
	mirror *mirrororch.Orch
	driver *fakesad.Driver
}

func setup(t *testing.T) *fixture {
	t.Helper()
	d := fakesad.New()
	ports := portorch.NewCatalog(d, nil)
	ports.SetPortAdminStatus("Ethernet4", true)
	ports.SetPortAdminStatus("Ethernet8", true)
	ctx := sad.NewContext(d)
	intfs := intfsorch.New(d, ports, ctx)
	_, ipnet, _ := net.ParseCIDR("10.0.0.0/24")
	intfs.Add("Ethernet4", ipnet)

	neigh := neighorch.New(d, intfs)
	routes := routeorch.New(d, ctx, neigh)
	fdb := fdborch.New(ports)
	mirror := mirrororch.New(d, ctx, ports, neigh, routes, fdb)

	o := New(d, ports, neigh, routes, mirror)

	return &fixture{o: o, ports: ports, intfs: intfs, neigh: neigh, routes: routes, mirror: mirror, driver: d}
}

func mustAddTable(t *testing.T, f *fixture, id string, typ TableType, ports []string) {
	t.Helper()
	if err := f.o.AddTable(id, typ, "", ports); err != nil {
		t.Fatalf("AddTable(%s): %v", id, err)
	}
}

func TestAddRuleForwardAndDrop(t *testing.T) {
	f := setup(t)
	mustAddTable(t, f, "t1", TableL3, []string{"Ethernet4"})

	matches := map[string]string{"SRC_IP": "10.1.1.0/24"}
	if err := f.o.AddRule("t1", "r1", 100, matches, "FORWARD", ""); err != nil {
		t.Fatalf("AddRule forward: %v", err)
	}
	if err := f.o.AddRule("t1", "r2", 101, matches, "DROP", ""); err != nil {
		t.Fatalf("AddRule drop: %v", err)
	}

	var created int
	for _, c := range f.driver.Calls {
		if c.Name == "CreateAclRule" {
			created++
		}
	}
	if created != 2 {
		t.Fatalf("expected 2 CreateAclRule calls, got %d", created)
	}
}

func TestAddRuleRejectsBothOrNeitherAction(t *testing.T) {
	f := setup(t)
	mustAddTable(t, f, "t1", TableL3, nil)
	matches := map[string]string{"IP_PROTOCOL": "6"}
	if err := f.o.AddRule("t1", "r1", 100, matches, "", ""); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid with no action, got %v", err)
	}
	if err := f.o.AddRule("t1", "r1", 100, matches, "FORWARD", "sess"); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid with both actions, got %v", err)
	}
}

func TestAddRuleRejectsPriorityOutOfRange(t *testing.T) {
	f := setup(t)
	mustAddTable(t, f, "t1", TableL3, nil)
	matches := map[string]string{"IP_PROTOCOL": "6"}
	if err := f.o.AddRule("t1", "r1", -1, matches, "FORWARD", ""); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for out-of-range priority, got %v", err)
	}
}

// TestRedirectToPort exercises the first branch of §4.7's REDIRECT target
// order: an existing physical port name.
func TestRedirectToPort(t *testing.T) {
	f := setup(t)
	mustAddTable(t, f, "t1", TableL3, nil)
	matches := map[string]string{"IP_PROTOCOL": "6"}
	if err := f.o.AddRule("t1", "r1", 100, matches, "REDIRECT:Ethernet8", ""); err != nil {
		t.Fatalf("AddRule redirect to port: %v", err)
	}
}

// TestRedirectToSingleIPBumpsNextHopRefcount exercises the third branch: a
// single IP that must match an existing NextHop.
func TestRedirectToSingleIPBumpsNextHopRefcount(t *testing.T) {
	f := setup(t)
	if err := f.neigh.AddNeighbor(neighorch.Key{Interface: "Ethernet4", IP: "10.0.0.5"}, "aa:bb:cc:dd:ee:01"); err != nil {
		t.Fatalf("AddNeighbor: %v", err)
	}
	nh, ok := f.neigh.NextHop(neighorch.Key{Interface: "Ethernet4", IP: "10.0.0.5"})
	if !ok {
		t.Fatal("expected resolved next hop")
	}

	mustAddTable(t, f, "t1", TableL3, nil)
	matches := map[string]string{"IP_PROTOCOL": "6"}
	if err := f.o.AddRule("t1", "r1", 100, matches, "REDIRECT:10.0.0.5", ""); err != nil {
		t.Fatalf("AddRule redirect to IP: %v", err)
	}
	if got := f.neigh.NhRefCount(nh); got != 1 {
		t.Fatalf("expected next hop refcount 1 after redirect, got %d", got)
	}

	if err := f.o.RemoveRule("t1", "r1"); err != nil {
		t.Fatalf("RemoveRule: %v", err)
	}
	if got := f.neigh.NhRefCount(nh); got != 0 {
		t.Fatalf("expected next hop refcount 0 after rule removal, got %d", got)
	}
}

// TestRedirectToIPSetRetriesUntilNeighborsResolve exercises the fourth
// branch: redirecting to a set of IPs stays pending (ErrRetry) until every
// member has a resolved neighbor, then creates a dedicated NHG.
func TestRedirectToIPSetRetriesUntilNeighborsResolve(t *testing.T) {
	f := setup(t)
	mustAddTable(t, f, "t1", TableL3, nil)
	matches := map[string]string{"IP_PROTOCOL": "6"}

	if err := f.o.AddRule("t1", "r1", 100, matches, "REDIRECT:10.0.0.6,10.0.0.7", ""); err != ErrRetry {
		t.Fatalf("expected ErrRetry before neighbors resolve, got %v", err)
	}

	f.neigh.AddNeighbor(neighorch.Key{Interface: "Ethernet4", IP: "10.0.0.6"}, "aa:bb:cc:dd:ee:02")
	f.neigh.AddNeighbor(neighorch.Key{Interface: "Ethernet4", IP: "10.0.0.7"}, "aa:bb:cc:dd:ee:03")

	if err := f.o.AddRule("t1", "r1", 100, matches, "REDIRECT:10.0.0.6,10.0.0.7", ""); err != nil {
		t.Fatalf("AddRule redirect to IP set: %v", err)
	}

	var sawGroup bool
	for _, c := range f.driver.Calls {
		if c.Name == "CreateNextHopGroup" {
			sawGroup = true
		}
	}
	if !sawGroup {
		t.Fatal("expected a NHG to be created for the redirect IP set")
	}
}

// TestMirrorRuleStagesUntilSessionActive exercises §4.7's mirror-rule
// staging: a rule referencing a not-yet-active session installs no SAD
// entry until the session activates, and then installs it.
func TestMirrorRuleStagesUntilSessionActive(t *testing.T) {
	f := setup(t)
	mustAddTable(t, f, "m1", TableMirror, nil)

	if err := f.mirror.AddSession("sess", "10.1.1.1", "20.1.1.1", 0x88be, 8, 255, 0, false); err != nil {
		t.Fatalf("AddSession: %v", err)
	}

	matches := map[string]string{"IP_PROTOCOL": "6"}
	if err := f.o.AddRule("m1", "r1", 100, matches, "", "sess"); err != nil {
		t.Fatalf("AddRule mirror: %v", err)
	}
	f.o.mu.Lock()
	staged := f.o.tables["m1"].rules["r1"].staged
	f.o.mu.Unlock()
	if !staged {
		t.Fatal("expected rule to be staged while session is inactive")
	}

	f.routes.AddRoute("20.1.1.0/24", []neighorch.Key{{Interface: "Ethernet4", IP: "10.0.0.9"}})
	f.neigh.AddNeighbor(neighorch.Key{Interface: "Ethernet4", IP: "10.0.0.9"}, "aa:bb:cc:dd:ee:04")
	// The first AddRoute waited (ErrRetry) for the neighbor; applying it again
	// now installs the route, as the daemon's retry of the pending entry does.
	if err := f.routes.AddRoute("20.1.1.0/24", []neighorch.Key{{Interface: "Ethernet4", IP: "10.0.0.9"}}); err != nil {
		t.Fatalf("AddRoute after neighbor: %v", err)
	}

	f.o.mu.Lock()
	staged = f.o.tables["m1"].rules["r1"].staged
	f.o.mu.Unlock()
	if staged {
		t.Fatal("expected rule to activate once the session became active")
	}

	var sawMirrorRule bool
	for _, c := range f.driver.Calls {
		if c.Name == "CreateAclRule" {
			if attrs, ok := c.Args[1].(sad.Attrs); ok && attrs["packet_action"] == "mirror" {
				sawMirrorRule = true
			}
		}
	}
	if !sawMirrorRule {
		t.Fatal("expected a mirror ACL rule to be created on activation")
	}
}

// fakeCounterWriter records every Set call for assertions, standing in for
// the COUNTERS RedisTable the daemon normally wires in via SetWriter.
type fakeCounterWriter struct {
	rows map[string]map[string]string
}

func (w *fakeCounterWriter) Set(key string, fields map[string]string) error {
	if w.rows == nil {
		w.rows = make(map[string]map[string]string)
	}
	w.rows[key] = fields
	return nil
}

// TestPollCountersUpdatesOnEveryCycle covers Testable Property #10: the
// COUNTERS row for a live rule reflects fresh driver stats on each poll, not
// just the first one.
func TestPollCountersUpdatesOnEveryCycle(t *testing.T) {
	f := setup(t)
	w := &fakeCounterWriter{}
	f.o.SetWriter(w)
	mustAddTable(t, f, "t1", TableL3, nil)

	matches := map[string]string{"IP_PROTOCOL": "6"}
	if err := f.o.AddRule("t1", "r1", 100, matches, "FORWARD", ""); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	f.o.mu.Lock()
	handle := f.o.tables["t1"].rules["r1"].sadHandle
	f.o.mu.Unlock()
	if handle == "" {
		t.Fatal("expected rule to have a live sadHandle")
	}

	f.driver.BumpCounter(handle, 10, 1000)
	f.o.pollCounters()
	row, ok := w.rows["t1:r1"]
	if !ok {
		t.Fatal("expected a COUNTERS row after first poll")
	}
	if row["Packets"] != "10" || row["Bytes"] != "1000" {
		t.Fatalf("after first poll: got %+v, want Packets=10 Bytes=1000", row)
	}

	f.driver.BumpCounter(handle, 5, 500)
	f.o.pollCounters()
	row, ok = w.rows["t1:r1"]
	if !ok {
		t.Fatal("expected a COUNTERS row after second poll")
	}
	if row["Packets"] != "15" || row["Bytes"] != "1500" {
		t.Fatalf("after second poll: got %+v, want Packets=15 Bytes=1500", row)
	}
}
